package session

import (
	"errors"
	"testing"
	"time"
)

func newTestCache() (*activityCache, *time.Time) {
	clock := time.Unix(5000, 0)
	c := newActivityCache(time.Second, func() time.Time { return clock })
	return c, &clock
}

func TestActivityCacheServesYoungHighConfidenceSnapshot(t *testing.T) {
	c, clock := newTestCache()

	reads := 0
	read := func() (ActivitySignals, error) {
		reads++
		return ActivitySignals{Marker: true, SampledAt: *clock}, nil
	}

	c.get("tab-b", read)
	c.markConfidence("tab-b", true)

	*clock = clock.Add(500 * time.Millisecond)
	sig := c.get("tab-b", read)
	if reads != 1 {
		t.Fatalf("read count = %d; want 1 (young high-confidence snapshot cached)", reads)
	}
	if !sig.Marker {
		t.Fatal("cached snapshot lost the marker signal")
	}
}

func TestActivityCacheRereadsLowConfidenceSnapshot(t *testing.T) {
	c, clock := newTestCache()

	reads := 0
	read := func() (ActivitySignals, error) {
		reads++
		return ActivitySignals{SampledAt: *clock}, nil
	}

	c.get("tab-b", read)
	c.markConfidence("tab-b", false)

	*clock = clock.Add(100 * time.Millisecond)
	c.get("tab-b", read)
	if reads != 2 {
		t.Fatalf("read count = %d; want 2 (low-confidence snapshot not served)", reads)
	}
}

func TestActivityCacheRereadsExpiredSnapshot(t *testing.T) {
	c, clock := newTestCache()

	reads := 0
	read := func() (ActivitySignals, error) {
		reads++
		return ActivitySignals{Marker: true, SampledAt: *clock}, nil
	}

	c.get("tab-b", read)
	c.markConfidence("tab-b", true)

	*clock = clock.Add(2 * time.Second)
	c.get("tab-b", read)
	if reads != 2 {
		t.Fatalf("read count = %d; want 2 (snapshot past TTL re-read)", reads)
	}
}

func TestActivityCacheDegradesToStaleSnapshotOnReadError(t *testing.T) {
	c, clock := newTestCache()

	c.get("tab-b", func() (ActivitySignals, error) {
		return ActivitySignals{Interaction: true, SampledAt: *clock}, nil
	})

	*clock = clock.Add(2 * time.Second)
	sig := c.get("tab-b", func() (ActivitySignals, error) {
		return ActivitySignals{}, errors.New("cannot find context with specified id")
	})
	if !sig.Interaction {
		t.Fatal("read error did not degrade to the stale snapshot")
	}
}

func TestActivityCacheReadErrorWithoutSnapshotIsEmpty(t *testing.T) {
	c, _ := newTestCache()

	sig := c.get("tab-b", func() (ActivitySignals, error) {
		return ActivitySignals{}, errors.New("no execution context")
	})
	if sig.Marker || sig.Interaction || sig.Mutation || sig.FormActivity {
		t.Fatalf("signals on fresh read error = %+v; want none", sig)
	}
}

func TestActivityCacheForget(t *testing.T) {
	c, _ := newTestCache()

	c.get("tab-b", func() (ActivitySignals, error) {
		return ActivitySignals{Marker: true}, nil
	})
	c.markConfidence("tab-b", true)
	c.forget("tab-b")

	reads := 0
	c.get("tab-b", func() (ActivitySignals, error) {
		reads++
		return ActivitySignals{}, nil
	})
	if reads != 1 {
		t.Fatalf("read count after forget = %d; want 1", reads)
	}
}

func TestActivityLockHeld(t *testing.T) {
	now := time.Unix(5000, 0)
	lock := ActivityLock{TabID: "tab-b", Reason: "marker", Until: now.Add(5 * time.Second)}

	if !lock.held(now) {
		t.Fatal("held() = false before expiry; want true")
	}
	if !lock.heldFor("tab-b", now) {
		t.Fatal("heldFor(tab-b) = false before expiry; want true")
	}
	if lock.heldFor("tab-c", now) {
		t.Fatal("heldFor(tab-c) = true; want false")
	}
	if lock.held(now.Add(6 * time.Second)) {
		t.Fatal("held() = true after expiry; want false")
	}
	if (ActivityLock{}).held(now) {
		t.Fatal("zero lock reports held")
	}
}
