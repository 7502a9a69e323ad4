package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// activityProbeScript is installed on every new document of a tracked
// tab. It records interaction, mutation and form timestamps in a single
// versioned global the read script samples. Idempotent per document.
const activityProbeScript = `(() => {
  if (window.__activityProbe) return;
  const s = { version: 1, lastInteraction: 0, lastMutation: 0, lastForm: 0 };
  window.__activityProbe = s;
  const touch = () => { s.lastInteraction = Date.now(); };
  for (const ev of ['mousedown', 'keydown', 'wheel', 'touchstart', 'pointerdown']) {
    window.addEventListener(ev, touch, { capture: true, passive: true });
  }
  for (const ev of ['input', 'change', 'focusin']) {
    window.addEventListener(ev, () => { s.lastForm = Date.now(); }, { capture: true, passive: true });
  }
  try {
    new MutationObserver(() => { s.lastMutation = Date.now(); })
      .observe(document.documentElement, { childList: true, subtree: true, attributes: true });
  } catch (e) {}
})();`

// activityReadScript samples the probe state. Returns a JSON string with
// an ok/data envelope so page-side failures are distinguishable from
// channel failures. The marker global is a side channel an automation
// driver may set on the page it is working in; it is corroborating
// evidence only, scoring still weighs URL and recency.
const activityReadScript = `(() => {
  try {
    const s = window.__activityProbe || {};
    const now = Date.now();
    const age = (t) => (t ? now - t : -1);
    return JSON.stringify({ ok: true, data: {
      marker: !!window.__activityMarker,
      interactionMs: age(s.lastInteraction),
      mutationMs: age(s.lastMutation),
      formMs: age(s.lastForm),
      loading: document.readyState !== 'complete',
      visible: document.visibilityState === 'visible'
    }});
  } catch (e) {
    return JSON.stringify({ ok: false, error: String(e) });
  }
})()`

// Signal recency windows. A timestamp older than its window no longer
// counts as activity.
const (
	interactionWindow = 10 * time.Second
	mutationWindow    = 3 * time.Second
	formWindow        = 10 * time.Second
)

// ActivitySignals is the fixed-schema result of one probe read.
type ActivitySignals struct {
	Marker       bool
	Interaction  bool
	Mutation     bool
	FormActivity bool
	Loading      bool
	Visible      bool
	SampledAt    time.Time
}

// readActivity evaluates the probe read script on a tab's flat session
// and decodes the envelope.
func readActivity(ctx context.Context, ch ControlChannel, cdpSessionID string, now time.Time) (ActivitySignals, error) {
	raw, err := ch.Evaluate(ctx, cdpSessionID, activityReadScript)
	if err != nil {
		return ActivitySignals{}, err
	}

	var payload string
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ActivitySignals{}, fmt.Errorf("activity probe: %w", err)
	}

	var envelope struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
		Data  struct {
			Marker        bool  `json:"marker"`
			InteractionMs int64 `json:"interactionMs"`
			MutationMs    int64 `json:"mutationMs"`
			FormMs        int64 `json:"formMs"`
			Loading       bool  `json:"loading"`
			Visible       bool  `json:"visible"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		return ActivitySignals{}, fmt.Errorf("activity probe: %w", err)
	}
	if !envelope.OK {
		return ActivitySignals{}, fmt.Errorf("activity probe: %s", envelope.Error)
	}

	d := envelope.Data
	within := func(ms int64, window time.Duration) bool {
		return ms >= 0 && time.Duration(ms)*time.Millisecond < window
	}
	return ActivitySignals{
		Marker:       d.Marker,
		Interaction:  within(d.InteractionMs, interactionWindow),
		Mutation:     within(d.MutationMs, mutationWindow),
		FormActivity: within(d.FormMs, formWindow),
		Loading:      d.Loading,
		Visible:      d.Visible,
		SampledAt:    now,
	}, nil
}

type snapshotEntry struct {
	sig            ActivitySignals
	highConfidence bool
}

// activityCache holds per-tab probe snapshots. A cached snapshot is
// served only while younger than the TTL and previously judged
// high-confidence; anything else triggers a fresh read. Read failures
// (tab closing, no execution context) degrade to the last snapshot
// instead of propagating.
type activityCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]snapshotEntry
	now     func() time.Time
}

func newActivityCache(ttl time.Duration, now func() time.Time) *activityCache {
	if now == nil {
		now = time.Now
	}
	return &activityCache{ttl: ttl, entries: make(map[string]snapshotEntry), now: now}
}

// get returns signals for a tab, reading fresh via read unless a young
// high-confidence snapshot exists.
func (c *activityCache) get(tabID string, read func() (ActivitySignals, error)) ActivitySignals {
	now := c.now()

	c.mu.Lock()
	entry, ok := c.entries[tabID]
	c.mu.Unlock()

	if ok && entry.highConfidence && now.Sub(entry.sig.SampledAt) < c.ttl {
		return entry.sig
	}

	sig, err := read()
	if err != nil {
		// Degrade to the stale snapshot; a closing tab must not
		// poison the detection pass.
		if ok {
			return entry.sig
		}
		return ActivitySignals{SampledAt: now}
	}

	c.mu.Lock()
	c.entries[tabID] = snapshotEntry{sig: sig, highConfidence: entry.highConfidence}
	c.mu.Unlock()
	return sig
}

// markConfidence records whether the last scored read of a tab crossed
// the high-confidence threshold, controlling cache eligibility.
func (c *activityCache) markConfidence(tabID string, high bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[tabID]
	if !ok {
		return
	}
	entry.highConfidence = high
	c.entries[tabID] = entry
}

func (c *activityCache) forget(tabID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tabID)
}

// ActivityLock pins the active tab for its duration so near-tied scores
// cannot flap the stream between tabs. The zero value means unlocked.
type ActivityLock struct {
	TabID  string
	Reason string
	Until  time.Time
}

// heldFor reports whether the lock pins the given tab at time now.
func (l ActivityLock) heldFor(tabID string, now time.Time) bool {
	return l.TabID == tabID && now.Before(l.Until)
}

// held reports whether the lock pins any tab at time now.
func (l ActivityLock) held(now time.Time) bool {
	return l.TabID != "" && now.Before(l.Until)
}
