package cdp

import (
	"reflect"
	"testing"
	"time"

	"github.com/chromedp/cdproto/target"
)

func newTestRegistry(start time.Time) (*TabRegistry, *time.Time) {
	clock := start
	r := NewTabRegistry()
	r.now = func() time.Time { return clock }
	return r, &clock
}

func TestRegisterAndListPreservesInsertionOrder(t *testing.T) {
	r, _ := newTestRegistry(time.Unix(1000, 0))
	r.Register("t-b", "Beta", "https://b.example.com")
	r.Register("t-a", "Alpha", "https://a.example.com")
	r.Register("t-c", "Gamma", "https://c.example.com")

	tabs := r.List()
	if len(tabs) != 3 {
		t.Fatalf("List() length = %d; want 3", len(tabs))
	}
	want := []string{"t-b", "t-a", "t-c"}
	for i, id := range want {
		if tabs[i].TargetID != id {
			t.Fatalf("List()[%d] = %q; want %q", i, tabs[i].TargetID, id)
		}
	}
}

func TestUpdateKeepsLastGoodRead(t *testing.T) {
	r, _ := newTestRegistry(time.Unix(1000, 0))
	r.Register("t-1", "Example", "https://example.com")

	// An introspection failure produces empty values; they must not
	// clobber the previous successful read.
	if !r.Update("t-1", "", "") {
		t.Fatal("Update() = false; want true")
	}
	tab, _ := r.Get("t-1")
	if tab.Title != "Example" || tab.URL != "https://example.com" {
		t.Fatalf("tab after empty update = %q %q; want previous values kept", tab.Title, tab.URL)
	}

	if r.Update("t-missing", "x", "y") {
		t.Fatal("Update() on unknown tab = true; want false")
	}
}

func TestUpdateNavigationBumpsLastActive(t *testing.T) {
	r, clock := newTestRegistry(time.Unix(1000, 0))
	r.Register("t-1", "", "https://example.com")
	before, _ := r.Get("t-1")

	*clock = clock.Add(10 * time.Second)
	r.Update("t-1", "", "https://example.com/next")

	after, _ := r.Get("t-1")
	if !after.LastActiveAt.After(before.LastActiveAt) {
		t.Fatalf("LastActiveAt not bumped by navigation: %v -> %v", before.LastActiveAt, after.LastActiveAt)
	}

	// Re-reading the same URL is not a navigation.
	prev := after.LastActiveAt
	*clock = clock.Add(10 * time.Second)
	r.Update("t-1", "", "https://example.com/next")
	same, _ := r.Get("t-1")
	if !same.LastActiveAt.Equal(prev) {
		t.Fatalf("LastActiveAt bumped without navigation: %v -> %v", prev, same.LastActiveAt)
	}
}

func TestMarkActiveIsExclusive(t *testing.T) {
	r, _ := newTestRegistry(time.Unix(1000, 0))
	r.Register("t-1", "", "https://a.example.com")
	r.Register("t-2", "", "https://b.example.com")

	if !r.MarkActive("t-1") {
		t.Fatal("MarkActive(t-1) = false; want true")
	}
	if !r.MarkActive("t-2") {
		t.Fatal("MarkActive(t-2) = false; want true")
	}

	active := 0
	for _, tab := range r.List() {
		if tab.IsActive {
			active++
			if tab.TargetID != "t-2" {
				t.Fatalf("active tab = %q; want t-2", tab.TargetID)
			}
		}
	}
	if active != 1 {
		t.Fatalf("active count = %d; want exactly 1", active)
	}
	if got := r.ActiveID(); got != "t-2" {
		t.Fatalf("ActiveID() = %q; want t-2", got)
	}

	if r.MarkActive("t-missing") {
		t.Fatal("MarkActive(unknown) = true; want false")
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	r, _ := newTestRegistry(time.Unix(1000, 0))
	r.Register("t-stale", "Old", "https://old.example.com")

	live := []*target.Info{
		{TargetID: target.ID("t-1"), Type: "page", Title: "One", URL: "https://one.example.com"},
		{TargetID: target.ID("t-2"), Type: "page", Title: "Two", URL: "https://two.example.com"},
		{TargetID: target.ID("sw-1"), Type: "service_worker", URL: "https://one.example.com/sw.js"},
	}

	r.Reconcile(live)
	first := r.List()

	if r.Has("t-stale") {
		t.Fatal("Reconcile() kept a target absent from the live set")
	}
	if r.Has("sw-1") {
		t.Fatal("Reconcile() registered a non-page target")
	}

	r.Reconcile(live)
	second := r.List()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("second Reconcile() changed registry contents:\n%v\n%v", first, second)
	}
}

func TestReconcileHandlesKeepsKnownMetadata(t *testing.T) {
	r, _ := newTestRegistry(time.Unix(1000, 0))
	r.Register("t-1", "One", "https://one.example.com")
	r.Register("t-2", "Two", "https://two.example.com")

	r.ReconcileHandles([]string{"t-1", "t-3"})

	tab, ok := r.Get("t-1")
	if !ok || tab.Title != "One" || tab.URL != "https://one.example.com" {
		t.Fatalf("handle reconcile lost metadata: %+v", tab)
	}
	if r.Has("t-2") {
		t.Fatal("handle reconcile kept an absent target")
	}
	if !r.Has("t-3") {
		t.Fatal("handle reconcile did not register a new handle")
	}
}

func TestRemove(t *testing.T) {
	r, _ := newTestRegistry(time.Unix(1000, 0))
	r.Register("t-1", "", "https://a.example.com")
	r.Register("t-2", "", "https://b.example.com")

	r.Remove("t-1")
	if r.Has("t-1") {
		t.Fatal("Remove() left the tab in the registry")
	}
	if got := r.Count(); got != 1 {
		t.Fatalf("Count() = %d; want 1", got)
	}
	tabs := r.List()
	if len(tabs) != 1 || tabs[0].TargetID != "t-2" {
		t.Fatalf("List() after remove = %v; want only t-2", tabs)
	}

	// Removing twice is harmless.
	r.Remove("t-1")
}

func TestIsSystemURL(t *testing.T) {
	system := []string{"", "about:blank", "chrome://settings", "devtools://devtools/bundled", "chrome-extension://abc/page.html"}
	for _, u := range system {
		if !IsSystemURL(u) {
			t.Fatalf("IsSystemURL(%q) = false; want true", u)
		}
	}
	real := []string{"https://example.com", "http://localhost:8080/app"}
	for _, u := range real {
		if IsSystemURL(u) {
			t.Fatalf("IsSystemURL(%q) = true; want false", u)
		}
	}
}
