package cdp

import (
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
)

// TabInfo holds metadata about one browser tab.
type TabInfo struct {
	TargetID     string    `json:"id"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

// TabRegistry is the authoritative map of known tabs for one session. Both
// pushed lifecycle events and the polling reconcile sweep write into it, so
// the two discovery paths cannot diverge. Insertion order is preserved for
// deterministic tie-breaks.
type TabRegistry struct {
	mu    sync.RWMutex
	tabs  map[string]*TabInfo
	order []string
	now   func() time.Time
}

func NewTabRegistry() *TabRegistry {
	return &TabRegistry{
		tabs: make(map[string]*TabInfo),
		now:  time.Now,
	}
}

// Register adds a tab, or refreshes it when the target is already known.
func (r *TabRegistry) Register(targetID, title, url string) *TabInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(targetID, title, url)
}

func (r *TabRegistry) registerLocked(targetID, title, url string) *TabInfo {
	if info, ok := r.tabs[targetID]; ok {
		r.updateLocked(info, title, url)
		return info
	}
	now := r.now()
	info := &TabInfo{
		TargetID:  targetID,
		Title:     title,
		URL:       url,
		CreatedAt: now,
	}
	if !IsSystemURL(url) {
		info.LastActiveAt = now
	}
	r.tabs[targetID] = info
	r.order = append(r.order, targetID)
	return info
}

// Update refreshes title/URL for a known tab. Empty incoming values never
// overwrite a previous successful read; navigation to a non-blank URL bumps
// LastActiveAt.
func (r *TabRegistry) Update(targetID, title, url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.tabs[targetID]
	if !ok {
		return false
	}
	r.updateLocked(info, title, url)
	return true
}

func (r *TabRegistry) updateLocked(info *TabInfo, title, url string) {
	if title != "" {
		info.Title = title
	}
	if url != "" {
		navigated := url != info.URL
		info.URL = url
		if navigated && !IsSystemURL(url) {
			info.LastActiveAt = r.now()
		}
	}
}

// Touch bumps LastActiveAt, e.g. when the tab receives focus.
func (r *TabRegistry) Touch(targetID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.tabs[targetID]; ok {
		info.LastActiveAt = r.now()
	}
}

// Remove drops a tab from the registry.
func (r *TabRegistry) Remove(targetID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tabs[targetID]; !ok {
		return
	}
	delete(r.tabs, targetID)
	for i, id := range r.order {
		if id == targetID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns a copy of the tab's current state.
func (r *TabRegistry) Get(targetID string) (TabInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.tabs[targetID]
	if !ok {
		return TabInfo{}, false
	}
	return *info, true
}

// Has reports whether a target is known.
func (r *TabRegistry) Has(targetID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tabs[targetID]
	return ok
}

// List returns copies of all tabs in insertion order.
func (r *TabRegistry) List() []TabInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TabInfo, 0, len(r.order))
	for _, id := range r.order {
		if info, ok := r.tabs[id]; ok {
			out = append(out, *info)
		}
	}
	return out
}

// Count returns the number of known tabs.
func (r *TabRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tabs)
}

// MarkActive flags exactly one tab as active and clears all others,
// bumping its LastActiveAt. Returns false when the target is unknown.
func (r *TabRegistry) MarkActive(targetID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.tabs[targetID]
	if !ok {
		return false
	}
	for _, t := range r.tabs {
		t.IsActive = false
	}
	info.IsActive = true
	info.LastActiveAt = r.now()
	return true
}

// ActiveID returns the target currently flagged active, or "".
func (r *TabRegistry) ActiveID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if info, ok := r.tabs[id]; ok && info.IsActive {
			return id
		}
	}
	return ""
}

// Reconcile synchronises the registry against a live target enumeration:
// missing pages are added, known ones refreshed, absent ones removed.
// Idempotent, and safe to call concurrently with event-driven writes; the
// most recent successful title/URL read wins. A target whose metadata could
// not be read (empty title and URL) keeps its previous entry untouched
// rather than erroring the sweep.
func (r *TabRegistry) Reconcile(live []*target.Info) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(live))
	for _, t := range live {
		if t.Type != "page" {
			continue
		}
		id := string(t.TargetID)
		seen[id] = true
		r.registerLocked(id, t.Title, t.URL)
	}

	for id := range r.tabs {
		if !seen[id] {
			delete(r.tabs, id)
		}
	}
	kept := r.order[:0]
	for _, id := range r.order {
		if seen[id] {
			kept = append(kept, id)
		}
	}
	r.order = kept
}

// ReconcileHandles is the reduced-fidelity fallback used when full
// enumeration timed out: only target presence is synchronised, no
// title/URL refresh.
func (r *TabRegistry) ReconcileHandles(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
		r.registerLocked(id, "", "")
	}
	for id := range r.tabs {
		if !seen[id] {
			delete(r.tabs, id)
		}
	}
	kept := r.order[:0]
	for _, id := range r.order {
		if seen[id] {
			kept = append(kept, id)
		}
	}
	r.order = kept
}

// IsSystemURL reports whether a URL belongs to a blank or internal browser
// page. System tabs are tracked but never scored or streamed.
func IsSystemURL(url string) bool {
	if url == "" || url == "about:blank" {
		return true
	}
	for _, prefix := range []string{"chrome://", "chrome-extension://", "devtools://", "edge://", "about:"} {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}
