package session

import (
	"strings"
	"time"

	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/cdp"
)

// ScoringPolicy holds the weighted rule table the detector ranks tabs
// with. Weights are tuning, not contract; the relative ordering matters
// (marker dominates, explicit target match beats generic URL rules).
type ScoringPolicy struct {
	Base int

	MarkerWeight      int
	InteractionWeight int
	MutationWeight    int
	FormWeight        int

	TargetURLWeight int
	URLRuleWeight   int
	URLRules        []string

	// Navigation recency tiers.
	NavVeryRecent       int
	NavRecent           int
	VeryRecentThreshold time.Duration
	RecentThreshold     time.Duration

	// A winner at or above HighConfidence gets an ActivityLock.
	HighConfidence int
}

// DefaultScoringPolicy returns the production weights.
func DefaultScoringPolicy() ScoringPolicy {
	return ScoringPolicy{
		Base:                100,
		MarkerWeight:        5000,
		InteractionWeight:   2000,
		MutationWeight:      1500,
		FormWeight:          1200,
		TargetURLWeight:     3000,
		URLRuleWeight:       600,
		URLRules:            []string{"/search", "?q=", "&q=", "/results", "/login", "/checkout"},
		NavVeryRecent:       800,
		NavRecent:           400,
		VeryRecentThreshold: 5 * time.Second,
		RecentThreshold:     30 * time.Second,
		HighConfidence:      5000,
	}
}

// Score ranks one tab from its registry entry and activity snapshot.
// System tabs are scored zero so any real page beats them.
func (p ScoringPolicy) Score(tab cdp.TabInfo, sig ActivitySignals, targetURL string, now time.Time) int {
	if cdp.IsSystemURL(tab.URL) {
		return 0
	}

	score := p.Base
	if sig.Marker {
		score += p.MarkerWeight
	}
	if sig.Interaction {
		score += p.InteractionWeight
	}
	if sig.Mutation {
		score += p.MutationWeight
	}
	if sig.FormActivity || sig.Loading {
		score += p.FormWeight
	}

	if targetURL != "" && urlMatchesTarget(tab.URL, targetURL) {
		score += p.TargetURLWeight
	}
	for _, rule := range p.URLRules {
		if strings.Contains(tab.URL, rule) {
			score += p.URLRuleWeight
			break
		}
	}

	if age := now.Sub(tab.LastActiveAt); age >= 0 {
		switch {
		case age < p.VeryRecentThreshold:
			score += p.NavVeryRecent
		case age < p.RecentThreshold:
			score += p.NavRecent
		}
	}

	return score
}

// urlMatchesTarget reports whether a tab URL satisfies an explicitly
// declared destination: exact, normalized (trailing slash and fragment
// stripped), or substring in either direction.
func urlMatchesTarget(tabURL, targetURL string) bool {
	if tabURL == "" || targetURL == "" {
		return false
	}
	if tabURL == targetURL {
		return true
	}
	a := normalizeURL(tabURL)
	b := normalizeURL(targetURL)
	if a == b {
		return true
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func normalizeURL(u string) string {
	if i := strings.IndexByte(u, '#'); i >= 0 {
		u = u[:i]
	}
	u = strings.TrimRight(u, "/")
	return strings.ToLower(u)
}
