package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/cdp"
)

// startDetector launches the adaptive detection loop. The timer is
// re-armed after each completed pass rather than ticking on a fixed
// interval, so a slow pass never stacks behind the next.
func (s *Session) startDetector(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	s.mu.Lock()
	s.detectCancel = cancel
	s.detectDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		timer := time.NewTimer(s.detectInterval())
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			s.DetectNow(ctx)
			timer.Reset(s.detectInterval())
		}
	}()
}

// detectInterval maps the rolling activity level to the next delay.
func (s *Session) detectInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.level {
	case levelHigh:
		return s.opts.DetectFast
	case levelLow:
		return s.opts.DetectIdle
	default:
		return s.opts.DetectNormal
	}
}

// DetectNow runs one detection pass and returns the chosen tab with the
// method that chose it ("override", "locked", "scored", "fallback",
// "none"). Automatic switching is suppressed entirely during the
// manual-override window.
func (s *Session) DetectNow(ctx context.Context) (string, string) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	now := s.now()

	s.mu.Lock()
	override := now.Before(s.overrideUntil)
	lock := s.lock
	failed := s.failed
	s.mu.Unlock()

	if failed {
		return s.registry.ActiveID(), "none"
	}
	if override {
		return s.registry.ActiveID(), "override"
	}

	// Lock short-circuit: an unexpired lock on a live tab skips
	// scoring entirely. This is the primary anti-flicker mechanism.
	if lock.held(now) && s.registry.Has(lock.TabID) {
		if s.registry.ActiveID() != lock.TabID {
			if err := s.switchToLocked(ctx, lock.TabID); err != nil {
				slog.Debug("locked-tab switch failed", "session", s.ID, "error", err)
			}
		}
		return lock.TabID, "locked"
	}

	s.reconcile(ctx)

	chosen, score, scored := s.scoreTabs(ctx, now)
	activeID := s.registry.ActiveID()
	activeGone := activeID != "" && !s.registry.Has(activeID)

	if !scored {
		// Nothing scorable (all tabs blank or internal). Keep the
		// current active tab, or fall back to first registry order
		// so activeTabId never dangles.
		if activeID == "" || activeGone {
			if tabs := s.registry.List(); len(tabs) > 0 {
				if err := s.switchToLocked(ctx, tabs[0].TargetID); err == nil {
					s.setLevel(levelLow)
					return tabs[0].TargetID, "fallback"
				}
			}
			return "", "none"
		}
		s.setLevel(levelLow)
		return activeID, "none"
	}

	switched := false
	if chosen != activeID || activeGone {
		if err := s.switchToLocked(ctx, chosen); err != nil {
			slog.Debug("detected switch failed", "session", s.ID, "tab", truncID(chosen), "error", err)
			return activeID, "none"
		}
		switched = true
		slog.Info("active tab detected", "session", s.ID, "tab", truncID(chosen), "score", score)
	}

	if score >= s.opts.Scoring.HighConfidence {
		s.mu.Lock()
		s.lock = ActivityLock{TabID: chosen, Reason: s.lockReason(ctx, chosen), Until: now.Add(s.opts.ActivityLockTTL)}
		s.mu.Unlock()
	}

	switch {
	case switched || score >= s.opts.Scoring.HighConfidence:
		s.setLevel(levelHigh)
	case score > s.opts.Scoring.Base:
		s.setLevel(levelMedium)
	default:
		s.setLevel(levelLow)
	}
	return chosen, "scored"
}

func (s *Session) setLevel(level int) {
	s.mu.Lock()
	s.level = level
	s.mu.Unlock()
}

// reconcile repairs the registry against the live browser. The full
// sweep is bounded; on timeout a reduced-fidelity pass keeps page
// handles without refreshing title/URL rather than stalling detection.
func (s *Session) reconcile(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.opts.ReconcileTimeout)
	defer cancel()

	targets, err := s.channel.ListTargets(sweepCtx)
	if err == nil {
		s.registry.Reconcile(targets)
		return
	}
	slog.Debug("reconcile sweep failed", "session", s.ID, "error", err)

	if s.watcher != nil {
		if ids, idErr := s.watcher.TargetIDs(sweepCtx); idErr == nil {
			s.registry.ReconcileHandles(ids)
			return
		}
	}
	s.routeChannelError(err)
}

// scoreTabs fans probe reads out across all non-system tabs and settles
// for whatever completed, then ranks the results. Ties break on
// registry insertion order. Returns (winner, score, anyScored).
func (s *Session) scoreTabs(ctx context.Context, now time.Time) (string, int, bool) {
	tabs := s.registry.List()

	type candidate struct {
		tab cdp.TabInfo
		sig ActivitySignals
	}
	candidates := make([]candidate, 0, len(tabs))
	for _, tab := range tabs {
		if cdp.IsSystemURL(tab.URL) {
			continue
		}
		candidates = append(candidates, candidate{tab: tab})
	}
	if len(candidates) == 0 {
		return "", 0, false
	}

	var wg sync.WaitGroup
	for i := range candidates {
		wg.Add(1)
		go func(c *candidate) {
			defer wg.Done()
			tabID := c.tab.TargetID
			c.sig = s.activity.get(tabID, func() (ActivitySignals, error) {
				readCtx, cancel := context.WithTimeout(ctx, s.opts.EvalTimeout)
				defer cancel()
				cdpSession, err := s.ensureTabSession(readCtx, tabID)
				if err != nil {
					return ActivitySignals{}, err
				}
				return readActivity(readCtx, s.channel, cdpSession, now)
			})
		}(&candidates[i])
	}
	wg.Wait()

	s.mu.Lock()
	targetURL := s.targetURL
	s.mu.Unlock()

	bestID := ""
	bestScore := -1
	for _, c := range candidates {
		score := s.opts.Scoring.Score(c.tab, c.sig, targetURL, now)
		s.activity.markConfidence(c.tab.TargetID, score >= s.opts.Scoring.HighConfidence)
		if score > bestScore {
			bestScore = score
			bestID = c.tab.TargetID
		}
	}
	return bestID, bestScore, true
}

// lockReason names the strongest signal backing a fresh lock, for logs
// and introspection.
func (s *Session) lockReason(ctx context.Context, tabID string) string {
	sig := s.activity.get(tabID, func() (ActivitySignals, error) {
		readCtx, cancel := context.WithTimeout(ctx, s.opts.EvalTimeout)
		defer cancel()
		cdpSession, err := s.ensureTabSession(readCtx, tabID)
		if err != nil {
			return ActivitySignals{}, err
		}
		return readActivity(readCtx, s.channel, cdpSession, s.now())
	})
	switch {
	case sig.Marker:
		return "marker"
	case sig.FormActivity:
		return "form_activity"
	case sig.Interaction:
		return "interaction"
	case sig.Mutation:
		return "mutation"
	default:
		return "score"
	}
}
