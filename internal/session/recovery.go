package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/cdpcontrol"
)

const recoveryAttemptTimeout = 15 * time.Second

// recover rebuilds the control channel after a transient failure. Runs
// at most once at a time per session; retries are capped with a fixed
// backoff. On success the active tab is re-attached, capability domains
// re-enabled, and a live stream restarted so frames resume on the same
// session. Exhausting the ceiling marks the session failed and notifies
// the owner; the session itself is not destroyed.
func (s *Session) recover() {
	s.mu.Lock()
	if s.recovering || s.failed {
		s.mu.Unlock()
		return
	}
	s.recovering = true
	cause := s.lastErr
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.recovering = false
		s.mu.Unlock()
	}()

	s.opMu.Lock()
	defer s.opMu.Unlock()

	for attempt := 1; attempt <= s.opts.RecoveryMaxAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(s.opts.RecoveryBackoff)
		}
		s.mu.Lock()
		s.retryCount++
		s.mu.Unlock()

		if err := s.attemptRecovery(); err != nil {
			slog.Warn("recovery attempt failed",
				"session", s.ID, "attempt", attempt, "max", s.opts.RecoveryMaxAttempts, "error", err)
			continue
		}

		s.mu.Lock()
		s.retryCount = 0
		s.lastErr = nil
		s.mu.Unlock()
		slog.Info("control channel recovered", "session", s.ID, "attempts", attempt)
		return
	}

	terminal := cdpcontrol.NewError(cdpcontrol.CodeRecoveryFailed,
		fmt.Sprintf("recovery gave up after %d attempts", s.opts.RecoveryMaxAttempts), cause)

	s.mu.Lock()
	s.failed = true
	s.lastErr = terminal
	hook := s.onTerminal
	s.mu.Unlock()

	slog.Error("control channel recovery exhausted", "session", s.ID, "error", terminal)
	if hook != nil {
		hook(s.ID, terminal)
	}
}

// attemptRecovery performs one full reconnect cycle.
func (s *Session) attemptRecovery() error {
	ctx, cancel := context.WithTimeout(context.Background(), recoveryAttemptTimeout)
	defer cancel()

	s.channel.Close()
	if err := s.channel.Connect(ctx); err != nil {
		return err
	}

	// Flat session ids died with the old socket.
	s.mu.Lock()
	s.tabSessions = make(map[string]string)
	streaming := s.streaming
	s.streamCDPSession = ""
	s.mu.Unlock()

	if targets, err := s.channel.ListTargets(ctx); err == nil {
		s.registry.Reconcile(targets)
	}

	tabID := s.registry.ActiveID()
	if tabID == "" {
		tabs := s.registry.List()
		if len(tabs) == 0 {
			return fmt.Errorf("no tabs after reconnect")
		}
		tabID = tabs[0].TargetID
		s.registry.MarkActive(tabID)
	}

	cdpSession, err := s.ensureTabSession(ctx, tabID)
	if err != nil {
		return err
	}

	if streaming {
		if err := s.channel.StartScreencast(ctx, cdpSession, s.opts.Screencast); err != nil {
			return err
		}
		s.mu.Lock()
		s.streamTabID = tabID
		s.streamCDPSession = cdpSession
		s.mu.Unlock()
		slog.Info("stream restarted after recovery", "session", s.ID, "tab", truncID(tabID))
	}
	return nil
}
