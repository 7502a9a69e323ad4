package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/browser"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/cdp"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/cdpcontrol"
)

// activity levels drive the adaptive detection cadence.
const (
	levelLow = iota
	levelMedium
	levelHigh
)

// Frame is one captured image delivered to a stream consumer. Data is
// the base64 payload exactly as the browser produced it.
type Frame struct {
	SessionID string
	TabID     string
	Data      string
	Timestamp float64
}

// Session owns one browser process: its tab registry, control channel,
// active-tab detection loop, screencast and input state. All mutable
// state is guarded by mu; opMu serializes the compound steps (detection
// pass, switch+rebind, recovery) so a rebind in progress always
// completes or fails into recovery before the next switch can start.
type Session struct {
	ID        string
	CreatedAt time.Time

	opts Options
	now  func() time.Time

	channel  ControlChannel
	registry *cdp.TabRegistry
	launcher *browser.Launcher
	watcher  *cdp.Watcher
	activity *activityCache

	opMu sync.Mutex

	mu          sync.Mutex
	tabSessions map[string]string // targetID -> flat CDP session id
	targetURL   string

	lock          ActivityLock
	overrideUntil time.Time
	level         int

	streaming        bool
	streamTabID      string
	streamCDPSession string
	onFrame          func(Frame)
	stopFrames       func()
	frameCh          chan cdpcontrol.ScreencastFrame

	pressed map[string]bool

	recovering bool
	retryCount int
	failed     bool
	lastErr    error

	detectCancel context.CancelFunc
	detectDone   chan struct{}

	// invoked once when recovery exhausts its ceiling
	onTerminal func(sessionID string, err error)
}

// newSession wires a session around an already-connected control
// channel. The manager launches the browser and watcher first; tests
// pass a fake channel and nil launcher/watcher.
func newSession(id string, ch ControlChannel, reg *cdp.TabRegistry, opts Options) *Session {
	opts = opts.normalize()
	s := &Session{
		ID:          id,
		CreatedAt:   time.Now(),
		opts:        opts,
		now:         time.Now,
		channel:     ch,
		registry:    reg,
		tabSessions: make(map[string]string),
		pressed:     make(map[string]bool),
		level:       levelMedium,
	}
	s.activity = newActivityCache(opts.SnapshotTTL, func() time.Time { return s.now() })
	return s
}

// Tabs returns the registry contents in insertion order.
func (s *Session) Tabs() []cdp.TabInfo {
	return s.registry.List()
}

// ActiveTab returns the current active tab, if any.
func (s *Session) ActiveTab() (cdp.TabInfo, bool) {
	id := s.registry.ActiveID()
	if id == "" {
		return cdp.TabInfo{}, false
	}
	return s.registry.Get(id)
}

// Failed reports whether recovery has given up on the control channel.
// The session object survives so the owner can inspect and close it.
func (s *Session) Failed() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed, s.lastErr
}

// ensureTabSession returns the flat CDP session for a tab, attaching
// and arming the page domain plus activity probe on first use.
func (s *Session) ensureTabSession(ctx context.Context, tabID string) (string, error) {
	s.mu.Lock()
	if id, ok := s.tabSessions[tabID]; ok {
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	cdpSession, err := s.channel.AttachToTarget(ctx, tabID)
	if err != nil {
		return "", err
	}
	if err := s.channel.EnablePage(ctx, cdpSession); err != nil {
		slog.Debug("page enable failed", "session", s.ID, "tab", truncID(tabID), "error", err)
	}
	if err := s.channel.AddInitScript(ctx, cdpSession, activityProbeScript); err != nil {
		slog.Debug("probe install failed", "session", s.ID, "tab", truncID(tabID), "error", err)
	}

	s.mu.Lock()
	s.tabSessions[tabID] = cdpSession
	s.mu.Unlock()
	return cdpSession, nil
}

// dropTabSession forgets a tab's attachment and cached signals, used
// when the tab closes or the channel is rebuilt.
func (s *Session) dropTabSession(tabID string) {
	s.mu.Lock()
	delete(s.tabSessions, tabID)
	s.mu.Unlock()
	s.activity.forget(tabID)
}

// SwitchToTab makes tabID the active tab. Manual switches clear any
// activity lock, open the override window and always win; automatic
// switches are refused while an unexpired lock pins a different tab.
// Returns whether a switch happened.
func (s *Session) SwitchToTab(ctx context.Context, tabID string, isManual bool) (bool, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.registry.Has(tabID) {
		return false, cdpcontrol.NewError(cdpcontrol.CodeTabNotFound, "tab not found: "+tabID, nil)
	}

	now := s.now()
	if !isManual {
		s.mu.Lock()
		blocked := s.lock.held(now) && s.lock.TabID != tabID
		s.mu.Unlock()
		if blocked {
			return false, nil
		}
	}

	if err := s.switchToLocked(ctx, tabID); err != nil {
		return false, err
	}

	if isManual {
		s.mu.Lock()
		s.lock = ActivityLock{}
		s.overrideUntil = now.Add(s.opts.ManualOverrideWindow)
		s.level = levelHigh
		s.mu.Unlock()
		slog.Info("manual tab switch", "session", s.ID, "tab", truncID(tabID))
	}
	return true, nil
}

// switchToLocked performs the actual switch: foreground, stream rebind,
// registry flip. Callers hold opMu. The active binding only changes
// after the rebind fully succeeds.
func (s *Session) switchToLocked(ctx context.Context, tabID string) error {
	cdpSession, err := s.ensureTabSession(ctx, tabID)
	if err != nil {
		s.routeChannelError(err)
		return err
	}

	if err := s.channel.BringToFront(ctx, cdpSession); err != nil {
		slog.Debug("bring to front failed", "session", s.ID, "tab", truncID(tabID), "error", err)
	}

	s.mu.Lock()
	streaming := s.streaming
	oldTab := s.streamTabID
	s.mu.Unlock()

	if streaming && oldTab != tabID {
		if err := s.rebindStream(ctx, tabID); err != nil {
			return err
		}
	}

	s.registry.MarkActive(tabID)
	return nil
}

// Navigate points the active tab at a URL and records it as the
// session's declared destination for scoring.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	tabID := s.registry.ActiveID()
	if tabID == "" {
		tabs := s.registry.List()
		if len(tabs) == 0 {
			return cdpcontrol.NewError(cdpcontrol.CodeTabNotFound, "no tabs in session", nil)
		}
		tabID = tabs[0].TargetID
	}

	cdpSession, err := s.ensureTabSession(ctx, tabID)
	if err != nil {
		s.routeChannelError(err)
		return err
	}
	if err := s.channel.Navigate(ctx, cdpSession, url); err != nil {
		s.routeChannelError(err)
		return err
	}

	s.mu.Lock()
	s.targetURL = url
	s.level = levelHigh
	s.mu.Unlock()

	s.registry.MarkActive(tabID)
	s.registry.Update(tabID, "", url)
	return nil
}

// Screenshot captures a one-off image of the active tab. Returns the
// image bytes and the tab they came from.
func (s *Session) Screenshot(ctx context.Context) ([]byte, cdp.TabInfo, error) {
	tabID := s.registry.ActiveID()
	if tabID == "" {
		tabs := s.registry.List()
		if len(tabs) == 0 {
			return nil, cdp.TabInfo{}, cdpcontrol.NewError(cdpcontrol.CodeTabNotFound, "no tabs in session", nil)
		}
		tabID = tabs[0].TargetID
	}

	cdpSession, err := s.ensureTabSession(ctx, tabID)
	if err != nil {
		s.routeChannelError(err)
		return nil, cdp.TabInfo{}, err
	}

	// Screenshots are always jpeg regardless of the screencast format;
	// quality follows the stream setting.
	img, err := s.channel.CaptureScreenshot(ctx, cdpSession, "jpeg", s.opts.Screencast.Quality)
	if err != nil {
		s.routeChannelError(err)
		return nil, cdp.TabInfo{}, err
	}
	tab, _ := s.registry.Get(tabID)
	return img, tab, nil
}

// CloseTab closes a tab via the browser and drops local state for it.
// Closing the active tab leaves successor choice to the next detection
// pass.
func (s *Session) CloseTab(ctx context.Context, tabID string) error {
	if !s.registry.Has(tabID) {
		return cdpcontrol.NewError(cdpcontrol.CodeTabNotFound, "tab not found: "+tabID, nil)
	}
	if err := s.channel.CloseTarget(ctx, tabID); err != nil {
		s.routeChannelError(err)
		return err
	}
	s.dropTabSession(tabID)
	s.registry.Remove(tabID)
	return nil
}

// Close shuts the session down: detector, stream, channel, watcher and
// the owned browser process. Tolerates a browser that is already gone.
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.detectCancel
	done := s.detectDone
	s.detectCancel = nil
	s.lock = ActivityLock{}
	s.overrideUntil = time.Time{}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		if done != nil {
			<-done
		}
	}

	s.stopStreamInternal()

	if s.watcher != nil {
		s.watcher.Stop()
	}
	s.channel.Close()
	if s.launcher != nil {
		s.launcher.Stop()
	}
	slog.Info("session closed", "session", s.ID)
}

// routeChannelError inspects a failed channel operation and kicks off
// asynchronous recovery when the failure class is transient.
func (s *Session) routeChannelError(err error) {
	if err == nil {
		return
	}
	if cdpcontrol.Classify(err) != cdpcontrol.ClassTransientChannel {
		return
	}
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	go s.recover()
}

func truncID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
