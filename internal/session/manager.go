package session

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/browser"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/capture"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/cdp"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/cdpcontrol"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/config"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/netutil"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/storage"
)

// CreateOptions are per-session overrides of the server defaults.
type CreateOptions struct {
	StartURL  string `json:"start_url,omitempty" doc:"Initial page, defaults to the server's start URL"`
	TargetURL string `json:"target_url,omitempty" doc:"Declared destination URL, boosts matching tabs in detection"`
}

// Info is the external snapshot of one session.
type Info struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	ActiveTabID string    `json:"activeTabId,omitempty"`
	TabCount    int       `json:"tabCount"`
	Streaming   bool      `json:"streaming"`
	Failed      bool      `json:"failed"`
}

// Manager owns all sessions. Each session gets its own browser process
// on its own debugging port, so one session's crash never touches
// another's registry or stream.
type Manager struct {
	cfg *config.Config

	mu       sync.RWMutex
	sessions map[string]*Session

	// OnSessionFailure is invoked when a session's recovery gives up.
	OnSessionFailure func(sessionID string, err error)

	// journal is nil when disabled by config.
	journal *storage.WriterRegistry

	// test seam
	newChannel func(httpBase string) ControlChannel
}

func NewManager(cfg *config.Config) *Manager {
	m := &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		newChannel: func(httpBase string) ControlChannel {
			return cdpcontrol.NewConn(httpBase)
		},
	}
	if cfg.JournalDir != "" {
		m.journal = storage.NewWriterRegistry(cfg.JournalDir, cfg.JournalBufferSize, cfg.JournalMaxSizeMB)
	}
	return m
}

type journalEvent struct {
	Timestamp time.Time `json:"ts"`
	Event     string    `json:"event"`
	SessionID string    `json:"session_id"`
	Detail    string    `json:"detail,omitempty"`
}

func (m *Manager) journalWrite(sessionID, event, detail string) {
	if m.journal == nil {
		return
	}
	rec := journalEvent{Timestamp: time.Now().UTC(), Event: event, SessionID: sessionID, Detail: detail}
	if err := m.journal.GetWriter(sessionID, "events").Write(rec); err != nil {
		slog.Debug("journal event dropped", "event", event, "error", err)
	}
}

// CreateSession launches a browser, connects the control channel and
// starts the detection loop. The returned Info carries the new id.
func (m *Manager) CreateSession(ctx context.Context, opts CreateOptions) (Info, error) {
	id := uuid.NewString()

	startURL := opts.StartURL
	if startURL == "" {
		startURL = m.cfg.StartURL
	}

	port, err := netutil.FreePort(m.cfg.CDPAddress)
	if err != nil {
		return Info{}, cdpcontrol.NewError(cdpcontrol.CodeCDPUnavailable, "allocate debugging port", err)
	}

	launcher := browser.NewLauncher(browser.Config{
		CDPAddress: m.cfg.CDPAddress,
		CDPPort:    port,
		StartURL:   startURL,
		ProfileDir: filepath.Join(m.cfg.ProfileRoot, id),
		Headless:   m.cfg.Headless,
		WindowSize: m.cfg.WindowSize,
	})
	if err := launcher.Launch(ctx); err != nil {
		return Info{}, cdpcontrol.NewError(cdpcontrol.CodeCDPUnavailable, "launch browser", err)
	}

	ch := m.newChannel(launcher.HTTPBase())
	if m.journal != nil && m.cfg.CaptureWire {
		if conn, ok := ch.(*cdpcontrol.Conn); ok {
			wire := capture.NewWireLog(m.journal.GetWriter(id, "wire"), m.cfg.CaptureMaxFrameBytes)
			conn.SetTap(wire.Tap)
		}
	}
	if err := ch.Connect(ctx); err != nil {
		launcher.Stop()
		return Info{}, err
	}

	registry := cdp.NewTabRegistry()
	watcher := cdp.NewWatcher(registry)
	if err := watcher.Start(ctx, launcher.HTTPBase()); err != nil {
		// Event-driven discovery is an optimization; the detector's
		// reconcile sweep still finds every tab.
		slog.Warn("tab watcher unavailable, relying on polling", "session", id, "error", err)
		watcher = nil
	}

	s := newSession(id, ch, registry, m.sessionOptions())
	s.launcher = launcher
	s.watcher = watcher
	s.targetURL = opts.TargetURL
	s.onTerminal = func(sessionID string, err error) {
		m.journalWrite(sessionID, "session_failed", err.Error())
		if m.OnSessionFailure != nil {
			m.OnSessionFailure(sessionID, err)
		}
	}

	if targets, listErr := ch.ListTargets(ctx); listErr == nil {
		registry.Reconcile(targets)
	}
	s.DetectNow(ctx)
	s.startDetector(context.Background())

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	slog.Info("session created", "session", id, "port", port, "start_url", startURL)
	m.journalWrite(id, "session_created", startURL)
	return m.info(s), nil
}

// CloseSession tears a session down, tolerating a browser that is
// already gone.
func (m *Manager) CloseSession(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return notFound(id)
	}
	s.Close()
	m.journalWrite(id, "session_closed", "")
	if m.journal != nil {
		m.journal.CloseSession(id)
	}
	return nil
}

// Get returns a live session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, notFound(id)
	}
	return s, nil
}

// List snapshots all sessions in unspecified order.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, m.info(s))
	}
	return out
}

// Shutdown closes every session. Used on server exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
		m.journalWrite(s.ID, "session_closed", "")
	}
	if m.journal != nil {
		m.journal.Close()
	}
}

func (m *Manager) info(s *Session) Info {
	failed, _ := s.Failed()
	s.mu.Lock()
	streaming := s.streaming
	s.mu.Unlock()
	return Info{
		ID:          s.ID,
		CreatedAt:   s.CreatedAt,
		ActiveTabID: s.registry.ActiveID(),
		TabCount:    s.registry.Count(),
		Streaming:   streaming,
		Failed:      failed,
	}
}

// sessionOptions maps server config onto per-session tuning.
func (m *Manager) sessionOptions() Options {
	opts := DefaultOptions()
	opts.DetectFast = m.cfg.DetectFastInterval
	opts.DetectNormal = m.cfg.DetectNormalInterval
	opts.DetectIdle = m.cfg.DetectIdleInterval
	opts.ActivityLockTTL = m.cfg.ActivityLockTTL
	opts.ManualOverrideWindow = m.cfg.ManualOverrideWindow
	opts.SnapshotTTL = m.cfg.SnapshotTTL
	opts.RecoveryMaxAttempts = m.cfg.RecoveryMaxAttempts
	opts.RecoveryBackoff = m.cfg.RecoveryBackoff
	opts.EvalTimeout = m.cfg.EvalTimeout
	opts.ReconcileTimeout = m.cfg.ReconcileTimeout
	opts.Screencast = cdpcontrol.ScreencastOptions{
		Format:        m.cfg.StreamFormat,
		Quality:       m.cfg.StreamQuality,
		MaxWidth:      m.cfg.StreamMaxW,
		MaxHeight:     m.cfg.StreamMaxH,
		EveryNthFrame: 1,
	}
	return opts.normalize()
}

func notFound(id string) error {
	return cdpcontrol.NewError(cdpcontrol.CodeSessionNotFound, "session not found: "+id, nil)
}
