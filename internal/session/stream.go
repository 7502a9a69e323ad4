package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/cdpcontrol"
)

const frameAckTimeout = 5 * time.Second

// StartStream opens a screencast on the active tab and delivers frames
// to onFrame in capture order. Idempotent: starting while streaming is
// a logged no-op.
func (s *Session) StartStream(ctx context.Context, onFrame func(Frame)) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		slog.Info("stream already running", "session", s.ID)
		return nil
	}
	s.mu.Unlock()

	tabID := s.registry.ActiveID()
	if tabID == "" {
		tabs := s.registry.List()
		if len(tabs) == 0 {
			return cdpcontrol.NewError(cdpcontrol.CodeTabNotFound, "no tabs to stream", nil)
		}
		tabID = tabs[0].TargetID
		s.registry.MarkActive(tabID)
	}

	cdpSession, err := s.ensureTabSession(ctx, tabID)
	if err != nil {
		s.routeChannelError(err)
		return err
	}

	frameCh := make(chan cdpcontrol.ScreencastFrame, 16)
	writerCtx, writerCancel := context.WithCancel(context.Background())

	unregister := s.channel.OnEvent("Page.screencastFrame", func(evSession string, params json.RawMessage) {
		s.mu.Lock()
		current := s.streamCDPSession
		s.mu.Unlock()
		if evSession != current {
			return
		}

		var p struct {
			Data      string `json:"data"`
			SessionID int    `json:"sessionId"`
			Metadata  struct {
				Timestamp float64 `json:"timestamp"`
			} `json:"metadata"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return
		}
		frame := cdpcontrol.ScreencastFrame{Data: p.Data, AckID: p.SessionID, Timestamp: p.Metadata.Timestamp}

		select {
		case frameCh <- frame:
		default:
			// Consumer is behind. Ack anyway so capture keeps
			// flowing, and drop the frame.
			go s.ackFrame(frame.AckID)
		}
	})

	if err := s.channel.StartScreencast(ctx, cdpSession, s.opts.Screencast); err != nil {
		unregister()
		writerCancel()
		s.routeChannelError(err)
		return err
	}

	s.mu.Lock()
	s.streaming = true
	s.streamTabID = tabID
	s.streamCDPSession = cdpSession
	s.onFrame = onFrame
	s.frameCh = frameCh
	s.stopFrames = func() {
		unregister()
		writerCancel()
	}
	s.mu.Unlock()

	go s.frameWriter(writerCtx, frameCh, onFrame)

	slog.Info("stream started", "session", s.ID, "tab", truncID(tabID),
		"format", s.opts.Screencast.Format, "quality", s.opts.Screencast.Quality)
	return nil
}

// frameWriter acks each frame before forwarding it, so the browser only
// captures as fast as the consumer drains.
func (s *Session) frameWriter(ctx context.Context, frameCh <-chan cdpcontrol.ScreencastFrame, onFrame func(Frame)) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-frameCh:
			s.ackFrame(frame.AckID)

			s.mu.Lock()
			tabID := s.streamTabID
			s.mu.Unlock()

			onFrame(Frame{SessionID: s.ID, TabID: tabID, Data: frame.Data, Timestamp: frame.Timestamp})
		}
	}
}

func (s *Session) ackFrame(ackID int) {
	s.mu.Lock()
	cdpSession := s.streamCDPSession
	s.mu.Unlock()
	if cdpSession == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), frameAckTimeout)
	defer cancel()
	if err := s.channel.AckFrame(ctx, cdpSession, ackID); err != nil {
		s.routeChannelError(err)
	}
}

// StopStream tears the screencast down. Safe to call when not streaming.
func (s *Session) StopStream() {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.stopCaptureLocked(true)
}

// stopStreamInternal is the teardown used by Close, which does not hold
// opMu ordering against a live detector (the detector is stopped first).
func (s *Session) stopStreamInternal() {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.stopCaptureLocked(true)
}

// stopCaptureLocked stops capture and, when full is set, dismantles the
// writer and stream state. Callers hold opMu. Errors from the browser
// side are swallowed: the channel may already be dead.
func (s *Session) stopCaptureLocked(full bool) {
	s.mu.Lock()
	if !s.streaming {
		s.mu.Unlock()
		return
	}
	cdpSession := s.streamCDPSession
	stop := s.stopFrames
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), frameAckTimeout)
	defer cancel()
	if err := s.channel.StopScreencast(ctx, cdpSession); err != nil {
		slog.Debug("stop screencast failed", "session", s.ID, "error", err)
	}

	if !full {
		return
	}

	if stop != nil {
		stop()
	}
	s.mu.Lock()
	s.streaming = false
	s.streamTabID = ""
	s.streamCDPSession = ""
	s.onFrame = nil
	s.frameCh = nil
	s.stopFrames = nil
	s.mu.Unlock()
	slog.Info("stream stopped", "session", s.ID)
}

// rebindStream migrates a live screencast to a new tab: stop old
// capture (errors swallowed, the old channel may be gone), subscribe on
// the new tab, and only then commit the binding. A failed rebind routes
// into recovery rather than leaving the stream half-migrated.
func (s *Session) rebindStream(ctx context.Context, newTabID string) error {
	s.stopCaptureLocked(false)

	cdpSession, err := s.ensureTabSession(ctx, newTabID)
	if err != nil {
		s.routeChannelError(err)
		return err
	}
	if err := s.channel.StartScreencast(ctx, cdpSession, s.opts.Screencast); err != nil {
		s.routeChannelError(err)
		return err
	}

	s.mu.Lock()
	s.streamTabID = newTabID
	s.streamCDPSession = cdpSession
	s.mu.Unlock()
	slog.Info("stream rebound", "session", s.ID, "tab", truncID(newTabID))
	return nil
}
