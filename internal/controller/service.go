package controller

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/cdp"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/cdpcontrol"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/notify"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/relay"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/session"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/snapshot"
)

// Service bridges the HTTP API onto the session manager and publishes
// screencast frames and failure notices through the SSE broker.
type Service struct {
	manager     *session.Manager
	broker      *relay.Broker
	notifier    *notify.Notifier
	screenshots *snapshot.Store
}

func NewService(manager *session.Manager, broker *relay.Broker, notifier *notify.Notifier, screenshots *snapshot.Store) *Service {
	s := &Service{manager: manager, broker: broker, notifier: notifier, screenshots: screenshots}
	manager.OnSessionFailure = s.handleSessionFailure
	return s
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: fieldName + " is required"}
	}
	return nil
}

func (s *Service) CreateSession(ctx context.Context, opts session.CreateOptions) (session.Info, error) {
	return s.manager.CreateSession(ctx, opts)
}

func (s *Service) ListSessions(ctx context.Context) ([]session.Info, error) {
	return s.manager.List(), nil
}

func (s *Service) GetSession(ctx context.Context, id string) (session.Info, error) {
	for _, info := range s.manager.List() {
		if info.ID == id {
			return info, nil
		}
	}
	return session.Info{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeSessionNotFound, Message: "session not found: " + id}
}

func (s *Service) CloseSession(ctx context.Context, id string) error {
	if err := s.manager.CloseSession(id); err != nil {
		return err
	}
	if s.screenshots != nil {
		if err := s.screenshots.DeleteSession(id); err != nil {
			slog.Debug("screenshot cleanup failed", "session", id, "error", err)
		}
	}
	return nil
}

func (s *Service) Navigate(ctx context.Context, id, url string) error {
	if err := s.requireNonEmpty(url, "url"); err != nil {
		return err
	}
	sess, err := s.manager.Get(id)
	if err != nil {
		return err
	}
	return sess.Navigate(ctx, url)
}

func (s *Service) ListTabs(ctx context.Context, id string) ([]cdp.TabInfo, error) {
	sess, err := s.manager.Get(id)
	if err != nil {
		return nil, err
	}
	return sess.Tabs(), nil
}

func (s *Service) ActiveTab(ctx context.Context, id string) (cdp.TabInfo, error) {
	sess, err := s.manager.Get(id)
	if err != nil {
		return cdp.TabInfo{}, err
	}
	tab, ok := sess.ActiveTab()
	if !ok {
		return cdp.TabInfo{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeTabNotFound, Message: "no active tab"}
	}
	return tab, nil
}

func (s *Service) SwitchToTab(ctx context.Context, id, tabID string, isManual bool) (bool, error) {
	if err := s.requireNonEmpty(tabID, "tab_id"); err != nil {
		return false, err
	}
	sess, err := s.manager.Get(id)
	if err != nil {
		return false, err
	}
	return sess.SwitchToTab(ctx, tabID, isManual)
}

func (s *Service) CloseTab(ctx context.Context, id, tabID string) error {
	if err := s.requireNonEmpty(tabID, "tab_id"); err != nil {
		return err
	}
	sess, err := s.manager.Get(id)
	if err != nil {
		return err
	}
	return sess.CloseTab(ctx, tabID)
}

// StartStream opens the screencast and routes every frame into the
// broker under the owning session id.
func (s *Service) StartStream(ctx context.Context, id string) error {
	sess, err := s.manager.Get(id)
	if err != nil {
		return err
	}
	return sess.StartStream(ctx, func(frame session.Frame) {
		payload, err := json.Marshal(map[string]any{
			"sessionId": frame.SessionID,
			"tabId":     frame.TabID,
			"data":      frame.Data,
			"timestamp": frame.Timestamp,
		})
		if err != nil {
			return
		}
		s.broker.Publish(relay.Event{Session: frame.SessionID, Type: "frame", Payload: string(payload)})
	})
}

func (s *Service) StopStream(ctx context.Context, id string) error {
	sess, err := s.manager.Get(id)
	if err != nil {
		return err
	}
	sess.StopStream()
	return nil
}

func (s *Service) ApplyMouse(ctx context.Context, id string, in session.MouseInput) (session.InputResult, error) {
	sess, err := s.manager.Get(id)
	if err != nil {
		return session.InputResult{}, err
	}
	return sess.ApplyMouse(ctx, in), nil
}

func (s *Service) ApplyKeyboard(ctx context.Context, id string, in session.KeyInput) (session.InputResult, error) {
	sess, err := s.manager.Get(id)
	if err != nil {
		return session.InputResult{}, err
	}
	return sess.ApplyKeyboard(ctx, in), nil
}

// CaptureScreenshot grabs the active tab of a session and persists the
// image with its metadata.
func (s *Service) CaptureScreenshot(ctx context.Context, id string) (snapshot.ScreenshotMeta, error) {
	if s.screenshots == nil {
		return snapshot.ScreenshotMeta{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "screenshot storage is disabled"}
	}
	sess, err := s.manager.Get(id)
	if err != nil {
		return snapshot.ScreenshotMeta{}, err
	}
	img, tab, err := sess.Screenshot(ctx)
	if err != nil {
		return snapshot.ScreenshotMeta{}, err
	}

	meta := snapshot.ScreenshotMeta{
		ID:        uuid.NewString(),
		SessionID: id,
		TabID:     tab.TargetID,
		URL:       tab.URL,
		Title:     tab.Title,
		Format:    "jpeg",
		SizeBytes: len(img),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.screenshots.Save(meta, img); err != nil {
		return snapshot.ScreenshotMeta{}, err
	}
	return meta, nil
}

func (s *Service) ListScreenshots(ctx context.Context, id string) ([]snapshot.ScreenshotMeta, error) {
	if s.screenshots == nil {
		return nil, nil
	}
	if _, err := s.manager.Get(id); err != nil {
		return nil, err
	}
	return s.screenshots.List(id)
}

func (s *Service) GetScreenshotImage(ctx context.Context, screenshotID string) ([]byte, string, error) {
	if s.screenshots == nil {
		return nil, "", &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "screenshot storage is disabled"}
	}
	img, format, err := s.screenshots.ReadImage(screenshotID)
	if err != nil {
		return nil, "", screenshotErr(err)
	}
	return img, format, nil
}

func (s *Service) DeleteScreenshot(ctx context.Context, screenshotID string) error {
	if s.screenshots == nil {
		return &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "screenshot storage is disabled"}
	}
	if err := s.screenshots.Delete(screenshotID); err != nil {
		return screenshotErr(err)
	}
	return nil
}

// screenshotErr types store errors for stable HTTP mapping.
func screenshotErr(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "not found"):
		return &cdpcontrol.CodedError{Code: cdpcontrol.CodeNotFound, Message: msg}
	case strings.Contains(msg, "invalid screenshot id"):
		return &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: msg}
	default:
		return err
	}
}

// handleSessionFailure publishes a terminal recovery failure to the SSE
// subscribers and the operational notify endpoint.
func (s *Service) handleSessionFailure(sessionID string, cause error) {
	payload, err := json.Marshal(map[string]any{
		"sessionId": sessionID,
		"error":     cause.Error(),
	})
	if err == nil {
		s.broker.Publish(relay.Event{Session: sessionID, Type: "session_failed", Payload: string(payload)})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if notifyErr := s.notifier.SessionFailure(ctx, sessionID, cause); notifyErr != nil {
		slog.Debug("failure notification not delivered", "session", sessionID, "error", notifyErr)
	}
}
