package controller

import (
	"context"
	"errors"
	"testing"

	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/cdpcontrol"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/config"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/relay"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/session"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/snapshot"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := snapshot.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() = %v; want nil", err)
	}
	manager := session.NewManager(&config.Config{})
	return NewService(manager, relay.NewBroker(), nil, store)
}

func requireCode(t *testing.T, err error, code string) *cdpcontrol.CodedError {
	t.Helper()
	if err == nil {
		t.Fatalf("error = nil; want code %q", code)
	}
	var coded *cdpcontrol.CodedError
	if !errors.As(err, &coded) {
		t.Fatalf("error type = %T; want *cdpcontrol.CodedError", err)
	}
	if coded.Code != code {
		t.Fatalf("error code = %q; want %q", coded.Code, code)
	}
	return coded
}

func TestRequireNonEmpty(t *testing.T) {
	s := &Service{}
	if err := s.requireNonEmpty("https://example.com/", "url"); err != nil {
		t.Fatalf("requireNonEmpty() = %v; want nil", err)
	}

	err := s.requireNonEmpty("   ", "url")
	coded := requireCode(t, err, cdpcontrol.CodeValidation)
	if coded.Message != "url is required" {
		t.Fatalf("requireNonEmpty() message = %q; want %q", coded.Message, "url is required")
	}
}

func TestNavigateRequiresURL(t *testing.T) {
	s := newTestService(t)
	err := s.Navigate(context.Background(), "sess-1", "   ")
	requireCode(t, err, cdpcontrol.CodeValidation)
}

func TestSwitchToTabRequiresTabID(t *testing.T) {
	s := newTestService(t)
	_, err := s.SwitchToTab(context.Background(), "sess-1", "", true)
	requireCode(t, err, cdpcontrol.CodeValidation)
}

func TestGetSessionUnknownReturnsNotFound(t *testing.T) {
	s := newTestService(t)
	_, err := s.GetSession(context.Background(), "no-such-session")
	requireCode(t, err, cdpcontrol.CodeSessionNotFound)
}

func TestListSessionsEmpty(t *testing.T) {
	s := newTestService(t)
	infos, err := s.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions() = %v; want nil", err)
	}
	if len(infos) != 0 {
		t.Fatalf("ListSessions() returned %d sessions; want 0", len(infos))
	}
}

func TestGetScreenshotImageUnknownIDReturnsNotFound(t *testing.T) {
	s := newTestService(t)
	_, _, err := s.GetScreenshotImage(context.Background(), "0e2b9f07-9e68-4c25-a6ff-3b0f6f4f9a10")
	requireCode(t, err, cdpcontrol.CodeNotFound)
}

func TestGetScreenshotImageMalformedIDReturnsValidation(t *testing.T) {
	s := newTestService(t)
	_, _, err := s.GetScreenshotImage(context.Background(), "../../etc/passwd")
	requireCode(t, err, cdpcontrol.CodeValidation)
}

func TestDeleteScreenshotUnknownIDReturnsNotFound(t *testing.T) {
	s := newTestService(t)
	err := s.DeleteScreenshot(context.Background(), "0e2b9f07-9e68-4c25-a6ff-3b0f6f4f9a10")
	requireCode(t, err, cdpcontrol.CodeNotFound)
}

func TestScreenshotOpsRefusedWithoutStore(t *testing.T) {
	s := NewService(session.NewManager(&config.Config{}), relay.NewBroker(), nil, nil)

	_, err := s.CaptureScreenshot(context.Background(), "sess-1")
	requireCode(t, err, cdpcontrol.CodeValidation)

	metas, err := s.ListScreenshots(context.Background(), "sess-1")
	if err != nil || metas != nil {
		t.Fatalf("ListScreenshots() = %v, %v; want nil, nil", metas, err)
	}
}
