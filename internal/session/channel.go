package session

import (
	"context"
	"encoding/json"

	"github.com/chromedp/cdproto/target"

	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/cdpcontrol"
)

// ControlChannel is the command surface a session drives its browser
// through. *cdpcontrol.Conn satisfies it; tests substitute a fake.
type ControlChannel interface {
	Connect(ctx context.Context) error
	Close()
	Connected() bool

	AttachToTarget(ctx context.Context, targetID string) (string, error)
	DetachFromTarget(ctx context.Context, sessionID string) error
	CloseTarget(ctx context.Context, targetID string) error
	ListTargets(ctx context.Context) ([]*target.Info, error)

	Evaluate(ctx context.Context, sessionID, js string) (json.RawMessage, error)
	EnablePage(ctx context.Context, sessionID string) error
	AddInitScript(ctx context.Context, sessionID, source string) error
	BringToFront(ctx context.Context, sessionID string) error
	Navigate(ctx context.Context, sessionID, url string) error

	StartScreencast(ctx context.Context, sessionID string, opts cdpcontrol.ScreencastOptions) error
	StopScreencast(ctx context.Context, sessionID string) error
	AckFrame(ctx context.Context, sessionID string, ackID int) error
	CaptureScreenshot(ctx context.Context, sessionID, format string, quality int) ([]byte, error)

	DispatchMouseEvent(ctx context.Context, sessionID string, ev cdpcontrol.MouseEvent) error
	DispatchKeyEvent(ctx context.Context, sessionID string, ev cdpcontrol.KeyEvent) error
	InsertText(ctx context.Context, sessionID, text string) error

	OnEvent(method string, fn func(sessionID string, params json.RawMessage)) func()
}

var _ ControlChannel = (*cdpcontrol.Conn)(nil)
