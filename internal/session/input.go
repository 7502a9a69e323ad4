package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/cdpcontrol"
)

// MouseInput is a transport-level mouse event aimed at the active tab.
type MouseInput struct {
	Type       string  `json:"type" doc:"move, down, up, click or wheel"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Button     string  `json:"button,omitempty" doc:"left, middle or right"`
	ClickCount int     `json:"click_count,omitempty"`
	DeltaX     float64 `json:"delta_x,omitempty"`
	DeltaY     float64 `json:"delta_y,omitempty"`
	Modifiers  int     `json:"modifiers,omitempty"`
}

// KeyInput is a transport-level keyboard event aimed at the active tab.
type KeyInput struct {
	Type      string `json:"type" doc:"down, up, press or type"`
	Key       string `json:"key,omitempty"`
	Code      string `json:"code,omitempty"`
	Text      string `json:"text,omitempty"`
	KeyCode   int    `json:"key_code,omitempty"`
	Modifiers int    `json:"modifiers,omitempty"`
}

// InputResult reports an input injection outcome. Input failures are
// routine (stale tab, closing page), so they come back as a result, not
// an error.
type InputResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func okResult() InputResult             { return InputResult{Success: true} }
func failResult(msg string) InputResult { return InputResult{Success: false, Message: msg} }

// ApplyMouse routes a mouse event to the active tab through the button
// state machine: a press only fires for an untracked button, a release
// always clears tracking even when the browser says "not pressed", and
// a click resets tracking first and retries once after releasing all
// buttons on an "already pressed" failure.
func (s *Session) ApplyMouse(ctx context.Context, in MouseInput) InputResult {
	cdpSession, err := s.activeCDPSession(ctx)
	if err != nil {
		return s.inputFailure(err)
	}

	button := in.Button
	if button == "" {
		button = "left"
	}

	switch in.Type {
	case "move", "mousemove":
		ev := cdpcontrol.MouseEvent{Type: "mouseMoved", X: in.X, Y: in.Y, Modifiers: in.Modifiers}
		// Carry a pressed button so moves read as a drag.
		s.mu.Lock()
		for b := range s.pressed {
			ev.Button = b
			break
		}
		s.mu.Unlock()
		if err := s.channel.DispatchMouseEvent(ctx, cdpSession, ev); err != nil {
			return s.inputFailure(err)
		}
		return okResult()

	case "down", "mousedown":
		s.mu.Lock()
		already := s.pressed[button]
		s.mu.Unlock()
		if already {
			return okResult()
		}
		ev := cdpcontrol.MouseEvent{Type: "mousePressed", X: in.X, Y: in.Y,
			Button: button, ClickCount: max(in.ClickCount, 1), Modifiers: in.Modifiers}
		if err := s.channel.DispatchMouseEvent(ctx, cdpSession, ev); err != nil {
			if cdpcontrol.Classify(err) == cdpcontrol.ClassInputState {
				// Browser already holds the button; align tracking.
				s.trackButton(button, true)
				return okResult()
			}
			return s.inputFailure(err)
		}
		s.trackButton(button, true)
		return okResult()

	case "up", "mouseup":
		ev := cdpcontrol.MouseEvent{Type: "mouseReleased", X: in.X, Y: in.Y,
			Button: button, ClickCount: max(in.ClickCount, 1), Modifiers: in.Modifiers}
		err := s.channel.DispatchMouseEvent(ctx, cdpSession, ev)
		s.trackButton(button, false)
		if err != nil && cdpcontrol.Classify(err) != cdpcontrol.ClassInputState {
			return s.inputFailure(err)
		}
		return okResult()

	case "click":
		s.mu.Lock()
		s.pressed = make(map[string]bool)
		s.mu.Unlock()
		if err := s.clickOnce(ctx, cdpSession, in, button); err != nil {
			if cdpcontrol.Classify(err) == cdpcontrol.ClassInputState {
				s.releaseAll(ctx, cdpSession, in.X, in.Y)
				if retryErr := s.clickOnce(ctx, cdpSession, in, button); retryErr != nil {
					return s.inputFailure(retryErr)
				}
				return okResult()
			}
			return s.inputFailure(err)
		}
		return okResult()

	case "wheel":
		ev := cdpcontrol.MouseEvent{Type: "mouseWheel", X: in.X, Y: in.Y,
			DeltaX: in.DeltaX, DeltaY: in.DeltaY, Modifiers: in.Modifiers}
		if err := s.channel.DispatchMouseEvent(ctx, cdpSession, ev); err != nil {
			return s.inputFailure(err)
		}
		return okResult()

	default:
		return failResult("unknown mouse event type: " + in.Type)
	}
}

func (s *Session) clickOnce(ctx context.Context, cdpSession string, in MouseInput, button string) error {
	count := max(in.ClickCount, 1)
	press := cdpcontrol.MouseEvent{Type: "mousePressed", X: in.X, Y: in.Y,
		Button: button, ClickCount: count, Modifiers: in.Modifiers}
	if err := s.channel.DispatchMouseEvent(ctx, cdpSession, press); err != nil {
		return err
	}
	release := cdpcontrol.MouseEvent{Type: "mouseReleased", X: in.X, Y: in.Y,
		Button: button, ClickCount: count, Modifiers: in.Modifiers}
	return s.channel.DispatchMouseEvent(ctx, cdpSession, release)
}

// releaseAll force-releases every standard button, used to reset the
// browser side before a click retry.
func (s *Session) releaseAll(ctx context.Context, cdpSession string, x, y float64) {
	for _, b := range []string{"left", "middle", "right"} {
		ev := cdpcontrol.MouseEvent{Type: "mouseReleased", X: x, Y: y, Button: b, ClickCount: 1}
		if err := s.channel.DispatchMouseEvent(ctx, cdpSession, ev); err != nil {
			slog.Debug("release-all dispatch failed", "session", s.ID, "button", b, "error", err)
		}
	}
	s.mu.Lock()
	s.pressed = make(map[string]bool)
	s.mu.Unlock()
}

// ApplyKeyboard routes a keyboard event to the active tab.
func (s *Session) ApplyKeyboard(ctx context.Context, in KeyInput) InputResult {
	cdpSession, err := s.activeCDPSession(ctx)
	if err != nil {
		return s.inputFailure(err)
	}

	down := cdpcontrol.KeyEvent{Type: "keyDown", Key: in.Key, Code: in.Code,
		Text: in.Text, UnmodifiedText: in.Text,
		WindowsVirtualKeyCode: in.KeyCode, Modifiers: in.Modifiers}
	up := cdpcontrol.KeyEvent{Type: "keyUp", Key: in.Key, Code: in.Code,
		WindowsVirtualKeyCode: in.KeyCode, Modifiers: in.Modifiers}

	switch in.Type {
	case "down", "keydown":
		if err := s.channel.DispatchKeyEvent(ctx, cdpSession, down); err != nil {
			return s.inputFailure(err)
		}
		return okResult()

	case "up", "keyup":
		if err := s.channel.DispatchKeyEvent(ctx, cdpSession, up); err != nil {
			return s.inputFailure(err)
		}
		return okResult()

	case "press":
		if err := s.channel.DispatchKeyEvent(ctx, cdpSession, down); err != nil {
			return s.inputFailure(err)
		}
		if err := s.channel.DispatchKeyEvent(ctx, cdpSession, up); err != nil {
			return s.inputFailure(err)
		}
		return okResult()

	case "type":
		if in.Text == "" {
			return failResult("type event requires text")
		}
		if err := s.channel.InsertText(ctx, cdpSession, in.Text); err != nil {
			return s.inputFailure(err)
		}
		return okResult()

	default:
		return failResult("unknown keyboard event type: " + in.Type)
	}
}

// PressedButtons returns a snapshot of tracked button state.
func (s *Session) PressedButtons() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.pressed))
	for b := range s.pressed {
		out = append(out, b)
	}
	return out
}

func (s *Session) trackButton(button string, down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if down {
		s.pressed[button] = true
	} else {
		delete(s.pressed, button)
	}
}

// activeCDPSession resolves the flat session for the current active tab.
func (s *Session) activeCDPSession(ctx context.Context) (string, error) {
	tabID := s.registry.ActiveID()
	if tabID == "" {
		tabs := s.registry.List()
		if len(tabs) == 0 {
			return "", cdpcontrol.NewError(cdpcontrol.CodeTabNotFound, "no tabs in session", nil)
		}
		tabID = tabs[0].TargetID
	}
	return s.ensureTabSession(ctx, tabID)
}

// inputFailure translates an input dispatch error into a routine result.
// Session/page-gone failures read as "Session closed"; transient channel
// failures also kick recovery.
func (s *Session) inputFailure(err error) InputResult {
	if cdpcontrol.IsSessionGone(err) {
		s.routeChannelError(err)
		return failResult("Session closed")
	}
	s.routeChannelError(err)
	return failResult(fmt.Sprintf("input dispatch failed: %v", err))
}
