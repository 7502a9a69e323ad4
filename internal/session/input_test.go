package session

import (
	"context"
	"errors"
	"testing"
)

func newInputSession(t *testing.T) (*Session, *fakeChannel) {
	t.Helper()
	ch := newFakeChannel()
	ch.addTarget("tab-b", "B", "https://b.test/page")
	s, _ := newTestSession(ch, DefaultOptions())
	if _, err := s.SwitchToTab(context.Background(), "tab-b", false); err != nil {
		t.Fatalf("SwitchToTab() error: %v", err)
	}
	return s, ch
}

func TestMouseDownTracksButtonAndDeduplicates(t *testing.T) {
	s, ch := newInputSession(t)

	res := s.ApplyMouse(context.Background(), MouseInput{Type: "down", X: 10, Y: 20, Button: "left"})
	if !res.Success {
		t.Fatalf("ApplyMouse(down) = %+v; want success", res)
	}
	if got := s.PressedButtons(); len(got) != 1 || got[0] != "left" {
		t.Fatalf("PressedButtons() = %v; want [left]", got)
	}

	// A repeated press for a tracked button is swallowed.
	res = s.ApplyMouse(context.Background(), MouseInput{Type: "down", X: 10, Y: 20, Button: "left"})
	if !res.Success {
		t.Fatalf("repeated ApplyMouse(down) = %+v; want success", res)
	}
	ch.mu.Lock()
	dispatched := len(ch.mouseEvents)
	ch.mu.Unlock()
	if dispatched != 1 {
		t.Fatalf("dispatched %d mouse events; want 1", dispatched)
	}
}

func TestMouseUpOnUntrackedButtonSucceeds(t *testing.T) {
	s, ch := newInputSession(t)

	res := s.ApplyMouse(context.Background(), MouseInput{Type: "up", X: 10, Y: 20, Button: "right"})
	if !res.Success {
		t.Fatalf("ApplyMouse(up) = %+v; want success", res)
	}
	if got := s.PressedButtons(); len(got) != 0 {
		t.Fatalf("PressedButtons() = %v; want empty", got)
	}
	ch.mu.Lock()
	last := ch.mouseEvents[len(ch.mouseEvents)-1]
	ch.mu.Unlock()
	if last.Type != "mouseReleased" || last.Button != "right" {
		t.Fatalf("dispatched event = %+v; want mouseReleased right", last)
	}
}

func TestMouseUpNotPressedErrorIsTolerated(t *testing.T) {
	s, ch := newInputSession(t)
	ch.pushDispatchErr(errors.New("Input.dispatchMouseEvent: button is not pressed"))

	res := s.ApplyMouse(context.Background(), MouseInput{Type: "up", X: 10, Y: 20, Button: "left"})
	if !res.Success {
		t.Fatalf("ApplyMouse(up) = %+v; want success despite not-pressed error", res)
	}
	if got := s.PressedButtons(); len(got) != 0 {
		t.Fatalf("PressedButtons() = %v; want empty", got)
	}
}

func TestMouseDownAlreadyPressedAlignsTracking(t *testing.T) {
	s, ch := newInputSession(t)
	ch.pushDispatchErr(errors.New("Input.dispatchMouseEvent: button already pressed"))

	res := s.ApplyMouse(context.Background(), MouseInput{Type: "down", X: 10, Y: 20, Button: "left"})
	if !res.Success {
		t.Fatalf("ApplyMouse(down) = %+v; want success", res)
	}
	if got := s.PressedButtons(); len(got) != 1 || got[0] != "left" {
		t.Fatalf("PressedButtons() = %v; want [left] (tracking aligned to browser)", got)
	}
}

func TestClickRetriesAfterReleasingStuckButtons(t *testing.T) {
	s, ch := newInputSession(t)
	ch.pushDispatchErr(errors.New("Input.dispatchMouseEvent: button already pressed"))

	res := s.ApplyMouse(context.Background(), MouseInput{Type: "click", X: 10, Y: 20, Button: "left"})
	if !res.Success {
		t.Fatalf("ApplyMouse(click) = %+v; want success after retry", res)
	}

	// Failed press, three force-releases, then press+release retry.
	type dispatched struct {
		typ, button string
	}
	var events []dispatched
	ch.mu.Lock()
	for _, ev := range ch.mouseEvents {
		events = append(events, dispatched{ev.Type, ev.Button})
	}
	ch.mu.Unlock()
	if len(events) != 5 {
		t.Fatalf("dispatched %d events after retry; want 5: %v", len(events), events)
	}
	for _, ev := range events[:3] {
		if ev.typ != "mouseReleased" {
			t.Fatalf("pre-retry event = %+v; want mouseReleased", ev)
		}
	}
	if events[3].typ != "mousePressed" || events[4].typ != "mouseReleased" {
		t.Fatalf("retry events = %v; want press then release", events[3:])
	}
	if got := s.PressedButtons(); len(got) != 0 {
		t.Fatalf("PressedButtons() after click = %v; want empty", got)
	}
}

func TestMouseMoveCarriesPressedButton(t *testing.T) {
	s, ch := newInputSession(t)

	s.ApplyMouse(context.Background(), MouseInput{Type: "down", X: 10, Y: 20, Button: "left"})
	res := s.ApplyMouse(context.Background(), MouseInput{Type: "move", X: 30, Y: 40})
	if !res.Success {
		t.Fatalf("ApplyMouse(move) = %+v; want success", res)
	}
	ch.mu.Lock()
	last := ch.mouseEvents[len(ch.mouseEvents)-1]
	ch.mu.Unlock()
	if last.Type != "mouseMoved" || last.Button != "left" {
		t.Fatalf("move event = %+v; want mouseMoved carrying left", last)
	}
}

func TestMouseSessionGoneReadsAsSessionClosed(t *testing.T) {
	s, ch := newInputSession(t)
	ch.pushDispatchErr(errors.New("rpc error: Session closed most likely the page has been closed"))

	res := s.ApplyMouse(context.Background(), MouseInput{Type: "click", X: 10, Y: 20})
	if res.Success {
		t.Fatal("ApplyMouse() succeeded; want failure")
	}
	if res.Message != "Session closed" {
		t.Fatalf("Message = %q; want %q", res.Message, "Session closed")
	}
}

func TestUnknownMouseTypeFails(t *testing.T) {
	s, _ := newInputSession(t)
	if res := s.ApplyMouse(context.Background(), MouseInput{Type: "hover"}); res.Success {
		t.Fatal("ApplyMouse(hover) succeeded; want failure")
	}
}

func TestKeyboardPressDispatchesDownThenUp(t *testing.T) {
	s, ch := newInputSession(t)

	res := s.ApplyKeyboard(context.Background(), KeyInput{Type: "press", Key: "Enter", Code: "Enter", KeyCode: 13})
	if !res.Success {
		t.Fatalf("ApplyKeyboard(press) = %+v; want success", res)
	}
	var events []string
	ch.mu.Lock()
	for _, ev := range ch.keyEvents {
		events = append(events, ev.Type)
	}
	ch.mu.Unlock()
	if len(events) != 2 || events[0] != "keyDown" || events[1] != "keyUp" {
		t.Fatalf("key events = %v; want [keyDown keyUp]", events)
	}
}

func TestKeyboardTypeUsesInsertText(t *testing.T) {
	s, ch := newInputSession(t)

	res := s.ApplyKeyboard(context.Background(), KeyInput{Type: "type", Text: "hello"})
	if !res.Success {
		t.Fatalf("ApplyKeyboard(type) = %+v; want success", res)
	}
	ch.mu.Lock()
	inserted := append([]string{}, ch.inserted...)
	keyCount := len(ch.keyEvents)
	ch.mu.Unlock()
	if len(inserted) != 1 || inserted[0] != "hello" {
		t.Fatalf("inserted = %v; want [hello]", inserted)
	}
	if keyCount != 0 {
		t.Fatalf("dispatched %d key events for type; want 0", keyCount)
	}
}

func TestKeyboardTypeRequiresText(t *testing.T) {
	s, _ := newInputSession(t)
	if res := s.ApplyKeyboard(context.Background(), KeyInput{Type: "type"}); res.Success {
		t.Fatal("ApplyKeyboard(type) with no text succeeded; want failure")
	}
}
