package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"

	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/cdp"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/cdpcontrol"
)

// fakeChannel is an in-memory ControlChannel scripted by tests.
type fakeChannel struct {
	mu sync.Mutex

	connected  bool
	connectErr error

	targets []*target.Info
	listErr error

	attached    map[string]string // targetID -> cdp session id
	sessions    map[string]string // cdp session id -> targetID
	nextSession int
	attachErr   error

	// activity payload per cdp session id, as the raw envelope JSON the
	// read script would return
	activity map[string]string
	evalErr  map[string]error

	screencasts        map[string]bool
	startScreencastErr error
	startCount         int
	screenshotErr      error

	dispatchErrs []error // popped per mouse/key dispatch
	mouseEvents  []cdpcontrol.MouseEvent
	keyEvents    []cdpcontrol.KeyEvent
	inserted     []string

	acks           []int
	navigated      []string
	broughtToFront []string
	closedTargets  []string

	handlers  map[string][]func(sessionID string, params json.RawMessage)
	handlerID int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		connected:   true,
		attached:    make(map[string]string),
		sessions:    make(map[string]string),
		activity:    make(map[string]string),
		evalErr:     make(map[string]error),
		screencasts: make(map[string]bool),
		handlers:    make(map[string][]func(string, json.RawMessage)),
	}
}

// addTarget registers a page target the fake will report from ListTargets.
func (f *fakeChannel) addTarget(id, title, url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, &target.Info{TargetID: target.ID(id), Type: "page", Title: title, URL: url})
}

func (f *fakeChannel) removeTarget(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.targets[:0]
	for _, t := range f.targets {
		if string(t.TargetID) != id {
			kept = append(kept, t)
		}
	}
	f.targets = kept
}

// setActivity scripts the probe result for a tab. Ages are in
// milliseconds since the signal fired; negative means never.
func (f *fakeChannel) setActivity(tabID string, marker bool, interactionMs, mutationMs, formMs int64) {
	payload := fmt.Sprintf(`{"ok":true,"data":{"marker":%t,"interactionMs":%d,"mutationMs":%d,"formMs":%d,"loading":false,"visible":true}}`,
		marker, interactionMs, mutationMs, formMs)
	f.mu.Lock()
	defer f.mu.Unlock()
	if sid, ok := f.attached[tabID]; ok {
		f.activity[sid] = payload
	}
	// also key by tab so a future attach picks it up
	f.activity["tab:"+tabID] = payload
}

func (f *fakeChannel) sessionFor(tabID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attached[tabID]
}

// emitFrame pushes a screencast frame event for the given cdp session.
func (f *fakeChannel) emitFrame(cdpSession, data string, ackID int) {
	params := fmt.Sprintf(`{"data":%q,"sessionId":%d,"metadata":{"timestamp":%f}}`,
		data, ackID, float64(time.Now().UnixMilli())/1000)
	f.mu.Lock()
	handlers := append([]func(string, json.RawMessage){}, f.handlers["Page.screencastFrame"]...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(cdpSession, json.RawMessage(params))
	}
}

func (f *fakeChannel) pushDispatchErr(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatchErrs = append(f.dispatchErrs, errs...)
}

func (f *fakeChannel) popDispatchErr() error {
	if len(f.dispatchErrs) == 0 {
		return nil
	}
	err := f.dispatchErrs[0]
	f.dispatchErrs = f.dispatchErrs[1:]
	return err
}

func (f *fakeChannel) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeChannel) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeChannel) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeChannel) AttachToTarget(ctx context.Context, targetID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attachErr != nil {
		return "", f.attachErr
	}
	f.nextSession++
	sid := fmt.Sprintf("cdp-sess-%d", f.nextSession)
	f.attached[targetID] = sid
	f.sessions[sid] = targetID
	if payload, ok := f.activity["tab:"+targetID]; ok {
		f.activity[sid] = payload
	}
	return sid, nil
}

func (f *fakeChannel) DetachFromTarget(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tabID, ok := f.sessions[sessionID]; ok {
		delete(f.attached, tabID)
		delete(f.sessions, sessionID)
	}
	return nil
}

func (f *fakeChannel) CloseTarget(ctx context.Context, targetID string) error {
	f.mu.Lock()
	f.closedTargets = append(f.closedTargets, targetID)
	f.mu.Unlock()
	f.removeTarget(targetID)
	return nil
}

func (f *fakeChannel) ListTargets(ctx context.Context) ([]*target.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*target.Info, len(f.targets))
	copy(out, f.targets)
	return out, nil
}

func (f *fakeChannel) Evaluate(ctx context.Context, sessionID, js string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.evalErr[sessionID]; err != nil {
		return nil, err
	}
	payload, ok := f.activity[sessionID]
	if !ok {
		payload = `{"ok":true,"data":{"marker":false,"interactionMs":-1,"mutationMs":-1,"formMs":-1,"loading":false,"visible":true}}`
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (f *fakeChannel) EnablePage(ctx context.Context, sessionID string) error { return nil }

func (f *fakeChannel) AddInitScript(ctx context.Context, sessionID, source string) error { return nil }

func (f *fakeChannel) BringToFront(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broughtToFront = append(f.broughtToFront, sessionID)
	return nil
}

func (f *fakeChannel) Navigate(ctx context.Context, sessionID, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigated = append(f.navigated, url)
	return nil
}

func (f *fakeChannel) StartScreencast(ctx context.Context, sessionID string, opts cdpcontrol.ScreencastOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startScreencastErr != nil {
		return f.startScreencastErr
	}
	f.startCount++
	f.screencasts[sessionID] = true
	return nil
}

func (f *fakeChannel) StopScreencast(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.screencasts, sessionID)
	return nil
}

func (f *fakeChannel) CaptureScreenshot(ctx context.Context, sessionID, format string, quality int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.screenshotErr != nil {
		return nil, f.screenshotErr
	}
	return []byte("img:" + sessionID + ":" + format), nil
}

func (f *fakeChannel) AckFrame(ctx context.Context, sessionID string, ackID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, ackID)
	return nil
}

func (f *fakeChannel) DispatchMouseEvent(ctx context.Context, sessionID string, ev cdpcontrol.MouseEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.popDispatchErr(); err != nil {
		return err
	}
	f.mouseEvents = append(f.mouseEvents, ev)
	return nil
}

func (f *fakeChannel) DispatchKeyEvent(ctx context.Context, sessionID string, ev cdpcontrol.KeyEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.popDispatchErr(); err != nil {
		return err
	}
	f.keyEvents = append(f.keyEvents, ev)
	return nil
}

func (f *fakeChannel) InsertText(ctx context.Context, sessionID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, text)
	return nil
}

func (f *fakeChannel) OnEvent(method string, fn func(sessionID string, params json.RawMessage)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = append(f.handlers[method], fn)
	idx := len(f.handlers[method]) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		handlers := f.handlers[method]
		if idx < len(handlers) {
			f.handlers[method] = append(handlers[:idx], handlers[idx+1:]...)
		}
	}
}

var _ ControlChannel = (*fakeChannel)(nil)

// newTestSession builds a session around a fake channel with a
// controllable clock. The registry is pre-populated from the fake's
// targets.
func newTestSession(ch *fakeChannel, opts Options) (*Session, *time.Time) {
	reg := cdp.NewTabRegistry()
	s := newSession("sess-test", ch, reg, opts)
	clock := time.Unix(5000, 0)
	s.now = func() time.Time { return clock }

	targets, _ := ch.ListTargets(context.Background())
	reg.Reconcile(targets)
	return s, &clock
}
