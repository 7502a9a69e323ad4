package cdpcontrol

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Conn is a minimal flat-session CDP client speaking directly over the
// browser-level WebSocket. Commands the session core needs (attach, input
// injection, screencast, evaluate) are issued without the heavy session
// initialisation a full driver performs, which destabilises some browser
// builds when service workers get auto-attached.
type Conn struct {
	httpBase string // e.g. "http://127.0.0.1:9222"

	mu   sync.Mutex
	conn net.Conn
	seq  atomic.Int64

	pending   map[int64]chan json.RawMessage
	pendingMu sync.Mutex

	eventMu       sync.RWMutex
	eventHandlers map[string][]eventHandler

	tapMu sync.RWMutex
	tap   func(direction string, data []byte)
}

// Wire tap direction labels.
const (
	TapSend = "send"
	TapRecv = "recv"
)

// SetTap installs an observer for raw protocol frames in both
// directions, used for wire capture. The tap must not block; it is
// called on the read loop and on every sender. Pass nil to remove.
func (c *Conn) SetTap(fn func(direction string, data []byte)) {
	c.tapMu.Lock()
	c.tap = fn
	c.tapMu.Unlock()
}

func (c *Conn) tapFrame(direction string, data []byte) {
	c.tapMu.RLock()
	fn := c.tap
	c.tapMu.RUnlock()
	if fn != nil {
		fn(direction, data)
	}
}

type eventHandler struct {
	id int64
	fn func(sessionID string, params json.RawMessage)
}

// NewConn creates a client for the browser at the given CDP HTTP base URL.
func NewConn(httpBase string) *Conn {
	return &Conn{
		httpBase:      strings.TrimRight(httpBase, "/"),
		pending:       make(map[int64]chan json.RawMessage),
		eventHandlers: make(map[string][]eventHandler),
	}
}

// Connect dials the browser-level WebSocket endpoint. A no-op if already
// connected, so recovery can call it unconditionally.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	wsURL, err := c.browserWSURL(ctx)
	if err != nil {
		return NewError(CodeCDPUnavailable, "browser ws url", err)
	}

	slog.Debug("cdp connecting", "ws_url", wsURL)
	conn, _, _, err := ws.Dial(ctx, wsURL)
	if err != nil {
		return NewError(CodeCDPUnavailable, "dial browser", err)
	}

	c.conn = conn
	c.pending = make(map[int64]chan json.RawMessage)
	go c.readLoop()
	return nil
}

// Close tears down the WebSocket. Pending callers receive a closed-channel error.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Connected reports whether the browser WebSocket is currently up.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// readLoop dispatches command responses to waiters and events to handlers.
func (c *Conn) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			slog.Debug("cdp read loop exit", "error", err)
			c.closeAllPending()
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			return
		}
		c.tapFrame(TapRecv, data)

		var msg struct {
			ID        int64           `json:"id"`
			Method    string          `json:"method"`
			SessionID string          `json:"sessionId"`
			Params    json.RawMessage `json:"params"`
		}
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		if msg.ID > 0 {
			c.pendingMu.Lock()
			ch, ok := c.pending[msg.ID]
			if ok {
				delete(c.pending, msg.ID)
			}
			c.pendingMu.Unlock()
			if ok {
				ch <- json.RawMessage(data)
			}
		} else if msg.Method != "" {
			c.dispatchEvent(msg.Method, msg.SessionID, msg.Params)
		}
	}
}

func (c *Conn) closeAllPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Conn) deletePending(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *Conn) sendRaw(ctx context.Context, id int64, envelope any) (json.RawMessage, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, NewError(CodeChannelLost, "not connected", nil)
	}

	ch := make(chan json.RawMessage, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	data, err := json.Marshal(envelope)
	if err != nil {
		c.deletePending(id)
		return nil, fmt.Errorf("cdp: marshal: %w", err)
	}

	c.mu.Lock()
	err = wsutil.WriteClientText(conn, data)
	c.mu.Unlock()
	if err != nil {
		c.deletePending(id)
		return nil, NewError(CodeChannelLost, "send", err)
	}
	c.tapFrame(TapSend, data)

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, NewError(CodeChannelLost, "connection closed", nil)
		}
		return resp, nil
	case <-ctx.Done():
		c.deletePending(id)
		return nil, ctx.Err()
	}
}

// send issues a browser-level command and waits for the matching response.
func (c *Conn) send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.seq.Add(1)
	req := struct {
		ID     int64  `json:"id"`
		Method string `json:"method"`
		Params any    `json:"params,omitempty"`
	}{ID: id, Method: method, Params: params}
	return c.sendRaw(ctx, id, req)
}

// sendFlat issues a command on a flattened session (sessionId in the outer
// envelope) and unwraps the inner result, converting protocol errors.
func (c *Conn) sendFlat(ctx context.Context, sessionID, method string, params any) (json.RawMessage, error) {
	id := c.seq.Add(1)
	req := struct {
		ID        int64  `json:"id"`
		Method    string `json:"method"`
		SessionID string `json:"sessionId,omitempty"`
		Params    any    `json:"params,omitempty"`
	}{ID: id, Method: method, SessionID: sessionID, Params: params}

	resp, err := c.sendRaw(ctx, id, req)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp, &envelope); err != nil {
		return resp, nil
	}
	if envelope.Error != nil {
		return nil, fmt.Errorf("cdp: %s: %s", method, envelope.Error.Message)
	}
	return envelope.Result, nil
}

// AttachToTarget attaches a flat session to the given target.
func (c *Conn) AttachToTarget(ctx context.Context, targetID string) (string, error) {
	params := struct {
		TargetID string `json:"targetId"`
		Flatten  bool   `json:"flatten"`
	}{TargetID: targetID, Flatten: true}

	raw, err := c.send(ctx, "Target.attachToTarget", params)
	if err != nil {
		return "", err
	}

	var resp struct {
		Result struct {
			SessionID string `json:"sessionId"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("cdp: unmarshal attach: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("cdp: attach: %s", resp.Error.Message)
	}
	return resp.Result.SessionID, nil
}

// DetachFromTarget detaches a flat session without closing the target.
func (c *Conn) DetachFromTarget(ctx context.Context, sessionID string) error {
	params := struct {
		SessionID string `json:"sessionId"`
	}{SessionID: sessionID}

	_, err := c.send(ctx, "Target.detachFromTarget", params)
	return err
}

// CloseTarget asks the browser to close a tab.
func (c *Conn) CloseTarget(ctx context.Context, targetID string) error {
	params := struct {
		TargetID string `json:"targetId"`
	}{TargetID: targetID}
	_, err := c.send(ctx, "Target.closeTarget", params)
	return err
}

// Evaluate runs JS on the given session and returns the raw result value.
func (c *Conn) Evaluate(ctx context.Context, sessionID, js string) (json.RawMessage, error) {
	params := struct {
		Expression    string `json:"expression"`
		ReturnByValue bool   `json:"returnByValue"`
		AwaitPromise  bool   `json:"awaitPromise"`
	}{Expression: js, ReturnByValue: true, AwaitPromise: true}

	raw, err := c.sendFlat(ctx, sessionID, "Runtime.evaluate", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result struct {
			Value json.RawMessage `json:"value"`
			Type  string          `json:"type"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("cdp: unmarshal eval: %w", err)
	}
	if resp.ExceptionDetails != nil {
		return nil, NewError(CodeEvalFailure, "eval exception: "+resp.ExceptionDetails.Text, nil)
	}
	return resp.Result.Value, nil
}

// EnablePage sends Page.enable on a session so lifecycle and screencast
// events are emitted.
func (c *Conn) EnablePage(ctx context.Context, sessionID string) error {
	_, err := c.sendFlat(ctx, sessionID, "Page.enable", nil)
	return err
}

// AddInitScript installs a script evaluated on every new document of the
// session's page (used for the activity probe).
func (c *Conn) AddInitScript(ctx context.Context, sessionID, source string) error {
	params := struct {
		Source string `json:"source"`
	}{Source: source}
	_, err := c.sendFlat(ctx, sessionID, "Page.addScriptToEvaluateOnNewDocument", params)
	return err
}

// BringToFront raises the session's page to the foreground.
func (c *Conn) BringToFront(ctx context.Context, sessionID string) error {
	_, err := c.sendFlat(ctx, sessionID, "Page.bringToFront", nil)
	return err
}

// Navigate points the session's page at a URL.
func (c *Conn) Navigate(ctx context.Context, sessionID, url string) error {
	params := struct {
		URL string `json:"url"`
	}{URL: url}
	raw, err := c.sendFlat(ctx, sessionID, "Page.navigate", params)
	if err != nil {
		return err
	}
	var resp struct {
		ErrorText string `json:"errorText"`
	}
	if err := json.Unmarshal(raw, &resp); err == nil && resp.ErrorText != "" {
		return NewError(CodeValidation, "navigate: "+resp.ErrorText, nil)
	}
	return nil
}

// StartScreencast opens the capture subscription on a session.
func (c *Conn) StartScreencast(ctx context.Context, sessionID string, opts ScreencastOptions) error {
	params := struct {
		Format        string `json:"format"`
		Quality       int    `json:"quality,omitempty"`
		MaxWidth      int    `json:"maxWidth,omitempty"`
		MaxHeight     int    `json:"maxHeight,omitempty"`
		EveryNthFrame int    `json:"everyNthFrame,omitempty"`
	}{
		Format:        opts.Format,
		MaxWidth:      opts.MaxWidth,
		MaxHeight:     opts.MaxHeight,
		EveryNthFrame: opts.EveryNthFrame,
	}
	if opts.Format == "jpeg" && opts.Quality > 0 {
		params.Quality = opts.Quality
	}
	_, err := c.sendFlat(ctx, sessionID, "Page.startScreencast", params)
	return err
}

// StopScreencast ends the capture subscription on a session.
func (c *Conn) StopScreencast(ctx context.Context, sessionID string) error {
	_, err := c.sendFlat(ctx, sessionID, "Page.stopScreencast", nil)
	return err
}

// CaptureScreenshot takes a one-off screenshot of the session's page.
// Returns the decoded image bytes.
func (c *Conn) CaptureScreenshot(ctx context.Context, sessionID, format string, quality int) ([]byte, error) {
	params := struct {
		Format  string `json:"format"`
		Quality int    `json:"quality,omitempty"`
	}{Format: format}
	if format == "jpeg" && quality > 0 {
		params.Quality = quality
	}
	raw, err := c.sendFlat(ctx, sessionID, "Page.captureScreenshot", params)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("cdp: unmarshal screenshot: %w", err)
	}
	img, err := base64.StdEncoding.DecodeString(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("cdp: decode screenshot: %w", err)
	}
	return img, nil
}

// AckFrame acknowledges a delivered screencast frame so the browser sends
// the next one.
func (c *Conn) AckFrame(ctx context.Context, sessionID string, ackID int) error {
	params := struct {
		SessionID int `json:"sessionId"`
	}{SessionID: ackID}
	_, err := c.sendFlat(ctx, sessionID, "Page.screencastFrameAck", params)
	return err
}

// DispatchMouseEvent injects a trusted mouse event on a session.
func (c *Conn) DispatchMouseEvent(ctx context.Context, sessionID string, ev MouseEvent) error {
	_, err := c.sendFlat(ctx, sessionID, "Input.dispatchMouseEvent", ev)
	return err
}

// DispatchKeyEvent injects a trusted keyboard event on a session.
func (c *Conn) DispatchKeyEvent(ctx context.Context, sessionID string, ev KeyEvent) error {
	_, err := c.sendFlat(ctx, sessionID, "Input.dispatchKeyEvent", ev)
	return err
}

// InsertText types text into the focused element via Input.insertText.
func (c *Conn) InsertText(ctx context.Context, sessionID, text string) error {
	params := struct {
		Text string `json:"text"`
	}{Text: text}
	_, err := c.sendFlat(ctx, sessionID, "Input.insertText", params)
	return err
}

// OnEvent registers a handler for a CDP event method (e.g.
// "Page.screencastFrame"). Returns an unregister function.
func (c *Conn) OnEvent(method string, fn func(sessionID string, params json.RawMessage)) func() {
	id := c.seq.Add(1)
	c.eventMu.Lock()
	c.eventHandlers[method] = append(c.eventHandlers[method], eventHandler{id: id, fn: fn})
	c.eventMu.Unlock()
	return func() {
		c.eventMu.Lock()
		defer c.eventMu.Unlock()
		handlers := c.eventHandlers[method]
		for i, h := range handlers {
			if h.id == id {
				c.eventHandlers[method] = append(handlers[:i], handlers[i+1:]...)
				break
			}
		}
	}
}

func (c *Conn) dispatchEvent(method, sessionID string, params json.RawMessage) {
	c.eventMu.RLock()
	handlers := make([]eventHandler, len(c.eventHandlers[method]))
	copy(handlers, c.eventHandlers[method])
	c.eventMu.RUnlock()
	for _, h := range handlers {
		h.fn(sessionID, params)
	}
}

// ListTargets fetches open targets via the HTTP /json/list endpoint. Direct
// enumeration backs the polling half of tab discovery; pushed lifecycle
// events can race or go missing, so both feed the same registry.
func (c *Conn) ListTargets(ctx context.Context) ([]*target.Info, error) {
	listCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(listCtx, http.MethodGet, c.httpBase+"/json/list", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, NewError(CodeCDPUnavailable, "/json/list", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, NewError(CodeCDPUnavailable, fmt.Sprintf("/json/list: HTTP %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var entries []struct {
		ID    string `json:"id"`
		Type  string `json:"type"`
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, err
	}

	out := make([]*target.Info, 0, len(entries))
	for _, e := range entries {
		out = append(out, &target.Info{
			TargetID: target.ID(e.ID),
			Type:     e.Type,
			Title:    e.Title,
			URL:      e.URL,
		})
	}
	return out, nil
}

// browserWSURL fetches the WebSocket debugger URL from /json/version.
func (c *Conn) browserWSURL(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.httpBase+"/json/version", nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("/json/version: HTTP %d", resp.StatusCode)
	}

	var info struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	if info.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("empty webSocketDebuggerUrl")
	}
	return info.WebSocketDebuggerURL, nil
}
