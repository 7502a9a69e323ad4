package cdpcontrol

// ScreencastOptions control the capture subscription opened on a tab.
type ScreencastOptions struct {
	Format        string `json:"format,omitempty" doc:"Frame format: jpeg or png" default:"jpeg"`
	Quality       int    `json:"quality,omitempty" doc:"JPEG quality 1-100" default:"70"`
	MaxWidth      int    `json:"max_width,omitempty" default:"1280"`
	MaxHeight     int    `json:"max_height,omitempty" default:"720"`
	EveryNthFrame int    `json:"every_nth_frame,omitempty" default:"1"`
}

// DefaultScreencastOptions fills zero fields with the fixed capture profile.
func DefaultScreencastOptions() ScreencastOptions {
	return ScreencastOptions{Format: "jpeg", Quality: 70, MaxWidth: 1280, MaxHeight: 720, EveryNthFrame: 1}
}

// MouseEvent is a raw Input.dispatchMouseEvent payload.
type MouseEvent struct {
	Type       string  `json:"type"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Button     string  `json:"button,omitempty"`
	ClickCount int     `json:"clickCount,omitempty"`
	DeltaX     float64 `json:"deltaX,omitempty"`
	DeltaY     float64 `json:"deltaY,omitempty"`
	Modifiers  int     `json:"modifiers,omitempty"`
}

// KeyEvent is a raw Input.dispatchKeyEvent payload.
type KeyEvent struct {
	Type                  string `json:"type"`
	Key                   string `json:"key,omitempty"`
	Code                  string `json:"code,omitempty"`
	Text                  string `json:"text,omitempty"`
	UnmodifiedText        string `json:"unmodifiedText,omitempty"`
	WindowsVirtualKeyCode int    `json:"windowsVirtualKeyCode,omitempty"`
	Modifiers             int    `json:"modifiers,omitempty"`
}

// ScreencastFrame is a single delivered capture frame. Data is the raw
// base64 payload exactly as the browser sent it; AckID must be echoed back
// via AckFrame before the browser sends the next frame.
type ScreencastFrame struct {
	Data      string
	AckID     int
	Timestamp float64
}
