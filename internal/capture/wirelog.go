package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"
)

// RecordWriter is the journal sink for captured frames, satisfied by
// *storage.JSONLWriter.
type RecordWriter interface {
	Write(record any) error
}

// WireRecord is one captured protocol frame. Large payloads (screencast
// frames are routinely hundreds of kilobytes of base64) are truncated,
// with the original size and a content hash kept so frames remain
// distinguishable.
type WireRecord struct {
	Timestamp     time.Time `json:"ts"`
	Direction     string    `json:"direction"`
	Method        string    `json:"method,omitempty"`
	CommandID     int64     `json:"command_id,omitempty"`
	CDPSession    string    `json:"cdp_session,omitempty"`
	Size          int       `json:"size"`
	Truncated     bool      `json:"truncated,omitempty"`
	PayloadSHA256 string    `json:"payload_sha256,omitempty"`
	Payload       string    `json:"payload"`
}

// WireLog captures raw control-channel frames into a session's journal.
// Install its Tap on the channel; writes are async so capture never
// slows the protocol down.
type WireLog struct {
	writer   RecordWriter
	maxBytes int
}

// NewWireLog creates a wire capture writing through the given journal
// writer, truncating payloads to maxBytes (0 disables truncation).
func NewWireLog(writer RecordWriter, maxBytes int) *WireLog {
	return &WireLog{writer: writer, maxBytes: maxBytes}
}

// Tap records one frame. Matches the channel's tap signature.
func (l *WireLog) Tap(direction string, data []byte) {
	var frame struct {
		ID        int64  `json:"id"`
		Method    string `json:"method"`
		SessionID string `json:"sessionId"`
	}
	// Unparseable frames are still recorded, just without routing info.
	_ = json.Unmarshal(data, &frame)

	payload, truncated, originalSize, payloadHash := truncateBytes(data, l.maxBytes)

	record := WireRecord{
		Timestamp:     time.Now().UTC(),
		Direction:     direction,
		Method:        frame.Method,
		CommandID:     frame.ID,
		CDPSession:    frame.SessionID,
		Size:          originalSize,
		Truncated:     truncated,
		PayloadSHA256: payloadHash,
		Payload:       string(payload),
	}
	if err := l.writer.Write(record); err != nil {
		slog.Debug("wire capture write failed", "method", frame.Method, "error", err)
	}
}

// truncateBytes cuts in down to maxBytes, reporting the original size
// and a sha256 of the full payload when anything was dropped.
func truncateBytes(in []byte, maxBytes int) ([]byte, bool, int, string) {
	if maxBytes <= 0 || len(in) <= maxBytes {
		return in, false, len(in), ""
	}
	sum := sha256.Sum256(in)
	return in[:maxBytes], true, len(in), hex.EncodeToString(sum[:])
}
