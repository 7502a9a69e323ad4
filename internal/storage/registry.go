package storage

import (
	"log/slog"
	"sync"
)

// WriterRegistry manages JSONLWriter instances, one per session and
// stream, so each session's journal lands in its own file.
type WriterRegistry struct {
	baseDir    string
	maxSizeMB  int
	bufferSize int

	// writers maps sessionID -> stream -> writer
	writers map[string]map[string]*JSONLWriter
	mu      sync.RWMutex
}

// NewWriterRegistry creates a registry rooted at baseDir.
func NewWriterRegistry(baseDir string, bufferSize, maxSizeMB int) *WriterRegistry {
	return &WriterRegistry{
		baseDir:    baseDir,
		maxSizeMB:  maxSizeMB,
		bufferSize: bufferSize,
		writers:    make(map[string]map[string]*JSONLWriter),
	}
}

// GetWriter returns (or creates) the writer for a session's stream.
// Streams separate record kinds on disk, e.g. "events" for lifecycle
// records and "wire" for protocol capture.
func (r *WriterRegistry) GetWriter(sessionID, stream string) *JSONLWriter {
	r.mu.RLock()
	if streams, ok := r.writers[sessionID]; ok {
		if writer, ok := streams[stream]; ok {
			r.mu.RUnlock()
			return writer
		}
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if streams, ok := r.writers[sessionID]; ok {
		if writer, ok := streams[stream]; ok {
			return writer
		}
	}

	if r.writers[sessionID] == nil {
		r.writers[sessionID] = make(map[string]*JSONLWriter)
	}

	writer := NewJSONLWriter(r.baseDir, stream, r.bufferSize, r.maxSizeMB, sessionID)
	r.writers[sessionID][stream] = writer

	slog.Info("journal writer created", "session", ShortID(sessionID), "stream", stream)
	return writer
}

// CloseSession flushes and closes every writer belonging to a session.
func (r *WriterRegistry) CloseSession(sessionID string) {
	r.mu.Lock()
	streams := r.writers[sessionID]
	delete(r.writers, sessionID)
	r.mu.Unlock()

	for stream, writer := range streams {
		if err := writer.Close(); err != nil {
			slog.Error("journal writer close failed",
				"session", ShortID(sessionID), "stream", stream, "error", err)
		}
	}
}

// Close closes all managed writers.
func (r *WriterRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for sessionID, streams := range r.writers {
		for stream, writer := range streams {
			if err := writer.Close(); err != nil {
				slog.Error("journal writer close failed",
					"session", ShortID(sessionID), "stream", stream, "error", err)
				lastErr = err
			}
		}
	}

	r.writers = make(map[string]map[string]*JSONLWriter)
	return lastErr
}
