package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// JSONLWriter appends JSON lines to date-organized files, one file per
// session and stream. Writes are queued and flushed by a background
// goroutine so journal I/O never blocks session operations.
type JSONLWriter struct {
	baseDir     string
	stream      string // e.g. "events" or "wire"
	maxSizeMB   int
	sessionID   string // filename base; a timestamp is used when empty
	writeCh     chan any
	done        chan struct{}
	wg          sync.WaitGroup
	currentDate string
	logger      *lumberjack.Logger
	mu          sync.Mutex
}

// NewJSONLWriter creates an async writer for one session's stream.
func NewJSONLWriter(baseDir, stream string, bufferSize, maxSizeMB int, sessionID string) *JSONLWriter {
	w := &JSONLWriter{
		baseDir:   baseDir,
		stream:    stream,
		maxSizeMB: maxSizeMB,
		sessionID: sessionID,
		writeCh:   make(chan any, bufferSize),
		done:      make(chan struct{}),
	}

	w.wg.Add(1)
	go w.writeLoop()

	return w
}

// Write queues a record. When the buffer is full the record is dropped
// rather than blocking the caller.
func (w *JSONLWriter) Write(record any) error {
	select {
	case w.writeCh <- record:
		return nil
	case <-w.done:
		return fmt.Errorf("writer is closed")
	default:
		slog.Warn("journal write buffer full, dropping record", "stream", w.stream)
		return fmt.Errorf("buffer full")
	}
}

// Close shuts down the writer and flushes pending records.
func (w *JSONLWriter) Close() error {
	close(w.done)

	timeout := time.After(5 * time.Second)
	for {
		select {
		case record := <-w.writeCh:
			w.writeRecord(record)
		case <-timeout:
			slog.Warn("journal close timeout, some records may be lost", "stream", w.stream)
			goto done
		default:
			goto done
		}
	}

done:
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.logger != nil {
		return w.logger.Close()
	}
	return nil
}

func (w *JSONLWriter) writeLoop() {
	defer w.wg.Done()

	for {
		select {
		case record := <-w.writeCh:
			w.writeRecord(record)
		case <-w.done:
			return
		}
	}
}

func (w *JSONLWriter) writeRecord(record any) {
	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("journal marshal failed", "stream", w.stream, "error", err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	currentDate := time.Now().UTC().Format("2006-01-02")
	if w.logger == nil || currentDate != w.currentDate {
		w.rotateForDate(currentDate)
	}
	if w.logger == nil {
		return
	}

	if _, err := w.logger.Write(append(data, '\n')); err != nil {
		slog.Error("journal write failed", "stream", w.stream, "error", err)
	}
}

func (w *JSONLWriter) rotateForDate(date string) {
	if w.logger != nil {
		w.logger.Close()
		w.logger = nil
	}

	dir := filepath.Join(w.baseDir, date, w.stream)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Error("journal mkdir failed", "dir", dir, "error", err)
		return
	}

	var filename string
	if w.sessionID != "" {
		filename = filepath.Join(dir, ShortID(w.sessionID)+".jsonl")
	} else {
		filename = filepath.Join(dir, fmt.Sprintf("%d.jsonl", time.Now().Unix()))
	}

	w.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    w.maxSizeMB,
		MaxBackups: 100,
		MaxAge:     30,
		Compress:   false,
		LocalTime:  false,
	}

	w.currentDate = date
	slog.Info("journal file opened", "file", filename, "stream", w.stream)
}
