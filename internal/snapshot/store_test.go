package snapshot

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const (
	testID      = "123e4567-e89b-12d3-a456-426614174000"
	otherTestID = "223e4567-e89b-12d3-a456-426614174000"
)

func testMeta(id, sessionID string) ScreenshotMeta {
	return ScreenshotMeta{
		ID:        id,
		SessionID: sessionID,
		TabID:     "tab-b",
		URL:       "https://example.test/page",
		Title:     "Example",
		Format:    "jpeg",
		SizeBytes: 4,
		CreatedAt: time.Now().UTC(),
	}
}

func TestSaveGetReadImageRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}

	meta := testMeta(testID, "sess-1")
	if err := store.Save(meta, []byte("abcd")); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := store.Get(testID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.SessionID != "sess-1" || got.TabID != "tab-b" || got.Format != "jpeg" {
		t.Fatalf("Get() = %+v; want saved meta", got)
	}

	img, format, err := store.ReadImage(testID)
	if err != nil {
		t.Fatalf("ReadImage() error: %v", err)
	}
	if string(img) != "abcd" || format != "jpeg" {
		t.Fatalf("ReadImage() = (%q, %q); want (abcd, jpeg)", img, format)
	}
}

func TestSaveRejectsMalformedID(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	meta := testMeta("../../etc/passwd", "sess-1")
	if err := store.Save(meta, []byte("x")); err == nil {
		t.Fatal("Save() with traversal id returned nil error")
	}
}

func TestListFiltersBySession(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	if err := store.Save(testMeta(testID, "sess-1"), []byte("a")); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := store.Save(testMeta(otherTestID, "sess-2"), []byte("b")); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	metas, err := store.List("sess-1")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(metas) != 1 || metas[0].ID != testID {
		t.Fatalf("List(sess-1) = %+v; want only %s", metas, testID)
	}

	all, err := store.List("")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("List(\"\") returned %d entries; want 2", len(all))
	}
}

func TestDeleteSessionPurgesOnlyThatSession(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	if err := store.Save(testMeta(testID, "sess-1"), []byte("a")); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := store.Save(testMeta(otherTestID, "sess-2"), []byte("b")); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	if err := store.DeleteSession("sess-1"); err != nil {
		t.Fatalf("DeleteSession() error: %v", err)
	}
	if _, err := store.Get(testID); err == nil {
		t.Fatal("Get() after DeleteSession returned nil error")
	}
	if _, err := store.Get(otherTestID); err != nil {
		t.Fatalf("other session's screenshot lost: %v", err)
	}
}

func TestDeleteLogsImageCleanupFailureWhenImageMissing(t *testing.T) {
	dir := t.TempDir()
	store := &Store{dir: dir}
	jsonPath := filepath.Join(dir, testID+".json")

	meta := ScreenshotMeta{ID: testID, Format: "png"}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("json.Marshal() failed: %v", err)
	}
	if err := os.WriteFile(jsonPath, metaBytes, 0o644); err != nil {
		t.Fatalf("os.WriteFile() failed: %v", err)
	}

	var buf bytes.Buffer
	oldLogger := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() {
		slog.SetDefault(oldLogger)
	})

	if err := store.Delete(testID); err != nil {
		t.Fatalf("Delete() = %v; want nil", err)
	}

	if strings.Contains(buf.String(), "cleanup failed") {
		t.Fatalf("missing image logged as cleanup failure: %q", buf.String())
	}
}
