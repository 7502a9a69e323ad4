//go:build integration

package integration

import (
	"io"
	"net/http"
	"strings"
	"testing"
)

type screenshotMeta struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	TabID     string `json:"tab_id"`
	Format    string `json:"format"`
	SizeBytes int    `json:"size_bytes"`
}

func TestScreenshotLifecycle(t *testing.T) {
	resp := env.POST(t, env.sessionPath("screenshot"), nil)
	requireStatus(t, resp, http.StatusCreated)
	meta := decodeJSON[screenshotMeta](t, resp)

	if meta.ID == "" {
		t.Fatal("screenshot meta has empty id")
	}
	if meta.SessionID != env.SessionID {
		t.Fatalf("screenshot session = %q, want %q", meta.SessionID, env.SessionID)
	}
	if meta.Format != "jpeg" {
		t.Fatalf("screenshot format = %q, want %q", meta.Format, "jpeg")
	}
	if meta.SizeBytes == 0 {
		t.Fatal("screenshot size is zero")
	}

	resp = env.GET(t, env.sessionPath("screenshots"))
	requireStatus(t, resp, http.StatusOK)
	list := decodeJSON[struct {
		Screenshots []screenshotMeta `json:"screenshots"`
	}](t, resp)
	found := false
	for _, m := range list.Screenshots {
		if m.ID == meta.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("screenshot %s missing from session list of %d", meta.ID, len(list.Screenshots))
	}

	resp = env.GET(t, "/api/v1/screenshots/"+meta.ID+"/image")
	requireStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		t.Fatalf("image content type = %q, want image/*", ct)
	}
	img, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read image body: %v", err)
	}
	if len(img) != meta.SizeBytes {
		t.Fatalf("image body = %d bytes, meta says %d", len(img), meta.SizeBytes)
	}

	resp = env.DELETE(t, "/api/v1/screenshots/"+meta.ID)
	requireStatus(t, resp, http.StatusOK)
	deleted := decodeJSON[struct {
		Status string `json:"status"`
	}](t, resp)
	if deleted.Status != "deleted" {
		t.Fatalf("delete status = %q, want %q", deleted.Status, "deleted")
	}

	resp = env.GET(t, "/api/v1/screenshots/"+meta.ID+"/image")
	defer resp.Body.Close()
	requireStatus(t, resp, http.StatusNotFound)
}

func TestScreenshotForUnknownSessionReturns404(t *testing.T) {
	resp := env.POST(t, "/api/v1/sessions/no-such-session/screenshot", nil)
	defer resp.Body.Close()
	requireStatus(t, resp, http.StatusNotFound)
}
