package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/palmtrace/internal/store"
)

// newTestStore creates a new Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "palmtrace-api-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() {
		os.RemoveAll(tmpDir)
	})

	dbPath := filepath.Join(tmpDir, "test.db")
	s, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func multipartUpload(t *testing.T, field, name string, content []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, name)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	fw.Write(content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/videos", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp.Error
}

func TestSafeName(t *testing.T) {
	tests := map[string]bool{
		"clip.mp4":    true,
		"my clip.mp4": true,
		"":            false,
		".":           false,
		"..":          false,
		"a/b.mp4":     false,
		`a\b.mp4`:     false,
	}
	for name, want := range tests {
		if got := safeName(name); got != want {
			t.Errorf("safeName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestSplitPath(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/results/clip/plots/Right/THUMB_TIP/density.png", nil)
	parts := splitPath(req, "/api/results")
	if len(parts) != 5 || parts[0] != "clip" || parts[4] != "density.png" {
		t.Errorf("unexpected parts %v", parts)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/results/", nil)
	if parts := splitPath(req, "/api/results"); parts != nil {
		t.Errorf("expected no parts, got %v", parts)
	}
}

var errTest = errors.New("test error")
