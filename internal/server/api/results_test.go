package api

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/palmtrace/internal/analysis"
	"github.com/ayusman/palmtrace/internal/capture"
	"github.com/ayusman/palmtrace/internal/detector"
)

func fixedProbe(w, h int) ProbeFunc {
	return func(path string) (capture.Info, error) {
		return capture.Info{FrameCount: 3, Width: w, Height: h, FPS: 30}, nil
	}
}

// newResultsDir creates a results directory with one complete result
// "dance" and one incomplete result "broken".
func newResultsDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	dance := filepath.Join(dir, "dance")
	broken := filepath.Join(dir, "broken")
	for _, d := range []string{dance, broken} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("failed to create %s: %v", d, err)
		}
	}

	var records []analysis.FrameResult
	for i := 0; i < 3; i++ {
		hand := detector.OpenPalmLandmarks()
		// Move the hand a little each frame so the density has spread.
		for j := range hand.Points {
			hand.Points[j].X += float64(i) * 0.02
			hand.Points[j].Y -= float64(i*i) * 0.01
		}
		records = append(records, analysis.FrameResult{
			FrameNumber: i,
			Results:     []detector.Instance{hand.Instance(640, 480)},
		})
	}
	if err := analysis.WriteResults(filepath.Join(dance, analysis.ResultFile), records); err != nil {
		t.Fatalf("failed to write results: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dance, analysis.ResultVideo), []byte("0123456789"), 0644); err != nil {
		t.Fatalf("failed to write video: %v", err)
	}
	if err := os.WriteFile(filepath.Join(broken, analysis.ResultVideo), []byte("partial"), 0644); err != nil {
		t.Fatalf("failed to write video: %v", err)
	}
	return dir
}

func get(handler http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestResultsHandler_List(t *testing.T) {
	handler := NewResultsHandler(newResultsDir(t), fixedProbe(640, 480), nil)

	rec := get(handler, "/api/results")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var response listResultsResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(response.Results))
	}
	if response.Results[0].Name != "broken" || response.Results[0].Complete {
		t.Errorf("unexpected first result %+v", response.Results[0])
	}
	if response.Results[1].Name != "dance" || !response.Results[1].Complete {
		t.Errorf("unexpected second result %+v", response.Results[1])
	}
}

func TestResultsHandler_ListMissingDir(t *testing.T) {
	handler := NewResultsHandler(filepath.Join(t.TempDir(), "nope"), nil, nil)

	rec := get(handler, "/api/results")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if rec.Body.String() != "{\"results\":[]}\n" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestResultsHandler_Video(t *testing.T) {
	handler := NewResultsHandler(newResultsDir(t), fixedProbe(640, 480), nil)

	rec := get(handler, "/api/results/dance/video")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if rec.Body.String() != "0123456789" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestResultsHandler_Archive(t *testing.T) {
	handler := NewResultsHandler(newResultsDir(t), fixedProbe(640, 480), nil)

	rec := get(handler, "/api/results/dance/archive")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("expected Content-Type application/zip, got %s", ct)
	}

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("failed to read archive: %v", err)
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	if len(names) != 2 || !names[analysis.ResultFile] || !names[analysis.ResultVideo] {
		t.Errorf("unexpected archive entries %v", names)
	}
}

func TestResultsHandler_Summary(t *testing.T) {
	handler := NewResultsHandler(newResultsDir(t), fixedProbe(640, 480), nil)

	rec := get(handler, "/api/results/dance/summary")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var summary struct {
		Lang   string `json:"lang"`
		Frames int    `json:"frames"`
		Hands  []struct {
			Hand    string `json:"hand"`
			Label   string `json:"label"`
			Fingers []struct {
				Finger string `json:"finger"`
				Stats  struct {
					Count int `json:"count"`
				} `json:"stats"`
			} `json:"fingers"`
		} `json:"hands"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if summary.Lang != "en" || summary.Frames != 3 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if summary.Hands[0].Label != "Right hand" || summary.Hands[0].Fingers[0].Stats.Count != 3 {
		t.Errorf("unexpected right hand %+v", summary.Hands[0])
	}
	if summary.Hands[1].Fingers[0].Stats.Count != 0 {
		t.Errorf("expected no left hand samples, got %+v", summary.Hands[1])
	}

	rec = get(handler, "/api/results/dance/summary?lang=xx")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d for unknown language, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestResultsHandler_SummaryErrors(t *testing.T) {
	dir := newResultsDir(t)

	t.Run("incomplete result", func(t *testing.T) {
		handler := NewResultsHandler(dir, fixedProbe(640, 480), nil)
		rec := get(handler, "/api/results/broken/summary")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})

	t.Run("unreadable video", func(t *testing.T) {
		probe := func(path string) (capture.Info, error) {
			return capture.Info{}, errors.New("cannot open")
		}
		handler := NewResultsHandler(dir, probe, nil)
		rec := get(handler, "/api/results/dance/summary")
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status %d, got %d", http.StatusUnprocessableEntity, rec.Code)
		}
	})
}

func TestResultsHandler_Plots(t *testing.T) {
	handler := NewResultsHandler(newResultsDir(t), fixedProbe(640, 480), nil)

	for _, kind := range []string{"trajectory", "density"} {
		t.Run(kind, func(t *testing.T) {
			rec := get(handler, "/api/results/dance/plots/Right/INDEX_FINGER_TIP/"+kind+".png")

			if rec.Code != http.StatusOK {
				t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
			}
			if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
				t.Errorf("expected Content-Type image/png, got %s", ct)
			}
			if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG\r\n\x1a\n")) {
				t.Error("expected PNG signature")
			}
		})
	}

	t.Run("density without samples", func(t *testing.T) {
		rec := get(handler, "/api/results/dance/plots/Left/INDEX_FINGER_TIP/density.png")
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status %d, got %d", http.StatusUnprocessableEntity, rec.Code)
		}
	})

	for _, path := range []string{
		"/api/results/dance/plots/Middle/INDEX_FINGER_TIP/density.png",
		"/api/results/dance/plots/Right/WRIST/density.png",
		"/api/results/dance/plots/Right/INDEX_FINGER_TIP/histogram.png",
		"/api/results/dance/plots/Right/INDEX_FINGER_TIP/density.jpg",
	} {
		rec := get(handler, path)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

func TestResultsHandler_NotFound(t *testing.T) {
	handler := NewResultsHandler(newResultsDir(t), fixedProbe(640, 480), nil)

	for _, path := range []string{
		"/api/results/missing/video",
		"/api/results/../dance/video",
		"/api/results/dance/unknown",
		"/api/results/dance",
	} {
		rec := get(handler, path)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/results", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}
