package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ayusman/palmtrace/internal/analysis"
	"github.com/ayusman/palmtrace/internal/capture"
	"github.com/ayusman/palmtrace/internal/logger"
	"github.com/ayusman/palmtrace/internal/review"
)

// ProbeFunc reads the stream properties of a video file.
type ProbeFunc func(path string) (capture.Info, error)

// ResultsHandler serves finished run outputs: the annotated video, a zip
// archive, statistics and plots.
type ResultsHandler struct {
	resultsDir string
	probe      ProbeFunc
	log        *logger.Logger
}

// NewResultsHandler creates a ResultsHandler over resultsDir. A nil probe
// defaults to capture.Probe.
func NewResultsHandler(resultsDir string, probe ProbeFunc, log *logger.Logger) *ResultsHandler {
	if probe == nil {
		probe = capture.Probe
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &ResultsHandler{resultsDir: resultsDir, probe: probe, log: log}
}

// ServeHTTP routes:
//
//	GET /api/results
//	GET /api/results/{name}/video
//	GET /api/results/{name}/archive
//	GET /api/results/{name}/summary?lang=en|ja
//	GET /api/results/{name}/plots/{hand}/{finger}/{trajectory|density}.png
func (h *ResultsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := splitPath(r, "/api/results")
	if len(parts) == 0 {
		h.list(w, r)
		return
	}

	name := parts[0]
	dir, ok := h.resultDir(name)
	if !ok {
		writeError(w, http.StatusNotFound, "Result not found")
		return
	}

	switch {
	case len(parts) == 2 && parts[1] == "video":
		serveVideo(w, r, filepath.Join(dir, analysis.ResultVideo))
	case len(parts) == 2 && parts[1] == "archive":
		h.archive(w, r, name, dir)
	case len(parts) == 2 && parts[1] == "summary":
		h.summary(w, r, name, dir)
	case len(parts) == 5 && parts[1] == "plots":
		h.plot(w, r, dir, parts[2], parts[3], parts[4])
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

type resultResponse struct {
	Name      string `json:"name"`
	Complete  bool   `json:"complete"`
	UpdatedAt string `json:"updated_at"`
}

type listResultsResponse struct {
	Results []resultResponse `json:"results"`
}

// list handles GET /api/results. A result is complete once its result file
// exists; failed runs leave incomplete directories behind.
func (h *ResultsHandler) list(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(h.resultsDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		h.log.Error("failed to list results", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list results")
		return
	}

	response := listResultsResponse{Results: []resultResponse{}}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		res := resultResponse{Name: e.Name(), UpdatedAt: formatTime(info.ModTime())}
		if fi, err := os.Stat(filepath.Join(h.resultsDir, e.Name(), analysis.ResultFile)); err == nil {
			res.Complete = true
			res.UpdatedAt = formatTime(fi.ModTime())
		}
		response.Results = append(response.Results, res)
	}
	sort.Slice(response.Results, func(i, j int) bool {
		return response.Results[i].Name < response.Results[j].Name
	})

	writeJSON(w, http.StatusOK, response)
}

// archive handles GET /api/results/{name}/archive.
func (h *ResultsHandler) archive(w http.ResponseWriter, r *http.Request, name, dir string) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`.zip"`)
	if err := review.Archive(dir, w); err != nil {
		// Headers are already sent; the client sees a truncated archive.
		h.log.Error("failed to archive result", "result", name, "error", err)
	}
}

// summary handles GET /api/results/{name}/summary.
func (h *ResultsHandler) summary(w http.ResponseWriter, r *http.Request, name, dir string) {
	lang, err := review.ParseLang(r.URL.Query().Get("lang"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, info, ok := h.load(w, name, dir)
	if !ok {
		return
	}

	s, err := review.Summarize(name, records, info.Width, info.Height, lang)
	if err != nil {
		h.log.Error("failed to summarize result", "result", name, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to summarize result")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// plot handles GET /api/results/{name}/plots/{hand}/{finger}/{kind}.png.
func (h *ResultsHandler) plot(w http.ResponseWriter, r *http.Request, dir, hand, finger, file string) {
	kind, ok := strings.CutSuffix(file, ".png")
	if !ok || !review.ValidHand(hand) || !review.ValidFinger(finger) {
		writeError(w, http.StatusNotFound, "Unknown plot")
		return
	}

	var render func(review.Series, int, int) ([]byte, error)
	switch kind {
	case "trajectory":
		render = review.RenderTrajectory
	case "density":
		render = review.RenderDensity
	default:
		writeError(w, http.StatusNotFound, "Unknown plot")
		return
	}

	name := filepath.Base(dir)
	records, info, ok := h.load(w, name, dir)
	if !ok {
		return
	}

	series := review.Trajectories(records).Get(hand, finger)
	data, err := render(series, info.Width, info.Height)
	if err != nil {
		if errors.Is(err, review.ErrDegenerate) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.log.Error("failed to render plot", "result", name, "plot", kind, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to render plot")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// load reads the records and video shape of a result. It writes the error
// response itself and reports whether the caller should continue.
func (h *ResultsHandler) load(w http.ResponseWriter, name, dir string) ([]analysis.FrameResult, capture.Info, bool) {
	records, err := review.Load(filepath.Join(dir, analysis.ResultFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "Result is not complete")
			return nil, capture.Info{}, false
		}
		h.log.Error("failed to load result", "result", name, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load result")
		return nil, capture.Info{}, false
	}

	info, err := h.probe(filepath.Join(dir, analysis.ResultVideo))
	if err != nil || info.Width <= 0 || info.Height <= 0 {
		h.log.Warn("failed to read result video", "result", name, "error", err)
		writeError(w, http.StatusUnprocessableEntity, "Result video cannot be read")
		return nil, capture.Info{}, false
	}
	return records, info, true
}

func (h *ResultsHandler) resultDir(name string) (string, bool) {
	if !safeName(name) || strings.HasPrefix(name, ".") {
		return "", false
	}
	dir := filepath.Join(h.resultsDir, name)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return dir, true
}
