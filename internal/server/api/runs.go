package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ayusman/palmtrace/internal/analysis"
	"github.com/ayusman/palmtrace/internal/logger"
	"github.com/ayusman/palmtrace/internal/store"
)

// BusyMessage is returned to a caller whose run was rejected because
// another run holds the detector.
const BusyMessage = "another user is analyzing, try again later"

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
)

// Analyzer starts runs and reports their progress.
type Analyzer interface {
	Start(video string) (*analysis.Run, error)
	Progress(runID string) (analysis.Progress, bool)
}

// RunsHandler handles analysis runs.
type RunsHandler struct {
	analyzer Analyzer
	store    *store.Store
	log      *logger.Logger
}

// NewRunsHandler creates a RunsHandler.
func NewRunsHandler(a Analyzer, s *store.Store, log *logger.Logger) *RunsHandler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &RunsHandler{analyzer: a, store: s, log: log}
}

// ServeHTTP routes /api/runs and /api/runs/{id}.
func (h *RunsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r, "/api/runs")

	switch len(parts) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case 1:
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.get(w, r, parts[0])
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

type createRunRequest struct {
	Video string `json:"video"`
}

type runResponse struct {
	ID              string             `json:"id"`
	Video           string             `json:"video"`
	Status          string             `json:"status"`
	TotalFrames     int                `json:"total_frames"`
	ProcessedFrames int                `json:"processed_frames"`
	Error           string             `json:"error,omitempty"`
	StartedAt       string             `json:"started_at"`
	FinishedAt      string             `json:"finished_at,omitempty"`
	Progress        *analysis.Progress `json:"progress,omitempty"`
}

type listRunsResponse struct {
	Runs []runResponse `json:"runs"`
}

func toRunResponse(run *store.Run) runResponse {
	resp := runResponse{
		ID:              run.ID,
		Video:           run.VideoName,
		Status:          string(run.Status),
		TotalFrames:     run.TotalFrames,
		ProcessedFrames: run.ProcessedFrames,
		Error:           run.Error,
		StartedAt:       formatTime(run.StartedAt),
	}
	if run.FinishedAt != nil {
		resp.FinishedAt = formatTime(*run.FinishedAt)
	}
	return resp
}

// create handles POST /api/runs. The run continues in the background; its
// progress is available from GET /api/runs/{id} and the progress stream.
func (h *RunsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Video == "" {
		writeError(w, http.StatusBadRequest, "Video is required")
		return
	}

	run, err := h.analyzer.Start(req.Video)
	switch {
	case errors.Is(err, analysis.ErrInvalidInput):
		writeError(w, http.StatusUnprocessableEntity,
			"The video could not be read. The format may be unsupported, the extension wrong or the file damaged.")
		return
	case errors.Is(err, analysis.ErrResourceBusy):
		writeError(w, http.StatusConflict, BusyMessage)
		return
	case err != nil:
		h.log.Error("failed to start run", "video", req.Video, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to start analysis")
		return
	}

	resp := runResponse{
		ID:          run.ID,
		Video:       run.Video,
		Status:      string(store.RunRunning),
		TotalFrames: run.Info.FrameCount,
		StartedAt:   formatTime(run.StartedAt),
	}
	if p, ok := h.analyzer.Progress(run.ID); ok {
		resp.Progress = &p
	}
	w.Header().Set("Location", "/api/runs/"+run.ID)
	writeJSON(w, http.StatusAccepted, resp)
}

// list handles GET /api/runs?limit=N, newest first.
func (h *RunsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := h.store.Runs().List(limit)
	if err != nil {
		h.log.Error("failed to list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	response := listRunsResponse{Runs: make([]runResponse, 0, len(runs))}
	for _, run := range runs {
		response.Runs = append(response.Runs, toRunResponse(run))
	}
	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/runs/{id}. Runs still in memory carry their latest
// progress snapshot.
func (h *RunsHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	run, err := h.store.Runs().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		h.log.Error("failed to get run", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	resp := toRunResponse(run)
	if p, ok := h.analyzer.Progress(id); ok {
		resp.Progress = &p
		if !p.Done && run.Status == store.RunRunning {
			resp.ProcessedFrames = p.Processed
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
