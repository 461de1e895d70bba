package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/palmtrace/internal/analysis"
	"github.com/ayusman/palmtrace/internal/logger"
)

const progressWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// ProgressSource streams the progress of a run.
type ProgressSource interface {
	Subscribe(runID string) (<-chan analysis.Progress, func(), error)
}

// ProgressHandler streams run progress over a WebSocket at
// /api/runs/{id}/progress. Each message is one JSON Progress snapshot; the
// server closes the connection after the final snapshot.
type ProgressHandler struct {
	source ProgressSource
	log    *logger.Logger
}

// NewProgressHandler creates a ProgressHandler.
func NewProgressHandler(source ProgressSource, log *logger.Logger) *ProgressHandler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &ProgressHandler{source: source, log: log}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *ProgressHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := progressRunID(r.URL.Path)
	if !ok {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	ch, cancel, err := h.source.Subscribe(id)
	if err != nil {
		if errors.Is(err, analysis.ErrRunNotFound) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to subscribe", http.StatusInternalServerError)
		return
	}
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// The client only sends close frames; reading detects disconnects.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case p, ok := <-ch:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(progressWriteTimeout))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(progressWriteTimeout))
			if err := conn.WriteJSON(p); err != nil {
				h.log.Debug("progress client went away", "run_id", id, "error", err)
				return
			}
		}
	}
}

// progressRunID extracts {id} from /api/runs/{id}/progress.
func progressRunID(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, "/api/runs/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/progress")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
