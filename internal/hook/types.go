// Package hook runs user executables when an analysis run finishes.
//
// Each hook lives in its own directory under the hooks directory with a
// hook.json manifest. The hook receives one Event as JSON on stdin and
// answers with one Response as JSON on stdout.
package hook

import (
	"encoding/json"
	"time"
)

// Event types.
const (
	RunCompleted = "run.completed"
	RunFailed    = "run.failed"
)

// Manifest describes a hook's metadata and the events it handles.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Events      []string        `json:"events"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// Event is sent to a hook on stdin.
type Event struct {
	Type            string          `json:"type"`
	RunID           string          `json:"run_id"`
	Video           string          `json:"video"`
	Status          string          `json:"status"`
	ProcessedFrames int             `json:"processed_frames"`
	OutputDir       string          `json:"output_dir"`
	Error           string          `json:"error,omitempty"`
	FinishedAt      time.Time       `json:"finished_at"`
	Config          json.RawMessage `json:"config,omitempty"`
}

// Response is read from a hook's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Hook is a discovered hook with its manifest and location.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Handles reports whether the hook subscribed to eventType. A hook without
// events handles every event.
func (h *Hook) Handles(eventType string) bool {
	if len(h.Manifest.Events) == 0 {
		return true
	}
	for _, e := range h.Manifest.Events {
		if e == eventType {
			return true
		}
	}
	return false
}
