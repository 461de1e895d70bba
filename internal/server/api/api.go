// Package api provides HTTP API handlers for the PalmTrace hand analysis
// service.
package api

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// splitPath trims prefix from the request path and returns the remaining
// non-empty segments.
func splitPath(r *http.Request, prefix string) []string {
	path := strings.TrimPrefix(r.URL.Path, prefix)
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// safeName reports whether name can be joined to a directory without
// leaving it.
func safeName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
