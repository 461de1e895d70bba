package analysis

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Artifact names inside a run output directory.
const (
	ResultVideo = "result.mp4"
	ResultFile  = "result.json"
)

// OutputName returns the per-run directory name for a video: the file name
// without its last extension.
func OutputName(video string) string {
	base := filepath.Base(video)
	if i := strings.LastIndex(base, "."); i > 0 {
		return base[:i]
	}
	return base
}

// OutputDir returns the output directory of a video under resultsDir.
func OutputDir(resultsDir, video string) string {
	return filepath.Join(resultsDir, OutputName(video))
}

// WriteResults writes the records to path as one JSON array. The file is
// written to a temporary name and renamed, so readers never see a partial
// result file.
func WriteResults(path string, results []FrameResult) error {
	if results == nil {
		results = []FrameResult{}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".result-*.json")
	if err != nil {
		return fmt.Errorf("create result file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(results); err != nil {
		tmp.Close()
		return fmt.Errorf("encode results: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync result file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close result file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("chmod result file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename result file: %w", err)
	}
	return nil
}

// ReadResults reads a result file written by WriteResults.
func ReadResults(path string) ([]FrameResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var results []FrameResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return results, nil
}
