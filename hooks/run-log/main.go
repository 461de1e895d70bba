// Package main is a run hook that appends one line per finished analysis run
// to a log file inside the hook directory.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Event is the run event sent by palmtrace on stdin.
type Event struct {
	Type            string          `json:"type"`
	RunID           string          `json:"run_id"`
	Video           string          `json:"video"`
	Status          string          `json:"status"`
	ProcessedFrames int             `json:"processed_frames"`
	OutputDir       string          `json:"output_dir"`
	Error           string          `json:"error,omitempty"`
	FinishedAt      time.Time       `json:"finished_at"`
	Config          json.RawMessage `json:"config"`
}

// Response is written to stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type config struct {
	File string `json:"file"`
}

func main() {
	var ev Event
	if err := json.NewDecoder(os.Stdin).Decode(&ev); err != nil {
		writeResponse(fmt.Errorf("failed to decode event: %w", err))
		return
	}

	cfg := config{File: "runs.log"}
	if len(ev.Config) > 0 {
		if err := json.Unmarshal(ev.Config, &cfg); err != nil {
			writeResponse(fmt.Errorf("invalid config: %w", err))
			return
		}
	}

	f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		writeResponse(err)
		return
	}
	defer f.Close()

	line := fmt.Sprintf("%s\t%s\t%s\t%s\t%d", ev.FinishedAt.Format(time.RFC3339), ev.RunID, ev.Video, ev.Status, ev.ProcessedFrames)
	if ev.Error != "" {
		line += "\t" + ev.Error
	}
	if _, err := fmt.Fprintln(f, line); err != nil {
		writeResponse(err)
		return
	}
	writeResponse(nil)
}

func writeResponse(err error) {
	resp := Response{Success: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
