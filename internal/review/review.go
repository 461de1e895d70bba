// Package review turns the records of a finished run into fingertip series,
// summary statistics, plots and a downloadable archive.
package review

import (
	"fmt"

	"github.com/ayusman/palmtrace/internal/analysis"
	"github.com/ayusman/palmtrace/internal/detector"
)

// Hand labels as written by the detector.
const (
	Right = "Right"
	Left  = "Left"
)

// Hands lists the hands in display order.
var Hands = []string{Right, Left}

// fingertips are the tracked landmark indices in display order.
var fingertips = []int{
	detector.ThumbTip,
	detector.IndexTip,
	detector.MiddleTip,
	detector.RingTip,
	detector.PinkyTip,
}

// Fingers lists the tracked fingertip landmark names in display order.
var Fingers = fingertipNames()

func fingertipNames() []string {
	names := make([]string, len(fingertips))
	for i, idx := range fingertips {
		names[i] = detector.LandmarkNames[idx]
	}
	return names
}

// Series is a sequence of [x, y] pixel positions in frame order.
type Series [][2]float64

// Tracks holds one series per hand and fingertip.
type Tracks map[string]map[string]Series

// Get returns the series of a fingertip, or nil for unknown names.
func (t Tracks) Get(hand, finger string) Series {
	return t[hand][finger]
}

// Load reads the result file of a run.
func Load(path string) ([]analysis.FrameResult, error) {
	records, err := analysis.ReadResults(path)
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	return records, nil
}

// Trajectories collects the fingertip positions of every record. Every hand
// and finger is present in the result, possibly with an empty series.
// Instances with an unknown hand label are skipped.
func Trajectories(records []analysis.FrameResult) Tracks {
	t := make(Tracks, len(Hands))
	for _, hand := range Hands {
		t[hand] = make(map[string]Series, len(Fingers))
		for _, finger := range Fingers {
			t[hand][finger] = Series{}
		}
	}

	for _, rec := range records {
		for _, inst := range rec.Results {
			fingers, ok := t[inst.CategoryName]
			if !ok {
				continue
			}
			for i, idx := range fingertips {
				finger := Fingers[i]
				fingers[finger] = append(fingers[finger], inst.Coordinates[idx])
			}
		}
	}
	return t
}

// ValidHand reports whether hand is one of Hands.
func ValidHand(hand string) bool {
	for _, h := range Hands {
		if h == hand {
			return true
		}
	}
	return false
}

// ValidFinger reports whether finger is one of Fingers.
func ValidFinger(finger string) bool {
	for _, f := range Fingers {
		if f == finger {
			return true
		}
	}
	return false
}
