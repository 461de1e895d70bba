package review

import (
	"fmt"

	"github.com/ayusman/palmtrace/internal/analysis"
)

// FingerSummary is the statistics of one fingertip series.
type FingerSummary struct {
	Finger string `json:"finger"`
	Label  string `json:"label"`
	Stats  Stats  `json:"stats"`
}

// HandSummary groups the fingertips of one hand.
type HandSummary struct {
	Hand    string          `json:"hand"`
	Label   string          `json:"label"`
	Fingers []FingerSummary `json:"fingers"`
}

// Summary describes a run for the review page.
type Summary struct {
	Video  string        `json:"video"`
	Lang   string        `json:"lang"`
	Frames int           `json:"frames"`
	Width  int           `json:"width"`
	Height int           `json:"height"`
	Aspect [2]int        `json:"aspect"`
	XLabel string        `json:"x_label"`
	YLabel string        `json:"y_label"`
	Hands  []HandSummary `json:"hands"`
}

// Summarize builds the localized statistics of a run. width and height are
// the shape of the result video.
func Summarize(video string, records []analysis.FrameResult, width, height int, lang string) (*Summary, error) {
	lang, err := ParseLang(lang)
	if err != nil {
		return nil, err
	}
	rw, rh, err := AspectRatio(width, height)
	if err != nil {
		return nil, fmt.Errorf("summarize %s: %w", video, err)
	}

	tracks := Trajectories(records)
	s := &Summary{
		Video:  video,
		Lang:   lang,
		Frames: len(records),
		Width:  width,
		Height: height,
		Aspect: [2]int{rw, rh},
		XLabel: Label(lang, "x"),
		YLabel: Label(lang, "y"),
		Hands:  make([]HandSummary, 0, len(Hands)),
	}
	for _, hand := range Hands {
		hs := HandSummary{Hand: hand, Label: Label(lang, hand)}
		for _, finger := range Fingers {
			hs.Fingers = append(hs.Fingers, FingerSummary{
				Finger: finger,
				Label:  Label(lang, finger),
				Stats:  Describe(tracks.Get(hand, finger)),
			})
		}
		s.Hands = append(s.Hands, hs)
	}
	return s, nil
}

// AspectRatio reduces width:height by their greatest common divisor.
func AspectRatio(width, height int) (int, int, error) {
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	g := gcd(width, height)
	return width / g, height / g, nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
