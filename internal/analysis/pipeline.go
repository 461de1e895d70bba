package analysis

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/palmtrace/internal/capture"
	"github.com/ayusman/palmtrace/internal/detector"
	"github.com/ayusman/palmtrace/internal/recorder"
)

// FrameResult is the record of one processed frame.
type FrameResult struct {
	FrameNumber int                 `json:"FrameNumber"`
	Results     []detector.Instance `json:"Results"`
}

// Progress is a snapshot of a run. Fraction is index/total of the last
// processed frame while running and 1 once the run completed.
type Progress struct {
	RunID     string  `json:"run_id,omitempty"`
	Video     string  `json:"video,omitempty"`
	Frame     int     `json:"frame"`
	Processed int     `json:"processed"`
	Total     int     `json:"total"`
	Fraction  float64 `json:"fraction"`
	Done      bool    `json:"done"`
	Error     string  `json:"error,omitempty"`
}

// Pipeline decodes, detects, records and encodes frames strictly in order.
type Pipeline struct {
	Source   capture.Source
	Encoder  recorder.Encoder
	Detector FrameDetector

	// OnProgress, if set, is called after every processed frame.
	OnProgress func(Progress)
	// OnFrame, if set, receives each record and annotated frame after it
	// was encoded. The frame is only valid during the call.
	OnFrame func(result FrameResult, annotated gocv.Mat, elapsed time.Duration)
}

// RunPipeline processes src with det into enc and returns one record per
// decoded frame.
func RunPipeline(src capture.Source, enc recorder.Encoder, det FrameDetector, observe func(Progress)) ([]FrameResult, error) {
	p := &Pipeline{Source: src, Encoder: enc, Detector: det, OnProgress: observe}
	return p.Run()
}

// Run loops over the frame count reported by the source. A frame that cannot
// be decoded ends the loop without error. The returned records always match
// the frames accepted by the encoder, also when an error stops the loop.
// Run neither finalizes the encoder nor closes the source.
func (p *Pipeline) Run() ([]FrameResult, error) {
	total := p.Source.Info().FrameCount
	results := []FrameResult{}

	frame := gocv.NewMat()
	defer frame.Close()
	rgb := gocv.NewMat()
	defer rgb.Close()

	for i := 0; i < total; i++ {
		if !p.Source.Read(&frame) {
			break
		}
		start := time.Now()

		gocv.CvtColor(frame, &rgb, gocv.ColorBGRToRGB)

		instances, annotated, err := p.Detector.Detect(rgb)
		if err != nil {
			return results, fmt.Errorf("detect frame %d: %w", i, err)
		}
		if instances == nil {
			instances = []detector.Instance{}
		}
		record := FrameResult{FrameNumber: i, Results: instances}
		results = append(results, record)

		if err := p.Encoder.Write(annotated); err != nil {
			annotated.Close()
			// The frame was never encoded, so it is not recorded either.
			return results[:len(results)-1], fmt.Errorf("encode frame %d: %w", i, err)
		}

		if p.OnFrame != nil {
			p.OnFrame(record, annotated, time.Since(start))
		}
		annotated.Close()

		if p.OnProgress != nil {
			p.OnProgress(Progress{
				Frame:     i,
				Processed: i + 1,
				Total:     total,
				Fraction:  float64(i) / float64(total),
			})
		}
	}

	return results, nil
}
