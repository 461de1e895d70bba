package detector

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"gocv.io/x/gocv"
)

// RemoteConfig configures a RemoteDetector.
type RemoteConfig struct {
	URL      string
	Timeout  time.Duration
	Retries  int
	MaxHands int
}

// RemoteDetector implements Detector against an HTTP landmark service.
// Each frame is POSTed as a JPEG body to <URL>/detect and answered with the
// same JSON document the MediaPipe service writes.
type RemoteDetector struct {
	client   *resty.Client
	maxHands int
}

// NewRemoteDetector creates a client for the landmark service at cfg.URL.
func NewRemoteDetector(cfg RemoteConfig) (*RemoteDetector, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("remote detector: url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(100*time.Millisecond).
		SetHeader("Accept", "application/json")

	return &RemoteDetector{client: client, maxHands: cfg.MaxHands}, nil
}

// Detect sends the frame to the landmark service.
func (d *RemoteDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	data, err := EncodeJPEG(*frame)
	if err != nil {
		return nil, err
	}

	var body handsResponse
	req := d.client.R().
		SetHeader("Content-Type", "image/jpeg").
		SetBody(data).
		SetResult(&body).
		SetError(&body)
	if d.maxHands > 0 {
		req.SetQueryParam("num_hands", strconv.Itoa(d.maxHands))
	}

	resp, err := req.Post("/detect")
	if err != nil {
		return nil, fmt.Errorf("remote detect: %w", err)
	}
	if resp.IsError() {
		if body.Error != "" {
			return nil, fmt.Errorf("remote detect: %s: %s", resp.Status(), body.Error)
		}
		return nil, fmt.Errorf("remote detect: %s", resp.Status())
	}

	return body.toHandLandmarks()
}

// Close releases idle connections.
func (d *RemoteDetector) Close() error {
	d.client.GetClient().CloseIdleConnections()
	return nil
}
