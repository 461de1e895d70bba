package detector

import (
	"fmt"

	"gocv.io/x/gocv"
)

// EncodeJPEG encodes an RGB frame as JPEG. The returned slice is owned by the
// caller.
func EncodeJPEG(frame gocv.Mat) ([]byte, error) {
	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(frame, &bgr, gocv.ColorRGBToBGR)

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, bgr)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
