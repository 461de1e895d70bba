package detector

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Drawing style for annotated frames. Colors are given in RGB order because
// annotated frames are RGB; rgb() swaps them into the BGR order gocv expects.
const (
	labelMargin    = 10
	labelFontScale = 1.0
	labelThickness = 1
	dotRadius      = 4
	lineThickness  = 2
)

var (
	labelColor      = rgb(88, 205, 54)
	landmarkColor   = rgb(255, 48, 48)
	connectionColor = rgb(224, 224, 224)
)

// rgb returns a color.RGBA whose R and B are swapped so the color lands
// correctly on an RGB Mat.
func rgb(r, g, b uint8) color.RGBA {
	return color.RGBA{R: b, G: g, B: r, A: 255}
}

// Annotate draws the hand skeleton, landmark dots and handedness label of
// each hand onto frame in place. Landmarks must be normalized to the frame.
func Annotate(frame *gocv.Mat, hands []HandLandmarks) {
	w, h := frame.Cols(), frame.Rows()

	for i := range hands {
		hand := &hands[i]

		px := func(idx int) image.Point {
			p := hand.Points[idx]
			return image.Pt(int(p.X*float64(w)), int(p.Y*float64(h)))
		}

		for _, c := range HandConnections {
			gocv.Line(frame, px(c[0]), px(c[1]), connectionColor, lineThickness)
		}
		for idx := 0; idx < NumLandmarks; idx++ {
			gocv.Circle(frame, px(idx), dotRadius, landmarkColor, -1)
		}

		// Handedness goes above the top-left corner of the bounding box.
		minX, minY := hand.Bounds()
		org := image.Pt(int(minX*float64(w)), int(minY*float64(h))-labelMargin)
		gocv.PutTextWithParams(frame, hand.Handedness, org, gocv.FontHersheyDuplex,
			labelFontScale, labelColor, labelThickness, gocv.LineAA, false)
	}
}
