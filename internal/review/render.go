package review

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"

	"gocv.io/x/gocv"
)

// Figure layout in pixels.
const (
	plotWidth   = 480
	maxPlotSide = 960
	marginLeft  = 64
	marginRight = 24
	marginTop   = 24
	marginBot   = 48
	densityCell = 4
)

var (
	black     = color.RGBA{0, 0, 0, 0}
	gridGray  = color.RGBA{220, 220, 220, 0}
	traceBlue = color.RGBA{31, 119, 180, 0}
)

// figure maps frame coordinates onto a canvas with the frame's aspect ratio.
// The y axis points down, like image coordinates.
type figure struct {
	width, height int
	plot          image.Rectangle
	canvas        gocv.Mat
}

func newFigure(width, height int) (*figure, error) {
	rw, rh, err := AspectRatio(width, height)
	if err != nil {
		return nil, err
	}

	pw := plotWidth
	ph := pw * rh / rw
	if ph > maxPlotSide {
		ph = maxPlotSide
		pw = ph * rw / rh
	}
	if ph < 1 {
		ph = 1
	}

	plot := image.Rect(marginLeft, marginTop, marginLeft+pw, marginTop+ph)
	canvas := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0),
		plot.Max.Y+marginBot, plot.Max.X+marginRight, gocv.MatTypeCV8UC3)

	return &figure{width: width, height: height, plot: plot, canvas: canvas}, nil
}

func (f *figure) Close() error {
	return f.canvas.Close()
}

// point converts a frame position to canvas pixels.
func (f *figure) point(xy [2]float64) image.Point {
	x := float64(f.plot.Min.X) + xy[0]/float64(f.width)*float64(f.plot.Dx())
	y := float64(f.plot.Min.Y) + xy[1]/float64(f.height)*float64(f.plot.Dy())
	return image.Pt(int(math.Round(x)), int(math.Round(y)))
}

// axes draws the frame, tick labels and axis names.
func (f *figure) axes(xLabel, yLabel string) {
	const scale = 0.4
	font := gocv.FontHersheySimplex

	for _, t := range []int{0, f.width / 2, f.width} {
		p := f.point([2]float64{float64(t), float64(f.height)})
		gocv.Line(&f.canvas, image.Pt(p.X, f.plot.Min.Y), image.Pt(p.X, f.plot.Max.Y), gridGray, 1)
		label := strconv.Itoa(t)
		size := gocv.GetTextSize(label, font, scale, 1)
		gocv.PutText(&f.canvas, label, image.Pt(p.X-size.X/2, f.plot.Max.Y+size.Y+6), font, scale, black, 1)
	}
	for _, t := range []int{0, f.height / 2, f.height} {
		p := f.point([2]float64{0, float64(t)})
		gocv.Line(&f.canvas, image.Pt(f.plot.Min.X, p.Y), image.Pt(f.plot.Max.X, p.Y), gridGray, 1)
		label := strconv.Itoa(t)
		size := gocv.GetTextSize(label, font, scale, 1)
		gocv.PutText(&f.canvas, label, image.Pt(f.plot.Min.X-size.X-6, p.Y+size.Y/2), font, scale, black, 1)
	}

	gocv.Rectangle(&f.canvas, f.plot, black, 1)

	size := gocv.GetTextSize(xLabel, font, 0.5, 1)
	gocv.PutText(&f.canvas, xLabel,
		image.Pt(f.plot.Min.X+(f.plot.Dx()-size.X)/2, f.plot.Max.Y+marginBot-8), font, 0.5, black, 1)
	gocv.PutText(&f.canvas, yLabel, image.Pt(4, f.plot.Min.Y-8), font, 0.5, black, 1)
}

func (f *figure) png() ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.PNGFileExt, f.canvas)
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// RenderTrajectory draws a series as a connected line with point markers
// over a width x height frame and returns it as PNG.
func RenderTrajectory(s Series, width, height int) ([]byte, error) {
	f, err := newFigure(width, height)
	if err != nil {
		return nil, fmt.Errorf("render trajectory: %w", err)
	}
	defer f.Close()

	f.axes("x", "y")

	for i := 1; i < len(s); i++ {
		gocv.Line(&f.canvas, f.point(s[i-1]), f.point(s[i]), traceBlue, 1)
	}
	for _, xy := range s {
		gocv.Circle(&f.canvas, f.point(xy), 3, traceBlue, -1)
	}

	return f.png()
}

// RenderDensity draws the kernel density of a series over a width x height
// frame and returns it as PNG. Low density is light, high density dark.
// It returns ErrDegenerate when the series has too few distinct points.
func RenderDensity(s Series, width, height int) ([]byte, error) {
	f, err := newFigure(width, height)
	if err != nil {
		return nil, fmt.Errorf("render density: %w", err)
	}
	defer f.Close()

	cols := f.plot.Dx() / densityCell
	if cols < 1 {
		cols = 1
	}
	g, err := Density(s, width, height, cols)
	if err != nil {
		return nil, err
	}

	levels := make([]byte, len(g.Values))
	for i, v := range g.Values {
		levels[i] = 255 - byte(math.Round(v/g.Max*255))
	}

	gray, err := gocv.NewMatFromBytes(g.Rows, g.Cols, gocv.MatTypeCV8UC1, levels)
	if err != nil {
		return nil, fmt.Errorf("render density: %w", err)
	}
	defer gray.Close()

	heat := gocv.NewMat()
	defer heat.Close()
	gocv.ApplyColorMap(gray, &heat, gocv.ColormapHot)

	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Resize(heat, &scaled, image.Pt(f.plot.Dx(), f.plot.Dy()), 0, 0, gocv.InterpolationLinear)

	region := f.canvas.Region(f.plot)
	scaled.CopyTo(&region)
	region.Close()

	f.axes("x", "y")

	return f.png()
}
