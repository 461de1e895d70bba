package review

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Grid is a density sampled on Cols x Rows cells covering a frame. Row 0 is
// the top of the frame.
type Grid struct {
	Cols   int
	Rows   int
	Values []float64
	Max    float64
}

// At returns the density of cell (col, row).
func (g *Grid) At(col, row int) float64 {
	return g.Values[row*g.Cols+col]
}

// Density estimates the 2D density of s over a width x height frame with a
// Gaussian kernel and Scott's rule bandwidth. The kernel covariance is the
// sample covariance scaled by n^(-1/3); a covariance that is not positive
// definite yields ErrDegenerate. cols sets the grid resolution; the
// row count follows the frame aspect ratio.
func Density(s Series, width, height, cols int) (*Grid, error) {
	if width <= 0 || height <= 0 || cols <= 0 {
		return nil, fmt.Errorf("density: invalid size %dx%d/%d", width, height, cols)
	}
	n := len(s)
	if n < 2 {
		return nil, ErrDegenerate
	}

	data := mat.NewDense(n, 2, nil)
	for i, p := range s {
		data.SetRow(i, p[:])
	}
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, nil)

	// Scott's factor for two dimensions.
	cov.ScaleSym(math.Pow(float64(n), -1.0/3.0), &cov)

	var chol mat.Cholesky
	if !chol.Factorize(&cov) {
		return nil, ErrDegenerate
	}
	det := chol.Det()
	if det <= 1e-12*math.Max(cov.At(0, 0)*cov.At(1, 1), 1) {
		return nil, ErrDegenerate
	}
	var prec mat.SymDense
	if err := chol.InverseTo(&prec); err != nil {
		return nil, ErrDegenerate
	}
	ia, ib, ic := prec.At(0, 0), prec.At(0, 1), prec.At(1, 1)
	norm := 1 / (float64(n) * 2 * math.Pi * math.Sqrt(det))

	rows := int(math.Round(float64(cols) * float64(height) / float64(width)))
	if rows < 1 {
		rows = 1
	}
	g := &Grid{Cols: cols, Rows: rows, Values: make([]float64, cols*rows)}
	cw := float64(width) / float64(cols)
	ch := float64(height) / float64(rows)

	for r := 0; r < rows; r++ {
		y := (float64(r) + 0.5) * ch
		for col := 0; col < cols; col++ {
			x := (float64(col) + 0.5) * cw
			var sum float64
			for _, p := range s {
				dx, dy := x-p[0], y-p[1]
				sum += math.Exp(-0.5 * (ia*dx*dx + 2*ib*dx*dy + ic*dy*dy))
			}
			v := sum * norm
			g.Values[r*cols+col] = v
			if v > g.Max {
				g.Max = v
			}
		}
	}
	return g, nil
}
