// Package pupil builds binary aperture masks sampled on a square pixel grid.
package pupil

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"golang.org/x/image/tiff"
	"gonum.org/v1/gonum/mat"
)

// Mask is an N×N indicator grid of the clear aperture: 1 inside, 0 outside.
// A Mask is immutable once generated.
type Mask struct {
	grid        *mat.Dense
	size        int
	obstruction float64
}

// Generate builds the mask for an aperture spanning the full grid width with a
// central obstruction of diameter round(n·obstruction) pixels.
// Returns nil when n is not positive (resolution unset).
func Generate(n int, obstruction float64) *Mask {
	if n <= 0 {
		return nil
	}

	grid := mat.NewDense(n, n, disk(n, float64(n)))

	if obstruction > 0 {
		obsDiameter := math.Round(float64(n) * obstruction)
		if obsDiameter > 0 {
			obs := mat.NewDense(n, n, disk(n, obsDiameter))
			grid.Sub(grid, obs)
		}
	}

	return &Mask{grid: grid, size: n, obstruction: obstruction}
}

// disk returns a row-major n×n indicator of pixels whose centers lie within
// diameter/2 of the grid center.
func disk(n int, diameter float64) []float64 {
	data := make([]float64, n*n)
	center := float64(n-1) / 2
	radius := diameter / 2
	r2 := radius * radius

	for row := 0; row < n; row++ {
		y := float64(row) - center
		for col := 0; col < n; col++ {
			x := float64(col) - center
			if x*x+y*y <= r2 {
				data[row*n+col] = 1
			}
		}
	}
	return data
}

// Size returns the grid dimension N.
func (m *Mask) Size() int {
	return m.size
}

// ObstructionRatio returns the obstruction ratio the mask was generated for.
func (m *Mask) ObstructionRatio() float64 {
	return m.obstruction
}

// At reports whether pixel (row, col) is inside the clear aperture.
func (m *Mask) At(row, col int) bool {
	return m.grid.At(row, col) != 0
}

// Open returns the number of pixels inside the clear aperture.
func (m *Mask) Open() int {
	return int(mat.Sum(m.grid))
}

// FillFraction returns the fraction of grid pixels inside the clear aperture.
func (m *Mask) FillFraction() float64 {
	return mat.Sum(m.grid) / float64(m.size*m.size)
}

// Matrix returns a copy of the grid. Callers may modify the copy freely.
func (m *Mask) Matrix() *mat.Dense {
	return mat.DenseCopyOf(m.grid)
}

// Rows returns the grid as nested slices of 0/1 values.
func (m *Mask) Rows() [][]uint8 {
	rows := make([][]uint8, m.size)
	for i := range rows {
		rows[i] = make([]uint8, m.size)
		for j := range rows[i] {
			if m.At(i, j) {
				rows[i][j] = 1
			}
		}
	}
	return rows
}

// Image renders the mask as an 8-bit grayscale image (255 = open).
func (m *Mask) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.size, m.size))
	for row := 0; row < m.size; row++ {
		for col := 0; col < m.size; col++ {
			if m.At(row, col) {
				img.SetGray(col, row, color.Gray{Y: 255})
			}
		}
	}
	return img
}

// WriteTIFF encodes the mask image as a deflate-compressed TIFF.
func (m *Mask) WriteTIFF(w io.Writer) error {
	if err := tiff.Encode(w, m.Image(), &tiff.Options{Compression: tiff.Deflate}); err != nil {
		return fmt.Errorf("encoding pupil tiff: %w", err)
	}
	return nil
}
