// Package viz renders MNIST-style images with their predicted class
// probabilities and prints weight histograms to a terminal.
package viz

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"

	"github.com/aybabtme/uniplot/histogram"
	xdraw "golang.org/x/image/draw"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// ErrInvalidInput is returned when image or probability sizes disagree.
var ErrInvalidInput = errors.New("invalid visualization input")

const (
	panelSize   = 4 * vg.Inch
	upscale     = 10
	histWidth   = 50
	defaultBins = 20
)

var barWidth = vg.Points(14)

// GrayImage converts row-major pixel intensities in [0, 1] to a grayscale
// image. Values outside the range are clamped.
func GrayImage(pixels []float32, rows, cols int) (*image.Gray, error) {
	if rows <= 0 || cols <= 0 || len(pixels) != rows*cols {
		return nil, fmt.Errorf("%w: %d pixels for a %dx%d image", ErrInvalidInput, len(pixels), rows, cols)
	}
	img := image.NewGray(image.Rect(0, 0, cols, rows))
	for i, v := range pixels {
		switch {
		case v < 0:
			v = 0
		case v > 1:
			v = 1
		}
		img.SetGray(i%cols, i/cols, color.Gray{Y: uint8(v*255 + 0.5)})
	}
	return img, nil
}

// Upscale enlarges img by an integer factor with nearest-neighbour
// sampling so individual pixels stay sharp.
func Upscale(img image.Image, factor int) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}

func imagePlot(img image.Image) *plot.Plot {
	b := img.Bounds()
	p := plot.New()
	p.Title.Text = "Input"
	p.Add(plotter.NewImage(img, 0, 0, float64(b.Dx()), float64(b.Dy())))
	p.HideAxes()
	return p
}

func probabilityPlot(probs []float32, classNames []string) (*plot.Plot, error) {
	values := make(plotter.Values, len(probs))
	for i, v := range probs {
		values[i] = float64(v)
	}
	bars, err := plotter.NewBarChart(values, barWidth)
	if err != nil {
		return nil, err
	}
	bars.Horizontal = true
	bars.LineStyle.Width = 0
	bars.Color = color.Gray{Y: 80}

	p := plot.New()
	p.Title.Text = "Class probability"
	p.Add(bars)
	p.NominalY(classNames...)
	p.X.Min = 0
	p.X.Max = 1.1
	return p, nil
}

// ImageAndProbabilities writes a two-panel PNG to w: the image on the
// left and a horizontal bar chart of probs labelled with classNames on
// the right.
func ImageAndProbabilities(w io.Writer, pixels []float32, rows, cols int, probs []float32, classNames []string) error {
	if len(probs) == 0 || len(probs) != len(classNames) {
		return fmt.Errorf("%w: %d probabilities for %d classes", ErrInvalidInput, len(probs), len(classNames))
	}
	gray, err := GrayImage(pixels, rows, cols)
	if err != nil {
		return err
	}
	right, err := probabilityPlot(probs, classNames)
	if err != nil {
		return err
	}
	plots := [][]*plot.Plot{{imagePlot(Upscale(gray, upscale)), right}}

	img := vgimg.New(2*panelSize, panelSize)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      1,
		Cols:      2,
		PadX:      vg.Millimeter,
		PadTop:    vg.Points(2),
		PadBottom: vg.Points(2),
		PadLeft:   vg.Points(2),
		PadRight:  vg.Points(2),
	}
	canvases := plot.Align(plots, tiles, dc)
	for j, p := range plots[0] {
		p.Draw(canvases[0][j])
	}

	_, err = vgimg.PngCanvas{Canvas: img}.WriteTo(w)
	return err
}

// SaveImageAndProbabilities writes the ImageAndProbabilities PNG to path.
func SaveImageAndProbabilities(path string, pixels []float32, rows, cols int, probs []float32, classNames []string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return ImageAndProbabilities(f, pixels, rows, cols, probs, classNames)
}

// WeightHistogram prints a text histogram of values with the given
// number of bins (20 when bins <= 0).
func WeightHistogram(w io.Writer, values []float32, bins int) error {
	if len(values) == 0 {
		return fmt.Errorf("%w: no values", ErrInvalidInput)
	}
	if bins <= 0 {
		bins = defaultBins
	}
	data := make([]float64, len(values))
	for i, v := range values {
		data[i] = float64(v)
	}
	return histogram.Fprint(w, histogram.Hist(bins, data), histogram.Linear(histWidth))
}
