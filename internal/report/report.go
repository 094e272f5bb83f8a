// Package report renders training history into charts.
package report

import (
	"fmt"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/born-ml/textclass/internal/train"
)

// Reporter renders a training history.
type Reporter interface {
	Render(history *train.History) error
}

// PNGReporter writes a two-panel PNG: training and validation loss on the
// left, training and validation accuracy on the right.
type PNGReporter struct {
	Path string
	// Panel size; zero values fall back to 14x10cm per panel.
	Width  vg.Length
	Height vg.Length
}

// NewPNGReporter creates a reporter writing to path.
func NewPNGReporter(path string) *PNGReporter {
	return &PNGReporter{Path: path}
}

// Render draws the chart. It fails if the history is empty.
func (r *PNGReporter) Render(history *train.History) error {
	if history == nil || history.Epochs() == 0 {
		return fmt.Errorf("no epochs to plot")
	}

	lossPlot, err := metricPlot("Evolution of training loss", "loss",
		history.TrainLoss, history.ValidationLoss)
	if err != nil {
		return err
	}
	accPlot, err := metricPlot("Evolution of training accuracy", "accuracy",
		history.TrainAccuracy, history.ValidationAccuracy)
	if err != nil {
		return err
	}

	width, height := r.Width, r.Height
	if width == 0 {
		width = 14 * vg.Centimeter
	}
	if height == 0 {
		height = 10 * vg.Centimeter
	}

	img := vgimg.New(2*width, height)
	canvas := draw.New(img)
	tiles := draw.Tiles{
		Rows: 1,
		Cols: 2,
		PadX: 5 * vg.Millimeter,
	}

	canvases := plot.Align([][]*plot.Plot{{lossPlot, accPlot}}, tiles, canvas)
	lossPlot.Draw(canvases[0][0])
	accPlot.Draw(canvases[0][1])

	file, err := os.Create(r.Path)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	defer file.Close()

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(file); err != nil {
		return fmt.Errorf("failed to write chart: %w", err)
	}
	return nil
}

func metricPlot(title, yLabel string, trainValues, validationValues []float32) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = yLabel
	p.Legend.Top = true

	err := plotutil.AddLines(p,
		"train", points(trainValues),
		"validation", points(validationValues),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to plot %s: %w", yLabel, err)
	}
	return p, nil
}

func points(values []float32) plotter.XYs {
	xys := make(plotter.XYs, len(values))
	for i, v := range values {
		xys[i].X = float64(i + 1)
		xys[i].Y = float64(v)
	}
	return xys
}
