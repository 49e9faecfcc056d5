package main

import (
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// plotRun writes batchstats.png to outDir: the number of samples per batch
// (blue) and the per-batch mean of the first stream (red) over batch steps.
func plotRun(outDir string, rep *runReport) (string, error) {
	p := plot.New()
	p.Title.Text = "Minibatches: size (blue), mean of " + rep.MeanOf + " (red)"
	p.X.Label.Text = "batch"
	p.Y.Label.Text = "value"

	sizes, err := plotter.NewLine(rep.Sizes)
	if err != nil {
		return "", err
	}
	sizes.Color = color.RGBA{R: 20, G: 80, B: 200, A: 220}
	sizes.Width = vg.Points(1.2)
	p.Add(sizes)
	p.Legend.Add("samples", sizes)

	if len(rep.Means) > 0 {
		means, err := plotter.NewScatter(rep.Means)
		if err != nil {
			return "", err
		}
		means.GlyphStyle.Color = color.RGBA{R: 200, G: 30, B: 30, A: 180}
		means.GlyphStyle.Radius = vg.Points(1.8)
		p.Add(means)
		p.Legend.Add("mean "+rep.MeanOf, means)
	}

	p.Add(plotter.NewGrid())
	all := append(append(plotter.XYs{}, rep.Sizes...), rep.Means...)
	p.X.Min, p.X.Max, p.Y.Min, p.Y.Max = autoRange(all)

	if err := ensureDir(outDir); err != nil {
		return "", err
	}
	outPath := filepath.Join(outDir, "batchstats.png")
	if err := p.Save(8*vg.Inch, 6*vg.Inch, outPath); err != nil {
		return "", err
	}
	return outPath, nil
}

// autoRange computes padded min/max for X and Y for a set of points.
func autoRange(xs plotter.XYs) (xmin, xmax, ymin, ymax float64) {
	if len(xs) == 0 {
		return -1, 1, -1, 1
	}
	xmin, xmax = math.Inf(1), math.Inf(-1)
	ymin, ymax = math.Inf(1), math.Inf(-1)
	for _, p := range xs {
		xmin = math.Min(xmin, p.X)
		xmax = math.Max(xmax, p.X)
		ymin = math.Min(ymin, p.Y)
		ymax = math.Max(ymax, p.Y)
	}
	padx := (xmax - xmin) * 0.06
	pady := (ymax - ymin) * 0.06
	if padx == 0 {
		padx = 1.0
	}
	if pady == 0 {
		pady = 1.0
	}
	return xmin - padx, xmax + padx, ymin - pady, ymax + pady
}

func ensureDir(path string) error {
	if path == "" {
		return nil
	}
	return os.MkdirAll(path, 0755)
}
