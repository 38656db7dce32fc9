package export

import (
	"fmt"
	"math"
	"os"
	"strings"
)

// Series is one named curve. Points are (x, y) pairs in data space.
type Series struct {
	Name  string
	Color string
	X, Y  []float64
}

// CurvesSVG renders one or more series as polylines over a shared data
// range, with a small legend in the top-right corner. Non-finite points
// (a diverged sweep entry, say) are skipped.
func CurvesSVG(series []Series, width, height int) string {
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for i := range s.X {
			if !finite(s.X[i]) || !finite(s.Y[i]) {
				continue
			}
			minX = math.Min(minX, s.X[i])
			maxX = math.Max(maxX, s.X[i])
			minY = math.Min(minY, s.Y[i])
			maxY = math.Max(maxY, s.Y[i])
		}
	}
	if minX > maxX {
		return ""
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height))

	for _, s := range series {
		sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5" d="`, s.Color))
		pen := "M"
		for i := range s.X {
			if !finite(s.X[i]) || !finite(s.Y[i]) {
				pen = "M" // break the line across gaps
				continue
			}
			x := (s.X[i] - minX) / rangeX * float64(width)
			y := float64(height) - (s.Y[i]-minY)/rangeY*float64(height)
			sb.WriteString(fmt.Sprintf("%s%.1f,%.1f ", pen, x, y))
			pen = "L"
		}
		sb.WriteString("\"/>\n")
	}

	for i, s := range series {
		y := 16 + i*16
		sb.WriteString(fmt.Sprintf(`<text x="%d" y="%d" fill="%s" font-family="monospace" font-size="12">%s</text>
`, width-120, y, s.Color, s.Name))
	}

	sb.WriteString("</svg>")
	return sb.String()
}

// LossCurvesSVG renders per-epoch train and test loss on a log10 scale.
func LossCurvesSVG(trainLoss, testLoss []float64, width, height int) string {
	epochs := make([]float64, len(trainLoss))
	for i := range epochs {
		epochs[i] = float64(i + 1)
	}
	return CurvesSVG([]Series{
		{Name: "train", Color: "#00ff00", X: epochs, Y: log10All(trainLoss)},
		{Name: "test", Color: "#00bfff", X: epochs, Y: log10All(testLoss)},
	}, width, height)
}

// ConsistencySVG renders a log-log consistency curve: log10 step size
// against log10 mean squared error.
func ConsistencySVG(dts, errs []float64, width, height int) string {
	return CurvesSVG([]Series{
		{Name: "mse", Color: "#ffa500", X: log10All(dts), Y: log10All(errs)},
	}, width, height)
}

func WriteFile(path, svg string) error {
	return os.WriteFile(path, []byte(svg), 0644)
}

func log10All(vals []float64) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		if v <= 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = math.Log10(v)
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
