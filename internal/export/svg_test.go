package export

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCurvesSVG(t *testing.T) {
	svg := CurvesSVG([]Series{
		{Name: "a", Color: "#00ff00", X: []float64{0, 1, 2}, Y: []float64{1, 4, 9}},
		{Name: "b", Color: "#00bfff", X: []float64{0, 1, 2}, Y: []float64{2, 3, 5}},
	}, 400, 200)

	if !strings.HasPrefix(svg, "<?xml") {
		t.Error("missing xml header")
	}
	if strings.Count(svg, "<path") != 2 {
		t.Errorf("expected 2 paths, got %d", strings.Count(svg, "<path"))
	}
	if !strings.Contains(svg, ">a</text>") || !strings.Contains(svg, ">b</text>") {
		t.Error("missing legend entries")
	}
}

func TestCurvesSVGSkipsNonFinite(t *testing.T) {
	svg := CurvesSVG([]Series{
		{Name: "mse", Color: "#ffa500", X: []float64{1, 2, 3, 4}, Y: []float64{1, math.Inf(1), math.NaN(), 2}},
	}, 400, 200)

	if svg == "" {
		t.Fatal("expected output despite non-finite points")
	}
	// Two finite points, each starting its own subpath across the gap.
	if strings.Count(svg, "M") != 2 {
		t.Errorf("expected 2 move commands, got %d", strings.Count(svg, "M"))
	}
}

func TestCurvesSVGEmpty(t *testing.T) {
	if svg := CurvesSVG(nil, 100, 100); svg != "" {
		t.Error("expected empty string for no series")
	}
	svg := CurvesSVG([]Series{{X: []float64{1}, Y: []float64{math.NaN()}}}, 100, 100)
	if svg != "" {
		t.Error("expected empty string when nothing is plottable")
	}
}

func TestLossCurvesSVG(t *testing.T) {
	svg := LossCurvesSVG([]float64{1.0, 0.1, 0.01}, []float64{2.0, 0.2, 0.02}, 400, 200)
	if !strings.Contains(svg, ">train</text>") || !strings.Contains(svg, ">test</text>") {
		t.Error("missing loss legend")
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "curve.svg")
	svg := ConsistencySVG([]float64{0.1, 0.05}, []float64{1e-3, 1e-4}, 300, 150)

	if err := WriteFile(path, svg); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != svg {
		t.Error("file contents differ from rendered svg")
	}
}
