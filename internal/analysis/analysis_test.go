package analysis

import (
	"math"
	"strings"
	"testing"

	"github.com/jori-v/fieldlab/internal/dynamo"
)

func sineTrajectory(n int, dt, freq float64) *dynamo.Trajectory {
	states := make([]dynamo.State, n)
	for i := range states {
		t := float64(i) * dt
		states[i] = dynamo.State{
			math.Sin(2 * math.Pi * freq * t),
			math.Cos(2 * math.Pi * freq * t),
		}
	}
	return &dynamo.Trajectory{States: states, Dt: dt}
}

func TestPortraitOf(t *testing.T) {
	tr := sineTrajectory(100, 0.01, 1.0)
	p := PortraitOf(tr, 0, 1)
	if p == nil {
		t.Fatal("expected portrait")
	}
	if len(p.Points) != 100 {
		t.Errorf("expected 100 points, got %d", len(p.Points))
	}

	if PortraitOf(tr, 0, 5) != nil {
		t.Error("expected nil for out-of-range axis")
	}
}

func TestPortraitOfStopsAtDivergence(t *testing.T) {
	tr := sineTrajectory(20, 0.01, 1.0)
	tr.States[10][0] = math.NaN()

	p := PortraitOf(tr, 0, 1)
	if len(p.Points) != 10 {
		t.Errorf("expected portrait truncated at 10 points, got %d", len(p.Points))
	}
}

func TestRenderASCII(t *testing.T) {
	tr := sineTrajectory(200, 0.01, 1.0)
	p := PortraitOf(tr, 0, 1)

	out := RenderASCII([]*PhasePortrait{p, p}, []rune{'o', '.'}, 40, 20)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 20 {
		t.Errorf("expected 20 rows, got %d", len(lines))
	}
	// Second portrait overdraws the first with '.'.
	if !strings.ContainsRune(out, '.') {
		t.Error("expected second mark in output")
	}

	if RenderASCII(nil, nil, 10, 10) != "" {
		t.Error("expected empty render for no portraits")
	}
}

func TestFFTPureTone(t *testing.T) {
	n := 64
	data := make([]float64, n)
	for i := range data {
		data[i] = math.Sin(2 * math.Pi * 4 * float64(i) / float64(n))
	}

	spectrum := fft(data)
	// Bin 4 carries the tone; magnitude n/2.
	mag := math.Hypot(real(spectrum[4]), imag(spectrum[4]))
	if math.Abs(mag-float64(n)/2) > 1e-9 {
		t.Errorf("expected magnitude %d at bin 4, got %g", n/2, mag)
	}
	for k := 1; k < n/2; k++ {
		if k == 4 {
			continue
		}
		m := math.Hypot(real(spectrum[k]), imag(spectrum[k]))
		if m > 1e-9 {
			t.Errorf("unexpected energy at bin %d: %g", k, m)
		}
	}
}

func TestDominantFrequency(t *testing.T) {
	dt := 0.01
	freq := 2.5
	signal := make([]float64, 1000)
	for i := range signal {
		signal[i] = math.Sin(2 * math.Pi * freq * float64(i) * dt)
	}

	got := DominantFrequency(signal, dt)
	// Bin resolution is 1/(1024*0.01) ~ 0.1 Hz.
	if math.Abs(got-freq) > 0.1 {
		t.Errorf("expected ~%g Hz, got %g", freq, got)
	}

	if DominantFrequency([]float64{1, 2}, dt) != 0 {
		t.Error("expected 0 for too-short signal")
	}
}

func TestDominantFrequencyOddLength(t *testing.T) {
	// Signal lengths that are not powers of two are zero-padded
	// before the transform.
	dt := 0.02
	freq := 1.5
	for _, n := range []int{97, 333, 1000} {
		signal := make([]float64, n)
		for i := range signal {
			signal[i] = math.Sin(2 * math.Pi * freq * float64(i) * dt)
		}
		got := DominantFrequency(signal, dt)
		if math.Abs(got-freq) > 0.3 {
			t.Errorf("n=%d: expected ~%g Hz, got %g", n, freq, got)
		}
	}
}
