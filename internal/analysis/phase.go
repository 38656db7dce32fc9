package analysis

import (
	"math"
	"strings"

	"github.com/jori-v/fieldlab/internal/dynamo"
)

// PhasePortrait holds a 2D phase-space trajectory. For the pendulum the
// axes are theta and omega.
type PhasePortrait struct {
	XIndex, YIndex int
	Points         []struct{ X, Y float64 }
}

// PortraitOf records the phase-space path of an existing trajectory.
func PortraitOf(tr *dynamo.Trajectory, xIdx, yIdx int) *PhasePortrait {
	if len(tr.States) == 0 || xIdx >= len(tr.States[0]) || yIdx >= len(tr.States[0]) {
		return nil
	}

	portrait := &PhasePortrait{
		XIndex: xIdx,
		YIndex: yIdx,
		Points: make([]struct{ X, Y float64 }, 0, len(tr.States)),
	}
	for _, x := range tr.States {
		if !x.IsValid() {
			break
		}
		portrait.Points = append(portrait.Points, struct{ X, Y float64 }{X: x[xIdx], Y: x[yIdx]})
	}
	return portrait
}

// RenderASCII rasterizes one or more portraits onto a shared grid, each
// drawn with its own rune so a learned orbit is distinguishable from the
// reference orbit it should trace.
func RenderASCII(portraits []*PhasePortrait, marks []rune, width, height int) string {
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range portraits {
		if p == nil {
			continue
		}
		for _, pt := range p.Points {
			minX = math.Min(minX, pt.X)
			maxX = math.Max(maxX, pt.X)
			minY = math.Min(minY, pt.Y)
			maxY = math.Max(maxY, pt.Y)
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

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = make([]rune, width)
		for j := range grid[i] {
			grid[i][j] = ' '
		}
	}

	for pi, p := range portraits {
		if p == nil {
			continue
		}
		mark := '*'
		if pi < len(marks) {
			mark = marks[pi]
		}
		for _, pt := range p.Points {
			col := int((pt.X - minX) / rangeX * float64(width-1))
			row := int((maxY - pt.Y) / rangeY * float64(height-1))
			if col >= 0 && col < width && row >= 0 && row < height {
				grid[row][col] = mark
			}
		}
	}

	var sb strings.Builder
	for _, row := range grid {
		sb.WriteString(string(row))
		sb.WriteByte('\n')
	}
	return sb.String()
}
