// Package data turns trajectories into supervised (state, next-state)
// sample pairs and batches them for training and evaluation.
package data

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/jori-v/fieldlab/internal/dynamo"
)

// Batch holds a block of sample pairs, one state per row.
type Batch struct {
	Inputs  *mat.Dense
	Targets *mat.Dense
}

func (b Batch) Len() int {
	r, _ := b.Inputs.Dims()
	return r
}

// Source yields finite, ordered sequences of batches built from
// consecutive-pair slicing of one trajectory: input trajectory[i], target
// trajectory[i+1]. No pair crosses a trajectory boundary. With a non-nil
// rng the sample order is reshuffled on every Batches call; otherwise the
// trajectory order is preserved (held-out variant).
type Source struct {
	inputs    []dynamo.State
	targets   []dynamo.State
	batchSize int
	rng       *rand.Rand
}

// NewSource builds a shuffling source over all consecutive pairs of tr.
func NewSource(tr *dynamo.Trajectory, batchSize int, rng *rand.Rand) (*Source, error) {
	return newSource(tr.States, batchSize, rng)
}

// NewHeldOut builds an order-preserving source over all consecutive pairs.
func NewHeldOut(tr *dynamo.Trajectory, batchSize int) (*Source, error) {
	return newSource(tr.States, batchSize, nil)
}

func newSource(states []dynamo.State, batchSize int, rng *rand.Rand) (*Source, error) {
	if len(states) < 2 {
		return nil, fmt.Errorf("need at least 2 states for one sample pair, got %d", len(states))
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	s := &Source{batchSize: batchSize, rng: rng}
	for i := 0; i+1 < len(states); i++ {
		s.inputs = append(s.inputs, states[i])
		s.targets = append(s.targets, states[i+1])
	}
	return s, nil
}

// Split divides a trajectory into a leading training source and a
// trailing held-out source. The boundary pair between the two segments is
// dropped so neither side sees the other's states as targets.
func Split(tr *dynamo.Trajectory, testFraction float64, batchSize int, rng *rand.Rand) (train, test *Source, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction must lie in (0,1), got %f", testFraction)
	}
	n := tr.Len()
	cut := int(float64(n) * (1 - testFraction))
	if cut < 2 || n-cut < 2 {
		return nil, nil, fmt.Errorf("trajectory of %d states too short for split fraction %f", n, testFraction)
	}

	train, err = newSource(tr.States[:cut], batchSize, rng)
	if err != nil {
		return nil, nil, err
	}
	test, err = newSource(tr.States[cut:], batchSize, nil)
	if err != nil {
		return nil, nil, err
	}
	return train, test, nil
}

func (s *Source) NumSamples() int { return len(s.inputs) }

func (s *Source) Dim() int { return len(s.inputs[0]) }

// Batches returns one epoch's batch sequence. The final batch may be
// smaller than the configured size.
func (s *Source) Batches() []Batch {
	n := len(s.inputs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if s.rng != nil {
		s.rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	}

	d := s.Dim()
	var batches []Batch
	for start := 0; start < n; start += s.batchSize {
		end := start + s.batchSize
		if end > n {
			end = n
		}
		rows := end - start
		in := mat.NewDense(rows, d, nil)
		out := mat.NewDense(rows, d, nil)
		for r, i := range idx[start:end] {
			in.SetRow(r, s.inputs[i])
			out.SetRow(r, s.targets[i])
		}
		batches = append(batches, Batch{Inputs: in, Targets: out})
	}
	return batches
}
