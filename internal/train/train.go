// Package train drives supervised fitting of a field net against
// consecutive-pair samples, stepping the model through the configured
// integrator and tracking the best checkpoint by held-out loss.
package train

import (
	"context"
	"fmt"
	"math"

	"github.com/n0madic/go-adamw"

	"github.com/jori-v/fieldlab/internal/ad"
	"github.com/jori-v/fieldlab/internal/data"
	"github.com/jori-v/fieldlab/internal/dynamo"
	"github.com/jori-v/fieldlab/internal/integrators"
	"github.com/jori-v/fieldlab/internal/model"
)

type Config struct {
	Integrator   integrators.Config
	Epochs       int
	LearningRate float64
	WeightDecay  float64
}

// Checkpoint is an immutable snapshot of the flat parameter vector, tagged
// with the 1-based epoch and held-out loss that produced it.
type Checkpoint struct {
	Params   []float64
	Epoch    int
	TestLoss float64
}

type History struct {
	BatchLosses []float64 // every training batch in order
	TrainLoss   []float64 // per-epoch averages
	TestLoss    []float64
}

// EpochUpdate is delivered to observers after each completed epoch.
type EpochUpdate struct {
	Epoch     int
	Epochs    int
	TrainLoss float64
	TestLoss  float64
	Best      bool
}

type Result struct {
	Model   *model.FieldNet
	Best    *Checkpoint
	History History
}

func (c Config) validate() error {
	if err := c.Integrator.Validate(); err != nil {
		return err
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %f", c.LearningRate)
	}
	return nil
}

// Loss evaluates the one-step prediction MSE on a single batch without
// touching gradients.
func Loss(net *model.FieldNet, cfg integrators.Config, b data.Batch) float64 {
	leaves := net.Leaves()
	f := func(x *ad.Node) *ad.Node { return net.ForwardWith(leaves, x) }
	pred := cfg.StepNode(f, ad.Const(b.Inputs))
	return ad.MSE(pred, ad.Const(b.Targets)).Scalar()
}

// Fit trains net in place for the configured number of epochs; there is no
// early stopping. Each epoch runs every training batch through one
// AdamW update, then averages the held-out loss without updating
// parameters. The best checkpoint is replaced only on strictly lower
// held-out loss, so ties keep the earliest epoch.
func Fit(ctx context.Context, net *model.FieldNet, trainSrc, testSrc *data.Source, cfg Config, observers ...func(EpochUpdate)) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Constant eta schedule: the optimizer ticks per batch, but the
	// learning rate must not change at batch granularity.
	opt, err := adamw.New(net.Raw(), adamw.Options{
		Alpha:       cfg.LearningRate,
		WeightDecay: cfg.WeightDecay,
		Schedule:    adamw.NewFixedSchedule(1.0, 0),
	})
	if err != nil {
		return nil, fmt.Errorf("optimizer: %w", err)
	}

	res := &Result{Model: net}
	bestLoss := math.Inf(1)

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		trainSum := 0.0
		batches := trainSrc.Batches()
		for bi, b := range batches {
			leaves := net.Leaves()
			f := func(x *ad.Node) *ad.Node { return net.ForwardWith(leaves, x) }
			pred := cfg.Integrator.StepNode(f, ad.Const(b.Inputs))
			loss := ad.MSE(pred, ad.Const(b.Targets))

			lv := loss.Scalar()
			if math.IsNaN(lv) || math.IsInf(lv, 0) {
				return res, &dynamo.DivergenceError{Epoch: epoch, Batch: bi, Where: "training"}
			}

			grads := ad.Backward(loss, leaves)
			if err := opt.Step(net.Raw(), net.Flatten(grads)); err != nil {
				return res, fmt.Errorf("optimizer step at epoch %d batch %d: %w", epoch, bi, err)
			}

			trainSum += lv
			res.History.BatchLosses = append(res.History.BatchLosses, lv)
		}
		trainAvg := trainSum / float64(len(batches))

		testSum := 0.0
		testBatches := testSrc.Batches()
		for _, b := range testBatches {
			testSum += Loss(net, cfg.Integrator, b)
		}
		testAvg := testSum / float64(len(testBatches))
		if math.IsNaN(testAvg) || math.IsInf(testAvg, 0) {
			return res, &dynamo.DivergenceError{Epoch: epoch, Where: "evaluation"}
		}

		res.History.TrainLoss = append(res.History.TrainLoss, trainAvg)
		res.History.TestLoss = append(res.History.TestLoss, testAvg)

		improved := testAvg < bestLoss
		if improved {
			bestLoss = testAvg
			res.Best = &Checkpoint{
				Params:   net.Vector(),
				Epoch:    epoch + 1,
				TestLoss: testAvg,
			}
		}

		for _, obs := range observers {
			obs(EpochUpdate{
				Epoch:     epoch + 1,
				Epochs:    cfg.Epochs,
				TrainLoss: trainAvg,
				TestLoss:  testAvg,
				Best:      improved,
			})
		}
	}

	return res, nil
}
