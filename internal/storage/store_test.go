package storage

import (
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jori-v/fieldlab/internal/config"
	"github.com/jori-v/fieldlab/internal/dynamo"
	"github.com/jori-v/fieldlab/internal/model"
	"github.com/jori-v/fieldlab/internal/train"
)

func testResult(t *testing.T, cfg *config.Config) *train.Result {
	t.Helper()
	net := model.New(2, cfg.Hidden, cfg.Act(), rand.New(rand.NewSource(cfg.Seed)))
	// Make the params awkward for decimal printing on purpose.
	net.Raw()[0] = 1.0 / 3.0
	net.Raw()[1] = 0.1 + 0.2

	best := net.Clone()
	best.Raw()[0] = -7.0 / 11.0

	return &train.Result{
		Model: net,
		Best:  &train.Checkpoint{Params: best.Vector(), Epoch: 3, TestLoss: 0.0125},
		History: train.History{
			TrainLoss: []float64{0.9, 0.5, 0.3, 0.35},
			TestLoss:  []float64{1.0, 0.6, 0.0125, 0.4},
		},
	}
}

func TestSaveRunRoundTrip(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Init())

	cfg := config.DefaultConfig()
	cfg.Hidden = 4
	cfg.Epochs = 4
	res := testResult(t, cfg)

	runID, err := st.SaveRun(cfg, res)
	require.NoError(t, err)

	meta, err := st.Load(runID)
	require.NoError(t, err)
	assert.Equal(t, runID, meta.ID)
	assert.Equal(t, cfg.Integrator, meta.Integrator)
	assert.Equal(t, 3, meta.BestEpoch)
	assert.Equal(t, 0.0125, meta.BestTestLoss)
	assert.Equal(t, 0.35, meta.FinalTrain)

	// Checkpoint parameters must come back bit-identical.
	final, err := st.LoadNet(runID, "final")
	require.NoError(t, err)
	assert.Equal(t, res.Model.Vector(), final.Vector())

	best, err := st.LoadNet(runID, "best")
	require.NoError(t, err)
	assert.Equal(t, res.Best.Params, best.Vector())

	// And the reloaded net must evaluate identically.
	x := dynamo.State{0.4, -1.1}
	assert.Equal(t, res.Model.Derive(x), final.Derive(x))
}

func TestCheckpointNameEncodesHyperparams(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Integrator = "euler"
	cfg.Dt = 0.02
	cfg.Hidden = 16
	cfg.BatchSize = 8
	cfg.LearningRate = 0.005
	cfg.WeightDecay = 1e-4
	cfg.Seed = 7
	cfg.Epochs = 50

	name := checkpointName(cfg, "best")
	for _, piece := range []string{"euler", "dt0.02", "h16", "b8", "lr0.005", "wd0.0001", "s7", "e50", "best.json"} {
		assert.Contains(t, name, piece)
	}
	assert.False(t, strings.ContainsAny(name, " /"))
}

func TestLoadHistory(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Init())

	cfg := config.DefaultConfig()
	cfg.Hidden = 4
	res := testResult(t, cfg)

	runID, err := st.SaveRun(cfg, res)
	require.NoError(t, err)

	trainLoss, testLoss, err := st.LoadHistory(runID)
	require.NoError(t, err)
	assert.Equal(t, res.History.TrainLoss, trainLoss)
	assert.Equal(t, res.History.TestLoss, testLoss)
}

func TestList(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Init())

	runs, err := st.List()
	require.NoError(t, err)
	assert.Empty(t, runs)

	cfg := config.DefaultConfig()
	cfg.Hidden = 4
	_, err = st.SaveRun(cfg, testResult(t, cfg))
	require.NoError(t, err)
	_, err = st.SaveRun(cfg, testResult(t, cfg))
	require.NoError(t, err)

	runs, err = st.List()
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestListMissingDir(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "never-created"))
	runs, err := st.List()
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestLoadNetErrors(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Init())

	_, err := st.LoadNet("run_missing", "best")
	assert.Error(t, err)

	_, err = st.LoadNet("run_missing", "latest")
	assert.Error(t, err)
}
