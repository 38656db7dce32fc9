package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jori-v/fieldlab/internal/config"
	"github.com/jori-v/fieldlab/internal/model"
	"github.com/jori-v/fieldlab/internal/train"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// RunMetadata records everything needed to reproduce a training run and
// to rebuild its dataset later (for spectra and sweeps).
type RunMetadata struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Integrator   string    `json:"integrator"`
	Dt           float64   `json:"dt"`
	TMax         float64   `json:"tmax"`
	Theta0       float64   `json:"theta0"`
	Seed         int64     `json:"seed"`
	Hidden       int       `json:"hidden"`
	Activation   string    `json:"activation"`
	Epochs       int       `json:"epochs"`
	BatchSize    int       `json:"batch_size"`
	LearningRate float64   `json:"learning_rate"`
	WeightDecay  float64   `json:"weight_decay"`
	TestFraction float64   `json:"test_fraction"`

	BestEpoch    int     `json:"best_epoch"`
	BestTestLoss float64 `json:"best_test_loss"`
	FinalTrain   float64 `json:"final_train_loss"`
	FinalTest    float64 `json:"final_test_loss"`
}

// snapshot is the on-disk checkpoint format. Params round-trip exactly:
// encoding/json emits the shortest decimal that parses back to the same
// float64 bits.
type snapshot struct {
	Dim        int       `json:"dim"`
	Hidden     int       `json:"hidden"`
	Activation string    `json:"activation"`
	Params     []float64 `json:"params"`
}

// SaveRun writes one run directory: metadata.json, history.csv, and two
// checkpoints whose file names encode the hyperparameters. It returns
// the run ID.
func (s *Store) SaveRun(cfg *config.Config, res *train.Result) (string, error) {
	runID := fmt.Sprintf("run_%d", time.Now().UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	hist := res.History
	meta := RunMetadata{
		ID:           runID,
		Timestamp:    time.Now(),
		Integrator:   cfg.Integrator,
		Dt:           cfg.Dt,
		TMax:         cfg.TMax,
		Theta0:       cfg.Theta0,
		Seed:         cfg.Seed,
		Hidden:       cfg.Hidden,
		Activation:   cfg.Activation,
		Epochs:       cfg.Epochs,
		BatchSize:    cfg.BatchSize,
		LearningRate: cfg.LearningRate,
		WeightDecay:  cfg.WeightDecay,
		TestFraction: cfg.TestFraction,
		BestEpoch:    res.Best.Epoch,
		BestTestLoss: res.Best.TestLoss,
		FinalTrain:   hist.TrainLoss[len(hist.TrainLoss)-1],
		FinalTest:    hist.TestLoss[len(hist.TestLoss)-1],
	}

	if err := writeJSON(filepath.Join(runDir, "metadata.json"), meta); err != nil {
		return "", err
	}
	if err := s.writeHistory(runDir, hist); err != nil {
		return "", err
	}

	final := snapshot{
		Dim:        res.Model.Dim(),
		Hidden:     res.Model.Hidden(),
		Activation: res.Model.Act().String(),
		Params:     res.Model.Vector(),
	}
	if err := writeJSON(filepath.Join(runDir, checkpointName(cfg, "final")), final); err != nil {
		return "", err
	}

	best := final
	best.Params = res.Best.Params
	if err := writeJSON(filepath.Join(runDir, checkpointName(cfg, "best")), best); err != nil {
		return "", err
	}

	return runID, nil
}

// checkpointName encodes the hyperparameters that produced the artifact,
// so directory listings are self-describing.
func checkpointName(cfg *config.Config, variant string) string {
	return fmt.Sprintf("net_%s_dt%g_h%d_%s_b%d_lr%g_wd%g_s%d_e%d_%s.json",
		cfg.Integrator, cfg.Dt, cfg.Hidden, cfg.Activation,
		cfg.BatchSize, cfg.LearningRate, cfg.WeightDecay,
		cfg.Seed, cfg.Epochs, variant)
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (s *Store) writeHistory(runDir string, hist train.History) error {
	f, err := os.Create(filepath.Join(runDir, "history.csv"))
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"epoch", "train_loss", "test_loss"}); err != nil {
		return err
	}
	for i := range hist.TrainLoss {
		row := []string{
			strconv.Itoa(i + 1),
			strconv.FormatFloat(hist.TrainLoss[i], 'g', -1, 64),
			strconv.FormatFloat(hist.TestLoss[i], 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadNet reads the "best" or "final" checkpoint of a run and
// reconstructs the field net. Loaded parameters are bit-identical to the
// saved ones.
func (s *Store) LoadNet(runID, variant string) (*model.FieldNet, error) {
	if variant != "best" && variant != "final" {
		return nil, fmt.Errorf("storage: unknown checkpoint variant %q", variant)
	}

	runDir := filepath.Join(s.baseDir, runID)
	matches, err := filepath.Glob(filepath.Join(runDir, "net_*_"+variant+".json"))
	if err != nil {
		return nil, err
	}
	if len(matches) != 1 {
		return nil, fmt.Errorf("storage: expected one %s checkpoint in %s, found %d", variant, runID, len(matches))
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, err
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}

	act, err := model.ParseActivation(snap.Activation)
	if err != nil {
		return nil, err
	}
	return model.Load(snap.Dim, snap.Hidden, act, snap.Params)
}

// LoadHistory reads the per-epoch loss curves back from history.csv.
func (s *Store) LoadHistory(runID string) (trainLoss, testLoss []float64, err error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, "history.csv"))
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, err
	}

	for i := 1; i < len(records); i++ {
		rec := records[i]
		if len(rec) < 3 {
			continue
		}
		tr, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			continue
		}
		te, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			continue
		}
		trainLoss = append(trainLoss, tr)
		testLoss = append(testLoss, te)
	}
	return trainLoss, testLoss, nil
}
