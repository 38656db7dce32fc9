package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jori-v/fieldlab/internal/integrators"
	"github.com/jori-v/fieldlab/internal/model"
)

const (
	DefaultDt           = 0.05
	DefaultTMax         = 10.0
	DefaultTheta0       = 0.9
	DefaultHidden       = 32
	DefaultEpochs       = 200
	DefaultBatchSize    = 32
	DefaultLearningRate = 1e-3
	DefaultTestFraction = 0.2
)

type Config struct {
	Integrator   string  `yaml:"integrator"`
	Dt           float64 `yaml:"dt"`
	TMax         float64 `yaml:"tmax"`
	Theta0       float64 `yaml:"theta0"`
	Seed         int64   `yaml:"seed"`
	Hidden       int     `yaml:"hidden"`
	Activation   string  `yaml:"activation"`
	Epochs       int     `yaml:"epochs"`
	BatchSize    int     `yaml:"batch_size"`
	LearningRate float64 `yaml:"learning_rate"`
	WeightDecay  float64 `yaml:"weight_decay"`
	TestFraction float64 `yaml:"test_fraction"`

	SweepDts []float64     `yaml:"sweep_dts"`
	Hessian  HessianConfig `yaml:"hessian"`
}

type HessianConfig struct {
	K           int     `yaml:"k"`
	Tol         float64 `yaml:"tol"`
	MaxRestarts int     `yaml:"max_restarts"`
	Batches     int     `yaml:"batches"`
}

func DefaultConfig() *Config {
	return &Config{
		Integrator:   "rk4",
		Dt:           DefaultDt,
		TMax:         DefaultTMax,
		Theta0:       DefaultTheta0,
		Seed:         1,
		Hidden:       DefaultHidden,
		Activation:   "tanh",
		Epochs:       DefaultEpochs,
		BatchSize:    DefaultBatchSize,
		LearningRate: DefaultLearningRate,
		WeightDecay:  0.0,
		TestFraction: DefaultTestFraction,
		SweepDts:     []float64{0.2, 0.1, 0.05, 0.02, 0.01},
		Hessian: HessianConfig{
			K:           5,
			Tol:         1e-3,
			MaxRestarts: 100,
			Batches:     4,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if _, err := integrators.ParseScheme(c.Integrator); err != nil {
		return err
	}
	if _, err := model.ParseActivation(c.Activation); err != nil {
		return err
	}
	if c.Dt <= 0 {
		return fmt.Errorf("config: dt must be positive, got %g", c.Dt)
	}
	if c.TMax <= c.Dt {
		return fmt.Errorf("config: tmax must exceed dt, got %g", c.TMax)
	}
	if c.Hidden < 1 {
		return fmt.Errorf("config: hidden must be positive, got %d", c.Hidden)
	}
	if c.Epochs < 1 {
		return fmt.Errorf("config: epochs must be positive, got %d", c.Epochs)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("config: batch_size must be positive, got %d", c.BatchSize)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("config: learning_rate must be positive, got %g", c.LearningRate)
	}
	if c.WeightDecay < 0 {
		return fmt.Errorf("config: weight_decay must be non-negative, got %g", c.WeightDecay)
	}
	if c.TestFraction <= 0 || c.TestFraction >= 1 {
		return fmt.Errorf("config: test_fraction must lie in (0, 1), got %g", c.TestFraction)
	}
	if c.Hessian.K < 1 {
		return fmt.Errorf("config: hessian.k must be positive, got %d", c.Hessian.K)
	}
	if c.Hessian.Batches < 1 {
		return fmt.Errorf("config: hessian.batches must be positive, got %d", c.Hessian.Batches)
	}
	return nil
}

// Scheme parses the integrator field. Call Validate first.
func (c *Config) Scheme() integrators.Scheme {
	s, _ := integrators.ParseScheme(c.Integrator)
	return s
}

// Act parses the activation field. Call Validate first.
func (c *Config) Act() model.Activation {
	a, _ := model.ParseActivation(c.Activation)
	return a
}
