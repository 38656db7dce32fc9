package config

import "sort"

// Presets are ready-made training setups. Each starts from the defaults
// and overrides only what the preset is about.
var Presets = map[string]func(*Config){
	"smoke": func(c *Config) {
		c.Epochs = 20
		c.Hidden = 8
		c.TMax = 4.0
	},
	"euler-coarse": func(c *Config) {
		c.Integrator = "euler"
		c.Dt = 0.1
	},
	"large-angle": func(c *Config) {
		c.Theta0 = 2.8
		c.Epochs = 500
		c.Hidden = 64
	},
	"relu": func(c *Config) {
		c.Activation = "relu"
	},
	"regularized": func(c *Config) {
		c.WeightDecay = 1e-4
		c.Epochs = 400
	},
}

func GetPreset(name string) *Config {
	override, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	override(cfg)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
