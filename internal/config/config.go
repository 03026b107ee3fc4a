// Package config loads the YAML analysis definition and builds the cut tree,
// its histogram bindings and the linear cutflow lists from it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/cutflow/internal/cuttree"
)

// ErrInvalid is returned by Validate for a malformed analysis definition.
var ErrInvalid = errors.New("invalid analysis config")

// #region types
// Config is the analysis definition. Strategy accepts only "record": the
// funcs and fields strategies need callbacks or bound values that YAML cannot
// carry, so programmatic trees select them with cuttree.WithStrategy.
type Config struct {
	Name         string          `yaml:"name"`
	Root         string          `yaml:"root"`
	Strategy     string          `yaml:"strategy"`
	Cuts         []CutConfig     `yaml:"cuts,omitempty"`
	Systematics  []SystConfig    `yaml:"systematics,omitempty"`
	Hists        []Hist1DConfig  `yaml:"hists,omitempty"`
	Hists2D      []Hist2DConfig  `yaml:"hists2d,omitempty"`
	Cutflows     []CutflowConfig `yaml:"cutflows,omitempty"`
	Workers      int             `yaml:"workers"`
	RecordEvents bool            `yaml:"record_events"`
	DB           string          `yaml:"db,omitempty"`
}

// CutConfig declares one cut and its children.
type CutConfig struct {
	Name string      `yaml:"name"`
	Cuts []CutConfig `yaml:"cuts,omitempty"`
}

// SystConfig registers a systematic context on every cut whose name contains
// one of the patterns. No patterns means every cut below the root.
type SystConfig struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns,omitempty"`
}

// AxisConfig is a uniform binning over one record field.
type AxisConfig struct {
	Field string  `yaml:"field"`
	Bins  int     `yaml:"bins"`
	Lo    float64 `yaml:"lo"`
	Hi    float64 `yaml:"hi"`
}

// Hist1DConfig books a 1-D histogram at each listed cut.
type Hist1DConfig struct {
	Name string     `yaml:"name"`
	Axis AxisConfig `yaml:",inline"`
	Cuts []string   `yaml:"cuts,omitempty"`
}

// Hist2DConfig books a 2-D histogram at each listed cut.
type Hist2DConfig struct {
	Name string     `yaml:"name"`
	X    AxisConfig `yaml:"x"`
	Y    AxisConfig `yaml:"y"`
	Cuts []string   `yaml:"cuts,omitempty"`
}

// CutflowConfig is one named linear cutflow list.
type CutflowConfig struct {
	Name string   `yaml:"name"`
	Cuts []string `yaml:"cuts,omitempty"`
}

// #endregion types

// #region load
// Default returns an empty analysis with a root cut and one worker.
func Default() *Config {
	return &Config{
		Name:         "analysis",
		Root:         "Root",
		Strategy:     cuttree.StrategyRecord.String(),
		Workers:      1,
		RecordEvents: true,
	}
}

// Load reads an analysis definition from path over the defaults, then applies
// CUTFLOW_WORKERS and CUTFLOW_DB from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("CUTFLOW_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse CUTFLOW_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v := os.Getenv("CUTFLOW_DB"); v != "" {
		c.DB = v
	}
	return nil
}

// Save writes the definition as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// #endregion load

// #region validate
// Validate checks that cut names are unique and that every histogram and
// cutflow refers to declared cuts with sane binning.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("%w: root cut name is empty", ErrInvalid)
	}
	strategy, err := cuttree.ParseStrategy(c.Strategy)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if strategy != cuttree.StrategyRecord {
		return fmt.Errorf("%w: strategy %q needs callbacks or bound fields; pass cuttree.WithStrategy to Build instead", ErrInvalid, c.Strategy)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", ErrInvalid, c.Workers)
	}

	names := map[string]bool{c.Root: true}
	var walk func([]CutConfig) error
	walk = func(cuts []CutConfig) error {
		for _, cut := range cuts {
			if cut.Name == "" {
				return fmt.Errorf("%w: cut with empty name", ErrInvalid)
			}
			if names[cut.Name] {
				return fmt.Errorf("%w: duplicate cut %q", ErrInvalid, cut.Name)
			}
			names[cut.Name] = true
			if err := walk(cut.Cuts); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(c.Cuts); err != nil {
		return err
	}

	for _, s := range c.Systematics {
		if s.Name == "" {
			return fmt.Errorf("%w: systematic with empty name", ErrInvalid)
		}
	}
	for _, h := range c.Hists {
		if err := h.Axis.validate(h.Name); err != nil {
			return err
		}
		if err := knownCuts(names, h.Name, h.Cuts); err != nil {
			return err
		}
	}
	for _, h := range c.Hists2D {
		if err := h.X.validate(h.Name + ".x"); err != nil {
			return err
		}
		if err := h.Y.validate(h.Name + ".y"); err != nil {
			return err
		}
		if err := knownCuts(names, h.Name, h.Cuts); err != nil {
			return err
		}
	}
	for _, cf := range c.Cutflows {
		if cf.Name == "" || len(cf.Cuts) == 0 {
			return fmt.Errorf("%w: cutflow %q needs a name and at least one cut", ErrInvalid, cf.Name)
		}
	}
	return nil
}

func (a AxisConfig) validate(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: histogram with empty name", ErrInvalid)
	case a.Field == "":
		return fmt.Errorf("%w: histogram %s has no field", ErrInvalid, name)
	case a.Bins < 1:
		return fmt.Errorf("%w: histogram %s needs at least one bin", ErrInvalid, name)
	case !(a.Hi > a.Lo):
		return fmt.Errorf("%w: histogram %s range [%g, %g) is empty", ErrInvalid, name, a.Lo, a.Hi)
	}
	return nil
}

func knownCuts(names map[string]bool, hist string, cuts []string) error {
	if len(cuts) == 0 {
		return fmt.Errorf("%w: histogram %s is not booked at any cut", ErrInvalid, hist)
	}
	for _, c := range cuts {
		if !names[c] {
			return fmt.Errorf("%w: histogram %s booked at unknown cut %q", ErrInvalid, hist, c)
		}
	}
	return nil
}

// #endregion validate
