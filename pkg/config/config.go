// Package config provides configuration loading and management for medialskel.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"medialskel/pkg/skeleton"
	"medialskel/pkg/surface"
	"medialskel/pkg/voronoi"
)

// Solver names accepted in the voronoi section
const (
	SolverQhull    = "qhull"
	SolverDelaunay = "delaunay"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Skeleton pruning and cleanup parameters
	Skeleton struct {
		// SearchTolerance enables the enclosed-point test when positive
		SearchTolerance float64 `yaml:"searchTolerance"`

		// Degrees is the minimum mesh edge distance between generators
		Degrees int `yaml:"degrees"`

		// PruneRatio is the minimum geodesic to Euclidean ratio
		PruneRatio float64 `yaml:"pruneRatio"`

		// Components is the number of connected components kept, 0 keeps all
		Components int `yaml:"components"`

		// Bins is the number of clustering bins on the longest axis, 0 disables clustering
		Bins int `yaml:"bins"`
	} `yaml:"skeleton"`

	// Surface preprocessing parameters
	Surface struct {
		// WeldTolerance merges boundary vertices closer than this distance
		WeldTolerance float64 `yaml:"weldTolerance"`
	} `yaml:"surface"`

	// Voronoi solver parameters
	Voronoi struct {
		// Solver is "qhull" or "delaunay"
		Solver string `yaml:"solver"`

		// QhullPath is the qhull binary, looked up in PATH when not absolute
		QhullPath string `yaml:"qhullPath"`

		// QhullArgs are the options passed to qhull
		QhullArgs []string `yaml:"qhullArgs"`

		// Joggle is the relative input perturbation of the delaunay solver
		Joggle float64 `yaml:"joggle"`

		// Seed drives the joggle
		Seed int64 `yaml:"seed"`

		// MergeTolerance merges Voronoi vertices closer than this fraction of the diagonal
		MergeTolerance float64 `yaml:"mergeTolerance"`
	} `yaml:"voronoi"`

	// Output parameters
	Output struct {
		// DiagramFile receives the raw Voronoi diagram when set
		DiagramFile string `yaml:"diagramFile"`
	} `yaml:"output"`

	// Logging parameters
	Logging struct {
		// Level is one of debug, info, warn, error
		Level string `yaml:"level"`

		// Development switches to the human readable console encoder
		Development bool `yaml:"development"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	params := skeleton.DefaultParams()
	cfg.Skeleton.SearchTolerance = params.SearchTolerance
	cfg.Skeleton.Degrees = params.Degrees
	cfg.Skeleton.PruneRatio = params.PruneRatio
	cfg.Skeleton.Components = params.Components
	cfg.Skeleton.Bins = params.Bins

	cfg.Surface.WeldTolerance = surface.DefaultWeldTolerance

	cfg.Voronoi.Solver = SolverQhull
	cfg.Voronoi.QhullPath = "qhull"
	cfg.Voronoi.QhullArgs = append([]string(nil), voronoi.DefaultQhullArgs...)
	cfg.Voronoi.Joggle = voronoi.DefaultJoggle
	cfg.Voronoi.Seed = voronoi.DefaultSeed
	cfg.Voronoi.MergeTolerance = voronoi.DefaultMergeTolerance

	cfg.Logging.Level = "info"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// Validate checks the values that the pipeline does not check itself
func (c *Config) Validate() error {
	if err := c.Params().Validate(); err != nil {
		return err
	}
	switch c.Voronoi.Solver {
	case SolverQhull, SolverDelaunay:
	default:
		return fmt.Errorf("unknown voronoi solver %q", c.Voronoi.Solver)
	}
	if c.Voronoi.Joggle < 0 || c.Voronoi.MergeTolerance < 0 {
		return fmt.Errorf("voronoi joggle and merge tolerance must not be negative")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging level: %w", err)
	}
	return nil
}

// Params converts the configuration to extraction parameters. Input and
// output files are left for the caller.
func (c *Config) Params() *skeleton.Params {
	return &skeleton.Params{
		SearchTolerance: c.Skeleton.SearchTolerance,
		Degrees:         c.Skeleton.Degrees,
		PruneRatio:      c.Skeleton.PruneRatio,
		Components:      c.Skeleton.Components,
		Bins:            c.Skeleton.Bins,
		WeldTolerance:   c.Surface.WeldTolerance,
		DiagramFile:     c.Output.DiagramFile,
	}
}

// Solver builds the configured Voronoi solver
func (c *Config) Solver(logger *zap.Logger) (voronoi.Solver, error) {
	switch c.Voronoi.Solver {
	case SolverQhull:
		s := voronoi.NewQhullSolver(c.Voronoi.QhullPath, logger)
		if len(c.Voronoi.QhullArgs) > 0 {
			s.Args = append([]string(nil), c.Voronoi.QhullArgs...)
		}
		return s, nil
	case SolverDelaunay:
		s := voronoi.NewDelaunaySolver(logger)
		s.Joggle = c.Voronoi.Joggle
		s.Seed = c.Voronoi.Seed
		s.MergeTolerance = c.Voronoi.MergeTolerance
		return s, nil
	default:
		return nil, fmt.Errorf("unknown voronoi solver %q", c.Voronoi.Solver)
	}
}

// Logger builds the configured zap logger
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid logging level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if c.Logging.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
