package app

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/vk/magetbrain-bids/internal/pipeline"
)

// DefaultSegmentationType is used when no segmentation type is given.
const DefaultSegmentationType = "all"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	BIDSDir       string
	OutputDir     string
	AnalysisLevel pipeline.Stage

	ParticipantLabels []string
	SegmentationType  string
	NCPUs             int
	Fast              bool
	LabelMasking      bool
	NoCleanup         bool

	SkipBIDSValidator bool
	DryRun            bool
	CatalogPath       string // empty means the embedded catalog
	AtlasRoot         string // overrides the catalog's atlas_root

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	MonitorURL      string
	MonitorInsecure bool // skip TLS verification of MonitorURL
}

// NewConfig validates cfg, fills in defaults and makes the directory paths
// absolute, since the pipeline runs with the output directory as its
// working directory.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.BIDSDir == "" {
		return nil, errors.New("BIDSDir is a required configuration field and cannot be empty")
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("OutputDir is a required configuration field and cannot be empty")
	}
	if _, err := pipeline.ParseStage(string(cfg.AnalysisLevel)); err != nil {
		return nil, err
	}
	if cfg.NCPUs < 1 {
		return nil, fmt.Errorf("n_cpus must be at least 1, got %d", cfg.NCPUs)
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("healthcheck port %d is out of range", cfg.HealthcheckPort)
	}
	if cfg.SegmentationType == "" {
		cfg.SegmentationType = DefaultSegmentationType
	}

	var err error
	if cfg.BIDSDir, err = filepath.Abs(cfg.BIDSDir); err != nil {
		return nil, fmt.Errorf("failed to resolve bids_dir: %w", err)
	}
	if cfg.OutputDir, err = filepath.Abs(cfg.OutputDir); err != nil {
		return nil, fmt.Errorf("failed to resolve output_dir: %w", err)
	}

	return &cfg, nil
}
