package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/magetbrain-bids/internal/app"
	"github.com/vk/magetbrain-bids/internal/pipeline"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("magetbrain-bids", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
MAGeTbrain BIDS App entrypoint.

Usage:
  magetbrain-bids [options] BIDS_DIR OUTPUT_DIR ANALYSIS_LEVEL

Arguments:
  BIDS_DIR
    The directory with the input dataset formatted according to the BIDS standard.
  OUTPUT_DIR
    The directory where the output files should be stored. When running the
    group level analysis this folder must be prepopulated with the results of
    the participant level analyses.
  ANALYSIS_LEVEL
    One of participant1 (template stage), participant2 (subject stage) or
    group (resample + vote + qc stage). Run them in that order. Multiple
    participant level analyses can run independently on the same OUTPUT_DIR.

Options:
`)
		flagSet.PrintDefaults()
	}

	var labels stringList
	flagSet.Var(&labels, "participant_label", "The label(s) of the participant(s) that should be analyzed, without the \"sub-\" prefix.\nMultiple participants can be given as a space separated list. Default: all subjects.")
	segTypeFlag := flagSet.String("segmentation_type", app.DefaultSegmentationType, "The segmentation label type to be used: amygdala, cerebellum, hippocampus-whitematter,\ncolin27-subcortical or all. colin27-subcortical is on a different atlas, is not part of all\nand must be run separately.")
	nCPUsFlag := flagSet.Int("n_cpus", 1, "Number of CPUs/cores available to use.")
	fastFlag := flagSet.Bool("fast", false, "Use faster (less accurate) registration calls.")
	labelMaskingFlag := flagSet.Bool("label-masking", false, "Use the input labels as registration masks to reduce computation and (possibly) improve registration.")
	noCleanupFlag := flagSet.Bool("no-cleanup", false, "Do not clean up intermediate files after the group phase.")
	versionFlag := flagSet.Bool("version", false, "Print the MAGeTbrain version and exit.")
	vFlag := flagSet.Bool("v", false, "Print the MAGeTbrain version and exit (shorthand).")

	skipValidatorFlag := flagSet.Bool("skip_bids_validator", false, "Do not validate the input dataset.")
	dryRunFlag := flagSet.Bool("dry-run", false, "Print the commands and copies that would run, without running them.")
	catalogFlag := flagSet.String("catalog", "", "Path to an HCL atlas catalog. Default: the built-in catalog.")
	atlasRootFlag := flagSet.String("atlas-root", "", "Directory holding the atlas images. Overrides the catalog's atlas_root.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check and status server. 0 is disabled.")
	monitorURLFlag := flagSet.String("monitor-url", "", "Socket.IO endpoint that receives pipeline progress events.")
	monitorInsecureFlag := flagSet.Bool("monitor-insecure", false, "Skip TLS certificate verification for --monitor-url.")

	flags, positionals, err := splitArgs(flagSet, args)
	if err != nil {
		return nil, false, usageError("%v", err)
	}

	if err := flagSet.Parse(flags); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, usageError("%v", err)
	}
	slog.Debug("Arguments parsed successfully.", "positionals", positionals)

	if *versionFlag || *vFlag {
		fmt.Fprintf(output, "MAGeTbrain version %s\n", version())
		return nil, true, nil
	}

	if len(positionals) == 0 {
		slog.Debug("No arguments provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}
	if len(positionals) != 3 {
		return nil, false, usageError("expected 3 positional arguments (bids_dir output_dir analysis_level), got %d: %v", len(positionals), positionals)
	}

	stage, err := pipeline.ParseStage(positionals[2])
	if err != nil {
		return nil, false, usageError("%v", err)
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, usageError("invalid log-format: must be 'text' or 'json'")
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		BIDSDir:           positionals[0],
		OutputDir:         positionals[1],
		AnalysisLevel:     stage,
		ParticipantLabels: labels,
		SegmentationType:  *segTypeFlag,
		NCPUs:             *nCPUsFlag,
		Fast:              *fastFlag,
		LabelMasking:      *labelMaskingFlag,
		NoCleanup:         *noCleanupFlag,
		SkipBIDSValidator: *skipValidatorFlag,
		DryRun:            *dryRunFlag,
		CatalogPath:       *catalogFlag,
		AtlasRoot:         *atlasRootFlag,
		LogFormat:         logFormat,
		LogLevel:          logLevel,
		HealthcheckPort:   *healthPortFlag,
		MonitorURL:        *monitorURLFlag,
		MonitorInsecure:   *monitorInsecureFlag,
	})
	if err != nil {
		return nil, false, usageError("%v", err)
	}

	slog.Debug("CLI parser finished successfully.",
		"bids_dir", config.BIDSDir,
		"output_dir", config.OutputDir,
		"analysis_level", config.AnalysisLevel,
		"segmentation_type", config.SegmentationType,
		"participants", len(config.ParticipantLabels),
		"n_cpus", config.NCPUs,
		"dry_run", config.DryRun,
		"monitor", config.MonitorURL != "",
	)
	return config, false, nil
}
