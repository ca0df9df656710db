package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/vk/magetbrain-bids/internal/bids"
	"github.com/vk/magetbrain-bids/internal/catalog"
	"github.com/vk/magetbrain-bids/internal/ctxlog"
	"github.com/vk/magetbrain-bids/internal/monitor"
	"github.com/vk/magetbrain-bids/internal/pipeline"
	"github.com/vk/magetbrain-bids/internal/staging"
)

// Run executes one BIDS App invocation: validate the dataset, initialise
// the pipeline tree, stage atlases, then stage inputs for and run the
// configured analysis level. The first failing step ends the run.
func (a *App) Run(ctx context.Context) (err error) {
	cfg := a.config
	ctx = ctxlog.WithLogger(ctx, a.logger.With("stage", string(cfg.AnalysisLevel)))
	logger := ctxlog.FromContext(ctx)
	logger.Debug("App.Run method started.")

	a.status.set(func(s *Status) {
		s.Stage = string(cfg.AnalysisLevel)
		s.Step = "starting"
		s.StartedAt = time.Now()
	})
	defer func() {
		a.status.set(func(s *Status) {
			s.Done = true
			s.Command = ""
			if err != nil {
				s.Error = err.Error()
			}
		})
	}()

	cat, err := a.loadCatalog(ctx)
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		Driver:         cat.Pipeline.Driver,
		FastRegCommand: cat.Pipeline.FastRegCommand,
		NCPUs:          cfg.NCPUs,
		Fast:           cfg.Fast,
		LabelMasking:   cfg.LabelMasking,
		Dir:            cfg.OutputDir,
	}

	atlasPlan, err := cat.Plan(a.fs, cfg.SegmentationType, filepath.Join(cfg.OutputDir, staging.AtlasDir))
	if err != nil {
		return err
	}
	logger.Info("Atlas plan resolved.", "segmentation_type", cfg.SegmentationType, "files", len(atlasPlan))

	if cfg.HealthcheckPort > 0 {
		a.healthCheckServer(ctx)
		defer a.closeHealthCheckServer(ctx)
	}

	a.connectMonitor(ctx)
	defer func() {
		if cerr := a.publisher.Close(); cerr != nil {
			logger.Warn("Failed to close monitor connection", "error", cerr)
		}
	}()

	if cfg.SkipBIDSValidator {
		logger.Warn("Skipping BIDS validation.")
	} else if err := a.runStep(ctx, "validate", pipeline.Validator(cat.Pipeline.Validator, cfg.BIDSDir)); err != nil {
		return err
	}

	if !cfg.DryRun {
		if err := a.fs.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := a.runStep(ctx, "init", pipeline.Init(opts)); err != nil {
		return err
	}

	stager := &staging.Stager{FS: a.fs, DryRun: cfg.DryRun}
	a.setStep("stage atlases", "")
	if err := stager.CopyAll(ctx, atlasPlan); err != nil {
		return fmt.Errorf("failed to stage atlases: %w", err)
	}

	switch cfg.AnalysisLevel {
	case pipeline.StageTemplate:
		err = a.runTemplate(ctx, stager, opts, cat.Pipeline.TemplateLimit)
	case pipeline.StageSubject:
		err = a.runSubject(ctx, stager, opts)
	case pipeline.StageGroup:
		err = a.runGroup(ctx, stager, opts)
	default:
		err = fmt.Errorf("unsupported analysis level %q", cfg.AnalysisLevel)
	}
	if err != nil {
		return err
	}

	logger.Info("🏁 Analysis level finished.")
	return nil
}

func (a *App) loadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	var (
		cat *catalog.Catalog
		err error
	)
	if a.config.CatalogPath != "" {
		cat, err = catalog.LoadFile(ctx, a.fs, a.config.CatalogPath, a.env)
	} else {
		cat, err = catalog.LoadDefault(ctx, a.env)
	}
	if err != nil {
		return nil, err
	}
	if a.config.AtlasRoot != "" {
		cat.AtlasRoot = a.config.AtlasRoot
	}
	return cat, nil
}

func (a *App) selectSubjects(ctx context.Context) ([]string, error) {
	subjects, err := bids.SelectSubjects(a.fs, a.config.BIDSDir, a.config.ParticipantLabels)
	if err != nil {
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	if len(subjects) == 0 {
		return nil, fmt.Errorf("no subjects found in %s", a.config.BIDSDir)
	}
	ctxlog.FromContext(ctx).Info("Subjects selected.", "count", len(subjects), "subjects", subjects)
	return subjects, nil
}

func (a *App) runTemplate(ctx context.Context, stager *staging.Stager, opts pipeline.Options, limit int) error {
	subjects, err := a.selectSubjects(ctx)
	if err != nil {
		return err
	}
	explicit := len(a.config.ParticipantLabels) > 0
	if !explicit && len(subjects) > limit {
		ctxlog.FromContext(ctx).Info("Limiting template library.", "subjects", len(subjects), "limit", limit)
	}

	plan, err := staging.TemplatePlan(a.fs, a.config.BIDSDir, a.config.OutputDir, subjects, limit, explicit)
	if err != nil {
		return err
	}
	a.setStep("stage templates", "")
	if err := stager.CopyAll(ctx, plan); err != nil {
		return fmt.Errorf("failed to stage templates: %w", err)
	}
	return a.runStep(ctx, "template", pipeline.Template(opts, staging.Destinations(plan)))
}

func (a *App) runSubject(ctx context.Context, stager *staging.Stager, opts pipeline.Options) error {
	subjects, err := a.selectSubjects(ctx)
	if err != nil {
		return err
	}
	plan, err := staging.SubjectPlan(a.fs, a.config.BIDSDir, a.config.OutputDir, subjects)
	if err != nil {
		return err
	}
	if len(plan) == 0 {
		return errors.New("no T1w images found for the selected subjects")
	}
	a.setStep("stage subjects", "")
	if err := stager.CopyAll(ctx, plan); err != nil {
		return fmt.Errorf("failed to stage subjects: %w", err)
	}
	return a.runStep(ctx, "subject", pipeline.Subject(opts, staging.Destinations(plan)))
}

func (a *App) runGroup(ctx context.Context, stager *staging.Stager, opts pipeline.Options) error {
	if err := a.runStep(ctx, "group", pipeline.Group(opts)); err != nil {
		return err
	}
	if a.config.NoCleanup {
		ctxlog.FromContext(ctx).Info("Keeping intermediate files.")
		return nil
	}
	a.setStep("cleanup", "")
	return stager.Cleanup(ctx, a.config.OutputDir)
}

// runStep runs one external command and reports it to the monitor.
func (a *App) runStep(ctx context.Context, step string, cmd pipeline.Command) error {
	ctx = ctxlog.With(ctx, "step", step)
	a.setStep(step, cmd.String())
	a.publish(monitor.Event{Kind: monitor.KindStarted, Command: cmd.String()})

	err := a.runner.Run(ctx, cmd)

	done := monitor.Event{Kind: monitor.KindFinished, Command: cmd.String()}
	if err != nil {
		done.ExitCode = 1
		var exitErr *pipeline.ExitCodeError
		if errors.As(err, &exitErr) {
			done.ExitCode = exitErr.Code
		}
		done.Error = err.Error()
	}
	a.publish(done)

	if err != nil {
		return fmt.Errorf("%s step failed: %w", step, err)
	}
	return nil
}

func (a *App) setStep(step, command string) {
	a.status.set(func(s *Status) {
		s.Step = step
		s.Command = command
	})
}

// onLine forwards a line of pipeline output to the monitor.
func (a *App) onLine(cmd pipeline.Command, line string) {
	a.publish(monitor.Event{Kind: monitor.KindLine, Command: cmd.String(), Line: line})
}

func (a *App) publish(e monitor.Event) {
	if a.publisher == nil {
		return
	}
	e.Stage = string(a.config.AnalysisLevel)
	e.Time = time.Now()
	a.publisher.Publish(e)
}

// connectMonitor dials the configured monitor unless a publisher was
// injected. The monitor is optional, so a failed connection only warns.
func (a *App) connectMonitor(ctx context.Context) {
	if a.publisher != nil {
		return
	}
	a.publisher = monitor.Nop{}
	if a.config.MonitorURL == "" {
		return
	}
	p, err := monitor.DialSocketIO(ctx, a.config.MonitorURL, a.config.MonitorInsecure)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Monitor unavailable, continuing without it.", "error", err)
		return
	}
	a.publisher = p
}
