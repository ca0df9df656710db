package app

import (
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/vk/magetbrain-bids/internal/catalog"
	"github.com/vk/magetbrain-bids/internal/monitor"
	"github.com/vk/magetbrain-bids/internal/pipeline"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW      io.Writer
	logger    *slog.Logger
	config    *Config
	fs        afero.Fs
	env       map[string]string
	runner    pipeline.Runner
	publisher monitor.Publisher

	httpServer *http.Server
	status     status
}

// Option customises an App. Options exist mainly for tests.
type Option func(*App)

// WithFS replaces the OS filesystem.
func WithFS(fs afero.Fs) Option {
	return func(a *App) { a.fs = fs }
}

// WithRunner replaces the command runner.
func WithRunner(r pipeline.Runner) Option {
	return func(a *App) { a.runner = r }
}

// WithPublisher replaces the monitor connection made from MonitorURL.
func WithPublisher(p monitor.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithEnv replaces the process environment seen by the atlas catalog.
func WithEnv(env map[string]string) Option {
	return func(a *App) { a.env = env }
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger.
func NewApp(outW io.Writer, cfg *Config, opts ...Option) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	a := &App{
		outW:   outW,
		logger: logger,
		config: cfg,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.fs == nil {
		a.fs = afero.NewOsFs()
	}
	if a.env == nil {
		a.env = catalog.Environ()
	}
	if a.runner == nil {
		if cfg.DryRun {
			a.runner = &pipeline.DryRunner{Out: outW}
		} else {
			a.runner = &pipeline.ExecRunner{Out: outW, OnLine: a.onLine}
		}
	}
	return a
}

// Status is a snapshot of what the App is doing.
type Status struct {
	Stage     string    `json:"stage"`
	Step      string    `json:"step"`
	Command   string    `json:"command,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Done      bool      `json:"done"`
	Error     string    `json:"error,omitempty"`
}

// status is the mutex-guarded current Status, read by the status endpoint.
type status struct {
	mu  sync.Mutex
	cur Status
}

func (s *status) set(fn func(*Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.cur)
}

func (s *status) get() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Status returns the current run status.
func (a *App) Status() Status {
	return a.status.get()
}
