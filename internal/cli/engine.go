package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/example/learnsync/internal/config"
	"github.com/example/learnsync/internal/connectivity"
	"github.com/example/learnsync/internal/queue"
	"github.com/example/learnsync/internal/remote"
	"github.com/example/learnsync/internal/syncer"
	"github.com/example/learnsync/internal/tracker"
	"github.com/spf13/cobra"
)

// Engine is a fully wired sync engine
type Engine struct {
	Config    *config.Config
	LogOutput io.Writer
	Local     queue.Local
	Remote    remote.Store
	Gate      *connectivity.Gate
	Prober    *connectivity.Prober
	Tracker   *tracker.Tracker
}

// OpenEngine loads the configuration and opens both stores. The gate starts
// from a single probe of the remote store.
func OpenEngine(ctx context.Context) (*Engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	local, err := queue.Open(queue.Config{Backend: cfg.QueueBackend, DataDir: cfg.DataDir})
	if err != nil {
		return nil, err
	}
	r, err := remote.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		local.Close()
		return nil, err
	}

	e, err := NewEngine(cfg, local, r)
	if err != nil {
		local.Close()
		r.Close()
		return nil, err
	}
	e.Prober.Probe(ctx)
	return e, nil
}

// NewEngine wires the tracker over open stores. The gate starts offline.
func NewEngine(cfg *config.Config, local queue.Local, r remote.Store) (*Engine, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	out := cfg.LogOutput()

	gate := connectivity.NewGate(false, config.NewLogger(out, "connectivity"))
	t := tracker.New(local, r, gate, tracker.Options{
		Sync: syncer.Config{
			BatchSize:            cfg.BatchSize,
			MaxValidationRetries: cfg.MaxValidationRetries,
		},
		Location:  loc,
		LogOutput: out,
	})

	return &Engine{
		Config:    cfg,
		LogOutput: out,
		Local:     local,
		Remote:    r,
		Gate:      gate,
		Prober:    connectivity.NewProber(gate, r, 0, config.NewLogger(out, "connectivity")),
		Tracker:   t,
	}, nil
}

// Close stops the tracker, closes both stores and, with LOG_FILE set, the
// rotating log file
func (e *Engine) Close() error {
	e.Tracker.Close()
	err := errors.Join(e.Local.Close(), e.Remote.Close())
	if e.Config.LogFile != "" {
		if c, ok := e.LogOutput.(io.Closer); ok {
			err = errors.Join(err, c.Close())
		}
	}
	return err
}

func withEngine(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, e *Engine) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := opts.Open(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(ctx, e)
}
