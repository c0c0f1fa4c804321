package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fillScope/internal/chain"
	"fillScope/internal/config"
	"fillScope/internal/metrics"
)

// PhaseError names the phase a run failed in.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

func phase(name string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PhaseError
	if errors.As(err, &pe) {
		return err
	}
	return &PhaseError{Phase: name, Err: err}
}

// app holds what every command needs: validated config, logger, metrics
// and the RPC client.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	client  *chain.Client
	server  *http.Server
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		logger.Sync()
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &app{cfg: cfg, logger: logger, metrics: metrics.New()}, nil
}

// start connects the RPC client and the optional metrics endpoint.
func (a *app) start(ctx context.Context) error {
	client, err := chain.NewClient(ctx, chain.Config{
		URL:          a.cfg.RPCURL,
		CallDelay:    a.cfg.CallDelay,
		CallTimeout:  a.cfg.CallTimeout,
		MaxAttempts:  a.cfg.MaxAttempts,
		RetryBackoff: a.cfg.RetryBackoff,
	}, a.logger, a.metrics)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	a.client = client

	if a.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics.Handler())
		a.server = &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
		a.logger.Info("metrics server listening", zap.String("addr", a.cfg.MetricsAddr))
	}
	return nil
}

func (a *app) close() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.server.Shutdown(ctx)
		cancel()
	}
	if a.client != nil {
		a.client.Close()
	}
	_ = a.logger.Sync()
}

// path places relative file names under the output directory.
func (a *app) path(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(a.cfg.OutDir, name)
}

// execute runs fn with a signal-aware context and a started app.
func execute(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.start(ctx); err != nil {
		a.close()
		return err
	}
	defer a.close()

	return fn(ctx, a)
}
