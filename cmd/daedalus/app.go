package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wehubfusion/Daedalus/internal/tracing"
	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	"github.com/wehubfusion/Daedalus/pkg/driver"
	"github.com/wehubfusion/Daedalus/pkg/engine"
	"github.com/wehubfusion/Daedalus/pkg/executors"
	"github.com/wehubfusion/Daedalus/pkg/registry"
	"github.com/wehubfusion/Daedalus/pkg/spec"
)

const serviceName = "daedalus"

// app holds the process-wide services of one command invocation.
type app struct {
	logger        *zap.Logger
	sentry        bool
	undoMaxProcs  func()
	traceShutdown func(context.Context) error
}

func newApp(ctx context.Context, flags *rootFlags) (*app, error) {
	logger, err := newLogger(flags.verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	a := &app{logger: logger, undoMaxProcs: concurrency.SetMaxProcs(logger)}

	dsn := flags.sentryDSN
	if dsn == "" {
		dsn = os.Getenv("SENTRY_DSN")
	}
	if dsn != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Environment: flags.environment,
			Release:     serviceName,
		})
		if err != nil {
			logger.Warn("failed to initialize sentry", zap.Error(err))
		} else {
			a.sentry = true
		}
	}

	cfg, err := tracing.LoadConfig(serviceName)
	if err != nil {
		return nil, err
	}
	if flags.otlpEndpoint != "" {
		cfg.OTLPEndpoint = flags.otlpEndpoint
	}
	if flags.environment != "" {
		cfg.Environment = flags.environment
	}
	if ctx == nil {
		ctx = context.Background()
	}
	a.traceShutdown, err = tracing.Setup(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// withApp runs fn with the process services set up, reporting its error
// or panic to Sentry and tearing everything down afterwards.
func (f *rootFlags) withApp(cmd *cobra.Command, fn func(*app) error) (err error) {
	a, err := newApp(cmd.Context(), f)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			if a.sentry {
				sentry.CurrentHub().Recover(r)
				sentry.Flush(2 * time.Second)
			}
			panic(r)
		}
		if err != nil && a.sentry {
			sentry.CaptureException(err)
		}
		if cerr := a.close(); err == nil {
			err = cerr
		}
	}()
	return fn(a)
}

func (a *app) close() error {
	var errs []error
	if a.traceShutdown != nil {
		errs = append(errs, tracing.Shutdown(a.traceShutdown, 5*time.Second, a.logger))
	}
	if a.sentry {
		sentry.Flush(2 * time.Second)
	}
	a.undoMaxProcs()
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

// newDriver builds an engine over a fresh registry with every built-in
// executor registered.
func (a *app) newDriver() (*driver.Driver, *engine.Engine, error) {
	cfg, err := engine.LoadConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}
	reg := registry.New(a.logger)
	e, err := engine.New(reg, executors.NewFactory(),
		engine.WithConfig(cfg),
		engine.WithLogger(a.logger))
	if err != nil {
		return nil, nil, err
	}
	d, err := driver.New(e, reg, a.logger)
	if err != nil {
		_ = e.Close()
		return nil, nil, err
	}
	return d, e, nil
}

func loadCatalog(paths []string) (*spec.Catalog, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: at least one --catalog is required", errUsage)
	}
	return spec.LoadCatalog(paths...)
}
