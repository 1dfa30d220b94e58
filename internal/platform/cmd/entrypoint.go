// Package cmd holds the startup plumbing shared by campaignsync commands:
// env then flag parsing, the process logger, and tracer lifetime.
package cmd

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/kindfund/campaignsync/internal/platform/config"
	"github.com/kindfund/campaignsync/internal/platform/otel"
	"github.com/kindfund/campaignsync/internal/platform/timeouts"
)

// Service names reported to tracing and used in log attributes.
const (
	ServiceRelay = "relay"
	ServiceWatch = "watch"
)

// ParseConfig loads environment values into cfg. Flags registered afterwards
// use those values as their defaults, so flags win over env.
func ParseConfig[T any](cfg *T) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	return config.ParseEnv(cfg)
}

// ParseArgs parses command-line flags.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag set is required")
	}
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}

// Logger returns the structured logger handed to library packages. Debug
// output is enabled when CAMPAIGNSYNC_DEBUG is set to a true value.
func Logger(service string) *slog.Logger {
	level := slog.LevelInfo
	if debug, _ := strconv.ParseBool(os.Getenv("CAMPAIGNSYNC_DEBUG")); debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("service", service)
}

// RunWithTelemetry installs the tracer provider for service, runs fn, and
// flushes spans once fn returns.
func RunWithTelemetry(ctx context.Context, service string, fn func(context.Context) error) error {
	service = strings.TrimSpace(service)
	if service == "" {
		return errors.New("service name is required")
	}
	if fn == nil {
		return errors.New("run function is required")
	}
	shutdown, err := otel.Setup(ctx, service)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			log.Printf("%s otel shutdown: %v", service, err)
		}
	}()
	return fn(ctx)
}
