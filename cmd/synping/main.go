package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tkjaer/synping/internal/config"
	"github.com/tkjaer/synping/internal/probe"
	"github.com/tkjaer/synping/internal/shared"
	"github.com/tkjaer/synping/internal/target"
)

func main() {
	os.Exit(run())
}

func run() int {
	args, err := config.ParseArgs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	// Setup logging
	logFile, err := config.SetupLogging(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logging: %v\n", err)
		return 1
	}
	if logFile != nil {
		defer logFile.Close()
	}

	// Ctrl+C and SIGTERM stop the run, as does the optional timeout
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if args.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, args.Timeout)
		defer cancel()
	}

	slog.Debug("Starting SYN ping",
		"targets", args.Targets,
		"interval", args.Interval,
		"count", args.Count,
		"capture", args.Capture,
	)

	targets := target.ExpandAll(args.Targets)
	if len(targets) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no valid targets")
		return 1
	}

	source, err := sourceFunc(args.Interface)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	destinations := probe.ResolveDestinations(ctx, targets, newResolver(args), source)
	if len(destinations) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no destination could be resolved")
		return 1
	}

	conn, err := openConn(args, destinations[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open raw socket: %v\n", err)
		return 1
	}
	defer conn.Close()

	// The reporter reads the manager's statistics, which only exist once the
	// manager is built
	var pm *probe.ProbeManager
	out, err := buildOutputs(args, os.Stdout, func() []shared.Summary { return pm.Summaries() })
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up outputs: %v\n", err)
		return 1
	}

	pm, err = probe.NewProbeManager(conn, destinations, out.options...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create probe manager: %v\n", err)
		return 1
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var srv *http.Server
	if out.metrics != nil {
		srv = serveMetrics(args.MetricsAddr, out.metrics.Handler())
	}
	if out.reporter != nil {
		go out.reporter.Run(runCtx)
	}

	if err := pm.Start(runCtx, args.Interval, args.Count); err != nil {
		slog.Error("Failed to start probe manager", "error", err)
		return 1
	}

	// Wait for either completion or interrupt
	select {
	case <-pm.Done():
		slog.Debug("All probes completed")
	case <-ctx.Done():
		slog.Debug("Stopping", "reason", context.Cause(ctx))
	}

	cancelRun()
	exitCode := 0
	if err := pm.Stop(); err != nil {
		slog.Error("Probe manager error", "error", err)
		exitCode = 1
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("Failed to stop metrics server", "error", err)
		}
	}

	slog.Debug("SYN ping completed")
	return exitCode
}
