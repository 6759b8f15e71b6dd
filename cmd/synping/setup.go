package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tkjaer/synping/internal/config"
	"github.com/tkjaer/synping/internal/output"
	"github.com/tkjaer/synping/internal/probe"
	"github.com/tkjaer/synping/internal/report"
	"github.com/tkjaer/synping/internal/shared"
	"github.com/tkjaer/synping/pkg/iface"
	"github.com/tkjaer/synping/pkg/rawsock"
	"github.com/tkjaer/synping/pkg/resolve"
	"github.com/tkjaer/synping/pkg/route"
)

func newResolver(args config.Args) *resolve.Resolver {
	if args.Nameserver != "" {
		return resolve.New(resolve.WithNameserver(args.Nameserver))
	}
	return resolve.New()
}

// sourceFunc probes from the interface's address if one is given, otherwise
// from whatever address the kernel routes each destination from
func sourceFunc(ifaceName string) (probe.SourceFunc, error) {
	if ifaceName == "" {
		return route.Source, nil
	}
	_, addr, err := iface.Lookup(ifaceName)
	if err != nil {
		return nil, err
	}
	return probe.FixedSource(addr), nil
}

// Variables for mocking in tests.
var (
	openSocket  = rawsock.Open
	openCapture = rawsock.OpenCapture
	getRoute    = route.Get
)

// openConn opens the raw connection. In pcap mode replies are captured on the
// given interface, or the one routing the first destination.
func openConn(args config.Args, first shared.Destination) (rawsock.Conn, error) {
	if args.Capture != config.CapturePcap {
		return openSocket()
	}
	name := args.Interface
	if name == "" {
		r, err := getRoute(first.Key.Addr)
		if err != nil {
			return nil, err
		}
		if r.Interface == nil {
			return nil, fmt.Errorf("no capture interface for %v", first.Key.Addr)
		}
		name = r.Interface.Name
	}
	slog.Debug("Capturing replies", "interface", name, "local", first.Source)
	return openCapture(name, first.Source)
}

type outputs struct {
	options  []probe.Option
	metrics  *output.MetricsOutput
	reporter *report.Reporter
}

// buildOutputs turns the output flags into probe manager options
func buildOutputs(args config.Args, stdout io.Writer, summaries report.SummaryFunc) (outputs, error) {
	var out outputs

	if args.Json {
		j, err := output.NewJSONOutput("")
		if err != nil {
			return out, err
		}
		out.options = append(out.options, probe.WithOutput(j))
	} else {
		out.options = append(out.options, probe.WithOutput(output.NewTextOutput(stdout)))
	}

	if args.JsonFile != "" {
		j, err := output.NewJSONOutput(args.JsonFile)
		if err != nil {
			return out, fmt.Errorf("failed to open JSON file: %w", err)
		}
		out.options = append(out.options, probe.WithOutput(j))
	}

	if args.MetricsAddr != "" {
		out.metrics = output.NewMetricsOutput()
		out.options = append(out.options, probe.WithOutput(out.metrics))
	}

	if args.EmailEnabled() {
		sink, err := report.NewEmailSink(args.SMTPServer, args.EmailFrom, args.EmailPassword, args.EmailTo)
		if err != nil {
			return out, err
		}
		out.reporter, err = report.NewReporter(sink, args.EmailInterval, summaries)
		if err != nil {
			return out, err
		}
		out.options = append(out.options, probe.WithOutput(out.reporter))
	}

	return out, nil
}

func serveMetrics(addr string, metrics http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		slog.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	return srv
}
