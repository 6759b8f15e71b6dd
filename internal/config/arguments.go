package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/tkjaer/synping/internal/version"
)

const (
	CaptureSocket = "socket"
	CapturePcap   = "pcap"

	// MinEmailInterval is the shortest accepted email report interval
	MinEmailInterval = 5 * time.Second
)

type Args struct {
	Targets []string

	// Timing
	Interval time.Duration
	Count    uint
	Timeout  time.Duration // 0 = run until count is reached or interrupted

	// Network
	Interface  string // probe from this interface's address instead of the routed one
	Capture    string // socket or pcap
	Nameserver string // query this nameserver instead of the system resolver

	// Output
	Json        bool   // output json to stdout
	JsonFile    string // output json to file alongside the text output
	MetricsAddr string // serve Prometheus metrics on this address

	// Email reports
	EmailFrom     string
	EmailPassword string
	EmailTo       []string
	EmailInterval time.Duration
	SMTPServer    string

	// Logging
	Log      string // log file path, empty means stderr only
	LogLevel string // log level: debug, info, warn, error
}

func ParseArgs() (Args, error) {
	var args Args
	var showVersion bool

	// Set custom usage message
	flag.Usage = func() {
		println("synping - TCP SYN ping")
		println()
		println("Measures round-trip time and loss to TCP services by sending SYNs and timing the SYN/ACKs.")
		println()
		println("Usage:")
		println("  synping [OPTIONS] TARGET [TARGET...]")
		println()
		println("Targets are <ip-range>:<port-range>, where each octet and the port")
		println("accept comma separated numbers and ranges, or <hostname>:<port-range>.")
		println()
		println("Examples:")
		println("  synping 192.0.2.1:443                     # Ping one service")
		println("  synping -c 10 '192.0.2.1-5:80,443'        # 10 probes to 10 destinations")
		println("  synping -J -i 100ms www.example.com:443   # JSON to stdout")
		println("  synping --metrics-addr :9100 10.0.0.1:22  # Expose Prometheus metrics")
		println()
		println("Options:")
		flag.PrintDefaults()
		println()
		println("Raw sockets require root or CAP_NET_RAW.")
	}

	flag.BoolVarP(&showVersion, "version", "v", false, "Show version information")
	flag.DurationVarP(&args.Interval, "interval", "i", time.Second, "Delay between probes to each destination")
	flag.UintVarP(&args.Count, "count", "c", 0, "Number of probes per destination (0 = infinite)")
	flag.DurationVarP(&args.Timeout, "timeout", "t", 0, "Stop after this long (0 = no limit)")
	flag.StringVarP(&args.Interface, "interface", "I", "", "Send from the IPv4 address of this interface")
	flag.StringVar(&args.Capture, "capture", CaptureSocket, "Reply capture: socket or pcap")
	flag.StringVar(&args.Nameserver, "nameserver", "", "Resolve hostnames with this nameserver (ip[:port])")
	flag.StringVarP(&args.JsonFile, "json-file", "j", "", "Write JSON output to file")
	flag.BoolVarP(&args.Json, "json", "J", false, "Write JSON output to stdout instead of text")
	flag.StringVar(&args.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")
	flag.StringVar(&args.EmailFrom, "email-from", "", "Sender address for email reports")
	flag.StringVar(&args.EmailPassword, "email-password", "", "SMTP password of the sender")
	flag.StringSliceVar(&args.EmailTo, "email-to", nil, "Recipients of email reports")
	flag.DurationVar(&args.EmailInterval, "email-interval", 8*time.Second, "Interval between email reports")
	flag.StringVar(&args.SMTPServer, "smtp-server", "smtp.gmail.com:465", "SMTP server (implicit TLS)")
	flag.StringVarP(&args.Log, "log", "l", "", "Diagnostic log file (in addition to stderr)")
	flag.StringVar(&args.LogLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	flag.Parse()

	// Handle version flag
	if showVersion {
		fmt.Println(version.FullVersion())
		os.Exit(0)
	}

	args.Targets = flag.Args()

	switch {
	case len(args.Targets) == 0:
		return args, errors.New("at least one target is required")
	case args.Json && args.JsonFile != "":
		return args, errors.New("cannot use both --json and --json-file")
	case args.Capture != CaptureSocket && args.Capture != CapturePcap:
		return args, errors.New("capture must be either 'socket' or 'pcap'")
	case args.Interval < 0:
		return args, errors.New("interval must not be negative")
	case args.Timeout < 0:
		return args, errors.New("timeout must not be negative")
	case args.EmailFrom != "" && len(args.EmailTo) == 0:
		return args, errors.New("--email-from requires --email-to")
	case args.EmailFrom == "" && len(args.EmailTo) > 0:
		return args, errors.New("--email-to requires --email-from")
	case args.EmailEnabled() && args.EmailInterval < MinEmailInterval:
		return args, errors.New("email interval must be at least 5s")
	}

	return args, nil
}

// EmailEnabled reports whether email reports were requested
func (a Args) EmailEnabled() bool {
	return a.EmailFrom != "" && len(a.EmailTo) > 0
}
