// Command window-recorder records one on-screen window to a video file.
//
//	window-recorder --window firefox --output test.mp4
//	window-recorder list
//
// The first SIGINT/SIGTERM drains both branches and finalizes the output;
// a second one stops immediately and discards it.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	windowrecorder "github.com/e7canasta/orion-care-sensor/modules/window-recorder"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/logging"
)

const version = "v0.1.0"

// Exit codes
const (
	exitOK           = 0
	exitResolution   = 1
	exitConstruction = 2
	exitRuntime      = 3
)

type flags struct {
	config      string
	window      string
	output      string
	verbosity   string
	logFormat   string
	backend     string
	metricsAddr string
	export      string
}

func main() {
	os.Exit(run())
}

func run() int {
	var f flags
	code := exitOK

	root := &cobra.Command{
		Use:           "window-recorder",
		Short:         "Record a window to a video file while streaming frames to an analysis consumer",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &f)
			if err != nil {
				code = exitConstruction
				return err
			}
			code, err = record(cmd.Context(), cfg)
			return err
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&f.config, "config", "c", "", "Path to configuration file (.toml, .yaml)")
	pf.StringVarP(&f.verbosity, "verbosity", "v", "", "Log level: debug, info, warn, error or 0-5")
	pf.StringVar(&f.logFormat, "log-format", "", "Log format: text, json")
	root.Flags().StringVarP(&f.window, "window", "w", "", "Case-insensitive substring of the window title (default \"firefox\")")
	root.Flags().StringVarP(&f.output, "output", "o", "", "Output file (default \"test.mp4\")")
	root.Flags().StringVar(&f.backend, "backend", "", "Media backend: gstreamer, sim")
	root.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	root.Flags().StringVar(&f.export, "export", "", "Stream raw frames as msgpack records to this file or named pipe")

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the windows available for capture",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &f)
			if err != nil {
				code = exitConstruction
				return err
			}
			if err := listWindows(cmd.Context(), cfg); err != nil {
				code = exitResolution
				return err
			}
			return nil
		},
	})

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if code == exitOK {
			code = exitConstruction
		}
		return code
	}
	return code
}

// loadConfig reads the configuration file, applies the flags that were set
// explicitly and installs the logger.
func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	cfg := config.Default()
	if f.config != "" {
		loaded, err := config.Load(f.config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	set := func(name string, dst *string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = v
		}
	}
	set("window", &cfg.Target.Window, f.window)
	set("output", &cfg.Output.Path, f.output)
	set("verbosity", &cfg.Logging.Level, f.verbosity)
	set("log-format", &cfg.Logging.Format, f.logFormat)
	set("backend", &cfg.Backend, f.backend)
	set("metrics-addr", &cfg.Metrics.Addr, f.metricsAddr)
	set("export", &cfg.Export.Path, f.export)

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closeLog, err := logging.Setup(cfg.Logging, os.Stderr)
	if err != nil {
		return nil, err
	}
	cobra.OnFinalize(func() {
		if err := closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to flush log: %v\n", err)
		}
	})

	// GStreamer reads its own verbosity once, at init
	if os.Getenv("GST_DEBUG") == "" {
		level, _ := logging.ParseLevel(cfg.Logging.Level)
		os.Setenv("GST_DEBUG", strconv.Itoa(logging.GStreamerLevel(level)))
	}

	logger.Debug("main: configuration loaded", "config", f.config, "window", cfg.Target.Window, "output", cfg.Output.Path)
	return cfg, nil
}

func record(ctx context.Context, cfg *config.Config) (int, error) {
	logger := slog.Default()

	rec, err := windowrecorder.New(windowrecorder.WithConfig(cfg), windowrecorder.WithLogger(logger))
	if err != nil {
		return exitConstruction, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		logger.Info("main: signal received, finishing recording (repeat to abort)")
		rec.RequestShutdown()

		select {
		case <-sigCh:
			logger.Warn("main: second signal received, aborting")
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.Metrics.Addr != "" {
		stop := serveMetrics(cfg.Metrics.Addr, rec.MetricsHandler(), logger)
		defer stop()
	}

	logger.Info("main: recording",
		"window", cfg.Target.Window,
		"output", cfg.Output.Path,
		"backend", cfg.Backend,
		"version", version,
	)
	err = rec.Run(ctx)
	stats := rec.Stats()
	logger.Info("main: recording finished",
		"state", stats.State,
		"frames", stats.Frames,
		"overruns", stats.Overruns,
		"fps_mean", fmt.Sprintf("%.2f", stats.Cadence.FPSMean),
	)
	return exitCode(err), err
}

// exitCode maps a recording result to the process exit status.
func exitCode(err error) int {
	var (
		rerr *windowrecorder.ResolutionError
		cerr *windowrecorder.ConstructionError
	)
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &rerr):
		return exitResolution
	case errors.As(err, &cerr):
		return exitConstruction
	default:
		return exitRuntime
	}
}

func serveMetrics(addr string, handler http.Handler, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("main: metrics server failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("main: serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func listWindows(ctx context.Context, cfg *config.Config) error {
	rec, err := windowrecorder.New(windowrecorder.WithConfig(cfg))
	if err != nil {
		return err
	}
	windows, err := rec.Windows(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate windows: %w", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HANDLE\tPID\tTITLE\tPROCESS")
	for _, w := range windows {
		fmt.Fprintf(tw, "0x%08x\t%d\t%s\t%s\n", w.Handle, w.PID, w.Title, w.ProcessPath)
	}
	return tw.Flush()
}
