package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"go.uber.org/zap"

	appscans "github.com/bryanwahyu/acunetix-report-sender/internal/application/scans"
	"github.com/bryanwahyu/acunetix-report-sender/internal/config"
	"github.com/bryanwahyu/acunetix-report-sender/internal/infra/httpserver"
	"github.com/bryanwahyu/acunetix-report-sender/internal/logging"
)

type runCmd struct {
	Since time.Duration `arg:"--since" help:"only process scans completed within this window (overrides settings.sinceWindow)"`
}

type serveCmd struct {
	Port       int  `arg:"--port,env:PORT" help:"listen port (overrides server.port)"`
	NoSchedule bool `arg:"--no-schedule" help:"only run cycles when triggered over HTTP"`
}

type initConfigCmd struct{}

type args struct {
	Config     string         `arg:"-c,--config,env:CONFIG_PATH" default:"config.yaml" help:"path to the YAML config file"`
	Run        *runCmd        `arg:"subcommand:run" help:"run one processing cycle and exit"`
	Serve      *serveCmd      `arg:"subcommand:serve" help:"serve the HTTP API and run cycles on an interval"`
	InitConfig *initConfigCmd `arg:"subcommand:init-config" help:"write a default config file"`
}

func (args) Description() string {
	return "Emails Acunetix reports for newly completed scans, once per scan."
}

func main() {
	var a args
	p := arg.MustParse(&a)

	if a.InitConfig != nil {
		if err := writeDefaultConfig(a.Config); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("default config written to %s\n", a.Config)
		return
	}

	cfg, err := config.Load(a.Config)
	if err != nil {
		p.Fail(fmt.Sprintf("config load error: %v", err))
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config %s:\n%v\n", a.Config, err)
		os.Exit(1)
	}

	log, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File, JSON: cfg.Log.JSON})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		os.Exit(1)
	}
	defer app.Close()

	switch {
	case a.Serve != nil:
		err = serve(ctx, app, cfg, a.Serve, log)
	default:
		window := cfg.Settings.SinceWindow
		if a.Run != nil && a.Run.Since > 0 {
			window = a.Run.Since
		}
		err = runOnce(ctx, app, window)
	}
	if err != nil {
		log.Error("exiting with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func writeDefaultConfig(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%s already exists, not overwriting", path)
	}
	if err != nil {
		return err
	}
	if _, err := f.Write(config.DefaultYAML()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runOnce(ctx context.Context, app *app, window time.Duration) error {
	_, err := app.Cycles.RunCycle(ctx, sinceFor(window))
	return err
}

func sinceFor(window time.Duration) time.Time {
	if window <= 0 {
		return time.Time{}
	}
	return time.Now().Add(-window)
}

func serve(ctx context.Context, app *app, cfg *config.Config, opts *serveCmd, log *zap.Logger) error {
	port := cfg.Server.Port
	if opts.Port > 0 {
		port = opts.Port
	}

	keys := make(map[string]string, len(cfg.Server.APIKeys))
	for i, k := range cfg.Server.APIKeys {
		keys[fmt.Sprintf("key-%d", i+1)] = k
	}
	if len(keys) == 0 {
		log.Warn("server.apiKeys is empty, /v1 endpoints are unauthenticated")
	}

	handler := httpserver.NewRouter(httpserver.Deps{
		Cycles:         app.Cycles,
		Since:          func() time.Time { return sinceFor(cfg.Settings.SinceWindow) },
		Metrics:        app.Metrics,
		Health:         app.Health,
		APIKeys:        keys,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
		Log:            log.Named("http"),
	})

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		// POST /v1/cycles answers only after the whole cycle
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	if !opts.NoSchedule && cfg.Settings.ScanCheckDelay > 0 {
		go schedule(ctx, app, cfg.Settings.ScanCheckDelay, cfg.Settings.SinceWindow, log.Named("scheduler"))
	}

	select {
	case <-ctx.Done():
	case err := <-errc:
		return err
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// schedule runs a cycle now and then every interval until ctx ends.
func schedule(ctx context.Context, app *app, interval, window time.Duration, log *zap.Logger) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		sum, err := app.Cycles.TryRunCycle(ctx, sinceFor(window))
		switch {
		case errors.Is(err, appscans.ErrCycleRunning):
			log.Debug("cycle already running, skipping tick")
		default:
			app.Metrics.ObserveCycle(sum.Processed, sum.Failed, err)
			if err != nil {
				log.Error("scheduled cycle failed", zap.Error(err))
			}
		}
		log.Info("next cycle scheduled", zap.Duration("in", interval))

		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}
