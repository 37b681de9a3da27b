package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"cyclecal/internal/config"
	"cyclecal/internal/forecast"
	"cyclecal/internal/ics"
	appLog "cyclecal/internal/log"
	"cyclecal/internal/metrics"
	"cyclecal/internal/predictor"
	"cyclecal/internal/store"
	"cyclecal/internal/textgen"
	"cyclecal/internal/web"
)

const version = "0.3.0"

// app is everything the subcommands share once config is loaded.
type app struct {
	cfg      *config.Config
	loc      *time.Location
	store    *store.FileStore
	forecast *forecast.Service
	registry *prometheus.Registry
}

type cli struct {
	configPath string
	envFile    string
	logLevel   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		appLog.Error("cyclecal failed", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "cyclecal",
		Short:         "Menstrual cycle tracker with forecasts and a calendar feed",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "./config.yaml", "Path to the YAML config file")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "Optional dotenv file with secrets")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Override the configured log level")

	root.AddCommand(newServeCommand(c))
	root.AddCommand(newPredictCommand(c))
	root.AddCommand(newStatsCommand(c))
	root.AddCommand(newPhaseCommand(c))
	root.AddCommand(newAdviceCommand(c))
	root.AddCommand(newImportCommand(c))
	root.AddCommand(newAddCommand(c))
	return root
}

// load reads .env and the config file and constructs the shared services.
func (c *cli) load() (*app, error) {
	if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		appLog.Warn("failed to read env file", "path", c.envFile, "err", err.Error())
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		if cfg == nil {
			return nil, fmt.Errorf("load config %s: %w", c.configPath, err)
		}
		appLog.Warn("could not write default config", "path", c.configPath, "err", err.Error())
	}
	cfg.ApplyEnv()

	level := cfg.LogLevel
	if c.logLevel != "" {
		level = c.logLevel
	}
	if lv, ok := appLog.ParseLevel(level); ok {
		appLog.SetLevel(lv)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		appLog.Warn("unknown timezone, using local", "timezone", cfg.Timezone)
		loc = time.Local
	}

	st := store.NewFileStore(cfg.EventsPath())
	p := predictor.New(
		predictor.WithLocation(loc),
		predictor.WithRecentWindow(cfg.RecentWindow),
	)

	var source textgen.Source
	if cfg.TextGen.Enabled {
		if cfg.TextGen.APIKey == "" {
			appLog.Warn("textgen enabled without an API key", "env", config.APIKeyEnv)
		}
		source = textgen.NewClient(textgen.Config{
			BaseURL: cfg.TextGen.BaseURL,
			Model:   cfg.TextGen.Model,
			APIKey:  cfg.TextGen.APIKey,
			Timeout: time.Duration(cfg.TextGen.TimeoutSeconds) * time.Second,
		})
	}

	reg := prometheus.NewRegistry()
	m := metrics.MustNew(reg)
	svc := forecast.NewService(st, p, source, m, forecast.Options{
		SourceTimeout: time.Duration(cfg.TextGen.TimeoutSeconds) * time.Second,
	})

	appLog.Debug("effective config",
		"config", c.configPath,
		"listen", cfg.Listen,
		"timezone", loc.String(),
		"data_dir", cfg.DataDir,
		"refresh", cfg.RefreshCron,
		"textgen", cfg.TextGen.Enabled,
		"imports", len(cfg.Imports),
	)

	return &app{cfg: cfg, loc: loc, store: st, forecast: svc, registry: reg}, nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// importFeeds fetches every configured feed and merges matching events
// into the store.
func (a *app) importFeeds(ctx context.Context) error {
	if len(a.cfg.Imports) == 0 {
		return nil
	}
	sources := make([]ics.Source, 0, len(a.cfg.Imports))
	for _, imp := range a.cfg.Imports {
		sources = append(sources, ics.Source{ID: imp.ID, URL: imp.URL})
	}
	fetcher := ics.NewFetcher(a.cfg.ImportCacheDir(), 30*time.Second)
	results, errs := fetcher.FetchAll(ctx, sources)

	added := 0
	for _, res := range results {
		n, err := a.importBody(ctx, res.Source, res.Body)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		added += n
	}
	if added > 0 {
		a.forecast.Invalidate()
	}
	appLog.Info("feed import finished", "feeds", len(results), "added", added, "errors", len(errs))
	return errors.Join(errs...)
}

func (a *app) importBody(ctx context.Context, src ics.Source, body []byte) (int, error) {
	recs, err := ics.ParseRecords(src, body, a.cfg.ImportKeywords)
	if err != nil {
		return 0, fmt.Errorf("parse feed %s: %w", src.ID, err)
	}
	n, err := a.store.Import(ctx, recs)
	if err != nil {
		return 0, fmt.Errorf("import feed %s: %w", src.ID, err)
	}
	return n, nil
}

func (a *app) serve(ctx context.Context) error {
	if err := a.importFeeds(ctx); err != nil {
		appLog.Error("initial feed import failed", err)
	}
	if _, err := a.forecast.Refresh(ctx); err != nil {
		appLog.Error("initial forecast failed", err)
	}

	if _, err := a.forecast.StartScheduler(ctx, a.cfg.RefreshCron, a.loc, a.importFeeds); err != nil {
		return err
	}

	srv := web.NewServer(a.cfg, a.store, a.forecast, a.registry)
	return srv.Run(ctx)
}
