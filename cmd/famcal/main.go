package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"famcal/internal/config"
	"famcal/internal/ics"
	applog "famcal/internal/log"
	"famcal/internal/store"
	"famcal/internal/weather"
	"famcal/internal/web"
	"famcal/internal/week"
)

type flagConfig struct {
	configPath string
	listen     string
	debug      bool
}

func main() {
	// .env is optional; environment variables win over nothing, flags win
	// over everything.
	_ = godotenv.Load()

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		applog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	} else if env := os.Getenv("FAMCAL_LISTEN"); env != "" {
		conf.Listen = env
	}

	if flags.debug {
		applog.SetLevel(applog.LevelDebug)
	} else {
		applog.SetLevelFromString(conf.LogLevel)
	}

	applog.Info("famcal starting",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"data_file", conf.DataFile,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		applog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	repo := store.OpenFile(conf.DataFile)
	agg := week.NewAggregator(ics.NewFetcher())
	server := web.NewServer(conf, repo, agg, weather.NewClient())

	if err := server.StartRefresh(ctx); err != nil {
		applog.Error("failed to schedule calendar refresh", err, "cron", conf.RefreshCron)
		os.Exit(1)
	}
	defer server.StopRefresh()

	httpServer := &http.Server{
		Addr:              conf.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		applog.Info("HTTP server listening", "listen", "http://"+conf.Listen)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			applog.Error("HTTP server shutdown failed", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Error("HTTP server failed", err)
			os.Exit(1)
		}
	}

	applog.Info("famcal exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", defaultConfigPath(), "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()
	return cfg
}

func defaultConfigPath() string {
	if env := os.Getenv("FAMCAL_CONFIG"); env != "" {
		return env
	}
	return "./famcal.yaml"
}
