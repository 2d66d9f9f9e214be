package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roostd/roostd/internal/config"
	"github.com/roostd/roostd/internal/controller"
	"github.com/roostd/roostd/internal/history"
	hfactory "github.com/roostd/roostd/internal/history/factory"
	"github.com/roostd/roostd/internal/launchd"
	"github.com/roostd/roostd/internal/logger"
	"github.com/roostd/roostd/internal/masterconfig"
	"github.com/roostd/roostd/internal/metrics"
	"github.com/roostd/roostd/internal/reconciler"
	rfactory "github.com/roostd/roostd/internal/registry/factory"
	"github.com/roostd/roostd/internal/server"
	itls "github.com/roostd/roostd/internal/tls"
)

func runServeCommand(flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if flags.Daemonize {
		return daemonize(flags.PidFile, flags.LogFile)
	}

	log := logger.New(cfg.Log)
	slog.SetDefault(log)

	for _, dir := range []string{cfg.AgentsDir, cfg.AgentLogDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	ctx := context.Background()
	store, err := rfactory.NewFromDSN(cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer func() { _ = store.Close() }()
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("registry schema: %w", err)
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Warn("metrics registration failed", "error", err)
	}

	mgr := launchd.NewExecManager()
	mirror := masterconfig.New(cfg.MasterConfigPath)
	ctrl := controller.New(store, mgr, mirror, controller.Options{
		AgentsDir:   cfg.AgentsDir,
		LogDir:      cfg.AgentLogDir,
		LabelPrefix: cfg.LabelPrefix,
		TestWindow:  cfg.TestWindow,
		Logger:      log,
	})
	rec := reconciler.New(store, mgr, cfg.LabelPrefix, log)

	var sinks []history.Sink
	for _, hc := range cfg.History {
		sink, err := hfactory.New(hc)
		if err != nil {
			log.Warn("history sink setup failed", "type", hc.Type, "error", err)
			continue
		}
		sinks = append(sinks, sink)
	}
	defer func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}()
	ctrl.SetHistorySinks(sinks...)
	rec.SetHistorySinks(sinks...)

	rec.StartLoop(cfg.ReconcileInterval)
	defer rec.StopLoop()

	router := server.NewRouter(ctrl, rec, mirror, cfg.Server.BasePath, log)
	srv := server.NewServer(cfg.Server.Listen, router.Handler())

	protocol := "HTTP"
	if cfg.Server.TLS != nil && cfg.Server.TLS.Enabled {
		protocol = "HTTPS"
		tlsCfg, err := itls.SetupServer(cfg.Server.TLS)
		if err != nil {
			return fmt.Errorf("TLS setup: %w", err)
		}
		srv.TLSConfig = tlsCfg
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if protocol == "HTTPS" {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	log.Info("roostd serving", "protocol", protocol, "listen", cfg.Server.Listen, "base_path", cfg.Server.BasePath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
