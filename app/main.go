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

	"github.com/lysyi3m/birdbrain-relay/app/api"
	"github.com/lysyi3m/birdbrain-relay/app/apiclient"
	"github.com/lysyi3m/birdbrain-relay/app/capture"
	"github.com/lysyi3m/birdbrain-relay/app/cfg"
	"github.com/lysyi3m/birdbrain-relay/app/chrometap"
	"github.com/lysyi3m/birdbrain-relay/app/coordinator"
	"github.com/lysyi3m/birdbrain-relay/app/events"
	"github.com/lysyi3m/birdbrain-relay/app/messaging"
	"github.com/lysyi3m/birdbrain-relay/app/relay"
	"github.com/lysyi3m/birdbrain-relay/app/store"
	"github.com/lysyi3m/birdbrain-relay/app/tasks"
	"github.com/lysyi3m/birdbrain-relay/app/telemetry"
)

func main() {
	appConfig, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appConfig == nil {
		// Help was shown
		return
	}

	setupLogging(appConfig.Debug)
	slog.Info("Starting Birdbrain Relay", "version", appConfig.Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, appConfig.TraceEndpoint, appConfig.Version)
	if err != nil {
		slog.Error("Failed to set up tracing", "error", err)
		os.Exit(1)
	}

	slog.Info("Opening store", "kind", appConfig.Store)
	st, fresh, err := store.Open(ctx, store.Options{
		Kind:      appConfig.Store,
		DBPath:    appConfig.DBPath,
		RedisAddr: appConfig.RedisAddr,
		RedisDB:   appConfig.RedisDB,
	})
	if err != nil {
		slog.Error("Failed to open store", "kind", appConfig.Store, "error", err)
		os.Exit(1)
	}
	if fresh {
		slog.Info("Fresh install detected, initial refresh will run as install")
	}

	client := apiclient.New(appConfig.APIURL, apiclient.Options{
		Paths:     appConfig.Settings.Endpoints,
		UserAgent: appConfig.UserAgent,
		Timeout:   appConfig.Timeout(),
	})

	coord := coordinator.New(client, st)
	if err := coord.Load(ctx); err != nil {
		slog.Warn("Starting with an empty incomplete cache", "error", err)
	}

	bus := messaging.NewBus(messaging.DefaultInboxSize)
	hub := messaging.NewHub()
	hub.Attach(bus)

	slog.Info("Starting refresh scheduler", "workers", appConfig.WorkerCount, "interval", appConfig.RefreshEvery())
	scheduler := tasks.NewScheduler(coord, appConfig.RefreshEvery(), appConfig.WorkerCount, fresh)
	coord.Register(bus, scheduler)
	bus.Start()

	channel := events.NewChannel(events.DefaultBufferSize)
	rel := relay.New(client, bus, relay.Options{
		Texts:          appConfig.Settings.Notifications,
		RequestTimeout: appConfig.Timeout(),
	})
	rel.Attach(channel)
	channel.Start()

	scheduler.Start()

	tapDone := make(chan struct{})
	if appConfig.Chrome {
		exchanges := capture.NewExchanges(channel, capture.DefaultPendingExchanges)
		go func() {
			defer close(tapDone)
			err := chrometap.Run(ctx, chrometap.Options{
				RemoteURL: appConfig.ChromeURL,
				Headless:  appConfig.Headless,
				StartURL:  appConfig.StartURL,
			}, exchanges, rel)
			if err != nil {
				slog.Error("Browser tap stopped", "error", err)
			}
		}()
	} else {
		close(tapDone)
	}

	handler := api.NewHandler(coord, scheduler, bus, channel, rel, hub, appConfig.Version)
	if appConfig.ProxyURL != "" {
		proxy, err := api.NewProxy(appConfig.ProxyURL, channel)
		if err != nil {
			slog.Error("Failed to set up capture proxy", "error", err)
			os.Exit(1)
		}
		handler.WithProxy(proxy)
	}
	server := api.NewServer(handler, appConfig.APIAccessKey)

	httpServer := &http.Server{
		Addr:        ":" + appConfig.Port,
		Handler:     server,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting control server", "port", appConfig.Port, "api_enabled", appConfig.APIAccessKey != "")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	slog.Info("Birdbrain Relay started")

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig)
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	// In-flight work is abandoned; the next start refreshes from the API anyway.
	cancel()
	<-tapDone
	scheduler.Stop()
	channel.Stop()
	rel.Close()
	bus.Stop()

	if err := st.Close(); err != nil {
		slog.Error("Store close error", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("Tracing shutdown error", "error", err)
	}

	slog.Info("Birdbrain Relay shutdown complete")
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}
