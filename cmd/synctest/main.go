// synctest connects to the realtime sync server and streams events to the
// console, standing in for the UI subsystems that normally share the
// connection.
// Usage: go run ./cmd/synctest --config configs/synctest.example.yaml --date 2025-01-02
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinicdesk/realtime/internal/config"
	"github.com/clinicdesk/realtime/internal/connection"
	"github.com/clinicdesk/realtime/internal/screenstore"
	"github.com/clinicdesk/realtime/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/synctest.example.yaml", "path to config file")
	date := flag.String("date", time.Now().Format("2006-01-02"), "calendar date topic to subscribe")
	verbose := flag.Bool("verbose", false, "print full frame JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	logger.Info("synctest", "version", version.String())

	// Load config
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	// Open the screen store (durable screen id)
	store, err := screenstore.Open(cfg.Screen.StateDir)
	if err != nil {
		logger.Error("failed to open screen store", "error", err)
		os.Exit(1)
	}

	// Build the single transport client and its coordinator
	client := connection.NewClient(connection.ClientConfig{
		URL:                   cfg.Server.URL,
		ConnectTimeoutInitial: cfg.Connection.ConnectTimeoutInitial,
		ConnectTimeoutRetry:   cfg.Connection.ConnectTimeoutRetry,
		SlowConnectThreshold:  cfg.Connection.SlowConnectThreshold,
		ReconnectBaseDelay:    cfg.Connection.ReconnectBaseDelay,
		ReconnectMaxDelay:     cfg.Connection.ReconnectMaxDelay,
		ReconnectDecay:        cfg.Connection.ReconnectDecay,
		MaxReconnectAttempts:  cfg.Connection.MaxReconnectAttempts,
		HeartbeatInterval:     cfg.Connection.HeartbeatInterval,
		HeartbeatTimeout:      cfg.Connection.HeartbeatTimeout,
		WriteTimeout:          cfg.Connection.WriteTimeout,
		RequestTimeout:        cfg.Connection.RequestTimeout,
		QueueCapacity:         cfg.Queue.Capacity,
		QueueTimeout:          cfg.Queue.Timeout,
		RecoveryGrace:         cfg.Connection.RecoveryGrace,
	}, logger)

	coord := connection.NewCoordinator(client, store, connection.CoordinatorConfig{
		DebounceWindow: cfg.Coordinator.DebounceWindow,
	}, logger)

	// Subscribe to lifecycle events before connecting
	for _, name := range []string{
		connection.EventConnecting,
		connection.EventConnectingSlow,
		connection.EventConnected,
		connection.EventReconnected,
		connection.EventDisconnected,
		connection.EventError,
	} {
		event := name
		client.On(event, func(args ...any) {
			logger.Info("lifecycle event", "event", event, "args", args)
		})
	}

	client.On(connection.EventFullRefresh, func(args ...any) {
		logger.Warn("server requires full refresh", "topic", args)
	})

	client.On(connection.EventMessage, func(args ...any) {
		if len(args) == 0 {
			return
		}
		frame, ok := args[0].(connection.Frame)
		if !ok {
			return
		}
		if *verbose {
			data, _ := json.MarshalIndent(frame, "", "  ")
			fmt.Printf("[FRAME] %s\n", data)
		} else {
			fmt.Printf("[FRAME] type=%s id=%d topic=%s seq=%d\n",
				frame.EventType(), frame.ID, frame.Topic, frame.SequenceNum)
		}
	})

	// Register two UI subsystems; the coordinator collapses these into one
	// physical connect with merged parameters.
	go func() {
		if err := coord.EnsureConnected(ctx, connection.ClientTypeCalendar, map[string]string{"date": *date}); err != nil {
			logger.Warn("calendar ensure failed", "error", err)
		}
	}()
	if err := coord.EnsureConnected(ctx, connection.ClientTypeScheduleBoard, map[string]string{"date": *date}); err != nil {
		logger.Warn("schedule board ensure failed", "error", err)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				status := client.Status()
				coordStatus := coord.Status()
				logger.Info("stats",
					"state", status.State,
					"failures", status.Failures,
					"queued", status.QueueDepth,
					"pending", status.Pending,
					"last_activity", status.LastActivity.Format(time.RFC3339),
					"client_types", coordStatus.ClientTypes,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	client.Close()
	logger.Info("shutdown complete")
}
