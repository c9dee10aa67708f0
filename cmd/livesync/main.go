// Package main starts the livesync mirror binary.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/ibs-source/livesync/internal/client"
	"github.com/ibs-source/livesync/internal/config"
	"github.com/ibs-source/livesync/internal/log"
	"github.com/ibs-source/livesync/internal/model"
	"github.com/ibs-source/livesync/internal/mqtt"
	"github.com/ibs-source/livesync/internal/redis"
	"github.com/ibs-source/livesync/internal/relay"
	"github.com/ibs-source/livesync/internal/transport"
)

var (
	_ relay.Sink   = (*mqtt.Client)(nil)
	_ relay.Sink   = (*redis.Client)(nil)
	_ relay.Source = (*client.Client)(nil)
)

func run() int {
	logger := log.New()
	logger.Info("Starting livesync")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		return 1
	}
	logger.SetLevel(cfg.Client.LogLevel)
	logConfig(cfg, logger)

	ws := transport.NewWebSocket(&cfg.Transport, logger)
	c := client.New(ws, &cfg.Client, logger)

	cancelLog := c.OnChange(func(ch model.Change) {
		logger.DebugWithFields(log.Fields{log.FieldTopic: ch.Topic.String()}, "Change: %+v", ch.Value)
	})

	stopRelay := func() {}
	if cfg.RelayEnabled() {
		stopRelay, err = startRelay(cfg, c, logger)
		if err != nil {
			logger.Error("Failed to start relay: %v", err)
			return 1
		}
	}

	// The relay drains only after the client stops producing changes.
	defer func() {
		if err := c.Stop(); err != nil {
			logger.Error("Error stopping client: %v", err)
		}
		cancelLog()
		stopRelay()
		logger.Info("livesync stopped")
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := c.Start(ctx); err != nil {
		logger.Error("Failed to start client: %v", err)
		return 1
	}
	logger.Info("Subscribed to %d topics at %s", len(model.Topics), cfg.Transport.Endpoint)

	return waitForShutdown(ctx, c, logger)
}

func logConfig(cfg *config.Config, logger *log.Logger) {
	logger.Info("Configuration loaded successfully")
	logger.Info("Endpoint: %s, KeepAlive: %s", cfg.Transport.Endpoint, cfg.Transport.KeepAlive)
	if cfg.MQTT.Enabled {
		logger.Info("MQTT relay: %s, prefix: %s", cfg.MQTT.Broker, cfg.MQTT.TopicPrefix)
	}
	if cfg.Redis.Enabled {
		logger.Info("Redis relay: %s, prefix: %s", cfg.Redis.Address, cfg.Redis.StreamPrefix)
	}
}

func buildSinks(cfg *config.Config, logger *log.Logger) ([]relay.Sink, error) {
	var sinks []relay.Sink
	if cfg.MQTT.Enabled {
		m, err := mqtt.NewClient(&cfg.MQTT, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, m)
	}
	if cfg.Redis.Enabled {
		r, err := redis.NewClient(&cfg.Redis, logger)
		if err != nil {
			for _, s := range sinks {
				_ = s.Close()
			}
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.PingTimeout)
		r.LogStreams(ctx, topicNames())
		cancel()
		sinks = append(sinks, r)
	}
	return sinks, nil
}

func topicNames() []string {
	names := make([]string, 0, len(model.Topics))
	for _, t := range model.Topics {
		names = append(names, t.String())
	}
	return names
}

// startRelay wires the relay to c and returns a func that drains and closes it.
func startRelay(cfg *config.Config, c *client.Client, logger *log.Logger) (func(), error) {
	sinks, err := buildSinks(cfg, logger)
	if err != nil {
		return nil, err
	}
	r, err := relay.New(&cfg.Relay, sinks, logger)
	if err != nil {
		for _, s := range sinks {
			_ = s.Close()
		}
		return nil, err
	}
	r.Attach(c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Relay error: %v", err)
		}
	}()

	return func() {
		cancel()
		<-done
		if err := r.Close(); err != nil {
			logger.Error("Error closing relay: %v", err)
		}
	}, nil
}

func waitForShutdown(ctx context.Context, c *client.Client, logger *log.Logger) int {
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal, stopping")
		return 0
	case <-c.Done():
		if err := c.Err(); err != nil {
			logger.Error("Connection failed: %v", err)
		} else {
			logger.Error("Connection closed by peer")
		}
		return 1
	}
}

func main() {
	// Keep main minimal to ensure defers in run() execute correctly.
	os.Exit(run())
}
