/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chatwire/pkg/bus"
	"chatwire/pkg/channel"
	"chatwire/pkg/channel/builtin"
	"chatwire/pkg/channel/redisqueue"
	"chatwire/pkg/config"
	"chatwire/pkg/gateway"
	"chatwire/pkg/logger"
	"chatwire/pkg/metrics"
	"chatwire/pkg/responder"
	"chatwire/pkg/tracing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	serveCredentials string
	servePort        int
	serveChannels    []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the channel gateway",
	Long:  "Serves every enabled input channel on one HTTP listener with health, readiness, and metrics endpoints.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		applyServeFlags(cmd, cfg)

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.serve")

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		shutdownTracing, err := tracing.Setup(runCtx, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				log.Warn("Tracing shutdown failed", "error", err)
			}
		}()

		svc, cleanup, err := buildService(cfg, log)
		if err != nil {
			log.Error("Gateway configuration invalid", "error", err)
			return err
		}
		defer cleanup()

		if err := svc.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Gateway runtime failed", "error", err)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveCredentials, "credentials", "", "path to the channel credentials YAML file")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "port to listen on (overrides config)")
	serveCmd.Flags().StringSliceVar(&serveChannels, "channels", nil, "comma-separated input channels to enable (overrides config)")
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("credentials") {
		cfg.Channels.Credentials = serveCredentials
	}
	if flags.Changed("port") {
		cfg.Server.Port = servePort
	}
	if flags.Changed("channels") {
		cfg.Channels.Enabled = serveChannels
	}
}

// buildService assembles the gateway from config. The returned cleanup releases
// resources the service does not own, such as the Redis client.
func buildService(cfg *config.Config, log *slog.Logger) (*gateway.Service, func(), error) {
	cleanup := func() {}

	creds, err := channel.LoadCredentials(cfg.Channels.Credentials)
	if err != nil {
		return nil, cleanup, err
	}

	queues, closeQueues, err := queueFactory(cfg.Stream)
	if err != nil {
		return nil, cleanup, err
	}
	cleanup = closeQueues

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	registry := builtin.Registry(builtin.Deps{
		Logger:          log,
		ResponseTimeout: cfg.Server.ResponseTimeout(),
		Queues:          queues,
		Observer:        collector,
		Tracer:          tracing.Tracer(),
	})
	channels, err := channel.FromCredentials(cfg.Channels.Enabled, creds, registry)
	if err != nil {
		return nil, cleanup, err
	}
	if len(channels) == 0 {
		return nil, cleanup, errors.New("no channels are enabled")
	}

	resp, err := responder.New(cfg.Responder, log)
	if err != nil {
		return nil, cleanup, fmt.Errorf("configure responder: %w", err)
	}

	svc, err := gateway.NewService(cfg, channels, resp, gateway.Deps{
		Logger:   log,
		Bus:      bus.New(),
		Metrics:  collector,
		Gatherer: reg,
	})
	if err != nil {
		return nil, cleanup, err
	}

	log.Info("Gateway configured",
		"channels", enabledChannelNames(channels),
		"responder", resp.Name(),
		"queue", cfg.Stream.Queue,
	)
	return svc, cleanup, nil
}

func queueFactory(cfg config.StreamConfig) (channel.QueueFactory, func(), error) {
	switch cfg.Queue {
	case config.QueueRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closeClient := func() {
			if err := client.Close(); err != nil {
				slog.Default().Warn("Redis client close failed", "error", err)
			}
		}
		return redisqueue.Factory(client, cfg.Redis.KeyPrefix, 0), closeClient, nil
	case config.QueueMemory, "":
		return channel.MemoryQueueFactory(cfg.QueueCapacity), func() {}, nil
	default:
		return nil, func() {}, fmt.Errorf("unsupported stream queue %q", cfg.Queue)
	}
}

func enabledChannelNames(channels []channel.InputChannel) string {
	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, ch.Name())
	}

	return strings.Join(names, ",")
}
