// Package relay parses relay command flags and composes the relay server.
package relay

import (
	"context"
	"flag"
	"fmt"
	"strings"

	entrypoint "github.com/kindfund/campaignsync/internal/platform/cmd"
	"github.com/kindfund/campaignsync/internal/platform/discovery"
	server "github.com/kindfund/campaignsync/internal/services/relay/app"
	"github.com/prometheus/client_golang/prometheus"
)

// Config holds relay command configuration.
type Config struct {
	HTTPAddr     string `env:"CAMPAIGNSYNC_RELAY_HTTP_ADDR"`
	AMQPURL      string `env:"CAMPAIGNSYNC_AMQP_URL"`
	AMQPExchange string `env:"CAMPAIGNSYNC_AMQP_EXCHANGE"       envDefault:"campaign.events"`
	AMQPQueue    string `env:"CAMPAIGNSYNC_AMQP_QUEUE"          envDefault:"campaignsync.relay"`
	AMQPBinding  string `env:"CAMPAIGNSYNC_AMQP_BINDING"        envDefault:"#"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "relay HTTP listen address (defaults to the relay port)")
	fs.StringVar(&cfg.AMQPURL, "amqp-url", cfg.AMQPURL, "RabbitMQ URL (empty disables the bridge)")
	fs.StringVar(&cfg.AMQPExchange, "amqp-exchange", cfg.AMQPExchange, "topic exchange carrying campaign events")
	fs.StringVar(&cfg.AMQPQueue, "amqp-queue", cfg.AMQPQueue, "durable queue consumed by the relay")
	fs.StringVar(&cfg.AMQPBinding, "amqp-binding", cfg.AMQPBinding, "comma-separated routing keys bound to the queue (# takes every event)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(cfg.HTTPAddr) == "" {
		cfg.HTTPAddr = discovery.ListenAddr(discovery.ServiceRelay)
	}
	return cfg, nil
}

// Bindings splits the configured routing keys.
func (cfg Config) Bindings() []string {
	var bindings []string
	for _, binding := range strings.Split(cfg.AMQPBinding, ",") {
		if binding = strings.TrimSpace(binding); binding != "" {
			bindings = append(bindings, binding)
		}
	}
	return bindings
}

// Run builds the relay and serves it until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceRelay, func(context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr: cfg.HTTPAddr,
			AMQP: server.BridgeConfig{
				URL:      cfg.AMQPURL,
				Exchange: cfg.AMQPExchange,
				Queue:    cfg.AMQPQueue,
				Bindings: cfg.Bindings(),
			},
			Registerer: prometheus.DefaultRegisterer,
			Gatherer:   prometheus.DefaultGatherer,
		}); err != nil {
			return fmt.Errorf("serve relay: %w", err)
		}
		return nil
	})
}
