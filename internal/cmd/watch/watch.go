// Package watch parses watch command flags and runs one live campaign view.
package watch

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/kindfund/campaignsync/internal/platform/authtoken"
	entrypoint "github.com/kindfund/campaignsync/internal/platform/cmd"
	"github.com/kindfund/campaignsync/internal/platform/config"
	"github.com/kindfund/campaignsync/internal/platform/discovery"
	platformgrpc "github.com/kindfund/campaignsync/internal/platform/grpc"
	"github.com/kindfund/campaignsync/internal/platform/i18n"
	"github.com/kindfund/campaignsync/internal/platform/timeouts"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/app"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/domain"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/gateway"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/storage"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/storage/sqlite"
	"github.com/kindfund/campaignsync/internal/services/realtime/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthService is the gRPC health service name reported by watch.
const HealthService = "campaignsync.watch"

// Config holds watch command configuration.
type Config struct {
	APIBaseURL  string `env:"CAMPAIGNSYNC_API_BASE_URL"`
	RealtimeURL string `env:"CAMPAIGNSYNC_REALTIME_URL"`
	CampaignID  string `env:"CAMPAIGNSYNC_CAMPAIGN_ID"`
	AccessToken string `env:"CAMPAIGNSYNC_ACCESS_TOKEN"`
	ViewerID    string `env:"CAMPAIGNSYNC_VIEWER_ID"`
	JournalPath string `env:"CAMPAIGNSYNC_JOURNAL_PATH"`
	MetricsAddr string `env:"CAMPAIGNSYNC_METRICS_ADDR"  envDefault:":9090"`
	HealthAddr  string `env:"CAMPAIGNSYNC_HEALTH_ADDR"`
	Locale      string `env:"CAMPAIGNSYNC_LOCALE"        envDefault:"en-US"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.APIBaseURL, "http-base-url", cfg.APIBaseURL, "REST API base URL (defaults to the in-network api service)")
	fs.StringVar(&cfg.RealtimeURL, "realtime-url", cfg.RealtimeURL, "realtime WebSocket URL (defaults to the in-network relay)")
	fs.StringVar(&cfg.CampaignID, "campaign-id", cfg.CampaignID, "campaign to watch")
	fs.StringVar(&cfg.AccessToken, "access-token", cfg.AccessToken, "viewer bearer token")
	fs.StringVar(&cfg.ViewerID, "viewer-id", cfg.ViewerID, "viewer id (defaults to the token subject)")
	fs.StringVar(&cfg.JournalPath, "journal-path", cfg.JournalPath, "SQLite event journal path (empty disables)")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (empty disables)")
	fs.StringVar(&cfg.HealthAddr, "health-addr", cfg.HealthAddr, "gRPC health listen address (empty disables)")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "locale used to format amounts")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	cfg.APIBaseURL = discovery.OrDefaultHTTPBaseURL(cfg.APIBaseURL, discovery.ServiceAPI)
	cfg.RealtimeURL = discovery.OrDefaultWSURL(cfg.RealtimeURL, discovery.ServiceRelay)

	if err := config.RequireValues(map[string]string{
		"http-base-url": cfg.APIBaseURL,
		"realtime-url":  cfg.RealtimeURL,
		"campaign-id":   cfg.CampaignID,
	}); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ResolveViewerID returns the configured viewer or the subject of the access token.
func (cfg Config) ResolveViewerID() domain.ID {
	if viewer := strings.TrimSpace(cfg.ViewerID); viewer != "" {
		return domain.ID(viewer)
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return ""
	}
	subject, err := authtoken.Subject(cfg.AccessToken)
	if err != nil {
		log.Printf("viewer id unavailable, voting hints disabled: %v", err)
		return ""
	}
	return domain.ID(subject)
}

// Run mounts the configured campaign and logs every state change until ctx
// ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWatch, func(ctx context.Context) error {
		if err := run(ctx, cfg); err != nil {
			return fmt.Errorf("watch campaign: %w", err)
		}
		return nil
	})
}

func run(ctx context.Context, cfg Config) error {
	logger := entrypoint.Logger(entrypoint.ServiceWatch)
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	gw, err := gateway.New(gateway.Config{BaseURL: cfg.APIBaseURL, AccessToken: cfg.AccessToken})
	if err != nil {
		return err
	}

	var journal storage.Journal
	if path := strings.TrimSpace(cfg.JournalPath); path != "" {
		store, err := sqlite.Open(ctx, path)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("close journal: %v", err)
			}
		}()
		journal = store
	}

	realtime, err := client.New(client.Config{
		URL:         cfg.RealtimeURL,
		AccessToken: cfg.AccessToken,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer realtime.Close()

	var health *platformgrpc.HealthServer
	if addr := strings.TrimSpace(cfg.HealthAddr); addr != "" {
		health, err = platformgrpc.NewHealthServer(addr, HealthService)
		if err != nil {
			return err
		}
		go func() {
			if err := health.Serve(ctx); err != nil {
				log.Printf("health server: %v", err)
			}
		}()
		defer health.Stop()
	}
	readiness := newReadiness(health)
	offState := realtime.OnStateChange(readiness.setConnected)
	defer offState()
	readiness.setConnected(realtime.Connected())

	view, err := app.New(app.Config{
		CampaignID: domain.ID(cfg.CampaignID),
		ViewerID:   cfg.ResolveViewerID(),
		Gateway:    gw,
		Transport:  realtime,
		Journal:    journal,
		Logger:     logger,
		Registerer: registry,
	})
	if err != nil {
		return err
	}
	defer view.Close()

	if addr := strings.TrimSpace(cfg.MetricsAddr); addr != "" {
		metricsServer := &http.Server{
			Addr:              addr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: timeouts.ReadHeader,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("metrics server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
		log.Printf("metrics listening on %s", addr)
	}

	printer := i18n.Printer(i18n.NormalizeTag(cfg.Locale))
	log.Printf("watching campaign %s via %s", cfg.CampaignID, cfg.RealtimeURL)
	for {
		select {
		case <-ctx.Done():
			return nil
		case snapshot, ok := <-view.Changes():
			if !ok {
				return nil
			}
			readiness.setReady(snapshot.Ready())
			log.Print(Render(printer, snapshot))
		}
	}
}

// readiness reports SERVING while the transport is up and the campaign has
// loaded.
type readiness struct {
	health *platformgrpc.HealthServer

	mu        sync.Mutex
	connected bool
	ready     bool
}

func newReadiness(health *platformgrpc.HealthServer) *readiness {
	return &readiness{health: health}
}

func (r *readiness) setConnected(connected bool) {
	r.mu.Lock()
	r.connected = connected
	r.publishLocked()
	r.mu.Unlock()
}

func (r *readiness) setReady(ready bool) {
	r.mu.Lock()
	r.ready = ready
	r.publishLocked()
	r.mu.Unlock()
}

func (r *readiness) serving() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected && r.ready
}

func (r *readiness) publishLocked() {
	r.health.SetServing(HealthService, r.connected && r.ready)
}
