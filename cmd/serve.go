package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/answergrid/internal/answer"
	"github.com/nextlevelbuilder/answergrid/internal/channels"
	slackchannel "github.com/nextlevelbuilder/answergrid/internal/channels/slack"
	wachannel "github.com/nextlevelbuilder/answergrid/internal/channels/whatsapp"
	"github.com/nextlevelbuilder/answergrid/internal/config"
	"github.com/nextlevelbuilder/answergrid/internal/dedup"
	"github.com/nextlevelbuilder/answergrid/internal/event"
	"github.com/nextlevelbuilder/answergrid/internal/httpapi"
	"github.com/nextlevelbuilder/answergrid/internal/processor"
	"github.com/nextlevelbuilder/answergrid/internal/queue"
	"github.com/nextlevelbuilder/answergrid/internal/retention"
	"github.com/nextlevelbuilder/answergrid/internal/store"
	"github.com/nextlevelbuilder/answergrid/internal/store/pg"
	"github.com/nextlevelbuilder/answergrid/internal/store/sqlite"
	"github.com/nextlevelbuilder/answergrid/internal/telemetry"
	"github.com/nextlevelbuilder/answergrid/internal/tenant"
	"github.com/nextlevelbuilder/answergrid/internal/webhook"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook receiver, event processor, and API",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry, Version)
	if err != nil {
		slog.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	stores, err := openStores(cfg)
	if err != nil {
		slog.Error("store init failed", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	q, guard, err := openQueueAndGuard(ctx, cfg)
	if err != nil {
		slog.Error("queue init failed", "error", err)
		os.Exit(1)
	}
	defer q.Close()

	client := answer.NewClient(cfg.Answer)
	resolver := tenant.NewResolver(stores.Integrations, cfg.Tenants)
	senders := map[string]channels.Sender{
		event.ChannelSlack:    slackchannel.NewSender(cfg.Channels.Slack),
		event.ChannelWhatsApp: wachannel.NewSender(cfg.Channels.WhatsApp),
	}
	proc := processor.New(q, guard, resolver, client, senders, stores, cfg)
	sweeper := retention.NewSweeper(cfg.Retention, stores.Audit, stores.DeadLetters)

	mux := http.NewServeMux()
	webhook.NewReceiver(cfg.Server.WebhookSecret, q, cfg.Server.AckBudget()).RegisterRoutes(mux)
	httpapi.NewServer(cfg, client, stores).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("listening", "addr", srv.Addr, "mode", cfg.Database.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	g.Go(func() error { return ignoreCancel(proc.Run(ctx)) })
	g.Go(func() error { return ignoreCancel(sweeper.Run(ctx)) })
	g.Go(func() error {
		// Hot reload covers gate tunables and filter tokens only.
		return ignoreCancel(config.Watch(ctx, cfgPath, proc.UpdateTunables))
	})

	if err := g.Wait(); err != nil {
		slog.Error("shutdown with error", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

func ignoreCancel(err error) error {
	if err == context.Canceled {
		return nil
	}
	return err
}

func openStores(cfg *config.Config) (*store.Stores, error) {
	if cfg.IsManagedMode() {
		return pg.NewPGStores(cfg.Database.PostgresDSN)
	}
	return sqlite.NewSQLiteStores(config.ExpandHome(cfg.Database.SQLitePath))
}

// openQueueAndGuard picks the shared Redis backend when configured, or
// in-process fallbacks for single-instance deployments.
func openQueueAndGuard(ctx context.Context, cfg *config.Config) (queue.Queue, dedup.Guard, error) {
	dedupTTL := time.Duration(cfg.Tenants.DedupTTLMin) * time.Minute

	if cfg.Redis.Addr == "" {
		slog.Warn("redis not configured, using in-process queue and dedup (single instance only)")
		return queue.NewMemoryQueue(30*time.Second), dedup.NewMemoryGuard(dedupTTL, 5000), nil
	}

	opts := &redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB, Password: cfg.Redis.Password}
	hostname, _ := os.Hostname()
	q, err := queue.NewRedisQueue(ctx, opts, queue.RedisQueueConfig{
		Stream:        cfg.Queue.Stream,
		Group:         cfg.Queue.Group,
		Consumer:      fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		ClaimMinIdle:  time.Duration(cfg.Queue.ClaimMinIdleSec) * time.Second,
		MaxDeliveries: cfg.Queue.MaxDeliveries,
	})
	if err != nil {
		return nil, nil, err
	}
	guard := dedup.NewRedisGuard(redis.NewClient(opts), dedupTTL)
	return q, guard, nil
}
