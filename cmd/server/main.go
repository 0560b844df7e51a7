package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-sender/internal/api"
	"github.com/ignite/campaign-sender/internal/audit"
	"github.com/ignite/campaign-sender/internal/campaigns"
	appconfig "github.com/ignite/campaign-sender/internal/config"
	"github.com/ignite/campaign-sender/internal/contacts"
	"github.com/ignite/campaign-sender/internal/dispatch"
	"github.com/ignite/campaign-sender/internal/mailing"
	"github.com/ignite/campaign-sender/internal/pkg/logger"
	"github.com/ignite/campaign-sender/internal/ses"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := appconfig.LoadFromEnv(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
	logger.SetRedactPII(true)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	contactStore, err := contacts.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("creating contact store: %w", err)
	}
	campaignStore, err := campaigns.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("creating campaign store: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parsing redis URL: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	sender, err := ses.NewSender(ctx, cfg.SES)
	if err != nil {
		return fmt.Errorf("creating SES sender: %w", err)
	}

	auditWriter, err := audit.NewWriter(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("creating audit writer: %w", err)
	}

	tracker := dispatch.NewProgressTracker(redisClient)
	dispatcher := dispatch.NewDispatcher(
		sender,
		campaignStore,
		mailing.NewTemplateService(),
		dispatch.NewRateLimiter(redisClient),
		tracker,
		traceWriter(auditWriter),
		cfg.Dispatch,
	)

	server := api.NewServer(cfg, contactStore, campaignStore, dispatcher, tracker)

	logger.Info("starting campaign sender",
		"port", cfg.Server.Port,
		"contact_table", cfg.Storage.ContactTable,
		"ses_region", cfg.SES.Region)

	return server.Start(ctx)
}

// traceWriter converts a nil *audit.Writer into a nil interface so the
// dispatcher skips trace archiving when no bucket is configured.
func traceWriter(w *audit.Writer) dispatch.TraceWriter {
	if w == nil {
		return nil
	}
	return w
}
