package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"akashwatch/config"
	"akashwatch/internal/dashboard"
	"akashwatch/logger"
	"akashwatch/models"
	"akashwatch/stream"
	"akashwatch/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Akashwatch.Name,
		"version": cfg.Akashwatch.Version,
	}).Info("starting akashwatch")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(cancel, log)

	if cfg.Logging.CloudWatch {
		logger.InitCloudWatch("", cfg.Logging.CWNamespace)
	}
	if cfg.Logging.ReportPeriod > 0 {
		logger.StartReport(ctx, log, time.Duration(cfg.Logging.ReportPeriod)*time.Second)
	}

	client, err := stream.NewClient(stream.OptionsFromConfig(cfg.Stream))
	if err != nil {
		log.WithError(err).Error("failed to build stream client")
		os.Exit(1)
	}

	var archiver *writer.EventArchiver
	if cfg.Archive.Enabled {
		archiver, err = writer.NewEventArchiver(cfg.Archive)
		if err != nil {
			log.WithError(err).Error("failed to build event archiver")
			os.Exit(1)
		}
		if err := archiver.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start event archiver")
			os.Exit(1)
		}
	}

	dash := dashboard.NewServer(cfg.Dashboard, client, log)
	if dash != nil {
		go func() {
			if err := dash.Run(ctx); err != nil {
				log.WithError(err).Error("dashboard server failed")
			}
		}()
	}

	for _, subCfg := range cfg.Subscriptions {
		registerSubscription(client, subCfg, archiver, dash, log)
	}

	if err := client.Connect(ctx); err != nil {
		log.WithError(err).Error("initial connect failed")
		os.Exit(1)
	}

	watchForFailure(ctx, cancel, client, log)

	client.Disconnect()
	if archiver != nil {
		archiver.Stop()
	}
	log.Info("akashwatch stopped")
}

func registerSubscription(client *stream.Client, subCfg config.SubscriptionConfig, archiver *writer.EventArchiver, dash *dashboard.Server, log *logger.Log) {
	filter := filterFromConfig(subCfg.Filter)

	id := client.Subscribe(subCfg.Query, func(ev models.Event) {
		log.WithComponent("watcher").WithFields(logger.Fields{
			"type":   ev.EventType(),
			"height": ev.EventHeight(),
			"owner":  ev.EventOwner(),
			"dseq":   ev.EventDSeq(),
		}).Info("chain event")

		if archiver != nil {
			archiver.Record(ev)
		}
		dash.Record(ev)
	}, filter)

	log.WithFields(logger.Fields{
		"subscription_id": id,
		"query":           subCfg.Query,
	}).Info("subscription registered")
}

func filterFromConfig(cfg config.FilterConfig) *models.EventFilter {
	if len(cfg.Types) == 0 && cfg.Owner == "" && cfg.Provider == "" && cfg.DSeq == "" {
		return nil
	}
	return &models.EventFilter{
		Types:    cfg.Types,
		Owner:    cfg.Owner,
		Provider: cfg.Provider,
		DSeq:     cfg.DSeq,
	}
}

// watchForFailure blocks until shutdown or until the client exhausts its
// reconnect attempts, which is terminal and requires operator action.
func watchForFailure(ctx context.Context, cancel context.CancelFunc, client *stream.Client, log *logger.Log) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if client.ConnectionState() == stream.Failed {
				log.WithComponent("watcher").Error("stream connection failed permanently, shutting down")
				cancel()
				return
			}
		}
	}
}

func handleShutdown(cancel context.CancelFunc, log *logger.Log) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	log.Info("shutdown signal received")
	cancel()
}
