package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron"
	"go.uber.org/zap"

	"github.com/punchamoorthee/payops/internal/config"
	"github.com/punchamoorthee/payops/internal/gateway"
	"github.com/punchamoorthee/payops/internal/notify"
	"github.com/punchamoorthee/payops/internal/poller"
	"github.com/punchamoorthee/payops/internal/service"
	"github.com/punchamoorthee/payops/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Unable to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool, err := pgxpool.New(ctx, cfg.DBSource)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer dbPool.Close()

	ledgerStore := store.New(dbPool, cfg.InvoiceLookup)

	var notifier service.Notifier = notify.LogNotifier{Log: logger}
	if cfg.AMQPURL != "" {
		amqpNotifier, err := notify.NewAMQPNotifier(cfg.AMQPURL, logger)
		if err != nil {
			log.Fatalf("Unable to connect to broker: %v", err)
		}
		defer amqpNotifier.Close()
		notifier = amqpNotifier
	}

	gwClient := gateway.NewClient(cfg.Flocash, logger)
	reconciler := service.NewReconcileService(ledgerStore, notifier, logger)
	p := poller.New(ledgerStore, gwClient, reconciler, logger)

	c := cron.New()
	if err := c.AddFunc(cfg.PollSchedule, func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("poll run failed", zap.Error(err))
		}
	}); err != nil {
		log.Fatalf("Invalid POLL_SCHEDULE %q: %v", cfg.PollSchedule, err)
	}
	c.Start()
	defer c.Stop()

	logger.Info("poller started", zap.String("schedule", cfg.PollSchedule))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("poller shutting down")
	cancel()
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
