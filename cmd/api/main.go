package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/punchamoorthee/payops/internal/api"
	"github.com/punchamoorthee/payops/internal/config"
	"github.com/punchamoorthee/payops/internal/gateway"
	"github.com/punchamoorthee/payops/internal/notify"
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

	dbPool, err := pgxpool.New(context.Background(), cfg.DBSource)
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
	links := service.NewLinkService(ledgerStore, gwClient, logger)
	handler := api.NewHandler(reconciler, links, ledgerStore, logger)

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	handler.Register(r)

	logger.Info("server starting", zap.String("port", cfg.Port), zap.String("gateway_env", cfg.Flocash.Environment))
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal(err)
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
