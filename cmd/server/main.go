/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the session booking engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from the environment
  2. Initialize logger
  3. Initialize SQLite store and load the policy
  4. Build the notifier chain (log, plus Kafka when brokers are set)
  5. Create the ledger
  6. Start the payments consumer (Kafka only) and the no-show sweeper
  7. Configure HTTP router and start the server

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections and drain active requests
  2. Stop the sweeper and the payments consumer
  3. Drain queued notifier events
  4. Close Kafka clients and the database
  All bounded by SHUTDOWN_TIMEOUT.

ENVIRONMENT:
  See config/config.go for every key. The common ones:
    PORT=8080 DB_PATH=sessions.db LOG_LEVEL=info
    POLICY_FILE=./policy.json KAFKA_BROKERS=localhost:9092

SEE ALSO:
  - api/server.go: Router configuration
  - booking/ledger.go: Orchestrator
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/warp/session-engine/api"
	"github.com/warp/session-engine/booking"
	"github.com/warp/session-engine/config"
	"github.com/warp/session-engine/factory"
	"github.com/warp/session-engine/logger"
	"github.com/warp/session-engine/notify"
	"github.com/warp/session-engine/payments"
	"github.com/warp/session-engine/store/sqlite"
)

const serviceName = "session-engine"

const notifyQueueSize = 1024

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: serviceName,
	})

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatal("failed to initialize database", "path", cfg.DBPath, "error", err)
	}
	defer store.Close()

	policy, err := factory.NewPolicyFactory().LoadFile(cfg.PolicyFile)
	if err != nil {
		log.Fatal("failed to load policy", "path", cfg.PolicyFile, "error", err)
	}

	sinks := notify.Multi{notify.NewLog(log)}
	var kafkaSink *notify.Kafka
	if cfg.KafkaEnabled() {
		kafkaSink = notify.NewKafka(notify.NewKafkaWriter(cfg.KafkaBrokers, cfg.NotifyTopic, log), serviceName)
		sinks = append(sinks, kafkaSink)
	}
	notifier := notify.NewAsync(sinks, notifyQueueSize, log)

	ledger, err := booking.NewLedger(store, policy,
		booking.WithNotifier(notifier),
		booking.WithConferencing(booking.URLTemplateRooms{BaseURL: cfg.ConferenceBaseURL}),
		booking.WithLogger(log),
	)
	if err != nil {
		log.Fatal("failed to build ledger", "error", err)
	}

	bg, stopBackground := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	var consumer *payments.Consumer
	if cfg.KafkaEnabled() {
		reader := payments.NewKafkaReader(cfg.KafkaBrokers, cfg.PaymentsTopic, cfg.PaymentsGroupID, log)
		consumer = payments.NewConsumer(reader, ledger, log)
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := consumer.Run(bg); err != nil {
				log.Error("payments consumer exited", "error", err)
			}
		}()
	}

	sweeper := api.NewNoShowSweeper(ledger, cfg.SweepInterval, log)
	sweeper.Start()

	idempotency := api.NewInMemoryIdempotencyStore(cfg.IdempotencyTTL)

	handler := api.NewHandler(ledger, store, api.WithHandlerLogger(log))
	router := api.NewRouter(handler, api.RouterConfig{
		Logger:      log,
		CORSOrigins: cfg.CORSOrigins,
		Idempotency: idempotency,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Port, "db", cfg.DBPath, "kafka", cfg.KafkaEnabled())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("server failed", "error", err)
	case sig := <-quit:
		log.Info("shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	sweeper.Stop()
	idempotency.Stop()

	stopBackground()
	workers.Wait()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Warn("payments reader close failed", "error", err)
		}
	}

	if err := notifier.Close(ctx); err != nil {
		log.Warn("notifier queue not drained", "error", err)
	}
	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			log.Warn("kafka writer close failed", "error", err)
		}
	}

	log.Info("server stopped")
}
