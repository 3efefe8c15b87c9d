// Package main implements the inbound-sync binary: it consumes
// change-data-capture events from the message bus for one region and
// applies them to the local PostgreSQL sink.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	kafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/regionsync/inbound-sync/internal/api"
	"github.com/regionsync/inbound-sync/internal/config"
	"github.com/regionsync/inbound-sync/internal/consumer"
	"github.com/regionsync/inbound-sync/internal/db"
	"github.com/regionsync/inbound-sync/internal/log"
	"github.com/regionsync/inbound-sync/internal/metrics"
	"github.com/regionsync/inbound-sync/internal/retry"
	"github.com/regionsync/inbound-sync/internal/sink"
	"github.com/regionsync/inbound-sync/internal/tracing"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ShowVersion prints version information.
func ShowVersion() {
	fmt.Printf("inbound-sync version %s\n", version)
	if commit != "none" && commit != "" {
		fmt.Printf("commit: %s\n", commit)
	}
	if date != "unknown" && date != "" {
		fmt.Printf("built: %s\n", date)
	}
}

// SetupLogging configures the logging system with structured output.
func SetupLogging(logLevel string, human bool) error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(log.NewFormatter(human))
	logrus.SetReportCaller(false)

	logrus.WithFields(logrus.Fields{
		"version": version,
		"commit":  commit,
		"pid":     os.Getpid(),
	}).Info("inbound-sync logging initialized")

	return nil
}

// SetupCloseHandler notifies cancel when the process receives SIGINT or
// SIGTERM, giving running loops a chance to drain before exit.
func SetupCloseHandler(cancel context.CancelFunc) {
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		logrus.Debug("received shutdown signal, closing session")
		cancel()
	}()
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-v" {
			ShowVersion()
			os.Exit(0)
		}
	}

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}

	if err := SetupLogging(cfg.LogLevel, cfg.HumanLog); err != nil {
		logrus.WithError(err).Fatal("failed to set up logging")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	SetupCloseHandler(cancel)

	tracing.Init(ctx, "inbound-sync")
	defer tracing.Shutdown(context.Background())

	opts := db.DefaultOptions()
	opts.Production = cfg.IsProduction()
	pool, err := db.NewWithRetry(ctx, cfg.DSN(), opts)
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to sink database after retries")
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		logrus.WithError(err).Fatal("failed to acquire sink connection for migrations")
	}
	if err := db.ApplyMigrations(ctx, conn.Conn()); err != nil {
		conn.Release()
		logrus.WithError(err).Fatal("failed to apply sink migrations")
	}
	conn.Release()

	writer := sink.NewWriter(pool)
	store := metrics.NewStore(prometheus.NewRegistry())

	var wg sync.WaitGroup
	for _, topic := range cfg.Topics() {
		reader := consumer.NewReader(consumer.ReaderConfig{
			Brokers:  []string{cfg.KafkaBroker},
			Topic:    topic,
			GroupID:  cfg.GroupID,
			ClientID: cfg.ClientID,
		})
		loop := consumer.NewLoop(cfg.Region, reader, writer, store, topic)

		wg.Add(1)
		go func(topic string, reader *kafka.Reader, loop *consumer.Loop) {
			defer wg.Done()
			defer reader.Close()
			if err := runWithBusRetry(ctx, topic, loop); err != nil && ctx.Err() == nil {
				logrus.WithError(err).WithField("topic", topic).Error("consumer loop exited")
			}
		}(topic, reader, loop)
	}

	httpServer := &http.Server{Addr: cfg.StatsAddr, Handler: api.NewRouter(store)}
	go func() {
		logrus.WithField("addr", cfg.StatsAddr).Info("stats API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Error("stats API server stopped unexpectedly")
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	wg.Wait()
	logrus.Info("graceful shutdown completed")
}

// runWithBusRetry retries transient connection failures against the
// message bus using the bus retry budget. Exhausting the budget is logged
// and treated as a degraded-but-running startup, not a fatal error: the
// sink remains the source of truth and a later reconnect attempt (via
// process restart/orchestration) can recover.
func runWithBusRetry(ctx context.Context, topic string, loop *consumer.Loop) error {
	cfg := retry.BusDefaults()
	err := retry.WithOperation(ctx, cfg, func() error {
		return loop.Run(ctx)
	}, "bus consume "+topic)
	if err != nil {
		logrus.WithError(err).WithField("topic", topic).
			Warn("exhausted bus retry budget; continuing without this topic's consumer")
		return nil
	}
	return nil
}
