package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/OFFIS-RIT/netunion/internal/queue"
	"github.com/OFFIS-RIT/netunion/internal/run"
	"github.com/OFFIS-RIT/netunion/internal/storage"
	"github.com/OFFIS-RIT/netunion/internal/util"
	"github.com/OFFIS-RIT/netunion/pkg/export"
	"github.com/OFFIS-RIT/netunion/pkg/leaselock"
	"github.com/OFFIS-RIT/netunion/pkg/logger"
	pgxstore "github.com/OFFIS-RIT/netunion/pkg/store/pgx"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := util.SetupLogger(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to set up logger:", err)
		os.Exit(1)
	}
	defer logger.Close()

	s3Client, err := storage.NewS3Client(ctx)
	if err != nil {
		logger.Fatal("Could not create S3 client", "err", err)
	}
	artifacts := storage.NewArtifactStore(s3Client, util.GetEnvString("AWS_BUCKET", "netunion"))

	pgConn, err := pgxpool.New(ctx, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	conn, err := queue.Init(ctx)
	if err != nil {
		logger.Fatal("Failed to connect to queue", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, []string{queue.RunQueue}); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	// One unacknowledged delivery at a time; a run can use every core.
	if err := ch.Qos(1, 0, false); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	hostname, _ := os.Hostname()
	processor := &queue.RunProcessor{
		Store: pgxstore.NewRunDBStorageWithConnection(pgConn),
		Locks: leaselock.New(pgConn),
		Sink: func(prefix string) export.Sink {
			return storage.S3Sink{Store: artifacts, Prefix: prefix}
		},
		NewSource:   run.NewSource,
		LeaseTTL:    time.Duration(util.GetEnvInt("RUN_LEASE_TTL_SECONDS", 600)) * time.Second,
		TokenPrefix: hostname + "-",
	}

	msgs, err := ch.Consume(
		queue.RunQueue,
		queue.RunQueue+"_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", queue.RunQueue, "err", err)
	}

	logger.Info("Listening for messages", "queue", queue.RunQueue)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received, exiting...")
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Info("Message channel closed", "queue", queue.RunQueue)
				return
			}

			startTime := time.Now()
			logger.Info("Received message", "queue", queue.RunQueue)

			if err := processor.ProcessRunMessage(ctx, msg.Body); err != nil {
				logger.Error("Error processing message", "queue", queue.RunQueue, "err", err)
				queue.HandleProcessingError(ch, msg, queue.RunQueue)
			} else {
				if err := msg.Ack(false); err != nil {
					logger.Error("Failed to ack message", "err", err)
				}
				logger.Info("Message processed", "queue", queue.RunQueue, "duration", time.Since(startTime).Round(time.Millisecond).String())
			}
		}
	}
}
