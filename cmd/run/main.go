// Command run drives a single Connector to completion against an already
// running workerpool for the same pipeline, blocking until the run
// reconciles (or fails), then exits 0 on success or 1 if any document
// failed.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/kmwllc/lucille-go/config"
	"github.com/kmwllc/lucille-go/connector"
	"github.com/kmwllc/lucille-go/connector/filesystem"
	"github.com/kmwllc/lucille-go/connector/jdbc"
	"github.com/kmwllc/lucille-go/messenger/kafka"
	"github.com/kmwllc/lucille-go/pkg/graceful"
	"github.com/kmwllc/lucille-go/publisher"
)

func main() {
	configPath := flag.String("config", "pipeline.yaml", "path to the pipeline YAML config")
	connectorKind := flag.String("connector", "filesystem", "connector to run: filesystem or jdbc")
	root := flag.String("root", ".", "filesystem connector: directory to walk")
	ext := flag.String("ext", ".json", "filesystem connector: file extension to publish")
	dsn := flag.String("dsn", "", "jdbc connector: connection string")
	query := flag.String("query", "", "jdbc connector: query to run")
	idField := flag.String("id-field", "id", "jdbc connector: column to use as document id")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, assuming environment variables are set directly.")
	}
	ctx, cancel := graceful.Context(context.Background())
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("run: loading config: %v", err)
	}

	kafkaCfg := kafka.Config{
		Brokers:  strings.Split(config.MustGetEnv("KAFKA_BROKERS"), ","),
		Pipeline: cfg.Worker.Pipeline,
		GroupID:  cfg.Kafka.GroupID,
	}
	transport := kafka.NewPublisherTransport(kafkaCfg)

	p, err := publisher.New(ctx, transport, cfg.Worker.Pipeline, "")
	if err != nil {
		log.Fatalf("run: creating publisher: %v", err)
	}

	conn, err := buildConnector(ctx, *connectorKind, *root, *ext, *dsn, *query, *idField)
	if err != nil {
		log.Fatalf("run: building connector: %v", err)
	}

	// A run's events topic is exclusive to that run, so "drained" reduces to
	// "the publisher's own PollEvent has nothing more queued right now": one
	// more poll that finds nothing. An event it does find is folded into the
	// publisher, and Run checks IsReconciled() again.
	drained := func(ctx context.Context, runID string) (bool, error) {
		evt, err := p.PollEvent(ctx)
		if err != nil {
			return false, err
		}
		return evt == nil, nil
	}
	if err := publisher.Run(ctx, p, conn, drained); err != nil {
		log.Fatalf("run: %v", err)
	}

	published, succeeded, failed := p.Counts()
	log.Printf("run: finished run %s: %d published, %d succeeded, %d failed", p.RunID(), published, succeeded, failed)
	if p.HasErrors() {
		os.Exit(1)
	}
}

func buildConnector(ctx context.Context, kind, root, ext, dsn, query, idField string) (connector.Connector, error) {
	switch kind {
	case "jdbc":
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return jdbc.New(pool, query, idField), nil
	default:
		return filesystem.New(root, ext), nil
	}
}
