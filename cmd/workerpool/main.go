// Command workerpool starts a pool of Workers plus one Indexer for a
// single configured pipeline, wired to Kafka, and runs until an OS
// interrupt is received.
package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/kmwllc/lucille-go/config"
	"github.com/kmwllc/lucille-go/indexer"
	"github.com/kmwllc/lucille-go/indexer/sink/minio"
	"github.com/kmwllc/lucille-go/indexer/sink/opensearch"
	"github.com/kmwllc/lucille-go/messenger/kafka"
	"github.com/kmwllc/lucille-go/pkg/graceful"
	"github.com/kmwllc/lucille-go/retry"
	"github.com/kmwllc/lucille-go/retry/inmemory"
	"github.com/kmwllc/lucille-go/retry/postgres"
	"github.com/kmwllc/lucille-go/stage"
	"github.com/kmwllc/lucille-go/stage/dictionarylookup"
	"github.com/kmwllc/lucille-go/stage/jdbcjoin"
	"github.com/kmwllc/lucille-go/worker"
)

func main() {
	configPath := flag.String("config", "pipeline.yaml", "path to the pipeline YAML config")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, assuming environment variables are set directly.")
	}
	ctx, cancel := graceful.Context(context.Background())
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("workerpool: loading config: %v", err)
	}

	kafkaCfg := kafka.Config{
		Brokers:      strings.Split(config.MustGetEnv("KAFKA_BROKERS"), ","),
		Pipeline:     cfg.Worker.Pipeline,
		GroupID:      cfg.Kafka.GroupID,
		DeadLetterOn: cfg.Kafka.DeadLetterOn,
	}

	retryCounter, err := buildRetryCounter(ctx, cfg)
	if err != nil {
		log.Fatalf("workerpool: building retry counter: %v", err)
	}

	// A pool serves every run published against this pipeline, so no run id
	// is fixed here; each Worker takes it from the run_id already stamped
	// on the document it pulls off the source topic.
	var g errgroup.Group
	for i := 0; i < cfg.Worker.NumWorkers; i++ {
		pipeline, err := buildPipeline(ctx, cfg)
		if err == nil {
			err = pipeline.Start(ctx)
		}
		if err != nil {
			log.Fatalf("workerpool: building pipeline: %v", err)
		}
		defer pipeline.Stop(context.Background())
		transport := kafka.NewWorkerTransport(kafkaCfg)
		w := worker.New(cfg.Worker.Pipeline, pipeline, transport, retryCounter)
		g.Go(func() error {
			if err := w.Run(ctx); err != nil {
				log.Printf("workerpool: worker exited: %v", err)
			}
			return nil
		})
	}

	sink, err := buildSink(cfg)
	if err != nil {
		log.Fatalf("workerpool: building sink: %v", err)
	}
	idx := indexer.New(kafka.NewIndexerTransport(kafkaCfg), sink,
		indexer.NewBatch(cfg.Indexer.BatchSize, time.Duration(cfg.Indexer.BatchTimeout)*time.Millisecond))
	g.Go(func() error {
		if err := idx.Run(ctx); err != nil {
			log.Printf("workerpool: indexer exited: %v", err)
		}
		return nil
	})

	g.Wait()
	log.Println("workerpool: all workers and the indexer have exited")
}

func buildSink(cfg *config.Config) (indexer.Sink, error) {
	switch cfg.Indexer.Sink {
	case "minio":
		return minio.New(cfg.Indexer.SinkIndex)
	default:
		return opensearch.New(config.MustGetEnv("OPENSEARCH_URL"), cfg.Indexer.SinkIndex, cfg.Indexer.RoutingField, cfg.Indexer.Versioning), nil
	}
}

func buildRetryCounter(ctx context.Context, cfg *config.Config) (retry.Counter, error) {
	if !cfg.Worker.RetryTrackingEnabled() {
		return nil, nil
	}
	max := *cfg.Worker.MaxRetries
	if cfg.Retry.Backend != "postgres" {
		return inmemory.New(max), nil
	}
	pool, err := pgxpool.New(ctx, config.MustGetEnv("RETRY_DATABASE_URL"))
	if err != nil {
		return nil, err
	}
	counter := postgres.New(pool, cfg.Retry.Table, max)
	if err := counter.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return counter, nil
}

// buildPipeline instantiates the two reference stages this repository
// ships from the YAML stage configs. A real deployment would register
// additional stage classes here.
func buildPipeline(ctx context.Context, cfg *config.Config) (*stage.Pipeline, error) {
	var stages []stage.Stage
	for _, sc := range cfg.Stages {
		cond := stage.Condition{}
		if len(sc.Conditions) > 0 {
			cond = sc.Conditions[0].ToCondition()
		}

		switch sc.Class {
		case "dictionarylookup":
			dict, err := loadDictionary(sc.Properties["dictionaryPath"])
			if err != nil {
				return nil, err
			}
			s := dictionarylookup.New(sc.Name, sc.Properties["sourceField"], sc.Properties["destField"], dict,
				sc.Properties["onlyWholeWords"] == "true", cond)
			stages = append(stages, s)
		case "jdbcjoin":
			pool, err := pgxpool.New(ctx, sc.Properties["dsn"])
			if err != nil {
				return nil, err
			}
			stages = append(stages, jdbcjoin.New(sc.Name, pool, sc.Properties["query"], sc.Properties["joinField"], cond))
		default:
			log.Printf("workerpool: unrecognized stage class %q, skipping", sc.Class)
		}
	}
	return stage.New(cfg.Worker.Pipeline, stages...), nil
}

// loadDictionary reads a "term=value" per line file; blank lines and lines
// without "=" are skipped.
func loadDictionary(path string) (map[string]string, error) {
	dict := make(map[string]string)
	if path == "" {
		return dict, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		dict[parts[0]] = parts[1]
	}
	return dict, scanner.Err()
}
