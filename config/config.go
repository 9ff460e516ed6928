// Package config loads pipeline configuration from YAML, alongside
// required environment variables. YAML supplies the pipeline shape and
// tuning knobs; environment variables supply secrets and connection
// strings that stay out of version control.
package config

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kmwllc/lucille-go/stage"
)

// StageConfig describes one configured Stage entry: its class (the
// concrete stage package to instantiate), its name, and an optional
// conditional-execution predicate.
type StageConfig struct {
	Name       string            `yaml:"name"`
	Class      string            `yaml:"class"`
	Properties map[string]string `yaml:"properties"`
	Conditions []ConditionConfig `yaml:"conditions"`
}

// ConditionConfig mirrors stage.Condition's wire shape.
type ConditionConfig struct {
	Fields   []string `yaml:"fields"`
	Values   []string `yaml:"values"`
	Operator string   `yaml:"operator"` // "must" or "must_not"
}

// ToCondition converts the YAML condition into a stage.Condition.
func (c ConditionConfig) ToCondition() stage.Condition {
	op := stage.Must
	if c.Operator == "must_not" {
		op = stage.MustNot
	}
	return stage.NewCondition(c.Fields, c.Values, op)
}

// WorkerConfig holds worker.* settings.
type WorkerConfig struct {
	Pipeline   string `yaml:"pipeline"`
	MaxRetries *int   `yaml:"maxRetries"`
	NumWorkers int    `yaml:"numWorkers"`
}

// RetryTrackingEnabled reports whether worker.maxRetries was configured.
func (w WorkerConfig) RetryTrackingEnabled() bool { return w.MaxRetries != nil }

// IndexerConfig holds indexer.* settings.
type IndexerConfig struct {
	BatchSize     int    `yaml:"batchSize"`
	BatchTimeout  int    `yaml:"batchTimeout"` // milliseconds
	RoutingField  string `yaml:"routingField"`
	Versioning    bool   `yaml:"versioning"`
	Sink          string `yaml:"sink"` // "opensearch" or "minio"
	SinkIndex     string `yaml:"sinkIndex"`
}

// KafkaConfig holds connection settings for the Kafka messenger backend.
type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	GroupID      string   `yaml:"groupId"`
	DeadLetterOn bool     `yaml:"deadLetterOn"`
}

// RetryBackendConfig selects and configures the retry.Counter backend.
type RetryBackendConfig struct {
	Backend string `yaml:"backend"` // "inmemory" or "postgres"
	Table   string `yaml:"table"`
}

// Config is the top-level pipeline configuration document.
type Config struct {
	Worker  WorkerConfig        `yaml:"worker"`
	Indexer IndexerConfig       `yaml:"indexer"`
	Kafka   KafkaConfig         `yaml:"kafka"`
	Retry   RetryBackendConfig  `yaml:"retry"`
	Stages  []StageConfig       `yaml:"stages"`
}

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 100
)

// Load parses path as YAML and applies documented defaults for any field
// left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	applyDefaults(&cfg)

	if cfg.Worker.Pipeline == "" {
		return nil, fmt.Errorf("config: worker.pipeline is required")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Indexer.BatchSize == 0 {
		cfg.Indexer.BatchSize = defaultBatchSize
	}
	if cfg.Indexer.BatchTimeout == 0 {
		cfg.Indexer.BatchTimeout = defaultBatchTimeout
	}
	if cfg.Worker.NumWorkers == 0 {
		cfg.Worker.NumWorkers = 1
	}
}

// MustGetEnv reads a required environment variable, exiting the process if
// it is unset. Used for the connection settings YAML deliberately leaves
// out of version control (broker addresses, credentials).
func MustGetEnv(key string) string {
	val, ok := os.LookupEnv(key)
	if !ok {
		log.Fatalf("config: environment variable %s not set", key)
	}
	return val
}
