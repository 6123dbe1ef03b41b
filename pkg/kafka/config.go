package kafka

import "time"

// Config is the YAML section for Kafka wiring.
type Config struct {
	Enabled         bool          `yaml:"enabled"`
	Brokers         []string      `yaml:"brokers"`
	GroupID         string        `yaml:"group_id" default:"altpull-etl"`
	RunRequestTopic string        `yaml:"run_request_topic" default:"altdata.etl.requests"`
	RunEventTopic   string        `yaml:"run_event_topic" default:"altdata.etl.runs"`
	DLQTopic        string        `yaml:"dlq_topic" default:"altdata.etl.requests.dlq"`
	Workers         int           `yaml:"workers" default:"2" validate:"gte=1"`
	RetryMax        int           `yaml:"retry_max" default:"2" validate:"gte=0"`
	Compression     string        `yaml:"compression" default:"snappy" validate:"oneof=gzip snappy lz4 zstd"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
}

// ProducerOptions maps cfg onto producer options.
func (cfg Config) ProducerOptions() []ProducerOption {
	opts := []ProducerOption{
		WithBrokers(cfg.Brokers),
		WithCompression(cfg.Compression),
		WithHashByKey(true),
	}
	if cfg.WriteTimeout > 0 {
		opts = append(opts, WithTimeouts(cfg.WriteTimeout, cfg.WriteTimeout))
	}
	return opts
}

// ConsumerOptions maps cfg onto consumer options.
func (cfg Config) ConsumerOptions() []ConsumerOption {
	return []ConsumerOption{
		WithConsumerBrokers(cfg.Brokers),
		WithConsumerGroupID(cfg.GroupID),
		WithConsumerWorkers(cfg.Workers),
		WithConsumerRetry(cfg.RetryMax, 200*time.Millisecond, 5*time.Second),
		WithConsumerDLQ(cfg.DLQTopic),
	}
}

// ProducerOption configures Producer.
type ProducerOption func(*ProducerConfig)

// ProducerConfig holds producer configuration.
type ProducerConfig struct {
	Brokers      []string
	RequiredAcks int
	Compression  string
	MaxAttempts  int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	BatchSize    int
	BatchTimeout time.Duration
	HashByKey    bool
}

// WithBrokers sets Kafka brokers.
func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) {
		c.Brokers = brokers
	}
}

// WithCompression sets compression type.
func WithCompression(compression string) ProducerOption {
	return func(c *ProducerConfig) {
		c.Compression = compression
	}
}

// WithRequiredAcks sets required acknowledgements (-1 = all).
func WithRequiredAcks(acks int) ProducerOption {
	return func(c *ProducerConfig) {
		c.RequiredAcks = acks
	}
}

// WithBatchTimeout sets batch timeout.
func WithBatchTimeout(timeout time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		c.BatchTimeout = timeout
	}
}

// WithTimeouts sets writer read/write timeouts.
func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		c.WriteTimeout = write
		c.ReadTimeout = read
	}
}

// WithHashByKey sets hash balancer for per-key ordering.
func WithHashByKey(hash bool) ProducerOption {
	return func(c *ProducerConfig) {
		c.HashByKey = hash
	}
}
