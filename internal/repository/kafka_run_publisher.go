package repository

import (
	"context"
	"strings"

	"github.com/segmentio/kafka-go"

	"AltPull/internal/domain/models"
	pkgkafka "AltPull/pkg/kafka"
)

// KafkaRunPublisher emits finished run records keyed by "source/SYMBOL" so runs of one
// series stay ordered on a partition.
type KafkaRunPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaRunPublisher(p *pkgkafka.Producer, topic string) *KafkaRunPublisher {
	return &KafkaRunPublisher{producer: p, topic: topic}
}

func (p *KafkaRunPublisher) PublishRun(ctx context.Context, rec models.RunRecord) error {
	key := strings.ToLower(rec.Source) + "/" + strings.ToUpper(rec.Symbol)
	var headers []kafka.Header
	if trace := pkgkafka.TraceID(ctx); trace != "" {
		headers = append(headers, kafka.Header{Key: pkgkafka.TraceHeader, Value: []byte(trace)})
	}
	return p.producer.Publish(ctx, p.topic, []byte(key), rec, headers...)
}

func (p *KafkaRunPublisher) Close() error { return p.producer.Close() }

// NopRunPublisher drops run records.
type NopRunPublisher struct{}

func (NopRunPublisher) PublishRun(context.Context, models.RunRecord) error { return nil }

func (NopRunPublisher) Close() error { return nil }
