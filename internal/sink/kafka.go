package sink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"jobharvest-engine/internal/domain"
)

// Publisher hands normalized records to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, runID string, jobs []domain.CanonicalJob) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per record, keyed by record id, so a
// compacted topic keeps the latest version of each job.
type KafkaPublisher struct {
	writer    messageWriter
	batchSize int
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: false,
		},
		batchSize: 100,
	}
}

// NewKafkaPublisherWithWriter builds a publisher around a custom writer (tests).
func NewKafkaPublisherWithWriter(w messageWriter, batchSize int) *KafkaPublisher {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &KafkaPublisher{writer: w, batchSize: batchSize}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func (p *KafkaPublisher) Publish(ctx context.Context, runID string, jobs []domain.CanonicalJob) error {
	now := time.Now().UTC()
	batch := make([]kafka.Message, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := p.writer.WriteMessages(ctx, batch...)
		batch = batch[:0]
		return err
	}

	for _, j := range jobs {
		payload, err := json.Marshal(j)
		if err != nil {
			return err
		}
		batch = append(batch, kafka.Message{
			Key:     []byte(j.ID),
			Value:   payload,
			Time:    now,
			Headers: []kafka.Header{{Key: "run_id", Value: []byte(runID)}},
		})
		if len(batch) == p.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// Nop discards everything. Used when no sink is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, []domain.CanonicalJob) error { return nil }
func (Nop) Close() error                                                 { return nil }
