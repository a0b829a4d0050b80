package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/MelvinVerLia/SiLaporRT-sub001/config"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
)

// Job is what KafkaProvider publishes; an out-of-process sender owns the
// actual delivery.
type Job struct {
	UserID   string             `json:"userId"`
	Endpoint json.RawMessage    `json:"endpoint"`
	Payload  domain.PushPayload `json:"payload"`
	QueuedAt time.Time          `json:"queuedAt"`
}

func encodeJob(sub *domain.PushSubscription, payload domain.PushPayload, now time.Time) ([]byte, error) {
	return json.Marshal(Job{
		UserID:   sub.UserID,
		Endpoint: sub.Endpoint,
		Payload:  payload,
		QueuedAt: now.UTC(),
	})
}

// KafkaProvider publishes push jobs keyed by user id.
type KafkaProvider struct {
	producer *kafka.Producer
	topic    string
	log      *slog.Logger
	doneCh   chan struct{}
}

func NewKafkaProvider(cfg config.Kafka, log *slog.Logger) (*KafkaProvider, error) {
	if err := ensureTopic(cfg.Brokers, cfg.Topic, cfg.Partitions); err != nil {
		log.Warn("ensure push topic failed (may already exist)", "topic", cfg.Topic, "err", err)
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	kp := &KafkaProvider{
		producer: p,
		topic:    cfg.Topic,
		log:      log,
		doneCh:   make(chan struct{}),
	}
	go kp.deliveryReportHandler()

	return kp, nil
}

func ensureTopic(brokers, topic string, partitions int) error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	}})
	if err != nil {
		return err
	}
	for _, result := range results {
		if result.Error.Code() != kafka.ErrNoError && result.Error.Code() != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("failed to create topic %s: %v", result.Topic, result.Error)
		}
	}
	return nil
}

func (p *KafkaProvider) deliveryReportHandler() {
	for e := range p.producer.Events() {
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			p.log.Warn("push job delivery failed", "key", string(m.Key), "err", m.TopicPartition.Error)
		}
	}
	close(p.doneCh)
}

func (p *KafkaProvider) Send(ctx context.Context, sub *domain.PushSubscription, payload domain.PushPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := encodeJob(sub, payload, time.Now())
	if err != nil {
		return fmt.Errorf("encode push job: %w", err)
	}

	err = p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &p.topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(sub.UserID),
		Value: value,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to produce push job: %w", err)
	}
	return nil
}

func (p *KafkaProvider) Close() error {
	p.producer.Flush(5000)
	p.producer.Close()
	<-p.doneCh
	return nil
}
