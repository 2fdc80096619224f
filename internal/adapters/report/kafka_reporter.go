package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/ghalamif/twinfleet/internal/domain"
	"github.com/ghalamif/twinfleet/internal/ports"
)

// Producer is the subset of *kgo.Client the reporter needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// NewKafkaClient builds a producer-only client for the given seed brokers.
func NewKafkaClient(brokers []string, clientID, topic string) (*kgo.Client, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(10 * time.Millisecond),
		kgo.RetryTimeout(30 * time.Second),
		kgo.RetryBackoffFn(func(attempts int) time.Duration {
			return time.Duration(attempts) * 200 * time.Millisecond
		}),
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return client, nil
}

// KafkaReporter publishes each report as a JSON record keyed by equipment ID,
// so one unit's reports stay ordered within a partition.
type KafkaReporter struct {
	producer Producer
	topic    string
}

func NewKafkaReporter(producer Producer, topic string) *KafkaReporter {
	return &KafkaReporter{producer: producer, topic: topic}
}

func (k *KafkaReporter) Name() string { return "kafka" }

func (k *KafkaReporter) Publish(ctx context.Context, reports []domain.StatusReport) error {
	if len(reports) == 0 {
		return nil
	}
	records := make([]*kgo.Record, 0, len(reports))
	for _, r := range reports {
		value, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode report %s: %w", r.ID, err)
		}
		records = append(records, &kgo.Record{
			Topic: k.topic,
			Key:   []byte(r.ID),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "run_id", Value: []byte(r.RunID)},
				{Key: "iteration", Value: []byte(strconv.Itoa(r.Iteration))},
			},
			Timestamp: r.Timestamp,
		})
	}
	if err := k.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", k.topic, err)
	}
	return nil
}

// Report publishes synchronously; wrap the reporter in an async pipeline to
// keep broker latency out of the fleet loop.
func (k *KafkaReporter) Report(ctx context.Context, _ int, reports []domain.StatusReport) error {
	return k.Publish(ctx, reports)
}

func (k *KafkaReporter) Close() error {
	k.producer.Close()
	return nil
}

var (
	_ ports.Reporter        = (*KafkaReporter)(nil)
	_ ports.ReportPublisher = (*KafkaReporter)(nil)
)
