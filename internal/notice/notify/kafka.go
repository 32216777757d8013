// Package notify hands notifications to the dispatch subsystem. Delivery is
// fire-and-forget: publish failures are logged and never fail the caller.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"noticeops/internal/notice/models"
)

// KafkaNotifier produces notifications to a topic keyed by party id so that all
// notifications for a party land on one partition.
type KafkaNotifier struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// KafkaOption configures the notifier.
type KafkaOption func(*KafkaNotifier)

func WithLogger(logger *slog.Logger) KafkaOption {
	return func(n *KafkaNotifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewKafkaNotifier uses an existing client. The client lifecycle is managed by the caller.
func NewKafkaNotifier(client *kgo.Client, topic string, opts ...KafkaOption) *KafkaNotifier {
	n := &KafkaNotifier{
		client: client,
		topic:  topic,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Publish enqueues the notification and returns without waiting for the broker.
func (n *KafkaNotifier) Publish(ctx context.Context, note models.Notification) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	record := &kgo.Record{
		Topic: n.topic,
		Key:   []byte(note.PartyID.String()),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "type", Value: []byte(note.Type)},
		},
	}
	// The produce callback outlives the request; detach from its cancellation.
	n.client.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if err != nil {
			n.logger.Error("notification publish failed",
				"type", note.Type,
				"party_id", note.PartyID,
				"error", err,
			)
			return
		}
		n.logger.Debug("notification published",
			"type", note.Type,
			"party_id", note.PartyID,
			"partition", r.Partition,
			"offset", r.Offset,
		)
	})
	return nil
}

// EnsureTopic creates the topic if it does not exist.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replication int16) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, partitions, replication, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}
