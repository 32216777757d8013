//go:build integration

package notify_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"noticeops/internal/notice/models"
	"noticeops/internal/notice/notify"
	"noticeops/pkg/testutil/containers"
)

type KafkaNotifierSuite struct {
	suite.Suite
	kafka    *containers.RedpandaContainer
	producer *kgo.Client
	topic    string
}

func TestKafkaNotifierSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaNotifierSuite))
}

func (s *KafkaNotifierSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.kafka = mgr.GetRedpanda(s.T())
	s.topic = "notice-notifications-test"

	client, err := kgo.NewClient(kgo.SeedBrokers(s.kafka.Brokers...))
	s.Require().NoError(err)
	s.producer = client

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Require().NoError(notify.EnsureTopic(ctx, client, s.topic, 1, 1))
	// Second call is a no-op
	s.Require().NoError(notify.EnsureTopic(ctx, client, s.topic, 1, 1))
}

func (s *KafkaNotifierSuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

func (s *KafkaNotifierSuite) TestPublishDeliversKeyedRecord() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n := notify.NewKafkaNotifier(s.producer, s.topic)
	note := models.Notification{
		Type:      models.NotificationAddressInvalid,
		PartyID:   "S1234567D",
		NoticeNos: []string{"500400123K", "500400124L"},
		CreatedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	s.Require().NoError(n.Publish(ctx, note))
	s.Require().NoError(s.producer.Flush(ctx))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.kafka.Brokers...),
		kgo.ConsumeTopics(s.topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	var got *kgo.Record
	for got == nil && ctx.Err() == nil {
		fetches := consumer.PollFetches(ctx)
		fetches.EachRecord(func(r *kgo.Record) {
			if string(r.Key) == "S1234567D" {
				got = r
			}
		})
	}
	s.Require().NotNil(got, "notification not consumed")

	var decoded models.Notification
	s.Require().NoError(json.Unmarshal(got.Value, &decoded))
	s.Equal(note.NoticeNos, decoded.NoticeNos)
	s.Equal(models.NotificationAddressInvalid, decoded.Type)
}
