package ingest

import (
	"context"
	"fmt"

	"github.com/nerrad567/facility-core/internal/infrastructure/mqtt"
)

// subscriberQoS is the QoS for ingestion topics: readings may arrive twice
// but are never silently dropped by the broker.
const subscriberQoS = 1

// MQTTClient is satisfied by *mqtt.Client.
type MQTTClient interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Subscriber ingests readings published on an MQTT topic pattern.
type Subscriber struct {
	client   MQTTClient
	topic    string
	ingester Ingester
	logger   Logger
	ctx      context.Context
}

// NewSubscriber creates a subscriber for topic. An empty topic defaults to
// facility/ingest/+.
func NewSubscriber(client MQTTClient, topic string, ing Ingester, logger Logger) *Subscriber {
	if topic == "" {
		topic = mqtt.Topics{}.IngestReadings()
	}
	return &Subscriber{client: client, topic: topic, ingester: ing, logger: logger}
}

// Topic returns the subscribed topic pattern.
func (s *Subscriber) Topic() string { return s.topic }

// Start subscribes. Messages are ingested under ctx until Stop.
func (s *Subscriber) Start(ctx context.Context) error {
	s.ctx = ctx
	if err := s.client.Subscribe(s.topic, subscriberQoS, s.handle); err != nil {
		return fmt.Errorf("subscribing to %s: %w", s.topic, err)
	}
	s.logger.Info("mqtt ingestion started", "topic", s.topic)
	return nil
}

// Stop unsubscribes.
func (s *Subscriber) Stop() error {
	return s.client.Unsubscribe(s.topic)
}

func (s *Subscriber) handle(topic string, payload []byte) error {
	readings, err := DecodeReadings(payload)
	if err != nil {
		return err
	}
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	_, err = Batch(ctx, s.ingester, readings, s.logger, topic)
	return err
}
