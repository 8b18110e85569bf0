package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"
)

// Producer publishes purchase lifecycle events to Kafka. It is optional: the
// notifier skips the channel entirely when no broker is configured.
type Producer struct {
	producer sarama.SyncProducer
}

func NewProducer(broker string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll

	producer, err := sarama.NewSyncProducer([]string{broker}, config)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	log.Info().Str("broker", broker).Msg("kafka producer initialized")
	return &Producer{producer: producer}, nil
}

// Publish sends one JSON message to the topic named after the event
// (purchase.completed, purchase.refunded, purchase.disputed).
func (p *Producer) Publish(topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(data),
	}

	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("send %s message: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
