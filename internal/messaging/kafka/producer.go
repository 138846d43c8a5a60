package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const producerClientID = "fiadopay"

// Producer отправляет события жизненного цикла платежа в Kafka синхронно:
// вызов возвращается только после подтверждения всех in-sync реплик.
type Producer struct {
	sync   sarama.SyncProducer
	logger *log.Entry
	now    func() time.Time
}

// NewProducer подключается к брокерам. Порядок событий одного платежа
// сохраняется идемпотентным producer с одним запросом в полёте.
func NewProducer(brokers []string) (*Producer, error) {
	client, err := sarama.NewSyncProducer(brokers, paymentEventsConfig())
	if err != nil {
		return nil, fmt.Errorf("connect payment events producer to %v: %w", brokers, err)
	}
	return NewProducerWithClient(client, nil), nil
}

func paymentEventsConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = producerClientID
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

// NewProducerWithClient оборачивает готовый SyncProducer; в тестах это sarama/mocks.
func NewProducerWithClient(client sarama.SyncProducer, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.WithField("component", "kafka-producer")
	}
	return &Producer{
		sync:   client,
		logger: logger,
		now:    time.Now,
	}
}

// PublishEvent кодирует событие в JSON. key задаёт партицию, для событий платежа это его id.
func (p *Producer) PublishEvent(topic, key string, event any, headers ...sarama.RecordHeader) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event for %s: %w", topic, err)
	}

	logger := p.logger.WithFields(log.Fields{
		"topic":      topic,
		"payment_id": key,
	})

	partition, offset, err := p.sync.SendMessage(&sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(value),
		Headers:   headers,
		Timestamp: p.now(),
	})
	if err != nil {
		logger.WithError(err).Error("payment event rejected by kafka")
		return fmt.Errorf("send event to %s: %w", topic, err)
	}

	logger.WithFields(log.Fields{
		"partition": partition,
		"offset":    offset,
	}).Debug("payment event stored in kafka")
	return nil
}

// Close сбрасывает соединения с брокерами.
func (p *Producer) Close() error {
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("close payment events producer: %w", err)
	}
	return nil
}
