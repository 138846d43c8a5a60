package kafka

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerWithClient(mockProducer, log.WithField("component", "kafka-producer-test"))

	mockProducer.ExpectSendMessageAndSucceed()

	event := PaymentEvent{
		ID:        "evt-1",
		EventType: EventTypePaymentCreated,
		PaymentID: "pay_123",
		Payload:   []byte(`{"status":"PENDING"}`),
	}
	if err := producer.PublishEvent(TopicPaymentEvents, "pay_123", event); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := producer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerWithClient(mockProducer, nil)

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := producer.PublishEvent(TopicPaymentEvents, "pay_123", PaymentEvent{ID: "evt-2"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_MarshalError(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerWithClient(mockProducer, nil)

	// Канал не сериализуется в JSON, до брокера сообщение не доходит.
	if err := producer.PublishEvent(TopicPaymentEvents, "pay_123", make(chan int)); err == nil {
		t.Fatal("expected marshal error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestPaymentEventsConfig(t *testing.T) {
	cfg := paymentEventsConfig()
	if cfg.ClientID != producerClientID {
		t.Fatalf("expected client id %q, got %q", producerClientID, cfg.ClientID)
	}
	if !cfg.Producer.Idempotent || cfg.Net.MaxOpenRequests != 1 {
		t.Fatal("idempotent producer with a single in-flight request is required for ordering")
	}
	if cfg.Producer.RequiredAcks != sarama.WaitForAll || !cfg.Producer.Return.Successes {
		t.Fatal("sync producer must wait for all replicas and return successes")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config must be valid: %v", err)
	}
}
