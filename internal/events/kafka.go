package events

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"courtbook/internal/config"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the forwarder needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaForwarder copies bus events to a Kafka topic. Events are buffered
// and written by Run; a full buffer drops the event.
type KafkaForwarder struct {
	writer  messageWriter
	queue   chan kafka.Message
	timeout time.Duration
	logger  *zerolog.Logger
}

const forwarderBuffer = 256

func NewKafkaForwarder(cfg config.KafkaConfig, logger *zerolog.Logger) *KafkaForwarder {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafkaForwarder(w, logger)
}

func newKafkaForwarder(w messageWriter, logger *zerolog.Logger) *KafkaForwarder {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "kafka_forwarder").Logger()
	return &KafkaForwarder{
		writer:  w,
		queue:   make(chan kafka.Message, forwarderBuffer),
		timeout: 5 * time.Second,
		logger:  &l,
	}
}

// Attach subscribes the forwarder to every published event type.
func (f *KafkaForwarder) Attach(bus *EventBus) {
	for _, eventType := range AllEvents {
		bus.Subscribe(eventType, f.Handle)
	}
}

// Handle enqueues the event for delivery. It never blocks.
func (f *KafkaForwarder) Handle(event *Event) error {
	msg := kafka.Message{
		Key:   partitionKey(event.Payload),
		Value: event.Payload,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}

	select {
	case f.queue <- msg:
		return nil
	default:
		return errors.New("kafka forwarder buffer full")
	}
}

// Run drains the buffer until ctx is done, then flushes what is left.
func (f *KafkaForwarder) Run(ctx context.Context) {
	defer func() {
		if err := f.writer.Close(); err != nil {
			f.logger.Warn().Err(err).Msg("close kafka writer")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			f.flush()
			return
		case msg := <-f.queue:
			f.write(context.Background(), msg)
		}
	}
}

func (f *KafkaForwarder) flush() {
	for {
		select {
		case msg := <-f.queue:
			f.write(context.Background(), msg)
		default:
			return
		}
	}
}

func (f *KafkaForwarder) write(parent context.Context, msg kafka.Message) {
	ctx, cancel := context.WithTimeout(parent, f.timeout)
	defer cancel()

	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		f.logger.Error().Err(err).Str("event_type", headerValue(msg, "event_type")).Msg("kafka publish failed")
		return
	}
	f.logger.Debug().Str("event_type", headerValue(msg, "event_type")).Str("key", string(msg.Key)).Msg("event forwarded")
}

// partitionKey keeps all events of one reservation on one partition.
func partitionKey(payload []byte) []byte {
	var ids struct {
		ReservationID int64 `json:"reservation_id"`
	}
	if err := json.Unmarshal(payload, &ids); err != nil || ids.ReservationID == 0 {
		return nil
	}
	return []byte(strconv.FormatInt(ids.ReservationID, 10))
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
