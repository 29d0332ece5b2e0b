// Package kafkasink relays outbox mutations to Kafka topics, one topic per target entity.
package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	outbox "github.com/TimKotowski/pg-outbox-relay"
)

const (
	HeaderIdempotencyKey = "idempotency-key"
	HeaderOperation      = "operation"
	HeaderRecordID       = "record-id"
)

var _ outbox.DownstreamClient = (*Sink)(nil)

var ErrNoBrokers = errors.New("kafka sink has no brokers")

// MessageWriter is the part of kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers []string
	// TopicPrefix is prepended to the target entity, "erp." turns res.partner into erp.res.partner.
	TopicPrefix string
}

type Option func(s *Sink)

// WithWriter replaces the kafka.Writer built from the brokers.
func WithWriter(writer MessageWriter) Option {
	return func(s *Sink) {
		s.writer = writer
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

// Sink publishes one keyed message per mutation. Consumers deduplicate on the
// idempotency-key header, redelivered records carry the same key.
type Sink struct {
	conf   Config
	writer MessageWriter
	logger *zap.Logger
}

func New(conf Config, opts ...Option) *Sink {
	s := &Sink{
		conf:   conf,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.writer == nil {
		s.writer = &kafka.Writer{
			Addr:                   kafka.TCP(conf.Brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		}
	}
	s.logger = s.logger.Named("kafka")

	return s
}

// Authenticate checks that the first broker accepts connections.
func (s *Sink) Authenticate(ctx context.Context) error {
	if len(s.conf.Brokers) == 0 {
		return outbox.Permanent(ErrNoBrokers)
	}

	conn, err := kafka.DialContext(ctx, "tcp", s.conf.Brokers[0])
	if err != nil {
		return outbox.Transient(fmt.Errorf("dialing broker %s: %w", s.conf.Brokers[0], err))
	}
	s.logger.Info("connected to kafka", zap.String("broker", s.conf.Brokers[0]))

	return conn.Close()
}

func (s *Sink) Upsert(ctx context.Context, m outbox.Mutation) error {
	value, err := json.Marshal(m.Payload)
	if err != nil {
		return outbox.Permanent(fmt.Errorf("encoding payload of record %d: %w", m.RecordID, err))
	}

	return s.publish(ctx, m, value)
}

// Delete publishes a tombstone, compacted topics drop the entity's key.
func (s *Sink) Delete(ctx context.Context, m outbox.Mutation) error {
	return s.publish(ctx, m, nil)
}

func (s *Sink) publish(ctx context.Context, m outbox.Mutation, value []byte) error {
	msg := kafka.Message{
		Topic: s.Topic(m.TargetEntity),
		Key:   Key(m),
		Value: value,
		Headers: []kafka.Header{
			{Key: HeaderIdempotencyKey, Value: []byte(m.IdempotencyKey)},
			{Key: HeaderOperation, Value: []byte(m.Operation)},
			{Key: HeaderRecordID, Value: []byte(strconv.FormatInt(m.RecordID, 10))},
		},
	}

	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.Error("publishing to kafka failed",
			zap.String("topic", msg.Topic),
			zap.Int64("record_id", m.RecordID),
			zap.Error(err))
		return classify(fmt.Errorf("publishing to %s: %w", msg.Topic, err))
	}
	s.logger.Debug("mutation published", zap.String("topic", msg.Topic), zap.Int64("record_id", m.RecordID))

	return nil
}

func (s *Sink) Topic(entity string) string {
	return s.conf.TopicPrefix + entity
}

func (s *Sink) Close() error {
	return s.writer.Close()
}

// Key partitions by the downstream identifier so every mutation of one entity keeps
// its order. Entities without one yet fall back to the idempotency key.
func Key(m outbox.Mutation) []byte {
	if m.Identifier != nil {
		return []byte(formatIdentifier(m.Identifier))
	}
	return []byte(m.IdempotencyKey)
}

// formatIdentifier writes whole numbers without exponent, jsonb decodes every number as float64.
func formatIdentifier(id any) string {
	if f, ok := id.(float64); ok && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return fmt.Sprint(id)
}

// classify tags err by its first cause. A batch failure reports one cause per message.
func classify(err error) error {
	cause := err
	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		for _, e := range writeErrs {
			if e != nil {
				cause = e
				break
			}
		}
	}

	var tooLarge kafka.MessageTooLargeError
	if errors.As(cause, &tooLarge) {
		return outbox.Permanent(err)
	}

	var kafkaErr kafka.Error
	if errors.As(cause, &kafkaErr) {
		if kafkaErr.Temporary() {
			return outbox.Transient(err)
		}
		return outbox.Permanent(err)
	}

	return outbox.Transient(err)
}
