package telemetry

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"plant-monitor/internal/fleet"
	"plant-monitor/internal/metrics"
	"plant-monitor/internal/model"
)

// MessageReader is the part of *kafka.Reader the consumer needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Config() kafka.ReaderConfig
}

// NewKafkaReader builds a consumer group reader for the telemetry topic.
func NewKafkaReader(brokers []string, topic, groupID string, tlsCfg *tls.Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:           brokers,
		Topic:             topic,
		GroupID:           groupID,
		StartOffset:       kafka.LastOffset,
		ReadLagInterval:   -1,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
		Dialer: &kafka.Dialer{
			Timeout: 10 * time.Second,
			TLS:     tlsCfg,
		},
	})
}

// KafkaSource streams one record per message into the working set.
type KafkaSource struct {
	reader     MessageReader
	fleet      *fleet.Fleet
	normalizer *Normalizer
	metrics    *metrics.Metrics
	logger     *zap.SugaredLogger

	backoff    time.Duration
	maxBackoff time.Duration
}

func NewKafkaSource(reader MessageReader, f *fleet.Fleet, n *Normalizer, m *metrics.Metrics, logger *zap.SugaredLogger) *KafkaSource {
	return &KafkaSource{
		reader:     reader,
		fleet:      f,
		normalizer: n,
		metrics:    m,
		logger:     logger,
		backoff:    5 * time.Second,
		maxBackoff: 2 * time.Minute,
	}
}

// ProcessMessage decodes, validates and applies one message. The message key is
// used as the machine id when the payload carries none.
func (s *KafkaSource) ProcessMessage(m kafka.Message) {
	rec, err := model.DecodeRecord(m.Value)
	if err != nil {
		s.normalizer.RejectDecode(err)
		return
	}
	if rec.ID == "" && len(m.Key) > 0 {
		rec.ID = string(m.Key)
	}
	if rec.ObservedAt.IsZero() {
		rec.ObservedAt = m.Time
	}

	h, err := s.normalizer.NormalizeOne(rec)
	if err != nil {
		return
	}
	if s.fleet.Upsert("kafka", h) {
		s.metrics.RecordApplied("kafka")
	}
}

// consumeLoop reads until the context ends or the reader fails. The first message
// read resets b, so a later outage starts again from the base delay.
func (s *KafkaSource) consumeLoop(ctx context.Context, b *backoff) error {
	cfg := s.reader.Config()
	s.logger.Infow("starting Kafka consumer", "brokers", cfg.Brokers, "topic", cfg.Topic, "groupID", cfg.GroupID)

	healthy := false
	for {
		m, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.logger.Info("consumer context canceled, stopping consumer loop")
				return nil
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("reader closed: %w", err)
			}
			return fmt.Errorf("error reading message: %w", err)
		}
		if !healthy {
			healthy = true
			b.reset()
		}
		s.ProcessMessage(m)
	}
}

// Run consumes with reconnect and capped exponential backoff until ctx is canceled.
func (s *KafkaSource) Run(ctx context.Context) {
	if s.reader == nil {
		s.logger.Warn("Kafka reader is nil, consumer not started")
		return
	}

	b := newBackoff(s.backoff, s.maxBackoff)
	for {
		err := s.consumeLoop(ctx, b)
		if err == nil || ctx.Err() != nil {
			s.logger.Info("Kafka consumer stopped")
			return
		}

		s.metrics.RecordFetchFailure("kafka")
		s.fleet.MarkFailed("kafka", err)
		s.logger.Warnw("Kafka consumer error, retrying", "error", err, "backoff", b.current)
		if !b.wait(ctx) {
			return
		}
	}
}
