package service

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"plant-monitor/internal/fleet"
)

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds a writer for the status topic.
func NewKafkaWriter(brokers []string, topic string, tlsCfg *tls.Config) *kafka.Writer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	if tlsCfg != nil {
		w.Transport = &kafka.Transport{TLS: tlsCfg}
	}
	return w
}

// StatusPublisher writes a StatusEvent to Kafka for every severity transition.
// Events are queued so a slow broker never holds up the working set; when the
// queue is full the event is dropped and logged.
type StatusPublisher struct {
	writer  MessageWriter
	logger  *zap.SugaredLogger
	events  chan StatusEvent
	timeout time.Duration

	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewStatusPublisher(writer MessageWriter, logger *zap.SugaredLogger) *StatusPublisher {
	return &StatusPublisher{
		writer:  writer,
		logger:  logger,
		events:  make(chan StatusEvent, 1024),
		timeout: 10 * time.Second,
	}
}

// Listener returns the fleet listener that feeds the publisher.
func (p *StatusPublisher) Listener() fleet.Listener {
	return func(c fleet.Change) {
		if !c.SeverityChanged() {
			return
		}
		select {
		case p.events <- newStatusEvent(c):
		default:
			p.logger.Warnw("status event queue full, dropping event", "machine_id", c.ID())
		}
	}
}

// Start runs the writer loop until ctx is canceled, then drains what is queued.
func (p *StatusPublisher) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				p.drain()
				return
			case ev := <-p.events:
				p.publish(ctx, ev)
			}
		}
	}()
}

func (p *StatusPublisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	for {
		select {
		case ev := <-p.events:
			p.publish(ctx, ev)
		default:
			return
		}
	}
}

func (p *StatusPublisher) publish(ctx context.Context, ev StatusEvent) {
	value, err := jsonFast.Marshal(ev)
	if err != nil {
		p.logger.Errorw("failed to encode status event", "machine_id", ev.MachineID, "error", err)
		return
	}

	wctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(wctx, kafka.Message{
		Key:   []byte(ev.MachineID),
		Value: value,
		Time:  ev.At,
	}); err != nil {
		p.logger.Errorw("failed to publish status event", "machine_id", ev.MachineID, "error", err)
	}
}

// Shutdown waits for the writer loop and closes the Kafka writer.
func (p *StatusPublisher) Shutdown() {
	p.closeOnce.Do(func() {
		p.wg.Wait()
		if err := p.writer.Close(); err != nil {
			p.logger.Warnw("failed to close Kafka writer", "error", err)
		}
		p.logger.Info("status publisher stopped")
	})
}
