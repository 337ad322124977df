package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"plant-monitor/internal/fleet"
	"plant-monitor/internal/metrics"
	"plant-monitor/internal/model"
)

// MQTTSource subscribes to per-machine telemetry topics on a broker.
type MQTTSource struct {
	broker   string
	clientID string
	topic    string

	fleet      *fleet.Fleet
	normalizer *Normalizer
	metrics    *metrics.Metrics
	logger     *zap.SugaredLogger
}

func NewMQTTSource(broker, clientID, topic string, f *fleet.Fleet, n *Normalizer, m *metrics.Metrics, logger *zap.SugaredLogger) *MQTTSource {
	return &MQTTSource{
		broker:     broker,
		clientID:   clientID,
		topic:      topic,
		fleet:      f,
		normalizer: n,
		metrics:    m,
		logger:     logger,
	}
}

// Run connects and stays subscribed until ctx is canceled. The paho client handles
// reconnects once connected; the initial connect is retried here with backoff.
func (s *MQTTSource) Run(ctx context.Context) {
	opts := mqtt.NewClientOptions().
		AddBroker(s.broker).
		SetClientID(s.clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetOnConnectHandler(func(c mqtt.Client) {
			token := c.Subscribe(s.topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
				s.HandleMessage(msg.Topic(), msg.Payload())
			})
			if token.WaitTimeout(10*time.Second) && token.Error() != nil {
				s.logger.Errorw("MQTT subscribe failed", "topic", s.topic, "error", token.Error())
				return
			}
			s.logger.Infow("subscribed to MQTT telemetry", "broker", s.broker, "topic", s.topic)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			s.metrics.RecordFetchFailure("mqtt")
			s.fleet.MarkFailed("mqtt", err)
		})
	client := mqtt.NewClient(opts)

	b := newBackoff(2*time.Second, time.Minute)
	for {
		token := client.Connect()
		if token.WaitTimeout(15*time.Second) && token.Error() == nil {
			break
		}
		err := token.Error()
		if err == nil {
			err = fmt.Errorf("connect to %s timed out", s.broker)
		}
		s.metrics.RecordFetchFailure("mqtt")
		s.fleet.MarkFailed("mqtt", err)
		if !b.wait(ctx) {
			return
		}
	}

	<-ctx.Done()
	client.Disconnect(250)
	s.logger.Info("MQTT source stopped")
}

// HandleMessage applies one MQTT payload. The machine id comes from the topic
// when the payload does not name one.
func (s *MQTTSource) HandleMessage(topic string, payload []byte) {
	rec, err := model.DecodeRecord(payload)
	if err != nil {
		s.normalizer.RejectDecode(err)
		return
	}
	if rec.ID == "" {
		rec.ID = machineIDFromTopic(s.topic, topic)
	}

	h, err := s.normalizer.NormalizeOne(rec)
	if err != nil {
		return
	}
	if s.fleet.Upsert("mqtt", h) {
		s.metrics.RecordApplied("mqtt")
	}
}

// machineIDFromTopic returns the topic level matched by the first single-level
// wildcard in pattern.
func machineIDFromTopic(pattern, topic string) string {
	p := strings.Split(pattern, "/")
	t := strings.Split(topic, "/")
	for i, level := range p {
		if i >= len(t) {
			break
		}
		if level == "+" {
			return t[i]
		}
	}
	return ""
}
