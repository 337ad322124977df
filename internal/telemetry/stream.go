package telemetry

import (
	"context"

	"go.uber.org/zap"

	"plant-monitor/internal/fleet"
	"plant-monitor/internal/metrics"
	"plant-monitor/internal/model"
	feed "plant-monitor/pkg/realtime"
)

// StreamSource applies records pushed over an upstream WebSocket feed. A frame may
// hold one record or a list of them.
type StreamSource struct {
	client     *feed.Client
	fleet      *fleet.Fleet
	normalizer *Normalizer
	metrics    *metrics.Metrics
	logger     *zap.SugaredLogger
}

func NewStreamSource(url string, f *fleet.Fleet, n *Normalizer, m *metrics.Metrics, logger *zap.SugaredLogger) *StreamSource {
	s := &StreamSource{
		client:     feed.NewClient(url, logger.Desugar()),
		fleet:      f,
		normalizer: n,
		metrics:    m,
		logger:     logger,
	}
	s.client.OnDisconnect = func(err error) {
		m.RecordFetchFailure("stream")
		f.MarkFailed("stream", err)
	}
	return s
}

// Connected reports whether the upstream feed is currently up.
func (s *StreamSource) Connected() bool {
	return s.client.IsConnected()
}

func (s *StreamSource) Run(ctx context.Context) {
	s.client.Run(ctx, s.HandleFrame)
}

// HandleFrame applies every valid record in one frame.
func (s *StreamSource) HandleFrame(msg []byte) {
	if len(msg) > 0 && msg[0] == '[' {
		records, bad, err := model.DecodeBatch(msg)
		if err != nil {
			s.normalizer.RejectDecode(err)
			return
		}
		for _, b := range bad {
			s.normalizer.RejectDecode(b)
		}
		for _, rec := range records {
			s.apply(rec)
		}
		return
	}

	rec, err := model.DecodeRecord(msg)
	if err != nil {
		s.normalizer.RejectDecode(err)
		return
	}
	s.apply(rec)
}

func (s *StreamSource) apply(rec model.MachineRecord) {
	h, err := s.normalizer.NormalizeOne(rec)
	if err != nil {
		return
	}
	if s.fleet.Upsert("stream", h) {
		s.metrics.RecordApplied("stream")
	}
}
