package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"plant-monitor/internal/fleet"
	"plant-monitor/internal/metrics"
	"plant-monitor/internal/model"
	"plant-monitor/internal/status"
)

// ErrSourceStatus is returned when a telemetry endpoint answers with a non-200 status.
var ErrSourceStatus = errors.New("unexpected telemetry status")

const maxBodyBytes = 8 << 20

// HTTPSource fetches complete snapshots from a request/response telemetry API.
type HTTPSource struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
	Retry   RetryPolicy

	normalizer *Normalizer
	logger     *zap.SugaredLogger
}

func NewHTTPSource(url string, timeout time.Duration, retry RetryPolicy, n *Normalizer, logger *zap.SugaredLogger) *HTTPSource {
	return &HTTPSource{
		URL:        url,
		Client:     &http.Client{},
		Timeout:    timeout,
		Retry:      retry,
		normalizer: n,
		logger:     logger,
	}
}

// Fetch reads one snapshot, retrying transport and status failures. Malformed
// elements are dropped by the normalizer; only a body that is not a list fails the fetch.
func (s *HTTPSource) Fetch(ctx context.Context) ([]status.MachineHealth, error) {
	var records []model.MachineRecord
	err := Retry(ctx, s.Retry, func() error {
		var err error
		records, err = s.fetchOnce(ctx)
		if err != nil && s.logger != nil {
			s.logger.Debugw("telemetry fetch attempt failed", "url", s.URL, "error", err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	machines, _ := s.normalizer.Normalize(records)
	return machines, nil
}

func (s *HTTPSource) fetchOnce(ctx context.Context) ([]model.MachineRecord, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query telemetry: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w %d: %s", ErrSourceStatus, resp.StatusCode, truncate(body, 200))
	}

	records, bad, err := model.DecodeBatch(body)
	if err != nil {
		return nil, err
	}
	for _, b := range bad {
		s.normalizer.RejectDecode(b)
	}
	return records, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

// Fetcher is anything that can produce a complete snapshot.
type Fetcher interface {
	Fetch(ctx context.Context) ([]status.MachineHealth, error)
}

// Poller refreshes the working set from a Fetcher on a fixed interval.
type Poller struct {
	Source   string
	Fetcher  Fetcher
	Fleet    *fleet.Fleet
	Interval time.Duration
	Metrics  *metrics.Metrics
	Logger   *zap.SugaredLogger
}

// Run polls immediately and then on every tick until ctx is canceled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	p.Logger.Infow("telemetry poller started", "source", p.Source, "interval", p.Interval)
	for {
		p.Poll(ctx)
		select {
		case <-ctx.Done():
			p.Logger.Info("telemetry poller stopped")
			return
		case <-ticker.C:
		}
	}
}

// Poll runs a single refresh cycle.
func (p *Poller) Poll(ctx context.Context) {
	machines, err := p.Fetcher.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.Metrics.RecordFetchFailure(p.Source)
		p.Fleet.MarkFailed(p.Source, err)
		return
	}
	if err := p.Fleet.Apply(ctx, p.Source, machines); err != nil {
		return
	}
	p.Metrics.RecordApplied(p.Source)
}
