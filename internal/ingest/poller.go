package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nerrad567/facility-core/internal/infrastructure/config"
)

// Poller defaults.
const (
	defaultPollInterval = 60 * time.Second
	defaultPollTimeout  = 10 * time.Second
)

// ErrPollFailed is returned when the controller cannot be read.
var ErrPollFailed = errors.New("ingest: poll failed")

// Poller periodically fetches readings from a sensor controller. The
// controller answers GET <url> with a JSON array of readings.
type Poller struct {
	http     *resty.Client
	url      string
	interval time.Duration
	ingester Ingester
	logger   Logger
}

// NewPoller creates a poller from the poller config section.
func NewPoller(cfg config.PollerConfig, ing Ingester, logger Logger) *Poller {
	interval := time.Duration(cfg.Interval) * time.Second
	if interval <= 0 {
		interval = defaultPollInterval
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	return &Poller{
		http:     client,
		url:      cfg.URL,
		interval: interval,
		ingester: ing,
		logger:   logger,
	}
}

// Interval returns the time between polls.
func (p *Poller) Interval() time.Duration { return p.interval }

// Poll fetches and ingests one batch.
func (p *Poller) Poll(ctx context.Context) (Result, error) {
	resp, err := p.http.R().SetContext(ctx).Get(p.url)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrPollFailed, err)
	}
	if resp.IsError() {
		return Result{}, fmt.Errorf("%w: controller returned %d", ErrPollFailed, resp.StatusCode())
	}

	readings, err := DecodeReadings(resp.Body())
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrPollFailed, err)
	}
	return Batch(ctx, p.ingester, readings, p.logger, "poller")
}

// Run polls immediately and then every interval until ctx is cancelled.
// Failed polls are logged; the loop keeps going.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("sensor poller started", "url", p.url, "interval", p.interval.String())

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("sensor poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			p.logger.Info("sensor poller stopped")
			return
		case <-ticker.C:
		}
	}
}
