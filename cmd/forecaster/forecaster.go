// Package main runs the runrate forecasting service.
//
// This file contains the Service type which drives one forecast request
// through the pipeline:
//
//	normalize → fingerprint → cache lookup → select & forecast → cache store
//
// Each stage is timed and logged; cache lookups and engine failures are
// counted in Prometheus.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/runrate/cmd/forecaster/metrics"
	"github.com/HatiCode/runrate/pkg/engine"
	"github.com/HatiCode/runrate/pkg/models"
	"github.com/HatiCode/runrate/pkg/series"
	"github.com/HatiCode/runrate/pkg/storage"
)

// Service answers forecast requests, consulting the outcome cache before
// running the engine.
type Service struct {
	engine  *engine.Engine
	store   storage.Store
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates a Service. A nil store disables caching; a timeout of
// zero leaves the request context unbounded.
func NewService(e *engine.Engine, store storage.Store, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Service {
	if e == nil {
		panic("forecaster: engine is required")
	}
	if store == nil {
		store = storage.NopStore{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		engine:  e,
		store:   store,
		timeout: timeout,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Forecast normalizes records and returns the outcome for req, from the
// cache when an identical request has been answered before.
func (s *Service) Forecast(ctx context.Context, records []series.Record, req engine.Request) (*engine.Outcome, error) {
	start := s.now()

	if err := req.Validate(); err != nil {
		s.recordError("request", "invalid")
		return nil, err
	}

	ts, err := series.Normalize(records)
	if err != nil {
		s.recordError("series", "invalid")
		return nil, fmt.Errorf("normalize: %w", err)
	}
	normalizeDuration := s.now().Sub(start)

	key := storage.Fingerprint(ts, req)
	if out, ok := s.lookup(ctx, key); ok {
		s.logger.Info("forecast served from cache",
			"key", key[:12],
			"method", out.ModelName,
			"points", ts.Len(),
			"steps", req.Steps,
		)
		return out, nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	engineStart := s.now()
	out, err := s.engine.Forecast(ctx, ts, req)
	if err != nil {
		s.recordError("engine", engineReason(err))
		return nil, err
	}
	engineDuration := s.now().Sub(engineStart)

	entry := storage.Entry{Key: key, GeneratedAt: s.now(), Outcome: *out}
	if err := s.store.Put(ctx, entry); err != nil {
		s.recordError("store", "put_failed")
		s.logger.Warn("failed to cache outcome", "key", key[:12], "error", err)
	}

	s.logger.Info("forecast complete",
		"method", out.ModelName,
		"params", out.Params.String(),
		"points", ts.Len(),
		"period", ts.Period().String(),
		"steps", req.Steps,
		"grid_search", req.GridSearch,
		"mape", out.Metrics.MAPE,
		"normalize_ms", normalizeDuration.Milliseconds(),
		"engine_ms", engineDuration.Milliseconds(),
		"total_ms", s.now().Sub(start).Milliseconds(),
	)

	return out, nil
}

// lookup returns the cached outcome for key. Cache failures are logged and
// treated as misses.
func (s *Service) lookup(ctx context.Context, key string) (*engine.Outcome, bool) {
	entry, found, err := s.store.Get(ctx, key)
	switch {
	case err != nil:
		s.recordCache("error")
		s.logger.Warn("outcome cache lookup failed", "key", key[:12], "error", err)
		return nil, false
	case !found:
		s.recordCache("miss")
		return nil, false
	}

	s.recordCache("hit")
	out := entry.Outcome
	return &out, true
}

func (s *Service) recordCache(result string) {
	if s.metrics != nil {
		s.metrics.RecordCache(result)
	}
}

func (s *Service) recordError(component, reason string) {
	if s.metrics != nil {
		s.metrics.RecordError(component, reason)
	}
}

func engineReason(err error) string {
	switch {
	case errors.Is(err, engine.ErrNoViableModel):
		return "no_viable_model"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, series.ErrValidation):
		return "invalid"
	case errors.Is(err, models.ErrFitFailed):
		return "fit_failed"
	default:
		return "internal"
	}
}
