package forecast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cyclecal/internal/ics"
	appLog "cyclecal/internal/log"
	"cyclecal/internal/metrics"
	"cyclecal/internal/model"
	"cyclecal/internal/predictor"
	"cyclecal/internal/textgen"
)

const defaultSourceTimeout = 30 * time.Second

// ErrNoSource is returned by Advice when no text source is configured.
var ErrNoSource = errors.New("no text source configured")

// EventSource supplies the event snapshot a forecast is computed from.
type EventSource interface {
	Events(ctx context.Context) ([]model.Event, error)
}

// Result is one computed forecast together with the statistics behind it.
type Result struct {
	Forecast     model.Forecast    `json:"forecast"`
	Stats        *model.CycleStats `json:"statistics,omitempty"`
	AvgCycle     float64           `json:"average_cycle_length"`
	AvgPeriod    int               `json:"average_period_length"`
	EventCount   int               `json:"event_count"`
	ComputedAt   time.Time         `json:"computed_at"`
	ExternalText string            `json:"external_text,omitempty"`
	// Fallback is set when an external prediction was requested but the
	// deterministic model answered instead.
	Fallback bool `json:"fallback"`
}

// LowConfidence reports whether the forecast has no recorded data behind it.
func (r Result) LowConfidence() bool {
	return r.Forecast.LowConfidence()
}

// Options tunes a Service.
type Options struct {
	// SourceTimeout bounds each external text request.
	SourceTimeout time.Duration
	Now           func() time.Time
}

// Service computes forecasts from the event store. It owns no global
// state; cmd/cyclecal constructs one and hands it to the web server and
// scheduler.
type Service struct {
	events    EventSource
	predictor *predictor.Predictor
	source    textgen.Source
	metrics   *metrics.Metrics
	opts      Options

	mu     sync.RWMutex
	latest *Result
	// gen is bumped by Invalidate; a Refresh that started under an older
	// generation does not replace latest.
	gen uint64
}

// NewService wires the collaborators. source and m may be nil: without a
// source Refresh uses the deterministic model only.
func NewService(events EventSource, p *predictor.Predictor, source textgen.Source, m *metrics.Metrics, opts Options) *Service {
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = defaultSourceTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if p == nil {
		p = predictor.New()
	}
	return &Service{
		events:    events,
		predictor: p,
		source:    source,
		metrics:   m,
		opts:      opts,
	}
}

// Model computes the deterministic forecast over the current snapshot.
// It is a read-only query and records no metrics.
func (s *Service) Model(ctx context.Context) (Result, error) {
	events, err := s.events.Events(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load events: %w", err)
	}
	res := s.baseResult(events)
	res.Forecast = s.predictor.PredictNextCycle(events)
	return res, nil
}

// Refresh recomputes the forecast, consulting the external source when
// one is configured, and stores it as the latest result. A failing source
// never fails Refresh; only an unreadable store does.
func (s *Service) Refresh(ctx context.Context) (Result, error) {
	gen := s.generation()

	if s.source == nil {
		res, err := s.Model(ctx)
		if err != nil {
			return Result{}, err
		}
		s.metrics.ObserveForecast(metrics.PathModel, res.EventCount, res.LowConfidence())
		s.setLatest(res, gen)
		return res, nil
	}

	events, err := s.events.Events(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load events: %w", err)
	}
	res := s.baseResult(events)

	text, genErr := s.generate(ctx, s.predictor.BuildPrompt(events))
	if genErr != nil {
		appLog.Error("forecast: external prediction failed, using model", genErr)
		res.Forecast = s.predictor.PredictNextCycle(events)
		res.Fallback = true
	} else {
		res.ExternalText = text
		res.Forecast = s.predictor.ReconcileExternalPrediction(text, events)
		res.Fallback = res.Forecast.Basis != model.BasisExternal
	}

	path := metrics.PathExternal
	if res.Fallback {
		path = metrics.PathFallback
	}
	s.metrics.ObserveForecast(path, len(events), res.LowConfidence())

	appLog.Info("forecast refreshed",
		"basis", res.Forecast.Basis,
		"fallback", res.Fallback,
		"next_start", res.Forecast.NextCycleStart,
		"events", res.EventCount,
	)
	s.setLatest(res, gen)
	return res, nil
}

func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.SourceTimeout)
	defer cancel()

	start := time.Now()
	text, err := s.source.Generate(ctx, prompt)
	s.metrics.ObserveSource(time.Since(start).Seconds(), err)
	return text, err
}

// Latest returns the result of the last successful Refresh.
func (s *Service) Latest() (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return Result{}, false
	}
	return *s.latest, true
}

// Current returns the latest refreshed result, or a fresh model result if
// no refresh has happened yet.
func (s *Service) Current(ctx context.Context) (Result, error) {
	if res, ok := s.Latest(); ok {
		return res, nil
	}
	res, err := s.Model(ctx)
	if err != nil {
		return Result{}, err
	}
	s.metrics.ObserveForecast(metrics.PathModel, res.EventCount, res.LowConfidence())
	return res, nil
}

// Project expands res into n future cycles.
func (s *Service) Project(res Result, n int) ([]model.Forecast, error) {
	return ics.Project(res.Forecast, ics.ProjectConfig{
		Cycles:       n,
		CycleLength:  res.AvgCycle,
		PeriodLength: res.AvgPeriod,
	})
}

// Invalidate drops the cached latest result, e.g. after the store changed.
// Refreshes already in flight will not cache their result.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.latest = nil
	s.gen++
	s.mu.Unlock()
}

func (s *Service) generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// setLatest caches res unless the store was invalidated after gen was read.
func (s *Service) setLatest(res Result, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		appLog.Debug("forecast: discarding refresh of a stale snapshot", "next_start", res.Forecast.NextCycleStart)
		return
	}
	s.latest = &res
}

func (s *Service) baseResult(events []model.Event) Result {
	res := Result{
		AvgCycle:   predictor.AverageCycleLength(events, s.predictor.RecentWindow()),
		AvgPeriod:  predictor.AveragePeriodLength(events),
		EventCount: len(events),
		ComputedAt: s.opts.Now(),
	}
	if stats, ok := predictor.CycleStatistics(events); ok {
		res.Stats = &stats
	}
	return res
}
