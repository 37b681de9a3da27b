package forecast

import (
	"context"
	"fmt"
	"time"

	appLog "cyclecal/internal/log"
	"cyclecal/internal/model"
	"cyclecal/internal/predictor"
)

// PhaseResult places today within the current forecast.
type PhaseResult struct {
	Today         model.Date     `json:"today"`
	Phase         model.Phase    `json:"phase"`
	Forecast      model.Forecast `json:"forecast"`
	LowConfidence bool           `json:"low_confidence"`
}

// Phase classifies today against the current forecast.
func (s *Service) Phase(ctx context.Context) (PhaseResult, error) {
	res, err := s.Current(ctx)
	if err != nil {
		return PhaseResult{}, err
	}
	today := s.predictor.Today()
	return PhaseResult{
		Today:         today,
		Phase:         predictor.Phase(res.Forecast, today),
		Forecast:      res.Forecast,
		LowConfidence: res.LowConfidence(),
	}, nil
}

// Advice is free-form text from the external source.
type Advice struct {
	Kind        predictor.AdviceKind `json:"kind"`
	Phase       model.Phase          `json:"phase"`
	Text        string               `json:"text"`
	GeneratedAt time.Time            `json:"generated_at"`
}

// Advice asks the text source for health advice or an analysis of the
// recorded history. Unlike Refresh there is no deterministic fallback, so
// source errors are returned; ErrNoSource when none is configured.
func (s *Service) Advice(ctx context.Context, kind predictor.AdviceKind) (Advice, error) {
	if s.source == nil {
		return Advice{}, ErrNoSource
	}
	phase, err := s.Phase(ctx)
	if err != nil {
		return Advice{}, err
	}
	events, err := s.events.Events(ctx)
	if err != nil {
		return Advice{}, fmt.Errorf("load events: %w", err)
	}
	prompt, err := s.predictor.BuildAdvicePrompt(kind, events, phase.Phase)
	if err != nil {
		return Advice{}, err
	}

	text, err := s.generate(ctx, prompt)
	if err != nil {
		appLog.Error("forecast: advice request failed", err, "kind", kind)
		return Advice{}, fmt.Errorf("generate %s advice: %w", kind, err)
	}
	return Advice{
		Kind:        kind,
		Phase:       phase.Phase,
		Text:        text,
		GeneratedAt: s.opts.Now(),
	}, nil
}
