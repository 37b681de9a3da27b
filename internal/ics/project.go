package ics

import (
	"errors"
	"math"
	"time"

	"github.com/teambition/rrule-go"

	appLog "cyclecal/internal/log"
	"cyclecal/internal/model"
	"cyclecal/internal/predictor"
)

const (
	defaultProjectedCycles = 3
	maxProjectedCycles     = 24
)

// ProjectConfig controls how many future cycles are projected from a
// forecast.
type ProjectConfig struct {
	// Cycles is the number of cycles to return, including the forecast
	// itself. Zero means defaultProjectedCycles; values above
	// maxProjectedCycles are capped.
	Cycles int

	// CycleLength is the average cycle length in days; it is rounded to
	// the nearest whole day.
	CycleLength float64

	// PeriodLength is the expected period length for projected cycles
	// after the first.
	PeriodLength int
}

// Project expands forecast into a series of cycles spaced CycleLength
// days apart. The first element is forecast unchanged; later ones reuse
// the deterministic offsets for ovulation and the fertile window.
func Project(forecast model.Forecast, cfg ProjectConfig) ([]model.Forecast, error) {
	if forecast.NextCycleStart.IsZero() {
		return nil, errors.New("project: forecast has no cycle start")
	}
	if cfg.Cycles <= 0 {
		cfg.Cycles = defaultProjectedCycles
	}
	if cfg.Cycles > maxProjectedCycles {
		appLog.Warn("project: capping projected cycles", "requested", cfg.Cycles, "cap", maxProjectedCycles)
		cfg.Cycles = maxProjectedCycles
	}
	interval := int(math.Round(cfg.CycleLength))
	if interval <= 0 {
		interval = int(predictor.DefaultCycleLength)
	}

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:     rrule.DAILY,
		Interval: interval,
		Count:    cfg.Cycles,
		Dtstart:  forecast.NextCycleStart.In(time.UTC),
	})
	if err != nil {
		return nil, err
	}

	starts := r.All()
	out := make([]model.Forecast, 0, len(starts))
	for i, t := range starts {
		if i == 0 {
			out = append(out, forecast)
			continue
		}
		out = append(out, predictor.ProjectFrom(model.DateOf(t), cfg.PeriodLength, forecast.Basis))
	}
	return out, nil
}
