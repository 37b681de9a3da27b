package predictor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyclecal/internal/model"
)

func TestPhase(t *testing.T) {
	// Next start 2026-02-26, end 2026-03-02, ovulation 2026-02-12,
	// fertile 2026-02-07..2026-02-13.
	f := ProjectFrom(date(t, "2026-02-26"), 5, model.BasisCycleStarts)

	cases := map[string]model.Phase{
		"2026-02-01": model.PhaseFollicular,
		"2026-02-07": model.PhaseFertile,
		"2026-02-12": model.PhaseOvulation,
		"2026-02-13": model.PhaseFertile,
		"2026-02-14": model.PhaseLuteal,
		"2026-02-26": model.PhasePeriod,
		"2026-03-02": model.PhasePeriod,
		"2026-03-03": model.PhaseLuteal,
	}
	for day, want := range cases {
		assert.Equal(t, want, Phase(f, date(t, day)), day)
	}
}

func TestParseAdviceKind(t *testing.T) {
	k, err := ParseAdviceKind(" Mood ")
	require.NoError(t, err)
	assert.Equal(t, AdviceMood, k)

	_, err = ParseAdviceKind("horoscope")
	assert.True(t, errors.Is(err, ErrUnknownAdviceKind))
}

func TestBuildAdvicePrompt(t *testing.T) {
	events := []model.Event{
		period("2026-01-01", "2026-01-05"),
		period("2026-01-29", "2026-02-02"),
		model.MoodOrSymptom{Date: "2026-02-03", Symptoms: []string{"cramps", "headache"}},
		model.MoodOrSymptom{Date: "2026-02-01", Mood: "irritable", Note: "long day"},
		model.MoodOrSymptom{Date: "bogus", Mood: "calm"},
	}
	p := newTestPredictor()

	health, err := p.BuildAdvicePrompt(AdviceHealth, events, model.PhaseLuteal)
	require.NoError(t, err)
	assert.Contains(t, health, "current cycle phase (luteal)")
	assert.Contains(t, health, "Cycle 2: start=2026-01-29, end=2026-02-02")
	assert.Contains(t, health, "diet, exercise, rest")
	assert.NotContains(t, health, "[Journal]")

	symptoms, err := p.BuildAdvicePrompt(AdviceSymptoms, events, model.PhasePeriod)
	require.NoError(t, err)
	assert.Contains(t, symptoms, "2026-02-03: symptoms=cramps, headache")
	assert.NotContains(t, symptoms, "irritable")

	mood, err := p.BuildAdvicePrompt(AdviceMood, events, model.PhasePeriod)
	require.NoError(t, err)
	assert.Contains(t, mood, `2026-02-01: mood=irritable note="long day"`)
	assert.NotContains(t, mood, "calm")

	stats, err := p.BuildAdvicePrompt(AdviceStats, nil, "")
	require.NoError(t, err)
	assert.Contains(t, stats, "assume a 28 day cycle")
	assert.Contains(t, stats, "suggest improvements")

	_, err = p.BuildAdvicePrompt("horoscope", events, model.PhasePeriod)
	assert.Error(t, err)
}

func TestBuildAdvicePromptEmptyJournal(t *testing.T) {
	prompt, err := newTestPredictor().BuildAdvicePrompt(AdviceMood, []model.Event{period("2026-01-01", "")}, model.PhaseFollicular)
	require.NoError(t, err)
	assert.Contains(t, prompt, "[Journal]\nNo entries recorded.")
}
