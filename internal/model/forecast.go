package model

// Basis records what a Forecast was anchored on.
type Basis string

const (
	// BasisCycleStarts: projected from the most recent cycle start.
	BasisCycleStarts Basis = "cycle_starts"
	// BasisLatestRecord: no cycle starts; projected from the latest dated record.
	BasisLatestRecord Basis = "latest_record"
	// BasisToday: no usable date anywhere; projected from today.
	BasisToday Basis = "today"
	// BasisExternal: derived from dates found in an external text prediction.
	BasisExternal Basis = "external"
)

// Forecast is the five-point prediction for the next cycle.
type Forecast struct {
	NextCycleStart Date  `json:"next_cycle_start"`
	NextCycleEnd   Date  `json:"next_cycle_end"`
	Ovulation      Date  `json:"ovulation_date"`
	FertileStart   Date  `json:"fertile_window_start"`
	FertileEnd     Date  `json:"fertile_window_end"`
	Basis          Basis `json:"basis"`
}

// LowConfidence reports whether the forecast is not derived from any
// recorded data. Reminders should not be scheduled off such a forecast.
func (f Forecast) LowConfidence() bool {
	return f.Basis == BasisToday
}

// Dates returns the forecast as the ordered tuple
// (next start, next end, ovulation, fertile start, fertile end).
func (f Forecast) Dates() [5]Date {
	return [5]Date{f.NextCycleStart, f.NextCycleEnd, f.Ovulation, f.FertileStart, f.FertileEnd}
}

// CycleStats summarizes the filtered gaps between consecutive cycle starts.
type CycleStats struct {
	AverageGap float64 `json:"average_gap"`
	MinGap     int     `json:"min_gap"`
	MaxGap     int     `json:"max_gap"`
	StdDevGap  float64 `json:"std_dev_gap"`
	GapCount   int     `json:"gap_count"`
	Gaps       []int   `json:"gaps"`
	// Irregularity is 0-100; higher means less regular.
	Irregularity float64 `json:"irregularity_score"`
}

// Phase is where a given day falls relative to a Forecast.
type Phase string

const (
	PhasePeriod     Phase = "period"
	PhaseOvulation  Phase = "ovulation"
	PhaseFertile    Phase = "fertile"
	PhaseFollicular Phase = "follicular"
	PhaseLuteal     Phase = "luteal"
)
