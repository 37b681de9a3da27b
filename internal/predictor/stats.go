package predictor

import (
	"math"

	"cyclecal/internal/model"
)

// CycleStatistics summarizes the valid gaps between cycle starts. ok is
// false when there are fewer than two starts or no gap survives the
// [20, 45] day filter.
func CycleStatistics(events []model.Event) (model.CycleStats, bool) {
	starts := ExtractCycleStarts(events)
	if len(starts) < 2 {
		return model.CycleStats{}, false
	}
	gaps := validGaps(starts)
	if len(gaps) == 0 {
		return model.CycleStats{}, false
	}

	lengths := make([]int, len(gaps))
	for i, g := range gaps {
		lengths[i] = g.days
	}

	stats := model.CycleStats{
		AverageGap:   mean(lengths),
		MinGap:       lengths[0],
		MaxGap:       lengths[0],
		StdDevGap:    stdDev(lengths),
		GapCount:     len(lengths),
		Gaps:         lengths,
		Irregularity: irregularity(lengths),
	}
	for _, l := range lengths[1:] {
		stats.MinGap = min(stats.MinGap, l)
		stats.MaxGap = max(stats.MaxGap, l)
	}
	return stats, true
}

func mean(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

// stdDev is the population standard deviation.
func stdDev(values []int) float64 {
	if len(values) <= 1 {
		return 0
	}
	m := mean(values)
	var sq float64
	for _, v := range values {
		d := float64(v) - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}

// irregularity scales the mean absolute difference between consecutive
// gaps onto 0-100. Needs at least three gaps.
func irregularity(lengths []int) float64 {
	if len(lengths) < 3 {
		return 0
	}
	var sum float64
	for i := 1; i < len(lengths); i++ {
		sum += math.Abs(float64(lengths[i] - lengths[i-1]))
	}
	avg := sum / float64(len(lengths)-1)
	return math.Min(100, avg/maxIrregularityDiff*100)
}
