package predictor

import (
	"regexp"
	"slices"
	"strconv"

	appLog "cyclecal/internal/log"
	"cyclecal/internal/model"
)

// dateInText matches YYYY-MM-DD, YYYY/MM/DD and YYYY年MM月DD日, with the
// trailing day separator optional.
var dateInText = regexp.MustCompile(`(\d{4})[-/年](\d{1,2})[-/月](\d{1,2})[-/日]?`)

// ExtractDates returns every date found in text, in order of appearance.
// ok is false if any match is not a real calendar day.
func ExtractDates(text string) (dates []model.Date, ok bool) {
	for _, m := range dateInText.FindAllStringSubmatch(text, -1) {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		date, valid := model.ValidDate(y, mo, d)
		if !valid {
			return nil, false
		}
		dates = append(dates, date)
	}
	return dates, true
}

// ReconcileExternalPrediction turns free text from an external generator
// into a Forecast. If the text holds fewer than five dates, or any date
// that does not exist, the deterministic PredictNextCycle result over
// events is returned instead.
//
// With five or more dates the third-smallest is taken as the ovulation
// date and the other four points are recomputed from it. The text's own
// labels are not consulted.
func (p *Predictor) ReconcileExternalPrediction(text string, events []model.Event) model.Forecast {
	dates, ok := ExtractDates(text)
	if !ok {
		appLog.Warn("predictor: external prediction contains an invalid date, using model")
		return p.PredictNextCycle(events)
	}
	if len(dates) < 5 {
		appLog.Warn("predictor: external prediction has too few dates, using model", "dates", len(dates))
		return p.PredictNextCycle(events)
	}

	sorted := slices.Clone(dates)
	slices.SortFunc(sorted, model.Date.Compare)

	ovulation := sorted[2]
	nextStart := ovulation.AddDays(lutealPhaseDays)
	f := model.Forecast{
		NextCycleStart: nextStart,
		NextCycleEnd:   nextStart.AddDays(externalPeriodSpan),
		Ovulation:      ovulation,
		FertileStart:   ovulation.AddDays(-fertileDaysBefore),
		FertileEnd:     ovulation.AddDays(fertileDaysAfter),
		Basis:          model.BasisExternal,
	}
	appLog.Debug("predictor: reconciled external prediction",
		"dates", len(dates),
		"ovulation", f.Ovulation,
		"next_start", f.NextCycleStart,
	)
	return f
}
