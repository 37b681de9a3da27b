package predictor

import (
	"math"
	"slices"
	"time"

	appLog "cyclecal/internal/log"
	"cyclecal/internal/model"
)

const (
	DefaultCycleLength  = 28.0
	DefaultPeriodLength = 5
	DefaultRecentWindow = 6

	minCycleGap     = 20
	maxCycleGap     = 45
	minPeriodLength = 2
	maxPeriodLength = 10

	lutealPhaseDays    = 14
	fertileDaysBefore  = 5
	fertileDaysAfter   = 1
	externalPeriodSpan = 4

	maxIrregularityDiff = 25.0
)

// Predictor projects the next cycle from a snapshot of events. It holds no
// event state; every call receives its own slice.
type Predictor struct {
	now          func() time.Time
	loc          *time.Location
	recentWindow int
}

type Option func(*Predictor)

// WithClock overrides the clock used for the "today" fallback and for the
// current date in prompts.
func WithClock(now func() time.Time) Option {
	return func(p *Predictor) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLocation sets the zone in which "today" is evaluated.
func WithLocation(loc *time.Location) Option {
	return func(p *Predictor) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// WithRecentWindow sets how many of the most recent valid gaps feed the
// weighted average.
func WithRecentWindow(n int) Option {
	return func(p *Predictor) {
		if n > 0 {
			p.recentWindow = n
		}
	}
}

func New(opts ...Option) *Predictor {
	p := &Predictor{
		now:          time.Now,
		loc:          time.Local,
		recentWindow: DefaultRecentWindow,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Today returns the current calendar date in the predictor's zone.
func (p *Predictor) Today() model.Date {
	return model.DateOf(p.now().In(p.loc))
}

// RecentWindow returns the configured gap window.
func (p *Predictor) RecentWindow() int {
	return p.recentWindow
}

// ExtractCycleStarts returns the parsed start dates of all CycleStart
// events, ascending. Blank or malformed starts are skipped.
func ExtractCycleStarts(events []model.Event) []model.Date {
	starts := make([]model.Date, 0, len(events))
	for _, ev := range events {
		cs, ok := ev.(model.CycleStart)
		if !ok {
			continue
		}
		d, ok := model.ParseDate(cs.Start)
		if !ok {
			appLog.Debug("predictor: skipping cycle start without usable start date",
				"id", cs.ID, "start", cs.Start)
			continue
		}
		starts = append(starts, d)
	}
	slices.SortFunc(starts, model.Date.Compare)
	return starts
}

// gap is the length between starts[index-1] and starts[index].
type gap struct {
	days  int
	index int
}

// validGaps returns the gaps between consecutive starts that fall inside
// [minCycleGap, maxCycleGap], keeping each gap's original index.
func validGaps(starts []model.Date) []gap {
	out := make([]gap, 0, len(starts))
	for i := 1; i < len(starts); i++ {
		days := starts[i-1].DaysUntil(starts[i])
		if days < minCycleGap || days > maxCycleGap {
			continue
		}
		out = append(out, gap{days: days, index: i})
	}
	return out
}

// AverageCycleLength returns a recency-weighted average of the last
// recentWindow valid gaps. With fewer than two starts, or no valid gap, it
// returns DefaultCycleLength.
func AverageCycleLength(events []model.Event, recentWindow int) float64 {
	if recentWindow <= 0 {
		recentWindow = DefaultRecentWindow
	}
	starts := ExtractCycleStarts(events)
	if len(starts) < 2 {
		return DefaultCycleLength
	}
	gaps := validGaps(starts)
	if len(gaps) == 0 {
		return DefaultCycleLength
	}
	if len(gaps) > recentWindow {
		gaps = gaps[len(gaps)-recentWindow:]
	}

	// Weight depends on the gap's position in the unfiltered history.
	var weighted, total float64
	n := float64(len(starts))
	for _, g := range gaps {
		w := (float64(g.index)/n)*2 + 0.5
		weighted += w * float64(g.days)
		total += w
	}
	if total <= 0 {
		return DefaultCycleLength
	}
	return weighted / total
}

// AveragePeriodLength returns the truncated mean inclusive length of
// recorded periods within [minPeriodLength, maxPeriodLength], or
// DefaultPeriodLength when none qualify.
func AveragePeriodLength(events []model.Event) int {
	sum, count := 0, 0
	for _, ev := range events {
		cs, ok := ev.(model.CycleStart)
		if !ok {
			continue
		}
		start, okStart := model.ParseDate(cs.Start)
		end, okEnd := model.ParseDate(cs.End)
		if !okStart || !okEnd {
			continue
		}
		length := start.DaysUntil(end) + 1
		if length < minPeriodLength || length > maxPeriodLength {
			continue
		}
		sum += length
		count++
	}
	if count == 0 {
		return DefaultPeriodLength
	}
	return sum / count
}

// latestPointDate returns the most recent parseable point date across all
// events, regardless of kind.
func latestPointDate(events []model.Event) (model.Date, bool) {
	var latest model.Date
	found := false
	for _, ev := range events {
		d, ok := model.ParseDate(ev.PointDate())
		if !ok {
			continue
		}
		if !found || d.After(latest) {
			latest = d
			found = true
		}
	}
	return latest, found
}

// PredictNextCycle projects the next cycle from events.
//
// The reference date is the latest cycle start, else the latest dated
// record of any kind, else today. Only the last case depends on the clock;
// it is marked with model.BasisToday.
func (p *Predictor) PredictNextCycle(events []model.Event) model.Forecast {
	starts := ExtractCycleStarts(events)

	var ref model.Date
	var basis model.Basis
	if len(starts) > 0 {
		ref = starts[len(starts)-1]
		basis = model.BasisCycleStarts
	} else if d, ok := latestPointDate(events); ok {
		ref = d
		basis = model.BasisLatestRecord
	} else {
		ref = p.Today()
		basis = model.BasisToday
		appLog.Warn("predictor: no dated records, projecting from today", "today", ref)
	}

	avgCycle := DefaultCycleLength
	if len(starts) >= 2 {
		avgCycle = AverageCycleLength(events, p.recentWindow)
	}

	nextStart := ref.AddDays(int(math.Round(avgCycle)))
	f := fromCycleStart(nextStart, AveragePeriodLength(events))
	f.Basis = basis

	appLog.Debug("predictor: forecast",
		"reference", ref,
		"basis", basis,
		"avg_cycle", avgCycle,
		"next_start", f.NextCycleStart,
		"next_end", f.NextCycleEnd,
		"ovulation", f.Ovulation,
	)
	return f
}

// fromCycleStart derives the ovulation and fertile window from a projected
// cycle start using the fixed luteal phase.
func fromCycleStart(nextStart model.Date, periodLength int) model.Forecast {
	ovulation := nextStart.AddDays(-lutealPhaseDays)
	return model.Forecast{
		NextCycleStart: nextStart,
		NextCycleEnd:   nextStart.AddDays(periodLength - 1),
		Ovulation:      ovulation,
		FertileStart:   ovulation.AddDays(-fertileDaysBefore),
		FertileEnd:     ovulation.AddDays(fertileDaysAfter),
	}
}

// ProjectFrom returns the forecast for a cycle starting on nextStart, using
// the same offsets as PredictNextCycle.
func ProjectFrom(nextStart model.Date, periodLength int, basis model.Basis) model.Forecast {
	if periodLength < 1 {
		periodLength = DefaultPeriodLength
	}
	f := fromCycleStart(nextStart, periodLength)
	f.Basis = basis
	return f
}
