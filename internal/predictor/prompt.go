package predictor

import (
	"fmt"
	"strings"

	"cyclecal/internal/model"
)

// BuildPrompt renders the history summary handed to an external text
// generator: current date, record counts, each cycle start with its end
// date, gap statistics and the five-line answer format. The answer is
// parsed back with ReconcileExternalPrediction.
func (p *Predictor) BuildPrompt(events []model.Event) string {
	var b strings.Builder
	b.WriteString("You are a women's health assistant specialised in menstrual cycle prediction. ")
	b.WriteString("Predict the next cycle from the history below.\n\n")
	p.writeHistory(&b, events)

	b.WriteString("[Answer format]\n")
	b.WriteString("Reply with exactly these five lines and nothing else:\n")
	b.WriteString("Next period start: YYYY-MM-DD\n")
	b.WriteString("Next period end: YYYY-MM-DD\n")
	b.WriteString("Ovulation: YYYY-MM-DD\n")
	b.WriteString("Fertile window start: YYYY-MM-DD\n")
	b.WriteString("Fertile window end: YYYY-MM-DD\n")

	return b.String()
}

// writeHistory writes the overview, period history and statistics
// sections shared by every prompt.
func (p *Predictor) writeHistory(b *strings.Builder, events []model.Event) {
	starts := ExtractCycleStarts(events)

	// First end date seen per start date, for the history listing.
	ends := make(map[string]string)
	periodRecords := 0
	for _, ev := range events {
		cs, ok := ev.(model.CycleStart)
		if !ok {
			continue
		}
		periodRecords++
		d, ok := model.ParseDate(cs.Start)
		if !ok {
			continue
		}
		if _, seen := ends[d.String()]; !seen && strings.TrimSpace(cs.End) != "" {
			ends[d.String()] = strings.TrimSpace(cs.End)
		}
	}

	b.WriteString("[Overview]\n")
	fmt.Fprintf(b, "Current date: %s\n", p.Today())
	fmt.Fprintf(b, "Total records: %d\n", len(events))
	fmt.Fprintf(b, "Period records: %d\n\n", periodRecords)

	b.WriteString("[Period history]\n")
	if len(starts) == 0 {
		b.WriteString("No complete period records yet; assume a 28 day cycle.\n\n")
		return
	}
	for i, s := range starts {
		end, ok := ends[s.String()]
		if !ok {
			end = "unknown"
		}
		fmt.Fprintf(b, "Cycle %d: start=%s, end=%s\n", i+1, s, end)
	}
	b.WriteString("\n")

	if stats, ok := CycleStatistics(events); ok {
		b.WriteString("[Cycle statistics]\n")
		fmt.Fprintf(b, "Average cycle length: %.1f days\n", stats.AverageGap)
		fmt.Fprintf(b, "Shortest cycle: %d days\n", stats.MinGap)
		fmt.Fprintf(b, "Longest cycle: %d days\n", stats.MaxGap)
		fmt.Fprintf(b, "Standard deviation: %.1f days\n", stats.StdDevGap)
		fmt.Fprintf(b, "Regularity: %d%%\n", 100-int(stats.Irregularity))
	}
	fmt.Fprintf(b, "Average period length: %d days\n\n", AveragePeriodLength(events))
}
