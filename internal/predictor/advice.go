package predictor

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"cyclecal/internal/model"
)

// AdviceKind selects which advice prompt BuildAdvicePrompt renders.
type AdviceKind string

const (
	AdviceHealth   AdviceKind = "health"
	AdviceSymptoms AdviceKind = "symptoms"
	AdviceMood     AdviceKind = "mood"
	AdviceStats    AdviceKind = "stats"
)

// maxJournalEntries bounds the mood/symptom entries listed in a prompt.
const maxJournalEntries = 20

var ErrUnknownAdviceKind = errors.New("unknown advice kind")

// ParseAdviceKind accepts the AdviceKind names, case-insensitively.
func ParseAdviceKind(s string) (AdviceKind, error) {
	switch k := AdviceKind(strings.ToLower(strings.TrimSpace(s))); k {
	case AdviceHealth, AdviceSymptoms, AdviceMood, AdviceStats:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAdviceKind, s)
}

// BuildAdvicePrompt renders a free-form advice request over the same
// history summary as BuildPrompt. phase is the current cycle phase; the
// stats prompt ignores it.
func (p *Predictor) BuildAdvicePrompt(kind AdviceKind, events []model.Event, phase model.Phase) (string, error) {
	var b strings.Builder
	b.WriteString("You are a women's health assistant focused on menstrual cycles.\n\n")

	switch kind {
	case AdviceHealth:
		fmt.Fprintf(&b, "Give personalised health advice for the current cycle phase (%s), based on the data below.\n\n", phase)
		p.writeHistory(&b, events)
		b.WriteString("Cover diet, exercise, rest and mental wellbeing.\n")
	case AdviceSymptoms:
		fmt.Fprintf(&b, "Analyse the symptoms below (current cycle phase: %s) and suggest relief.\n\n", phase)
		p.writeHistory(&b, events)
		writeJournal(&b, events, func(e model.MoodOrSymptom) bool { return len(e.Symptoms) > 0 })
		b.WriteString("Explain likely causes of the symptoms and practical ways to ease them.\n")
	case AdviceMood:
		fmt.Fprintf(&b, "Analyse the mood entries below (current cycle phase: %s) and suggest ways to manage them.\n\n", phase)
		p.writeHistory(&b, events)
		writeJournal(&b, events, func(e model.MoodOrSymptom) bool { return strings.TrimSpace(e.Mood) != "" })
		b.WriteString("Explain how the mood changes may relate to the cycle and give practical coping methods.\n")
	case AdviceStats:
		b.WriteString("Analyse the cycle statistics below and share insights.\n\n")
		p.writeHistory(&b, events)
		b.WriteString("Summarise the cycle pattern and overall health, and suggest improvements.\n")
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAdviceKind, kind)
	}
	return b.String(), nil
}

// writeJournal lists the most recent dated mood/symptom entries that keep
// returns true, oldest first.
func writeJournal(b *strings.Builder, events []model.Event, keep func(model.MoodOrSymptom) bool) {
	type entry struct {
		date model.Date
		ev   model.MoodOrSymptom
	}
	var entries []entry
	for _, ev := range events {
		ms, ok := ev.(model.MoodOrSymptom)
		if !ok || !keep(ms) {
			continue
		}
		d, ok := model.ParseDate(ms.Date)
		if !ok {
			continue
		}
		entries = append(entries, entry{date: d, ev: ms})
	}
	slices.SortStableFunc(entries, func(a, b entry) int { return a.date.Compare(b.date) })
	if len(entries) > maxJournalEntries {
		entries = entries[len(entries)-maxJournalEntries:]
	}

	b.WriteString("[Journal]\n")
	if len(entries) == 0 {
		b.WriteString("No entries recorded.\n\n")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(b, "%s:", e.date)
		if e.ev.Mood != "" {
			fmt.Fprintf(b, " mood=%s", e.ev.Mood)
		}
		if len(e.ev.Symptoms) > 0 {
			fmt.Fprintf(b, " symptoms=%s", strings.Join(e.ev.Symptoms, ", "))
		}
		if e.ev.Note != "" {
			fmt.Fprintf(b, " note=%q", e.ev.Note)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}
