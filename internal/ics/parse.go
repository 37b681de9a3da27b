package ics

import (
	"bytes"
	"errors"
	"strings"

	ical "github.com/arran4/golang-ical"

	appLog "cyclecal/internal/log"
	"cyclecal/internal/model"
)

// ParseRecords reads an ICS payload and returns a PERIOD record for every
// VEVENT whose summary contains one of keywords (case-insensitive).
//
//   - All-day events use DTEND as exclusive, so the period ends the day before.
//   - Timed events use the calendar day of DTSTART/DTEND.
//   - Events without a UID or DTSTART are logged and skipped.
//
// Record IDs derive from the UID and start date, so importing the same
// feed twice adds nothing the second time.
func ParseRecords(src Source, body []byte, keywords []string) ([]model.Record, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}

	out := make([]model.Record, 0)
	skipped := 0
	for _, ve := range cal.Events() {
		rec, ok, perr := parseVEvent(ve, lowered)
		if perr != nil {
			appLog.Warn("ics vevent skipped", "id", src.ID, "reason", perr.Error())
			skipped++
			continue
		}
		if ok {
			out = append(out, rec)
		}
	}

	appLog.Info("ics parse completed", "id", src.ID, "url", redactURL(src.URL),
		"records", len(out), "skipped", skipped)
	return out, nil
}

func parseVEvent(ve *ical.VEvent, keywords []string) (model.Record, bool, error) {
	var summary string
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		summary = p.Value
	}
	if !matchesAny(summary, keywords) {
		return model.Record{}, false, nil
	}

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return model.Record{}, false, errors.New("missing UID")
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return model.Record{}, false, errors.New("missing DTSTART")
	}
	start, err := ve.GetStartAt()
	if err != nil {
		return model.Record{}, false, err
	}
	first := model.DateOf(start)
	last := first

	if end, err := ve.GetEndAt(); err == nil {
		endDate := model.DateOf(end)
		if isAllDay(dtStart) {
			endDate = endDate.AddDays(-1)
		}
		if !endDate.Before(first) {
			last = endDate
		}
	}

	rec := model.Record{
		ID:        "ics-" + uidProp.Value + "-" + first.String(),
		Type:      model.RecordPeriod,
		StartDate: first.String(),
		EndDate:   last.String(),
		Note:      summary,
	}
	return rec, true, nil
}

// isAllDay reports VALUE=DATE or a date-only DTSTART value.
func isAllDay(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func matchesAny(summary string, keywords []string) bool {
	s := strings.ToLower(summary)
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
