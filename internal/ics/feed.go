package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"cyclecal/internal/model"
)

const productID = "-//cyclecal//forecast//EN"

// ReminderOptions selects which forecast points get a VALARM. Alarms fire
// at Hour local time: the day before a period starts, and on the day of
// ovulation and of the fertile window start.
type ReminderOptions struct {
	Period    bool
	Ovulation bool
	Fertile   bool
	Hour      int
}

// FeedOptions configures BuildFeed.
type FeedOptions struct {
	Reminders ReminderOptions
	// Stamp is written as DTSTAMP on every event. Zero means time.Now.
	Stamp time.Time
}

// BuildFeed renders forecasts as an iCalendar PUBLISH feed of all-day
// events. Reminders are attached to the first forecast only, and never to
// a low-confidence one.
func BuildFeed(forecasts []model.Forecast, opts FeedOptions) string {
	stamp := opts.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}
	hour := opts.Reminders.Hour
	if hour < 0 || hour > 23 {
		hour = 9
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for i, f := range forecasts {
		alarms := i == 0 && !f.LowConfidence()

		period := addAllDay(cal, "period", f.NextCycleStart, f.NextCycleEnd, stamp,
			"Predicted period", describe(f))
		if alarms && opts.Reminders.Period {
			addAlarm(period, fmt.Sprintf("-PT%dH", 24-hour), "Period expected tomorrow")
		}

		ovulation := addAllDay(cal, "ovulation", f.Ovulation, f.Ovulation, stamp,
			"Predicted ovulation", describe(f))
		if alarms && opts.Reminders.Ovulation {
			addAlarm(ovulation, fmt.Sprintf("PT%dH", hour), "Predicted ovulation today")
		}

		fertile := addAllDay(cal, "fertile", f.FertileStart, f.FertileEnd, stamp,
			"Fertile window", describe(f))
		if alarms && opts.Reminders.Fertile {
			addAlarm(fertile, fmt.Sprintf("PT%dH", hour), "Fertile window starts today")
		}
	}

	return cal.Serialize()
}

// addAllDay adds an all-day event covering first..last inclusive.
func addAllDay(cal *ical.Calendar, kind string, first, last model.Date, stamp time.Time, summary, desc string) *ical.VEvent {
	ev := cal.AddEvent(fmt.Sprintf("%s-%s@cyclecal", kind, first))
	ev.SetDtStampTime(stamp)
	ev.SetSummary(summary)
	ev.SetDescription(desc)
	ev.SetAllDayStartAt(first.In(time.UTC))
	// DTEND of an all-day event is exclusive.
	ev.SetAllDayEndAt(last.AddDays(1).In(time.UTC))
	return ev
}

func addAlarm(ev *ical.VEvent, trigger, desc string) {
	a := ev.AddAlarm()
	a.SetAction(ical.ActionDisplay)
	a.SetTrigger(trigger)
	a.SetProperty(ical.ComponentPropertyDescription, desc)
}

func describe(f model.Forecast) string {
	return fmt.Sprintf("period %s to %s, ovulation %s, fertile %s to %s (basis: %s)",
		f.NextCycleStart, f.NextCycleEnd, f.Ovulation, f.FertileStart, f.FertileEnd, f.Basis)
}
