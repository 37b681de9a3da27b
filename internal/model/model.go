package model

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies which variant an Event is.
type Kind int

const (
	KindCycleStart Kind = iota + 1
	KindMoodOrSymptom
	KindIntimacy
)

func (k Kind) String() string {
	switch k {
	case KindCycleStart:
		return "cycle_start"
	case KindMoodOrSymptom:
		return "mood_or_symptom"
	case KindIntimacy:
		return "intimacy"
	default:
		return "unknown"
	}
}

// Meta carries the bookkeeping fields shared by every event variant.
type Meta struct {
	ID string
	// RecordedAt is the creation time in epoch milliseconds, as a string.
	// Prediction never looks at it; it only orders records for merges.
	RecordedAt string
}

// Event is one immutable observation. The concrete type is one of
// CycleStart, MoodOrSymptom or Intimacy.
//
// Date fields hold the raw strings supplied by the store. A string that
// does not parse as a calendar date is treated as absent.
type Event interface {
	Kind() Kind
	EventMeta() Meta
	// PointDate is the single-day anchor of the record, if any.
	PointDate() string
	isEvent()
}

// CycleStart marks the first (and optionally last) day of a menstruation
// interval.
type CycleStart struct {
	Meta
	Start string
	End   string
	Date  string
}

// MoodOrSymptom is a daily mood and/or symptom tag entry.
type MoodOrSymptom struct {
	Meta
	Date     string
	Mood     string
	Symptoms []string
	Note     string
}

// Intimacy is a daily intimacy log entry.
type Intimacy struct {
	Meta
	Date     string
	Activity string
	Note     string
}

func (CycleStart) Kind() Kind    { return KindCycleStart }
func (MoodOrSymptom) Kind() Kind { return KindMoodOrSymptom }
func (Intimacy) Kind() Kind      { return KindIntimacy }

func (e CycleStart) EventMeta() Meta    { return e.Meta }
func (e MoodOrSymptom) EventMeta() Meta { return e.Meta }
func (e Intimacy) EventMeta() Meta      { return e.Meta }

func (e CycleStart) PointDate() string    { return e.Date }
func (e MoodOrSymptom) PointDate() string { return e.Date }
func (e Intimacy) PointDate() string      { return e.Date }

func (CycleStart) isEvent()    {}
func (MoodOrSymptom) isEvent() {}
func (Intimacy) isEvent()      {}

// Validate checks the CycleStart invariant: an end date, when both dates
// parse, is on or after the start date.
func (e CycleStart) Validate() error {
	start, okStart := ParseDate(e.Start)
	end, okEnd := ParseDate(e.End)
	if okStart && okEnd && end.Before(start) {
		return fmt.Errorf("end date %s is before start date %s", end, start)
	}
	return nil
}

// Record types as they appear on the wire.
const (
	RecordPeriod   = "PERIOD"
	RecordMood     = "MOOD"
	RecordSymptom  = "SYMPTOM"
	RecordIntimacy = "INTIMACY"
)

// ErrUnknownRecordType is returned when a Record carries a type this
// package does not know how to map to an Event.
var ErrUnknownRecordType = errors.New("unknown record type")

// Record is the flat JSON shape events are stored and exchanged in.
type Record struct {
	ID           string   `json:"id,omitempty" yaml:"id,omitempty"`
	Type         string   `json:"type" yaml:"type"`
	StartDate    string   `json:"startDate,omitempty" yaml:"start_date,omitempty"`
	EndDate      string   `json:"endDate,omitempty" yaml:"end_date,omitempty"`
	Date         string   `json:"date,omitempty" yaml:"date,omitempty"`
	Mood         string   `json:"mood,omitempty" yaml:"mood,omitempty"`
	Symptoms     []string `json:"symptoms,omitempty" yaml:"symptoms,omitempty"`
	IntimacyType string   `json:"intimacyType,omitempty" yaml:"intimacy_type,omitempty"`
	Note         string   `json:"note,omitempty" yaml:"note,omitempty"`
	Timestamp    string   `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

// Event converts the wire record into its typed variant.
func (r Record) Event() (Event, error) {
	meta := Meta{ID: r.ID, RecordedAt: r.Timestamp}
	switch strings.ToUpper(strings.TrimSpace(r.Type)) {
	case RecordPeriod:
		return CycleStart{Meta: meta, Start: r.StartDate, End: r.EndDate, Date: r.Date}, nil
	case RecordMood, RecordSymptom:
		return MoodOrSymptom{Meta: meta, Date: r.Date, Mood: r.Mood, Symptoms: r.Symptoms, Note: r.Note}, nil
	case RecordIntimacy:
		return Intimacy{Meta: meta, Date: r.Date, Activity: r.IntimacyType, Note: r.Note}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRecordType, r.Type)
	}
}

// RecordOf converts a typed event back into its wire record.
func RecordOf(ev Event) Record {
	m := ev.EventMeta()
	rec := Record{ID: m.ID, Timestamp: m.RecordedAt}
	switch e := ev.(type) {
	case CycleStart:
		rec.Type = RecordPeriod
		rec.StartDate = e.Start
		rec.EndDate = e.End
		rec.Date = e.Date
	case MoodOrSymptom:
		rec.Type = RecordMood
		if e.Mood == "" && len(e.Symptoms) > 0 {
			rec.Type = RecordSymptom
		}
		rec.Date = e.Date
		rec.Mood = e.Mood
		rec.Symptoms = e.Symptoms
		rec.Note = e.Note
	case Intimacy:
		rec.Type = RecordIntimacy
		rec.Date = e.Date
		rec.IntimacyType = e.Activity
		rec.Note = e.Note
	}
	return rec
}

// EventsOf converts records to events, skipping (and reporting) records
// with an unknown type.
func EventsOf(recs []Record) ([]Event, []error) {
	out := make([]Event, 0, len(recs))
	var errs []error
	for _, r := range recs {
		ev, err := r.Event()
		if err != nil {
			errs = append(errs, fmt.Errorf("record %q: %w", r.ID, err))
			continue
		}
		out = append(out, ev)
	}
	return out, errs
}
