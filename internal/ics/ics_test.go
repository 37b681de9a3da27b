package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyclecal/internal/model"
)

func mustDate(t *testing.T, s string) model.Date {
	t.Helper()
	d, ok := model.ParseDate(s)
	require.True(t, ok)
	return d
}

func sampleForecast(t *testing.T, basis model.Basis) model.Forecast {
	return model.Forecast{
		NextCycleStart: mustDate(t, "2026-02-26"),
		NextCycleEnd:   mustDate(t, "2026-03-02"),
		Ovulation:      mustDate(t, "2026-02-12"),
		FertileStart:   mustDate(t, "2026-02-07"),
		FertileEnd:     mustDate(t, "2026-02-13"),
		Basis:          basis,
	}
}

func TestProjectSpacesCycles(t *testing.T) {
	first := sampleForecast(t, model.BasisCycleStarts)
	out, err := Project(first, ProjectConfig{Cycles: 3, CycleLength: 28.4, PeriodLength: 5})
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, first, out[0])
	assert.Equal(t, "2026-03-26", out[1].NextCycleStart.String())
	assert.Equal(t, "2026-03-30", out[1].NextCycleEnd.String())
	assert.Equal(t, "2026-03-12", out[1].Ovulation.String())
	assert.Equal(t, "2026-04-23", out[2].NextCycleStart.String())
	assert.Equal(t, model.BasisCycleStarts, out[2].Basis)
}

func TestProjectCapsAndValidates(t *testing.T) {
	out, err := Project(sampleForecast(t, model.BasisCycleStarts), ProjectConfig{Cycles: 100})
	require.NoError(t, err)
	assert.Len(t, out, maxProjectedCycles)

	_, err = Project(model.Forecast{}, ProjectConfig{})
	assert.Error(t, err)
}

func TestBuildFeedWithReminders(t *testing.T) {
	forecasts, err := Project(sampleForecast(t, model.BasisCycleStarts), ProjectConfig{Cycles: 2, CycleLength: 28, PeriodLength: 5})
	require.NoError(t, err)

	feed := BuildFeed(forecasts, FeedOptions{
		Reminders: ReminderOptions{Period: true, Ovulation: true, Fertile: false, Hour: 9},
		Stamp:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	assert.Contains(t, feed, "BEGIN:VCALENDAR")
	assert.Contains(t, feed, "METHOD:PUBLISH")
	assert.Contains(t, feed, "UID:period-2026-02-26@cyclecal")
	assert.Contains(t, feed, "UID:period-2026-03-26@cyclecal")
	assert.Contains(t, feed, "20260226")
	// Inclusive end 2026-03-02 is exported as exclusive 2026-03-03.
	assert.Contains(t, feed, "20260303")
	assert.Contains(t, feed, "TRIGGER:-PT15H")
	assert.Contains(t, feed, "TRIGGER:PT9H")
	// Only the first cycle carries alarms: one period, one ovulation.
	assert.Equal(t, 2, strings.Count(feed, "BEGIN:VALARM"))
}

func TestBuildFeedSuppressesAlarmsForLowConfidence(t *testing.T) {
	feed := BuildFeed([]model.Forecast{sampleForecast(t, model.BasisToday)}, FeedOptions{
		Reminders: ReminderOptions{Period: true, Ovulation: true, Fertile: true, Hour: 9},
	})
	assert.Contains(t, feed, "BEGIN:VEVENT")
	assert.NotContains(t, feed, "BEGIN:VALARM")
}

const importFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:p1\r\n" +
	"DTSTAMP:20260101T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20260101\r\n" +
	"DTEND;VALUE=DATE:20260106\r\n" +
	"SUMMARY:Period\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:p2\r\n" +
	"DTSTAMP:20260101T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20260129\r\n" +
	"SUMMARY:my period starts\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:other\r\n" +
	"DTSTAMP:20260101T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20260110\r\n" +
	"DTEND;VALUE=DATE:20260111\r\n" +
	"SUMMARY:Dentist\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseRecordsMatchesKeywords(t *testing.T) {
	recs, err := ParseRecords(Source{ID: "test"}, []byte(importFeed), []string{"period", " "})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, model.RecordPeriod, recs[0].Type)
	assert.Equal(t, "2026-01-01", recs[0].StartDate)
	assert.Equal(t, "2026-01-05", recs[0].EndDate)
	assert.Equal(t, "ics-p1-2026-01-01", recs[0].ID)

	assert.Equal(t, "2026-01-29", recs[1].StartDate)
	assert.Equal(t, "2026-01-29", recs[1].EndDate)

	_, err = ParseRecords(Source{}, nil, nil)
	assert.Error(t, err)
}

func TestFetcherLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.ics")
	require.NoError(t, os.WriteFile(path, []byte(importFeed), 0o600))

	res, err := NewFetcher(t.TempDir(), 0).Fetch(context.Background(), Source{ID: "local", URL: path})
	require.NoError(t, err)
	assert.Equal(t, importFeed, string(res.Body))
	assert.False(t, res.FromCache)
}

func TestFetcherRevalidatesAndFallsBack(t *testing.T) {
	var calls atomic.Int32
	var failing atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if failing.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(importFeed))
	}))
	defer server.Close()

	f := NewFetcher(t.TempDir(), time.Second)
	src := Source{ID: "remote", URL: server.URL + "/secret-token/feed.ics"}
	ctx := context.Background()

	res, err := f.Fetch(ctx, src)
	require.NoError(t, err)
	assert.False(t, res.FromCache)

	res, err = f.Fetch(ctx, src)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, importFeed, string(res.Body))

	failing.Store(true)
	results, errs := f.FetchAll(ctx, []Source{src, {ID: "empty"}})
	require.Len(t, results, 1)
	assert.True(t, results[0].FromCache)
	assert.Len(t, errs, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/private/abc.ics?token=x"))
	assert.Equal(t, "feed.ics", redactURL("/home/me/feed.ics"))
}
