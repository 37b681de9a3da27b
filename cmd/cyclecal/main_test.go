package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:a1
DTSTAMP:20260101T000000Z
DTSTART;VALUE=DATE:20260101
DTEND;VALUE=DATE:20260106
SUMMARY:Period
END:VEVENT
BEGIN:VEVENT
UID:a2
DTSTAMP:20260101T000000Z
DTSTART;VALUE=DATE:20260129
DTEND;VALUE=DATE:20260203
SUMMARY:period
END:VEVENT
BEGIN:VEVENT
UID:a3
DTSTAMP:20260101T000000Z
DTSTART;VALUE=DATE:20260110
DTEND;VALUE=DATE:20260111
SUMMARY:Dentist
END:VEVENT
END:VCALENDAR
`

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "data_dir: " + filepath.Join(dir, "data") + "\ntimezone: UTC\nlog_level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func TestAddThenStats(t *testing.T) {
	cfg := writeConfig(t)
	env := filepath.Join(t.TempDir(), "missing.env")

	out := run(t, "--config", cfg, "--env-file", env, "add", "period", "--start", "2026-01-01", "--end", "2026-01-05")
	assert.Contains(t, out, `"type": "PERIOD"`)

	out = run(t, "--config", cfg, "--env-file", env, "stats")
	assert.Contains(t, out, "Not enough complete cycles")

	run(t, "--config", cfg, "--env-file", env, "add", "period", "--start", "2026-01-29", "--end", "2026-02-02")
	out = run(t, "--config", cfg, "--env-file", env, "stats")
	assert.Contains(t, out, "Average gap:   28.0 days")
}

func TestImportThenPredict(t *testing.T) {
	cfg := writeConfig(t)
	env := filepath.Join(t.TempDir(), "missing.env")
	ics := filepath.Join(t.TempDir(), "partner.ics")
	require.NoError(t, os.WriteFile(ics, []byte(feed), 0o600))

	out := run(t, "--config", cfg, "--env-file", env, "import", ics)
	assert.Contains(t, out, "Imported 2 new period records.")

	// A second import is idempotent.
	out = run(t, "--config", cfg, "--env-file", env, "import", ics)
	assert.Contains(t, out, "Imported 0 new period records.")

	out = run(t, "--config", cfg, "--env-file", env, "predict", "--cycles", "2")
	var res struct {
		Forecast struct {
			NextCycleStart string `json:"next_cycle_start"`
			Basis          string `json:"basis"`
		} `json:"forecast"`
		Upcoming []json.RawMessage `json:"upcoming"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "2026-02-26", res.Forecast.NextCycleStart)
	assert.Equal(t, "cycle_starts", res.Forecast.Basis)
	assert.Len(t, res.Upcoming, 2)
}

func TestAddRejectsInvalidPeriod(t *testing.T) {
	cfg := writeConfig(t)
	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--config", cfg, "--env-file", "", "add", "period", "--start", "2026-02-05", "--end", "2026-02-01"})
	assert.Error(t, root.Execute())
}

func TestPhaseAndAdviceCommands(t *testing.T) {
	cfg := writeConfig(t)
	env := filepath.Join(t.TempDir(), "missing.env")

	out := run(t, "--config", cfg, "--env-file", env, "phase")
	var res struct {
		Phase         string `json:"phase"`
		LowConfidence bool   `json:"low_confidence"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.NotEmpty(t, res.Phase)
	assert.True(t, res.LowConfidence)

	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--config", cfg, "--env-file", env, "advice", "mood"})
	assert.Error(t, root.Execute(), "text generation is disabled by default")

	root = newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--config", cfg, "--env-file", env, "advice", "horoscope"})
	assert.Error(t, root.Execute())
}
