package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"cyclecal/internal/forecast"
	"cyclecal/internal/ics"
	"cyclecal/internal/model"
	"cyclecal/internal/predictor"
)

func newServeCommand(c *cli) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, calendar feed and refresh scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.load()
			if err != nil {
				return err
			}
			if listen != "" {
				a.cfg.Listen = listen
			}
			ctx, cancel := signalContext()
			defer cancel()
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Override the configured listen address")
	return cmd
}

func newPredictCommand(c *cli) *cobra.Command {
	var (
		external bool
		cycles   int
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Print the next cycle forecast as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			var res forecast.Result
			if external {
				res, err = a.forecast.Refresh(ctx)
			} else {
				res, err = a.forecast.Model(ctx)
			}
			if err != nil {
				return err
			}
			if cycles <= 0 {
				cycles = a.cfg.ProjectedCycles
			}
			upcoming, err := a.forecast.Project(res, cycles)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), struct {
				forecast.Result
				LowConfidence bool             `json:"low_confidence"`
				Upcoming      []model.Forecast `json:"upcoming"`
			}{res, res.LowConfidence(), upcoming})
		},
	}
	cmd.Flags().BoolVar(&external, "ai", false, "Ask the configured text endpoint and reconcile its answer")
	cmd.Flags().IntVarP(&cycles, "cycles", "n", 0, "Number of projected cycles (default from config)")
	return cmd
}

func newStatsCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print cycle statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.load()
			if err != nil {
				return err
			}
			res, err := a.forecast.Model(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.Stats == nil {
				fmt.Fprintln(out, "Not enough complete cycles recorded yet.")
				return nil
			}
			s := res.Stats
			fmt.Fprintf(out, "Cycles:        %d\n", s.GapCount)
			fmt.Fprintf(out, "Average gap:   %.1f days (weighted %.1f)\n", s.AverageGap, res.AvgCycle)
			fmt.Fprintf(out, "Range:         %d-%d days\n", s.MinGap, s.MaxGap)
			fmt.Fprintf(out, "Std deviation: %.1f days\n", s.StdDevGap)
			fmt.Fprintf(out, "Irregularity:  %.0f/100\n", s.Irregularity)
			fmt.Fprintf(out, "Period length: %d days\n", res.AvgPeriod)
			return nil
		},
	}
}

func newPhaseCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "phase",
		Short: "Print where today falls in the predicted cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.load()
			if err != nil {
				return err
			}
			res, err := a.forecast.Phase(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newAdviceCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "advice [health|symptoms|mood|stats]",
		Short: "Ask the text endpoint for advice on the recorded history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := string(predictor.AdviceHealth)
			if len(args) == 1 {
				raw = args[0]
			}
			kind, err := predictor.ParseAdviceKind(raw)
			if err != nil {
				return err
			}
			a, err := c.load()
			if err != nil {
				return err
			}
			adv, err := a.forecast.Advice(cmd.Context(), kind)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s, phase %s]\n%s\n", adv.Kind, adv.Phase, adv.Text)
			return nil
		},
	}
}

func newImportCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "import [file-or-url...]",
		Short: "Import period events from ICS files or URLs (configured feeds when none given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if len(args) == 0 {
				return a.importFeeds(ctx)
			}
			fetcher := ics.NewFetcher(a.cfg.ImportCacheDir(), 0)
			total := 0
			for i, arg := range args {
				src := ics.Source{ID: fmt.Sprintf("cli-%d", i+1), URL: arg}
				res, err := fetcher.Fetch(ctx, src)
				if err != nil {
					return fmt.Errorf("fetch %s: %w", arg, err)
				}
				n, err := a.importBody(ctx, src, res.Body)
				if err != nil {
					return err
				}
				total += n
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d new period records.\n", total)
			return nil
		},
	}
}

func newAddCommand(c *cli) *cobra.Command {
	var rec model.Record
	var symptoms string
	cmd := &cobra.Command{
		Use:   "add <period|mood|symptom|intimacy>",
		Short: "Record an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.load()
			if err != nil {
				return err
			}
			rec.Type = strings.ToUpper(args[0])
			if symptoms != "" {
				for _, s := range strings.Split(symptoms, ",") {
					if s = strings.TrimSpace(s); s != "" {
						rec.Symptoms = append(rec.Symptoms, s)
					}
				}
			}
			added, err := a.store.Add(cmd.Context(), rec)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), added)
		},
	}
	f := cmd.Flags()
	f.StringVar(&rec.StartDate, "start", "", "Period start date (YYYY-MM-DD)")
	f.StringVar(&rec.EndDate, "end", "", "Period end date (YYYY-MM-DD)")
	f.StringVar(&rec.Date, "date", "", "Date of a mood, symptom or intimacy event")
	f.StringVar(&rec.Mood, "mood", "", "Mood label")
	f.StringVar(&symptoms, "symptoms", "", "Comma-separated symptoms")
	f.StringVar(&rec.IntimacyType, "kind", "", "Intimacy activity")
	f.StringVar(&rec.Note, "note", "", "Free-form note")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
