package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/time-capsule/internal/model"
)

var (
	runDate    string
	runLimit   int
	runStages  string
	runPublish bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline for one date",
	Long:  "Fetches, prompts, analyzes, parses, and renders one front-page date. Completed work is skipped, so an interrupted run can simply be repeated.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		date := runDate
		if date == "" {
			date = defaultDate(time.Now(), cfg.Pipeline.YearsBack)
		}
		if err := validateDate(date); err != nil {
			return err
		}
		stages, err := parseStages(runStages)
		if err != nil {
			return err
		}

		withAnalyzer := len(stages) == 0 || containsStage(stages, model.StageAnalyze)
		mode := "run"
		if withAnalyzer {
			mode = "analyze"
		}
		if err := cfg.Validate(mode); err != nil {
			return err
		}
		if runLimit > 0 {
			cfg.Listing.Limit = runLimit
		}

		ledger, err := initLedger(ctx)
		if err != nil {
			return err
		}
		defer ledger.Close() //nolint:errcheck

		report, err := newPipeline(ledger, withAnalyzer).RunDate(ctx, date, stages...)
		if err != nil {
			return eris.Wrapf(err, "run %s", date)
		}

		if runPublish {
			res, err := publishSite(ctx)
			if err != nil {
				return eris.Wrap(err, "publish")
			}
			zap.L().Info("site published", zap.Int("objects", res.Objects))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	runCmd.Flags().StringVar(&runDate, "date", "", "front-page date YYYY-MM-DD (default: today minus pipeline.years_back)")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "process only the first N listing items (0 = all)")
	runCmd.Flags().StringVar(&runStages, "stages", "", "comma-separated stages: fetch,prompt,analyze,parse,render (default all)")
	runCmd.Flags().BoolVar(&runPublish, "publish", false, "upload the output directory to S3 after the run")
	rootCmd.AddCommand(runCmd)
}

// defaultDate is the calendar date yearsBack years before now, in UTC.
func defaultDate(now time.Time, yearsBack int) string {
	return now.UTC().AddDate(-yearsBack, 0, 0).Format(time.DateOnly)
}

func validateDate(date string) error {
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return eris.Errorf("invalid date %q: want YYYY-MM-DD", date)
	}
	return nil
}

// parseStages turns a comma list into stages. Empty means all.
func parseStages(s string) ([]model.Stage, error) {
	var out []model.Stage
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		st, ok := model.ParseStage(part)
		if !ok {
			return nil, eris.Errorf("unknown stage %q", part)
		}
		out = append(out, st)
	}
	return out, nil
}

func containsStage(stages []model.Stage, want model.Stage) bool {
	for _, st := range stages {
		if st == want {
			return true
		}
	}
	return false
}
