package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/time-capsule/internal/model"
	"github.com/sells-group/time-capsule/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect pipeline run history",
	Long:  "Commands for listing runs, viewing one run's stages, and auditing per-item failures.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pipeline runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		date, _ := cmd.Flags().GetString("date")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Date:   date,
			Status: model.RunStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run and its stage phases",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		phases, err := st.ListPhases(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runDetail{Run: run, Phases: phases})
	},
}

// -- runs failures --

var runsFailuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "List per-item failures recorded by runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		date, _ := cmd.Flags().GetString("date")
		stage, _ := cmd.Flags().GetString("stage")
		limit, _ := cmd.Flags().GetInt("limit")

		fs, err := st.ListFailures(ctx, store.FailureFilter{
			Date:  date,
			Stage: model.Stage(stage),
			Limit: limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs failures")
		}

		if len(fs) == 0 {
			fmt.Fprintln(os.Stderr, "No failures recorded.")
			return nil
		}

		formatFailures(os.Stdout, fs)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("date", "", "filter by front-page date")
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsFailuresCmd.Flags().String("date", "", "filter by front-page date")
	runsFailuresCmd.Flags().String("stage", "", "filter by stage (fetch, prompt, analyze, parse, render)")
	runsFailuresCmd.Flags().Int("limit", 100, "max number of failures to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsFailuresCmd)
	rootCmd.AddCommand(runsCmd)
}

type runDetail struct {
	*model.Run
	Phases []model.RunPhase `json:"phases"`
}

func formatRunsList(w io.Writer, runs []model.Run) {
	headers := []string{"ID", "DATE", "STATUS", "STAGES", "FAILED", "CREATED", "DURATION"}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		names := make([]string, 0, len(r.Stages))
		failed := 0
		for _, s := range r.Stages {
			names = append(names, string(s.Stage))
			failed += s.Failed
		}
		status := string(r.Status)
		if r.Error != "" {
			status += ": " + truncate(r.Error, 40)
		}
		rows = append(rows, []string{
			shortID(r.ID),
			r.Date,
			status,
			strings.Join(names, ","),
			strconv.Itoa(failed),
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String(),
		})
	}
	fmt.Fprintln(w, renderTable(headers, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight}))
}

func formatFailures(w io.Writer, fs []model.FailureRecord) {
	headers := []string{"RUN", "DATE", "ITEM", "STAGE", "CLASS", "REASON", "AT"}
	rows := make([][]string, 0, len(fs))
	for _, f := range fs {
		rows = append(rows, []string{
			shortID(f.RunID),
			f.Date,
			f.ItemID,
			string(f.Stage),
			string(f.Class),
			truncate(f.Reason, 60),
			f.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	fmt.Fprintln(w, renderTable(headers, rows, nil))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
