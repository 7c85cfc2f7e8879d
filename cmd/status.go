package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/time-capsule/internal/itemstore"
)

var (
	statusDate   string
	statusFormat string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-item stage markers for a date",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("status"); err != nil {
			return err
		}
		date := statusDate
		if date == "" {
			date = defaultDate(time.Now(), cfg.Pipeline.YearsBack)
		}
		if err := validateDate(date); err != nil {
			return err
		}

		rows, err := itemstore.New(cfg.DataDir).Status(date)
		if err != nil {
			return eris.Wrapf(err, "status %s", date)
		}
		return writeStatus(os.Stdout, statusFormat, rows)
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusDate, "date", "", "front-page date YYYY-MM-DD (default: today minus pipeline.years_back)")
	statusCmd.Flags().StringVar(&statusFormat, "format", "table", "output format: table, json, yaml")
	rootCmd.AddCommand(statusCmd)
}

func writeStatus(w io.Writer, format string, rows []itemstore.ItemStatus) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close() //nolint:errcheck
		return enc.Encode(rows)
	case "table", "":
		_, err := fmt.Fprintln(w, formatStatusTable(rows))
		return err
	default:
		return eris.Errorf("unknown format %q", format)
	}
}

func formatStatusTable(rows []itemstore.ItemStatus) string {
	headers := []string{"#", "ID", "TITLE", "ARTICLE", "COMMENTS", "PROMPT", "RESPONSE", "GRADES", "SCORE"}
	body := make([][]string, 0, len(rows))
	for _, r := range rows {
		article := mark(r.Article)
		if r.Error {
			article = "err"
		}
		body = append(body, []string{
			strconv.Itoa(r.Rank),
			r.ItemID,
			truncate(r.Title, 50),
			article,
			mark(r.Comments),
			mark(r.Prompt),
			mark(r.Response),
			mark(r.Grades),
			mark(r.Score),
		})
	}
	return renderTable(headers, body, []columnAlignment{alignRight})
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "-"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
