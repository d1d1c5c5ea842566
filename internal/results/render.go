package results

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"podshorts/internal/model"
)

// HistoryRow is one line of a job history table.
type HistoryRow struct {
	ID        string
	Kind      string
	Status    string
	Source    string
	Detail    string
	Clips     int
	CreatedAt time.Time
}

// ShortsRows converts shorts jobs into history rows.
func ShortsRows(list []model.ProcessingJob) []HistoryRow {
	rows := make([]HistoryRow, 0, len(list))
	for _, j := range list {
		rows = append(rows, HistoryRow{
			ID:        j.ID.String(),
			Kind:      "shorts",
			Status:    string(j.JobStatus()),
			Source:    j.SourceURL,
			Detail:    fmt.Sprintf("%d requested", j.NumShorts),
			Clips:     len(j.ResultURLs()),
			CreatedAt: j.CreatedAt,
		})
	}
	return rows
}

// DubbingRows converts dubbing jobs into history rows.
func DubbingRows(list []model.DubbingJob) []HistoryRow {
	rows := make([]HistoryRow, 0, len(list))
	for _, j := range list {
		rows = append(rows, HistoryRow{
			ID:        j.ID.String(),
			Kind:      "dubbing",
			Status:    string(j.JobStatus()),
			Source:    j.SourceURL,
			Detail:    j.TargetLanguage + "/" + j.Voice,
			Clips:     len(j.ResultURLs()),
			CreatedAt: j.CreatedAt,
		})
	}
	return rows
}

// WriteHistory renders rows as an aligned table.
func WriteHistory(w io.Writer, rows []HistoryRow, now time.Time) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No history yet.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tCLIPS\tDETAIL\tCREATED\tSOURCE")
	for _, r := range rows {
		created := "-"
		if !r.CreatedAt.IsZero() {
			created = humanize.RelTime(r.CreatedAt, now, "ago", "from now")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.ID, r.Kind, r.Status, r.Clips, r.Detail, created, truncate(r.Source, 60))
	}
	return tw.Flush()
}

// WriteView renders a job result: its status, then one block per clip.
func (r Renderer) WriteView(w io.Writer, v View) error {
	fmt.Fprintf(w, "%s job %s: %s\n", v.Kind, v.JobID, v.Status)
	if v.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", v.Error)
	}
	if len(v.Clips) == 0 {
		_, err := fmt.Fprintln(w, "  no clips available")
		return err
	}
	for _, c := range v.Clips {
		fmt.Fprintf(w, "  #%d %s\n", c.Index, c.URL)
		if c.PosterURL != "" {
			fmt.Fprintf(w, "     poster:    %s\n", c.PosterURL)
		}
		fmt.Fprintf(w, "     translate: %s\n", r.TranslateURL(c.URL))
		links := Share(c.URL)
		fmt.Fprintf(w, "     share:     %s\n", links.X)
	}
	return nil
}

// WriteUploads renders upload ledger entries.
func WriteUploads(w io.Writer, list []model.UploadRecord, now time.Time) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "No uploads yet.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tSIZE\tATTEMPTS\tUPLOADED\tURL")
	for _, u := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			u.Source, humanize.IBytes(uint64(max(u.Bytes, 0))), u.Attempts,
			humanize.RelTime(u.CreatedAt, now, "ago", "from now"), u.SecureURL)
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n-1])) + "…"
}
