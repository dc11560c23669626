package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"academy/internal/application/orchestrators"
	"academy/internal/domain/session"
)

func colorStatus(s session.Status) string {
	label := strings.ToUpper(string(s))
	switch s {
	case session.StatusScheduled:
		return color.New(color.FgHiBlue).Sprint(label)
	case session.StatusCompleted:
		return color.New(color.FgHiGreen).Sprint(label)
	case session.StatusCancelled:
		return color.New(color.FgRed).Sprint(label)
	default:
		return color.New(color.FgWhite).Sprint(label)
	}
}

// renderSchedule prints one line per slot. Placeholders are dimmed and
// marked with "-" in the record column.
func renderSchedule(w io.Writer, schedule orchestrators.Schedule) error {
	b := schedule.Batch
	name := b.Name
	if name == "" {
		name = b.ID
	}
	capacity := "unknown"
	if b.TotalSessions != nil {
		capacity = fmt.Sprintf("%d", *b.TotalSessions)
	}
	fmt.Fprintf(w, "%s (%s), planned sessions: %s\n\n", name, b.ID, capacity)

	if len(schedule.Slots) == 0 {
		fmt.Fprintln(w, "No sessions.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTITLE\tDATE\tTIME\tSTATUS\tRECORD")
	dim := color.New(color.FgHiBlack)
	for _, slot := range schedule.Slots {
		record := slot.RecordID
		title := slot.Title
		if !slot.Bound() {
			record = "-"
			title = dim.Sprint(title)
		}
		if slot.IsCurrent {
			title += color.New(color.FgHiMagenta).Sprint(" ←")
		}
		status := colorStatus(slot.Status)
		if slot.Status == session.StatusCancelled && slot.CancellationReason != "" {
			status += " (" + slot.CancellationReason + ")"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", slot.Index, title, dash(slot.Date), dash(slot.Time), status, record)
	}
	return tw.Flush()
}

// renderImportResult prints the import summary followed by per-line detail.
func renderImportResult(w io.Writer, result orchestrators.ImportScheduleResult) {
	fmt.Fprintf(w, "Created %d, updated %d, skipped %d, failed %d\n",
		result.CreatedCount, result.UpdatedCount, result.SkippedCount, len(result.RowErrors))
	for _, s := range result.Skipped {
		fmt.Fprintf(w, "  %s line %d: %s\n", color.New(color.FgYellow).Sprint("skipped"), s.Line, s.Reason)
	}
	for _, e := range result.RowErrors {
		fmt.Fprintf(w, "  %s line %d (session %d): %s\n", color.New(color.FgRed).Sprint("failed"), e.Line, e.SessionNumber, e.Message)
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
