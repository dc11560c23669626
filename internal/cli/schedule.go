package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"academy/internal/application/orchestrators"
	"academy/internal/domain/session"
)

func scheduleCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show, import and export batch schedules",
	}
	cmd.AddCommand(scheduleShowCmd(st))
	cmd.AddCommand(scheduleSaveCmd(st))
	cmd.AddCommand(scheduleDeleteCmd(st))
	cmd.AddCommand(scheduleImportCmd(st))
	cmd.AddCommand(scheduleTemplateCmd(st))
	cmd.AddCommand(scheduleWatchCmd(st))
	return cmd
}

func scheduleShowCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "show <batch-id>",
		Short: "Show the reconciled schedule of a batch",
		Long: `Show one line per session slot. Slots without a saved record are
placeholders built from the batch's planned session count.

Examples:
  academy schedule show B-2026-01`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(st, func(a *app) error {
				schedule, err := a.svc.LoadSchedule(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return renderSchedule(cmd.OutOrStdout(), schedule)
			})
		},
	}
}

func scheduleSaveCmd(st *state) *cobra.Command {
	var (
		title, date, clock, meetLink, note string
		status, reason                     string
		current                            bool
	)
	cmd := &cobra.Command{
		Use:   "save <batch-id> <session-number>",
		Short: "Create or update one session",
		Long: `Save the session with the given number. A placeholder slot is created
with defaults for every flag not given; a saved session only has the
given flags changed. Cancelling requires --reason.

Examples:
  academy schedule save B-2026-01 3 --title "Listening practice" --date 2026-05-04
  academy schedule save B-2026-01 3 --status cancelled --reason "room unavailable"
  academy schedule save B-2026-01 3 --status completed`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := strconv.Atoi(args[1])
			if err != nil || number < 1 {
				return session.ErrInvalidSessionNumber
			}
			flags := cmd.Flags()
			var patch session.Patch
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("date") {
				patch.Date = &date
			}
			if flags.Changed("time") {
				patch.Time = &clock
			}
			if flags.Changed("meet-link") {
				patch.MeetLink = &meetLink
			}
			if flags.Changed("note") {
				patch.Note = &note
			}
			if flags.Changed("status") {
				next := session.NormalizeStatus(status)
				patch.Status = &next
			}
			if flags.Changed("reason") {
				patch.CancellationReason = &reason
			}
			if flags.Changed("current") {
				patch.IsCurrent = &current
			}

			return withApp(st, func(a *app) error {
				schedule, err := a.svc.LoadSchedule(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				saved, err := a.svc.SaveSlot(cmd.Context(), args[0], schedule.Slot(number), patch)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved session %d (%s): %s\n", saved.SessionNumber, saved.RecordID, colorStatus(saved.Status))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "session title")
	cmd.Flags().StringVar(&date, "date", "", "session date")
	cmd.Flags().StringVar(&clock, "time", "", "session start time")
	cmd.Flags().StringVar(&meetLink, "meet-link", "", "online meeting link")
	cmd.Flags().StringVar(&note, "note", "", "free-text note")
	cmd.Flags().StringVar(&status, "status", "", "scheduled, completed or cancelled")
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason (required with --status cancelled)")
	cmd.Flags().BoolVar(&current, "current", false, "mark as the batch's current session")
	return cmd
}

func scheduleDeleteCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <record-id>",
		Short: "Delete a saved session",
		Long: `Delete the saved session with the given record id (the RECORD column of
"schedule show"). The slot reverts to a placeholder if it is within the
batch's planned sessions.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(st, func(a *app) error {
				if err := a.svc.DeleteSlot(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
				return nil
			})
		},
	}
}

func scheduleImportCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "import <batch-id> <file>",
		Short: "Import session titles from a CSV sheet",
		Long: `Create or retitle one session per sheet row. The sheet needs a session
number column (S.No, SNo, session_number or Session Number) and a Title
column. Use "-" to read from standard input.

Examples:
  academy schedule import B-2026-01 titles.csv
  academy schedule template B-2026-01 | academy schedule import B-2026-01 -`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readSheet(cmd.InOrStdin(), args[1], st.cfg.MaxImportBytes)
			if err != nil {
				return err
			}
			return withApp(st, func(a *app) error {
				result, err := a.svc.ImportSchedule(cmd.Context(), args[0], raw)
				if err != nil {
					return err
				}
				renderImportResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
}

// readSheet reads path, or stdin for "-", refusing more than limit bytes.
func readSheet(stdin io.Reader, path string, limit int64) (string, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("open sheet: %w", err)
		}
		defer f.Close()
		r = f
	}
	raw, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", fmt.Errorf("read sheet: %w", err)
	}
	if int64(len(raw)) > limit {
		return "", fmt.Errorf("sheet exceeds %d bytes", limit)
	}
	return string(raw), nil
}

func scheduleTemplateCmd(st *state) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "template <batch-id>",
		Short: "Write an import sheet with one row per planned session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(st, func(a *app) error {
				sheet, err := a.svc.RenderTemplate(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if out == "" {
					_, err = io.WriteString(cmd.OutOrStdout(), sheet)
					return err
				}
				if err := os.WriteFile(out, []byte(sheet), 0o644); err != nil {
					return fmt.Errorf("write template: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	return cmd
}

func scheduleWatchCmd(st *state) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch <batch-id>",
		Short: "Reprint the schedule on an interval until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive")
			}
			return withApp(st, func(a *app) error {
				ctx, stop := signalContext(cmd.Context())
				defer stop()
				return watch(ctx, a.svc, args[0], interval, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "refresh interval")
	return cmd
}

// watch prints every refresh until ctx is done. A failed refresh is
// reported and the next tick tries again.
func watch(ctx context.Context, loader orchestrators.ScheduleLoader, batchID string, interval time.Duration, w io.Writer) error {
	stopRefresh := orchestrators.StartScheduleRefresher(ctx, loader, batchID, interval, func(schedule orchestrators.Schedule, err error) {
		fmt.Fprintf(w, "--- %s\n", time.Now().Format(time.TimeOnly))
		if err != nil {
			fmt.Fprintf(w, "%s %v\n", color.New(color.FgRed).Sprint("refresh failed:"), err)
			return
		}
		if err := renderSchedule(w, schedule); err != nil {
			fmt.Fprintf(w, "render failed: %v\n", err)
		}
	})
	<-ctx.Done()
	stopRefresh()
	return nil
}
