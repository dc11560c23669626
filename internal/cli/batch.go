package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"academy/internal/domain/batch"
)

func batchCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Manage course batches",
	}
	cmd.AddCommand(batchSetCmd(st))
	cmd.AddCommand(batchListCmd(st))
	return cmd
}

func batchSetCmd(st *state) *cobra.Command {
	var (
		name          string
		totalSessions int
		teacherEmail  string
	)
	cmd := &cobra.Command{
		Use:   "set <batch-id>",
		Short: "Create or replace a batch",
		Long: `Create or replace a batch. Omit --total-sessions for a batch without a
declared plan; its schedule is then whatever has been saved.

Examples:
  academy batch set B-2026-01 --name "Spring evening" --total-sessions 12
  academy batch set B-2026-02 --teacher-email teacher@example.com`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b := batch.Batch{ID: args[0], Name: name, TeacherEmail: teacherEmail}
			if cmd.Flags().Changed("total-sessions") {
				b.TotalSessions = &totalSessions
			}
			return withApp(st, func(a *app) error {
				if err := a.svc.SaveBatch(cmd.Context(), b); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved batch %s\n", b.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().IntVar(&totalSessions, "total-sessions", 0, "number of planned sessions")
	cmd.Flags().StringVar(&teacherEmail, "teacher-email", "", "address that receives cancellation notices")
	return cmd
}

func batchListCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(st, func(a *app) error {
				batches, err := a.svc.ListBatches(cmd.Context())
				if err != nil {
					return err
				}
				if len(batches) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No batches.")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tSESSIONS\tTEACHER")
				for _, b := range batches {
					total := "-"
					if b.TotalSessions != nil {
						total = fmt.Sprintf("%d", *b.TotalSessions)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.ID, dash(b.Name), total, dash(b.TeacherEmail))
				}
				return tw.Flush()
			})
		},
	}
}
