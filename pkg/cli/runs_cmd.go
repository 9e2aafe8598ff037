package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"duckflow/internal/domain"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and cancel recorded pipeline runs",
	}
	cmd.AddCommand(newRunsListCmd())
	cmd.AddCommand(newRunsShowCmd())
	cmd.AddCommand(newRunsCancelCmd())
	return cmd
}

func newRunsListCmd() *cobra.Command {
	var (
		pipelineName string
		status       string
		maxResults   int
		pageToken    string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := domain.PipelineRunFilter{
				Page: domain.PageRequest{MaxResults: maxResults, PageToken: pageToken},
			}
			if pipelineName != "" {
				filter.Pipeline = &pipelineName
			}
			if status != "" {
				s := domain.RunStatus(status)
				filter.Status = &s
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			runs, total, err := a.service().ListRuns(cmd.Context(), filter)
			if err != nil {
				return err
			}
			next := domain.NextPageToken(filter.Page.Offset(), filter.Page.Limit(), total)

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				items := make([]map[string]any, 0, len(runs))
				for _, r := range runs {
					items = append(items, runJSON(r))
				}
				return PrintJSON(out, map[string]any{"runs": items, "total": total, "next_page_token": next})
			}

			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{
					r.ID, r.Pipeline, string(r.Status), r.TriggerType,
					r.ScheduledAt.UTC().Format("2006-01-02T15:04:05Z"), formatTime(r.FinishedAt),
				})
			}
			PrintTable(out, []string{"id", "pipeline", "status", "trigger", "scheduled_at", "finished_at"}, rows)
			if next != "" {
				_, _ = fmt.Fprintf(out, "\nmore results: --page-token %s\n", next)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&pipelineName, "pipeline", "", "Only runs of this pipeline")
	cmd.Flags().StringVar(&status, "status", "", "Only runs with this status")
	cmd.Flags().IntVar(&maxResults, "max-results", 20, "Page size")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "Page token from a previous listing")
	return cmd
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run and its task outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			svc := a.service()
			run, err := svc.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tasks, err := svc.ListTaskRuns(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				items := make([]map[string]any, 0, len(tasks))
				for _, t := range tasks {
					items = append(items, map[string]any{
						"task_name":     t.TaskName,
						"kind":          t.Kind,
						"status":        t.Status,
						"attempts":      t.Attempts,
						"rows_loaded":   t.RowsLoaded,
						"error_kind":    t.ErrorKind,
						"error_message": deref(t.ErrorMessage),
					})
				}
				body := runJSON(*run)
				body["tasks"] = items
				return PrintJSON(out, body)
			}

			PrintDetail(out, map[string]string{
				"id":           run.ID,
				"pipeline":     run.Pipeline,
				"status":       string(run.Status),
				"trigger":      run.TriggerType,
				"triggered_by": run.TriggeredBy,
				"scheduled_at": formatTime(&run.ScheduledAt),
				"started_at":   formatTime(run.StartedAt),
				"finished_at":  formatTime(run.FinishedAt),
				"error":        deref(run.ErrorMessage),
			})
			_, _ = fmt.Fprintln(out)

			rows := make([][]string, 0, len(tasks))
			for _, t := range tasks {
				rows = append(rows, []string{
					t.TaskName, string(t.Kind), string(t.Status),
					strconv.Itoa(t.Attempts), formatRows(t.RowsLoaded), t.ErrorKind,
				})
			}
			PrintTable(out, []string{"task", "kind", "status", "attempts", "rows", "error"}, rows)
			return nil
		},
	}
}

func newRunsCancelCmd() *cobra.Command {
	var principal string

	cmd := &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Mark a pending or running run as cancelled",
		Long: "Cancels a run recorded in the metastore. A run executing in a server process is " +
			"only stopped when cancelled through that server's API.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			if err := a.service().CancelRun(cmd.Context(), principal, args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "run %s cancelled\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&principal, "by", defaultPrincipal(), "Name recorded as the canceller")
	return cmd
}

func runJSON(r domain.PipelineRun) map[string]any {
	return map[string]any{
		"id":            r.ID,
		"pipeline":      r.Pipeline,
		"status":        r.Status,
		"trigger_type":  r.TriggerType,
		"triggered_by":  r.TriggeredBy,
		"parameters":    r.Parameters,
		"scheduled_at":  r.ScheduledAt,
		"started_at":    r.StartedAt,
		"finished_at":   r.FinishedAt,
		"error_message": deref(r.ErrorMessage),
	}
}
