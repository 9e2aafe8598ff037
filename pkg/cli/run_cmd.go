package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"duckflow/internal/domain"
	"duckflow/internal/service/pipeline"
)

func newRunCmd() *cobra.Command {
	var (
		params      map[string]string
		targets     []string
		logicalDate string
		triggeredBy string
	)

	cmd := &cobra.Command{
		Use:   "run <pipeline>",
		Short: "Run a pipeline once and wait for it to finish",
		Long: "Runs every task of the pipeline, or only the --target tasks and their upstream tasks, " +
			"against the configured store. Exits non-zero when the run does not succeed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scheduledAt, err := parseLogicalDate(logicalDate)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			if err := a.withEngine(ctx, false); err != nil {
				return err
			}

			report, err := a.svc.RunAndWait(ctx, pipeline.TriggerRequest{
				Pipeline:    args[0],
				TriggerType: domain.TriggerTypeManual,
				TriggeredBy: triggeredBy,
				ScheduledAt: scheduledAt,
				Params:      params,
				Targets:     targets,
			})
			if err != nil {
				return err
			}

			if a.cfg.PushgatewayURL != "" {
				if err := a.metrics.Push(cmd.Context(), a.cfg.PushgatewayURL, report.Pipeline); err != nil {
					a.logger.Warn("push metrics", "gateway", a.cfg.PushgatewayURL, "error", err)
				}
			}

			if err := printReport(cmd, report); err != nil {
				return err
			}
			return report.Err()
		},
	}

	cmd.Flags().StringToStringVarP(&params, "param", "p", nil, "Run parameter as key=value (repeatable)")
	cmd.Flags().StringSliceVarP(&targets, "target", "t", nil, "Only run these tasks and their upstream tasks")
	cmd.Flags().StringVar(&logicalDate, "logical-date", "", "Logical run time (RFC 3339 or YYYY-MM-DD); defaults to now")
	cmd.Flags().StringVar(&triggeredBy, "triggered-by", defaultPrincipal(), "Name recorded on the run")

	return cmd
}

// parseLogicalDate accepts RFC 3339 timestamps and plain dates. Empty means now.
func parseLogicalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid --logical-date %q: use RFC 3339 or YYYY-MM-DD", s)
}

func defaultPrincipal() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

type reportTaskJSON struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	RowsLoaded int64  `json:"rows_loaded"`
	ErrorKind  string `json:"error_kind,omitempty"`
	Error      string `json:"error,omitempty"`
	Duration   string `json:"duration,omitempty"`
}

func printReport(cmd *cobra.Command, r *pipeline.RunReport) error {
	out := cmd.OutOrStdout()
	if getOutputFormat(cmd) == "json" {
		tasks := make([]reportTaskJSON, 0, len(r.Nodes))
		for _, n := range r.Nodes {
			t := reportTaskJSON{
				Name:       n.Name,
				Kind:       string(n.Kind),
				Status:     string(n.Status),
				Attempts:   n.Attempts,
				RowsLoaded: n.RowsLoaded,
				ErrorKind:  n.ErrorKind,
				Duration:   nodeDuration(n),
			}
			if n.Err != nil {
				t.Error = n.Err.Error()
			}
			tasks = append(tasks, t)
		}
		return PrintJSON(out, map[string]any{
			"run_id":      r.RunID,
			"pipeline":    r.Pipeline,
			"status":      r.Status,
			"root_causes": r.RootCauses,
			"duration":    r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
			"tasks":       tasks,
		})
	}

	rows := make([][]string, 0, len(r.Nodes))
	for _, n := range r.Nodes {
		rows = append(rows, []string{
			n.Name,
			string(n.Kind),
			string(n.Status),
			strconv.Itoa(n.Attempts),
			formatRows(n.RowsLoaded),
			nodeDuration(n),
			n.ErrorKind,
		})
	}
	PrintTable(out, []string{"task", "kind", "status", "attempts", "rows", "duration", "error"}, rows)
	_, _ = fmt.Fprintf(out, "\nrun %s: %s", r.RunID, r.Status)
	if s := r.Summary(); s != "" {
		_, _ = fmt.Fprintf(out, " (%s)", s)
	}
	_, _ = fmt.Fprintln(out)
	return nil
}

func nodeDuration(n pipeline.NodeOutcome) string {
	if n.StartedAt.IsZero() || n.FinishedAt.IsZero() {
		return ""
	}
	return n.FinishedAt.Sub(n.StartedAt).Round(time.Millisecond).String()
}

func formatRows(n int64) string {
	if n < 0 {
		return "?"
	}
	return strconv.FormatInt(n, 10)
}
