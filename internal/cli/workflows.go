package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/dagfactory/internal/api"
	"github.com/shaiso/dagfactory/internal/graph"
)

func newListCmd(app *App) *cobra.Command {
	var apiURL string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows with their next scheduled run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var summaries []api.WorkflowSummary
			if apiURL != "" {
				var err error
				summaries, err = NewClient(apiURL).ListWorkflows(cmd.Context())
				if err != nil {
					return err
				}
			} else {
				result, err := app.Compile(cmd.Context())
				if err != nil {
					return err
				}
				now := time.Now()
				for _, id := range result.IDs() {
					summaries = append(summaries, api.SummaryFromWorkflow(result.Workflows[id], now))
				}
			}
			sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })

			rows := make([][]string, 0, len(summaries))
			for _, s := range summaries {
				rows = append(rows, []string{
					s.ID,
					orDash(s.Schedule),
					strconv.Itoa(s.Tasks),
					formatNextRun(s.NextRun),
				})
			}
			if summaries == nil {
				summaries = []api.WorkflowSummary{}
			}
			return app.Out.Print([]string{"ID", "SCHEDULE", "TASKS", "NEXT RUN"}, rows, summaries)
		},
	}

	cmd.Flags().StringVar(&apiURL, "api-url", "", "Read workflows from a running server instead of the local document")
	return cmd
}

func newShowCmd(app *App) *cobra.Command {
	var apiURL string

	cmd := &cobra.Command{
		Use:   "show <workflow-id>",
		Short: "Show workflow details and tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var snap graph.Snapshot
			if apiURL != "" {
				s, err := NewClient(apiURL).GetWorkflow(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				snap = *s
			} else {
				wf, err := app.workflow(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				snap = wf.Snapshot()
			}

			if app.Out.JSONMode() {
				return app.Out.JSON(snap)
			}
			return printSnapshot(app.Out, snap)
		},
	}

	cmd.Flags().StringVar(&apiURL, "api-url", "", "Read the workflow from a running server instead of the local document")
	return cmd
}

func printSnapshot(out *Output, snap graph.Snapshot) error {
	if err := out.Fields([][2]string{
		{"ID", snap.ID},
		{"Schedule", orDash(snap.Schedule)},
		{"Description", orDash(snap.Description)},
		{"Timezone", orDash(snap.Timezone)},
		{"Start date", snap.StartDate.Format(time.RFC3339)},
		{"Max active runs", strconv.Itoa(snap.MaxActiveRuns)},
	}); err != nil {
		return err
	}
	out.Line("")

	rows := make([][]string, 0, len(snap.Tasks))
	for _, t := range snap.Tasks {
		rows = append(rows, []string{t.ID, t.Operator, orDash(strings.Join(t.Upstream, ", "))})
	}
	return out.Table([]string{"TASK", "OPERATOR", "UPSTREAM"}, rows)
}

func formatNextRun(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// parseKeyValues разбирает флаги вида key=value.
func parseKeyValues(pairs []string) (map[string]any, error) {
	result := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected key=value", p)
		}
		result[key] = value
	}
	return result, nil
}
