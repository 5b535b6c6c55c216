package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/dagfactory/internal/domain"
	"github.com/shaiso/dagfactory/internal/engine"
	"github.com/shaiso/dagfactory/internal/graph"
)

func newRunCmd(app *App) *cobra.Command {
	var (
		runID  string
		date   string
		params []string
	)

	cmd := &cobra.Command{
		Use:   "run <workflow-id>",
		Short: "Run a workflow locally, task by task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runParams, err := parseKeyValues(params)
			if err != nil {
				return err
			}

			wf, err := app.workflow(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			opts := graph.RunOptions{
				RunID:  runID,
				Params: runParams,
			}
			if date != "" {
				// Те же форматы, что у start_date: дата, RFC3339 или "-1d".
				opts.LogicalDate, err = engine.ResolveStartDate(date, wf.Timezone, time.Now())
				if err != nil {
					return fmt.Errorf("--date: %w", err)
				}
			}

			result, err := wf.Run(cmd.Context(), opts)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(result.Tasks))
			for _, t := range result.Tasks {
				rows = append(rows, []string{
					t.TaskID,
					string(t.Status),
					t.Duration.Round(time.Millisecond).String(),
					t.Error,
				})
			}
			if err := app.Out.Print([]string{"TASK", "STATUS", "DURATION", "ERROR"}, rows, result); err != nil {
				return err
			}

			if result.Status != domain.RunStatusSucceeded {
				return fmt.Errorf("run %s finished with status %s", result.RunID, result.Status)
			}
			app.Out.Success(fmt.Sprintf("Run %s succeeded", result.RunID))
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "Run ID (generated when empty)")
	cmd.Flags().StringVar(&date, "date", "", "Logical date: YYYY-MM-DD, RFC3339 or a relative delta like -1d")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Run parameter key=value (repeatable)")
	return cmd
}
