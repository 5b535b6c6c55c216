package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

type validateReport struct {
	Valid  []string        `json:"valid"`
	Failed []failureReport `json:"failed"`
}

type failureReport struct {
	Workflow string `json:"workflow"`
	Error    string `json:"error"`
}

func newValidateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Build every workflow and report errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := app.Compile(cmd.Context())
			if err != nil {
				return err
			}

			report := validateReport{
				Valid:  result.IDs(),
				Failed: make([]failureReport, 0, len(result.Failed)),
			}
			rows := make([][]string, 0, len(report.Valid)+len(result.Failed))
			for _, id := range report.Valid {
				rows = append(rows, []string{id, "ok", strconv.Itoa(result.Workflows[id].Size()), ""})
			}
			for _, f := range result.Failed {
				report.Failed = append(report.Failed, failureReport{Workflow: f.Workflow, Error: f.Err.Error()})
				rows = append(rows, []string{f.Workflow, "invalid", "-", f.Err.Error()})
			}

			if err := app.Out.Print([]string{"WORKFLOW", "STATUS", "TASKS", "ERROR"}, rows, report); err != nil {
				return err
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d of %d workflow(s) invalid", len(report.Failed), len(rows))
			}
			app.Out.Success(fmt.Sprintf("%d workflow(s) valid", len(report.Valid)))
			return nil
		},
	}
}
