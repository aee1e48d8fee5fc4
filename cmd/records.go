package cmd

import (
	"github.com/spf13/cobra"
)

var recordsCmd = &cobra.Command{
	Use:     "records",
	Aliases: []string{"record"},
	Short:   "Browse compliance records",
}

var recordsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List past audits",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := app.client.ListRecords(cmd.Context())
		if err != nil {
			return err
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return writeJSON(cmd.OutOrStdout(), records)
		}
		if len(records) == 0 {
			app.printer.Info("No compliance records yet")
			return nil
		}

		p := app.printer
		table := p.NewTable([]string{"ID", "Framework", "Assessed", "Score", "Status"})
		for _, rec := range records {
			table.AddRow(rec.ID.String(), rec.FrameworkTitle, assessedLabel(rec), p.Score(rec), p.StatusBadge(rec.Status))
		}
		return table.Render()
	},
}

var recordsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one compliance record with its report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := app.client.GetRecord(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return writeJSON(cmd.OutOrStdout(), newRecordJSON(rec))
		}
		return renderRecord(app.printer, rec)
	},
}

func init() {
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.AddCommand(recordsListCmd, recordsGetCmd)

	recordsListCmd.Flags().Bool("json", false, "output as JSON")
	recordsGetCmd.Flags().Bool("json", false, "output as JSON")
}
