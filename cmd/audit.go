package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/BASIL960/FinalYearProject/internal/domain"
	"github.com/BASIL960/FinalYearProject/internal/output"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Submit documents for compliance auditing",
}

var auditSubmitCmd = &cobra.Command{
	Use:   "submit <file.pdf>",
	Short: "Audit a PDF against a regulatory framework",
	Long: `Upload a PDF policy document and audit it against one of the supported
frameworks: 1 (ECC), 2 (NCA) or 3 (SAMA). With --detailed the report lists
compliant areas, violations and recommendations; otherwise it is a short
summary with the key issues.`,
	Example: `  compliancectl audit submit policy.pdf --framework ECC
  compliancectl audit submit policy.pdf --framework 3 --detailed --json`,
	Args: cobra.ExactArgs(1),
	RunE: runAuditSubmit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditSubmitCmd)

	auditSubmitCmd.Flags().StringP("framework", "f", "", "framework: 1/ECC, 2/NCA or 3/SAMA")
	auditSubmitCmd.Flags().Bool("detailed", false, "request a detailed report")
	auditSubmitCmd.Flags().Bool("json", false, "output as JSON")
	_ = auditSubmitCmd.MarkFlagRequired("framework")
}

func runAuditSubmit(cmd *cobra.Command, args []string) error {
	frameworkFlag, _ := cmd.Flags().GetString("framework")
	framework, err := domain.ParseFramework(frameworkFlag)
	if err != nil {
		return &output.CLIError{Summary: err.Error(), ExitCode: output.ExitUsageError}
	}
	detailed, _ := cmd.Flags().GetBool("detailed")

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return &output.CLIError{
			Summary:  fmt.Sprintf("cannot read %s", path),
			Detail:   err.Error(),
			ExitCode: output.ExitUsageError,
		}
	}

	rec, err := app.client.SubmitAudit(cmd.Context(), domain.AuditSubmission{
		FileName:  filepath.Base(path),
		File:      data,
		Framework: framework,
		Detailed:  detailed,
	})
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return writeJSON(cmd.OutOrStdout(), newRecordJSON(rec))
	}
	app.printer.Success("Audit complete against %s", framework)
	return renderRecord(app.printer, rec)
}
