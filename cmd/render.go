package cmd

import (
	"encoding/json"
	"io"

	"github.com/BASIL960/FinalYearProject/internal/domain"
	"github.com/BASIL960/FinalYearProject/internal/output"
)

// recordJSON is the --json shape of a record; the report carries its kind
type recordJSON struct {
	domain.AuditRecordSummary
	ReportKind string `json:"report_kind,omitempty"`
	Report     any    `json:"report,omitempty"`
}

func newRecordJSON(rec *domain.AuditRecordDetail) recordJSON {
	out := recordJSON{AuditRecordSummary: rec.AuditRecordSummary}
	switch r := rec.Report.(type) {
	case *domain.DetailedReport:
		out.ReportKind = r.Kind().String()
		out.Report = map[string]any{
			"executive_summary": r.ExecutiveSummary,
			"compliant_areas":   nonNil(r.CompliantAreas),
			"violations":        nonNil(r.Violations),
			"recommendations":   nonNil(r.Recommendations),
		}
	case *domain.SummaryReport:
		out.ReportKind = r.Kind().String()
		out.Report = map[string]any{
			"summary":    r.Summary,
			"key_issues": nonNil(r.KeyIssues),
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderRecord prints one record with the body its report kind calls for
func renderRecord(p *output.Printer, rec *domain.AuditRecordDetail) error {
	table := p.NewTable([]string{"Field", "Value"})
	table.AddRow("ID", rec.ID.String())
	table.AddRow("Framework", rec.FrameworkTitle)
	table.AddRow("Assessed", assessedLabel(rec.AuditRecordSummary))
	table.AddRow("Score", p.Score(rec.AuditRecordSummary))
	table.AddRow("Status", p.StatusBadge(rec.Status))
	if err := table.Render(); err != nil {
		return err
	}

	switch r := rec.Report.(type) {
	case *domain.DetailedReport:
		p.Header("Executive summary")
		p.Print("%s", r.ExecutiveSummary)
		p.Header("Compliant areas")
		p.List(r.CompliantAreas)
		p.Header("Violations")
		p.List(r.Violations)
		p.Header("Recommendations")
		p.List(r.Recommendations)
	case *domain.SummaryReport:
		p.Header("Summary")
		p.Print("%s", r.Summary)
		p.Header("Key issues")
		p.List(r.KeyIssues)
	}
	return nil
}

func assessedLabel(s domain.AuditRecordSummary) string {
	if t, ok := s.AssessedAt(); ok {
		return t.Local().Format("2006-01-02 15:04")
	}
	return s.AssessmentDate
}
