package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type recordWire struct {
	ID               ID              `json:"id"`
	RecordID         ID              `json:"record_id"`
	FrameworkTitle   string          `json:"framework_title"`
	AssessmentDate   string          `json:"assessment_date"`
	Score            *float64        `json:"score"`
	Status           string          `json:"status"`
	CalculatedStatus string          `json:"calculated_status"`
	ReportData       json.RawMessage `json:"report_data"`
	AuditResult      json.RawMessage `json:"audit_result"`
}

type reportWire struct {
	ExecutiveSummary *string  `json:"executive_summary"`
	CompliantAreas   []string `json:"compliant_areas"`
	Violations       []string `json:"violations"`
	Recommendations  []string `json:"recommendations"`
	Summary          string   `json:"summary"`
	KeyIssues        []string `json:"key_issues"`
	ComplianceScore  *float64 `json:"compliance_score"`
}

// ParseRecordDetail decodes one record object. The report body is taken from
// report_data, then audit_result, then the object itself. The variant is
// decided here, once, from which fields are present.
func ParseRecordDetail(data []byte) (*AuditRecordDetail, error) {
	var rec recordWire
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding audit record: %w", err)
	}

	body := data
	switch {
	case present(rec.ReportData):
		body = rec.ReportData
	case present(rec.AuditResult):
		body = rec.AuditResult
	}

	var rep reportWire
	if err := json.Unmarshal(body, &rep); err != nil {
		return nil, fmt.Errorf("decoding audit report: %w", err)
	}

	detail := &AuditRecordDetail{
		AuditRecordSummary: AuditRecordSummary{
			ID:             rec.ID,
			FrameworkTitle: rec.FrameworkTitle,
			AssessmentDate: rec.AssessmentDate,
		},
		Report: classifyReport(rep),
	}
	if detail.ID == "" {
		detail.ID = rec.RecordID
	}

	if st, ok := ParseComplianceStatus(rec.CalculatedStatus); ok {
		detail.Status = st
	} else if st, ok := ParseComplianceStatus(rec.Status); ok {
		detail.Status = st
	}

	switch {
	case rec.Score != nil:
		detail.Score = *rec.Score
	case rep.ComplianceScore != nil:
		detail.Score = *rep.ComplianceScore
	}

	return detail, nil
}

func classifyReport(rep reportWire) Report {
	if rep.CompliantAreas != nil || rep.ExecutiveSummary != nil {
		d := &DetailedReport{
			CompliantAreas:  rep.CompliantAreas,
			Violations:      rep.Violations,
			Recommendations: rep.Recommendations,
		}
		if rep.ExecutiveSummary != nil {
			d.ExecutiveSummary = *rep.ExecutiveSummary
		}
		return d
	}
	return &SummaryReport{
		Summary:   rep.Summary,
		KeyIssues: rep.KeyIssues,
	}
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
