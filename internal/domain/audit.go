package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Framework identifies the regulatory framework a document is audited against
type Framework int

const (
	FrameworkECC  Framework = 1
	FrameworkNCA  Framework = 2
	FrameworkSAMA Framework = 3
)

// ParseFramework accepts the numeric id or the framework name
func ParseFramework(s string) (Framework, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "1", "ECC":
		return FrameworkECC, nil
	case "2", "NCA":
		return FrameworkNCA, nil
	case "3", "SAMA":
		return FrameworkSAMA, nil
	default:
		return 0, fmt.Errorf("invalid framework %q: must be 1 (ECC), 2 (NCA) or 3 (SAMA)", s)
	}
}

// Valid reports whether f is one of the known frameworks
func (f Framework) Valid() bool {
	return f >= FrameworkECC && f <= FrameworkSAMA
}

// String returns the framework's short name
func (f Framework) String() string {
	switch f {
	case FrameworkECC:
		return "ECC"
	case FrameworkNCA:
		return "NCA"
	case FrameworkSAMA:
		return "SAMA"
	default:
		return fmt.Sprintf("Framework(%d)", int(f))
	}
}

// ComplianceStatus is the server's verdict for an audited document
type ComplianceStatus string

const (
	StatusCompliant    ComplianceStatus = "COMPLIANT"
	StatusPartial      ComplianceStatus = "PARTIAL"
	StatusNonCompliant ComplianceStatus = "NON_COMPLIANT"
)

// ParseComplianceStatus returns false for values outside the three verdicts,
// such as the "success" envelope status some responses carry.
func ParseComplianceStatus(s string) (ComplianceStatus, bool) {
	switch st := ComplianceStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusCompliant, StatusPartial, StatusNonCompliant:
		return st, true
	default:
		return "", false
	}
}

// AuditSubmission is a single document upload. It is never persisted.
type AuditSubmission struct {
	FileName  string
	File      []byte
	Framework Framework
	Detailed  bool
}

var (
	ErrEmptyDocument    = errors.New("audit document is empty")
	ErrInvalidFramework = errors.New("framework must be 1 (ECC), 2 (NCA) or 3 (SAMA)")
)

// Validate checks the submission before anything goes on the wire
func (s AuditSubmission) Validate() error {
	if len(s.File) == 0 {
		return ErrEmptyDocument
	}
	if !s.Framework.Valid() {
		return fmt.Errorf("%w: got %d", ErrInvalidFramework, int(s.Framework))
	}
	return nil
}

// AuditRecordSummary is one row of the records listing
type AuditRecordSummary struct {
	ID             ID               `json:"id"`
	FrameworkTitle string           `json:"framework_title"`
	AssessmentDate string           `json:"assessment_date"`
	Score          float64          `json:"score"`
	Status         ComplianceStatus `json:"status"`
}

var assessmentLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// AssessedAt parses AssessmentDate; the server's format is not fixed
func (s AuditRecordSummary) AssessedAt() (time.Time, bool) {
	for _, layout := range assessmentLayouts {
		if t, err := time.Parse(layout, s.AssessmentDate); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ScoreBand groups a score into the three bands the UI colours by
type ScoreBand int

const (
	BandPoor ScoreBand = iota
	BandPartial
	BandGood
)

// Band returns the score band
func (s AuditRecordSummary) Band() ScoreBand {
	switch {
	case s.Score >= 80:
		return BandGood
	case s.Score >= 50:
		return BandPartial
	default:
		return BandPoor
	}
}

// AuditRecordDetail is a summary plus the report body
type AuditRecordDetail struct {
	AuditRecordSummary
	Report Report
}

// ReportKind discriminates the two report shapes
type ReportKind int

const (
	ReportKindSummary ReportKind = iota
	ReportKindDetailed
)

func (k ReportKind) String() string {
	if k == ReportKindDetailed {
		return "detailed"
	}
	return "summary"
}

// Report is a closed sum type: *DetailedReport or *SummaryReport
type Report interface {
	Kind() ReportKind
	isReport()
}

// DetailedReport is produced when the submission asked for detailed=true
type DetailedReport struct {
	ExecutiveSummary string
	CompliantAreas   []string
	Violations       []string
	Recommendations  []string
}

func (*DetailedReport) Kind() ReportKind { return ReportKindDetailed }
func (*DetailedReport) isReport() {}

// SummaryReport is produced for detailed=false, and is the fallback when
// the server sent no recognisable report fields at all.
type SummaryReport struct {
	Summary   string
	KeyIssues []string
}

func (*SummaryReport) Kind() ReportKind { return ReportKindSummary }
func (*SummaryReport) isReport() {}
