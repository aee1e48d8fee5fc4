package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecordDetail_DetailedByFieldPresence(t *testing.T) {
	raw := []byte(`{
		"id": 42,
		"framework_title": "NCA Essential Controls",
		"assessment_date": "2026-03-01T10:00:00Z",
		"status": "success",
		"calculated_status": "PARTIAL",
		"report_data": {
			"executive_summary": "Mostly aligned",
			"compliant_areas": ["Access control"],
			"violations": ["No DR plan"],
			"recommendations": ["Write a DR plan"],
			"compliance_score": 64
		}
	}`)

	detail, err := ParseRecordDetail(raw)
	require.NoError(t, err)

	assert.Equal(t, ID("42"), detail.ID)
	assert.Equal(t, StatusPartial, detail.Status)
	assert.Equal(t, 64.0, detail.Score)
	require.Equal(t, ReportKindDetailed, detail.Report.Kind())

	rep, ok := detail.Report.(*DetailedReport)
	require.True(t, ok)
	assert.Equal(t, "Mostly aligned", rep.ExecutiveSummary)
	assert.Equal(t, []string{"Access control"}, rep.CompliantAreas)
	assert.Equal(t, []string{"No DR plan"}, rep.Violations)
	assert.Equal(t, []string{"Write a DR plan"}, rep.Recommendations)
}

func TestParseRecordDetail_SummaryVariant(t *testing.T) {
	raw := []byte(`{
		"record_id": "abc123",
		"calculated_status": "NON_COMPLIANT",
		"summary": "Several gaps",
		"key_issues": ["Weak passwords", "No logging"],
		"compliance_score": 31.5
	}`)

	detail, err := ParseRecordDetail(raw)
	require.NoError(t, err)

	assert.Equal(t, ID("abc123"), detail.ID)
	assert.Equal(t, StatusNonCompliant, detail.Status)
	assert.Equal(t, 31.5, detail.Score)

	rep, ok := detail.Report.(*SummaryReport)
	require.True(t, ok, "expected summary variant, got %T", detail.Report)
	assert.Equal(t, "Several gaps", rep.Summary)
	assert.Len(t, rep.KeyIssues, 2)
}

func TestParseRecordDetail_EmptyCompliantAreasStillDetailed(t *testing.T) {
	raw := []byte(`{"id": "r1", "audit_result": {"compliant_areas": [], "violations": ["x"]}}`)

	detail, err := ParseRecordDetail(raw)
	require.NoError(t, err)
	assert.Equal(t, ReportKindDetailed, detail.Report.Kind())
}

func TestParseRecordDetail_NoReportFieldsDefaultsToEmptySummary(t *testing.T) {
	raw := []byte(`{"id": "r2", "score": 90, "status": "COMPLIANT", "report_data": null}`)

	detail, err := ParseRecordDetail(raw)
	require.NoError(t, err)

	rep, ok := detail.Report.(*SummaryReport)
	require.True(t, ok)
	assert.Empty(t, rep.Summary)
	assert.Empty(t, rep.KeyIssues)
	assert.Equal(t, StatusCompliant, detail.Status)
	assert.Equal(t, BandGood, detail.Band())
}

func TestParseRecordDetail_InvalidJSON(t *testing.T) {
	_, err := ParseRecordDetail([]byte(`[1,2`))
	require.Error(t, err)
}

func TestID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want ID
	}{
		{name: "number", in: `7`, want: "7"},
		{name: "string", in: `"a-b"`, want: "a-b"},
		{name: "null", in: `null`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ID
			require.NoError(t, json.Unmarshal([]byte(tt.in), &id))
			assert.Equal(t, tt.want, id)
		})
	}

	var id ID
	assert.Error(t, json.Unmarshal([]byte(`{}`), &id))
}

func TestParseFrameworkAndUserType(t *testing.T) {
	f, err := ParseFramework("nca")
	require.NoError(t, err)
	assert.Equal(t, FrameworkNCA, f)

	_, err = ParseFramework("4")
	assert.Error(t, err)

	u, err := ParseUserType("organization")
	require.NoError(t, err)
	assert.Equal(t, UserTypeOrganization, u)

	_, err = ParseUserType("robot")
	assert.Error(t, err)
}

func TestAuditSubmission_Validate(t *testing.T) {
	assert.ErrorIs(t, AuditSubmission{Framework: FrameworkECC}.Validate(), ErrEmptyDocument)
	assert.ErrorIs(t, AuditSubmission{File: []byte("%PDF"), Framework: 9}.Validate(), ErrInvalidFramework)
	assert.NoError(t, AuditSubmission{File: []byte("%PDF"), Framework: FrameworkSAMA}.Validate())
}
