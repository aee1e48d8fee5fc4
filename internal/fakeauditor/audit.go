package fakeauditor

import (
	"bytes"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const maxUpload = 32 << 20

var frameworkTitles = map[int]string{
	1: "Essential Cybersecurity Controls (ECC)",
	2: "National Cybersecurity Authority (NCA)",
	3: "Saudi Central Bank Cybersecurity Framework (SAMA)",
}

// control is one requirement the fake "audits" by keyword
type control struct {
	Name    string
	Keyword string
	Advice  string
}

var frameworkControls = map[int][]control{
	1: {
		{"Cybersecurity governance", "governance", "Appoint a cybersecurity steering committee."},
		{"Asset management", "asset", "Maintain an inventory of information assets."},
		{"Identity and access management", "access control", "Enforce least-privilege access control."},
		{"Cryptography", "encryption", "Encrypt sensitive data at rest and in transit."},
		{"Incident management", "incident", "Document an incident response procedure."},
	},
	2: {
		{"Data classification", "classification", "Classify data by sensitivity."},
		{"Access control", "access control", "Review privileged accounts quarterly."},
		{"Logging and monitoring", "logging", "Centralise security event logging."},
		{"Backup and recovery", "backup", "Test backup restoration at least yearly."},
	},
	3: {
		{"Cybersecurity strategy", "strategy", "Approve a board-level cybersecurity strategy."},
		{"Third-party risk", "third party", "Assess the security posture of third parties."},
		{"Encryption", "encryption", "Use approved cryptographic algorithms."},
		{"Business continuity", "continuity", "Maintain a tested business continuity plan."},
	},
}

type record struct {
	ID             string
	FrameworkID    int
	AssessmentDate string
	Score          float64
	Status         string
	Report         map[string]any
}

func (r *record) summary() map[string]any {
	return map[string]any{
		"id":              r.ID,
		"framework_title": frameworkTitles[r.FrameworkID],
		"assessment_date": r.AssessmentDate,
		"score":           r.Score,
		"status":          r.Status,
	}
}

func statusFor(score float64) string {
	switch {
	case score >= 80:
		return "COMPLIANT"
	case score >= 50:
		return "PARTIAL"
	default:
		return "NON_COMPLIANT"
	}
}

// analyse scores a document by which control keywords it mentions
func analyse(doc []byte, framework int, detailed bool) (float64, map[string]any) {
	controls := frameworkControls[framework]
	lower := bytes.ToLower(doc)

	var compliant, violations, recommendations []string
	for _, c := range controls {
		if bytes.Contains(lower, []byte(c.Keyword)) {
			compliant = append(compliant, c.Name)
			continue
		}
		violations = append(violations, c.Name+" is not addressed")
		recommendations = append(recommendations, c.Advice)
	}
	score := math.Round(float64(len(compliant)) / float64(len(controls)) * 100)

	if detailed {
		return score, map[string]any{
			"compliance_score":  score,
			"executive_summary": "The document addresses " + strconv.Itoa(len(compliant)) + " of " + strconv.Itoa(len(controls)) + " controls.",
			"compliant_areas":   nonNil(compliant),
			"violations":        nonNil(violations),
			"recommendations":   nonNil(recommendations),
		}
	}
	return score, map[string]any{
		"compliance_score": score,
		"summary":          "Compliance score " + strconv.FormatFloat(score, 'f', 0, 64) + "%.",
		"key_issues":       nonNil(violations),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, acct *account) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "Expected a multipart form: " + err.Error()})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"file": []string{"No file was submitted."}})
		return
	}
	defer file.Close()
	if ct := header.Header.Get("Content-Type"); ct != "application/pdf" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"file": []string{"Only PDF documents are accepted."}})
		return
	}
	doc, err := io.ReadAll(file)
	if err != nil || len(doc) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"file": []string{"The submitted file is empty."}})
		return
	}

	framework, err := strconv.Atoi(r.FormValue("framework_id"))
	if _, known := frameworkTitles[framework]; err != nil || !known {
		writeJSON(w, http.StatusBadRequest, map[string]any{"framework_id": []string{"Invalid framework."}})
		return
	}
	detailed, err := strconv.ParseBool(r.FormValue("detailed"))
	if err != nil {
		detailed = true
	}

	score, report := analyse(doc, framework, detailed)
	rec := &record{
		ID:             uuid.NewString(),
		FrameworkID:    framework,
		AssessmentDate: time.Now().UTC().Format(time.RFC3339),
		Score:          score,
		Status:         statusFor(score),
		Report:         report,
	}

	s.mu.Lock()
	s.records[acct.ID] = append(s.records[acct.ID], rec)
	s.mu.Unlock()

	s.logger.Info("Audited document",
		"record_id", rec.ID,
		"framework_id", framework,
		"detailed", detailed,
		"score", score)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "success",
		"record_id":         rec.ID,
		"calculated_status": rec.Status,
		"framework_title":   frameworkTitles[framework],
		"assessment_date":   rec.AssessmentDate,
		"audit_result":      report,
	})
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request, acct *account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]map[string]any, 0, len(s.records[acct.ID]))
	for _, rec := range s.records[acct.ID] {
		records = append(records, rec.summary())
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request, acct *account) {
	id := r.PathValue("id")

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records[acct.ID] {
		if rec.ID != id {
			continue
		}
		data := rec.summary()
		data["report_data"] = rec.Report
		writeJSON(w, http.StatusOK, map[string]any{"data": data})
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not found."})
}
