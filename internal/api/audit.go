package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BASIL960/FinalYearProject/internal/domain"
	"github.com/BASIL960/FinalYearProject/internal/driver"
	"github.com/BASIL960/FinalYearProject/internal/transport"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// ErrEmptyRecordID rejects GetRecord("") before any I/O
var ErrEmptyRecordID = errors.New("record id is required")

// SubmitAudit uploads a PDF for analysis and returns the resulting record.
// Nothing is stored locally, whether the call succeeds or not.
func (c *Client) SubmitAudit(ctx context.Context, sub domain.AuditSubmission) (*domain.AuditRecordDetail, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	body, contentType, err := encodeSubmission(sub)
	if err != nil {
		return nil, err
	}

	resp, err := c.requester.Send(ctx, PathSubmit, transport.Options{
		Method:         http.MethodPost,
		Body:           body,
		ContentType:    contentType,
		RequireSession: true,
	})
	if err != nil {
		return nil, err
	}
	if !driver.IsSuccess(resp) {
		return nil, responseError(resp)
	}

	data, err := driver.ReadBody(resp)
	if err != nil {
		return nil, err
	}
	detail, err := domain.ParseRecordDetail(data)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Audit submitted",
		"record_id", detail.ID,
		"framework", sub.Framework.String(),
		"report_kind", detail.Report.Kind().String())
	return detail, nil
}

// encodeSubmission builds the multipart body. The boundary in the returned
// content type is the one the writer actually used.
func encodeSubmission(sub domain.AuditSubmission) ([]byte, string, error) {
	name := filepath.Base(sub.FileName)
	if sub.FileName == "" {
		name = "document.pdf"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(name)))
	h.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("creating file part: %w", err)
	}
	if _, err := part.Write(sub.File); err != nil {
		return nil, "", fmt.Errorf("writing file part: %w", err)
	}
	if err := mw.WriteField("framework_id", strconv.Itoa(int(sub.Framework))); err != nil {
		return nil, "", fmt.Errorf("writing framework_id: %w", err)
	}
	if err := mw.WriteField("detailed", strconv.FormatBool(sub.Detailed)); err != nil {
		return nil, "", fmt.Errorf("writing detailed: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// ListRecords returns the signed-in user's audit history
func (c *Client) ListRecords(ctx context.Context) ([]domain.AuditRecordSummary, error) {
	resp, err := c.requester.Send(ctx, PathRecords, transport.Options{RequireSession: true})
	if err != nil {
		return nil, err
	}
	if !driver.IsSuccess(resp) {
		return nil, responseError(resp)
	}

	var envelope struct {
		Records []json.RawMessage `json:"records"`
	}
	if err := driver.DecodeJSON(resp, &envelope); err != nil {
		return nil, err
	}

	records := make([]domain.AuditRecordSummary, 0, len(envelope.Records))
	for _, raw := range envelope.Records {
		detail, err := domain.ParseRecordDetail(raw)
		if err != nil {
			return nil, err
		}
		records = append(records, detail.AuditRecordSummary)
	}
	return records, nil
}

// GetRecord fetches one record by its opaque id
func (c *Client) GetRecord(ctx context.Context, id string) (*domain.AuditRecordDetail, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrEmptyRecordID
	}

	resp, err := c.requester.Send(ctx, PathRecord+url.PathEscape(id), transport.Options{RequireSession: true})
	if err != nil {
		return nil, err
	}
	if !driver.IsSuccess(resp) {
		return nil, responseError(resp)
	}

	data, err := driver.ReadBody(resp)
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Record json.RawMessage `json:"record"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decoding record envelope: %w", err)
	}
	switch {
	case present(envelope.Data):
		data = envelope.Data
	case present(envelope.Record):
		data = envelope.Record
	}
	return domain.ParseRecordDetail(data)
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
