package fakeauditor

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postJSON(t *testing.T, url, bearer string, body any) (*http.Response, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func get(t *testing.T, url, bearer string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+bearer)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestServer_RegisterValidation(t *testing.T) {
	fake := New(nil)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	resp, body := postJSON(t, srv.URL+PathRegister, "", map[string]string{
		"username": "", "email": "bad", "password": "short", "user_type": "individual",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "username")
	assert.Contains(t, body, "email")
	assert.Contains(t, body, "password")
	assert.Contains(t, body, "user_type")
}

func TestServer_RefreshRotationBlacklistsOldToken(t *testing.T) {
	fake := New(nil)
	fake.SetRotateRefresh(true)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	_, refresh, err := fake.SeedUser("auditor", "password123")
	require.NoError(t, err)

	resp, body := postJSON(t, srv.URL+PathRefresh, "", map[string]string{"refresh": refresh})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["access"])
	assert.NotEmpty(t, body["refresh"])

	resp, _ = postJSON(t, srv.URL+PathRefresh, "", map[string]string{"refresh": refresh})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "a rotated refresh token is single-use")
	assert.Equal(t, 2, fake.RefreshCalls())
}

func TestServer_ExpireAccessTokens(t *testing.T) {
	fake := New(nil)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	access, refresh, err := fake.SeedUser("auditor", "password123")
	require.NoError(t, err)

	resp, _ := get(t, srv.URL+PathRecords, access)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	fake.ExpireAccessTokens()
	resp, _ = get(t, srv.URL+PathRecords, access)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := postJSON(t, srv.URL+PathRefresh, "", map[string]string{"refresh": refresh})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = get(t, srv.URL+PathRecords, body["access"].(string))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_SubmitAndFetch(t *testing.T) {
	fake := New(nil)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	access, _, err := fake.SeedUser("auditor", "password123")
	require.NoError(t, err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="file"; filename="policy.pdf"`},
		"Content-Type":        {"application/pdf"},
	})
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.4 data classification and backup policy"))
	require.NoError(t, mw.WriteField("framework_id", "2"))
	require.NoError(t, mw.WriteField("detailed", "true"))
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+PathSubmit, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+access)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var submitted map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	assert.Equal(t, "PARTIAL", submitted["calculated_status"])
	id := submitted["record_id"].(string)

	resp, body := get(t, srv.URL+PathRecord+id, access)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, id, data["id"])
	assert.Equal(t, 50.0, data["score"])

	resp, body = get(t, srv.URL+PathRecords, access)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["records"], 1)
}
