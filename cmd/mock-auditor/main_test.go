package main

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BASIL960/FinalYearProject/internal/fakeauditor"
)

func TestNewServer_HealthAndPassthrough(t *testing.T) {
	fake := fakeauditor.New(slog.Default())
	_, _, err := fake.SeedUser("auditor", "password123")
	require.NoError(t, err)
	e := newServer(fake, options{}, slog.Default())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, fakeauditor.PathLogin,
		strings.NewReader(`{"username":"auditor","password":"password123"}`))
	req.Header.Set("Content-Type", "application/json")
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"access"`)
	assert.Equal(t, 1, fake.Calls(fakeauditor.PathLogin))
}

func TestNewServer_RateLimit(t *testing.T) {
	e := newServer(fakeauditor.New(slog.Default()), options{rateLimit: 1}, slog.Default())

	codes := make([]int, 0, 3)
	for range 3 {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Contains(t, codes[1:], http.StatusTooManyRequests)
}
