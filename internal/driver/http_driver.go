// ABOUTME: Raw HTTP driver for the compliance-auditing service
// ABOUTME: Performs exactly one exchange per call and classifies transport failures

package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/BASIL960/FinalYearProject/internal/apierr"
)

// HeaderRequestID carries a per-dispatch correlation id
const HeaderRequestID = "X-Request-ID"

// maxErrorBody caps how much of an error response is buffered
const maxErrorBody = 1 << 20

// Request describes a single exchange. Body is a byte slice so the same
// request can be dispatched again after a session renewal.
type Request struct {
	Method      string
	Path        string
	Body        []byte
	ContentType string
	Header      http.Header
}

// Driver sends requests to one base URL
type Driver struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
}

// NewDriver creates a driver with its own http.Client bounded by timeout
func NewDriver(baseURL string, timeout time.Duration, userAgent string, logger *slog.Logger) *Driver {
	return NewDriverWithClient(baseURL, &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   4,
		},
	}, userAgent, logger)
}

// NewDriverWithClient creates a driver around an existing client (for testing)
func NewDriverWithClient(baseURL string, client *http.Client, userAgent string, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Driver{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		userAgent:  userAgent,
		logger:     logger,
	}
}

// BaseURL returns the service root without a trailing slash
func (d *Driver) BaseURL() string {
	return d.baseURL
}

// Do performs one HTTP exchange. A returned response is always non-nil when
// err is nil, whatever its status. Failures with no response are reported as
// *apierr.TimeoutError or *apierr.NetworkError.
func (d *Driver) Do(ctx context.Context, r Request) (*http.Response, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	op := method + " " + r.Path

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+r.Path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request %s: %w", op, err)
	}

	for k, values := range r.Header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}
	req.Header.Set("Accept", "application/json")
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	requestID := uuid.NewString()
	req.Header.Set(HeaderRequestID, requestID)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	if err != nil {
		classified := classify(op, err)
		d.logger.Warn("Request failed without a response",
			"op", op,
			"request_id", requestID,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
		return nil, classified
	}

	d.logger.Debug("Request completed",
		"op", op,
		"request_id", requestID,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())
	return resp, nil
}

func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &apierr.TimeoutError{Op: op, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &apierr.TimeoutError{Op: op, Err: err}
	}
	return &apierr.NetworkError{Op: op, Err: err}
}

// IsSuccess reports whether the status is 2xx
func IsSuccess(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// DecodeJSON decodes a response body into v and closes it. An empty body
// leaves v untouched.
func DecodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ReadBody reads and closes the body
func ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}

// DecodeError reads an error response into a payload and closes the body.
// Unreadable bodies yield an empty payload.
func DecodeError(resp *http.Response) apierr.Payload {
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return apierr.Payload{}
	}
	return apierr.ParsePayload(data)
}

// JSONBody marshals v for use as a Request body
func JSONBody(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return data, nil
}
