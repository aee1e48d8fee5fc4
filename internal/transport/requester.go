// ABOUTME: Authenticated request wrapper with one transparent session renewal per call
// ABOUTME: A 401 triggers a coalesced refresh and at most one retry; network failures are never retried

package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/BASIL960/FinalYearProject/internal/apierr"
	"github.com/BASIL960/FinalYearProject/internal/domain"
	"github.com/BASIL960/FinalYearProject/internal/driver"
	"github.com/BASIL960/FinalYearProject/internal/metrics"
	"github.com/BASIL960/FinalYearProject/internal/tokenstore"
)

const tracerName = "github.com/BASIL960/FinalYearProject/internal/transport"

// Renewer renews the session after failedAccess was rejected
type Renewer interface {
	Refresh(ctx context.Context, failedAccess string) (bool, error)
}

// Options describes one logical request
type Options struct {
	Method      string
	Body        []byte
	ContentType string
	Header      http.Header

	// RequireSession fails fast with an AuthenticationError when the store
	// holds no tokens, without touching the network.
	RequireSession bool
}

// Requester sends requests with the stored bearer token
type Requester struct {
	store   tokenstore.Store
	driver  *driver.Driver
	renewer Renewer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRequester creates a requester. m may be nil.
func NewRequester(store tokenstore.Store, drv *driver.Driver, renewer Renewer, m *metrics.Metrics, logger *slog.Logger) *Requester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Requester{
		store:   store,
		driver:  drv,
		renewer: renewer,
		metrics: m,
		logger:  logger,
	}
}

// Send performs one logical request. On a 401 it asks the renewer for a new
// session and, if one was obtained, dispatches exactly once more. The
// returned response is the original 401 when renewal was not possible, and
// the retry's response otherwise. A retry that is still rejected clears the
// store. At most two dispatches happen per call.
func (r *Requester) Send(ctx context.Context, path string, opts Options) (*http.Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "transport.Send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		))
	defer span.End()

	creds, err := r.readCredentials(ctx)
	if err != nil {
		return nil, spanError(span, err)
	}
	if opts.RequireSession && creds.IsEmpty() {
		return nil, spanError(span, &apierr.AuthenticationError{Reason: apierr.ReasonNoSession})
	}

	resp, err := r.dispatch(ctx, path, method, opts, creds.AccessToken)
	if err != nil {
		return nil, spanError(span, err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
		return resp, nil
	}

	// Keep the 401 body readable for the caller if renewal does not help
	resp, err = buffer(resp)
	if err != nil {
		return nil, spanError(span, err)
	}

	renewed, err := r.renewer.Refresh(ctx, creds.AccessToken)
	if err != nil {
		return nil, spanError(span, err)
	}
	if !renewed {
		r.logger.Info("Session could not be renewed", "path", path)
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
		return resp, nil
	}

	renewedCreds, err := r.readCredentials(ctx)
	if err != nil {
		return nil, spanError(span, err)
	}

	r.metrics.RecordRetry()
	span.SetAttributes(attribute.Bool("transport.retried", true))
	retry, err := r.dispatch(context.WithValue(ctx, retryKey{}, true), path, method, opts, renewedCreds.AccessToken)
	if err != nil {
		return nil, spanError(span, err)
	}
	if retry.StatusCode == http.StatusUnauthorized {
		r.logger.Warn("Request rejected after renewal, clearing session", "path", path)
		if err := r.store.Clear(ctx); err != nil {
			r.logger.Error("Failed to clear session", "error", err)
		}
	}
	span.SetAttributes(attribute.Int("http.response.status_code", retry.StatusCode))
	return retry, nil
}

type retryKey struct{}

// Retried reports whether resp answers the post-renewal retry rather than
// the first dispatch.
func Retried(resp *http.Response) bool {
	if resp == nil || resp.Request == nil {
		return false
	}
	v, _ := resp.Request.Context().Value(retryKey{}).(bool)
	return v
}

func (r *Requester) readCredentials(ctx context.Context) (domain.Credentials, error) {
	creds, err := r.store.Read(ctx)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return domain.Credentials{}, nil
	}
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("reading session: %w", err)
	}
	return creds, nil
}

func (r *Requester) dispatch(ctx context.Context, path, method string, opts Options, access string) (*http.Response, error) {
	header := opts.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if access != "" {
		header.Set("Authorization", "Bearer "+access)
	}

	resp, err := r.driver.Do(ctx, driver.Request{
		Method:      method,
		Path:        path,
		Body:        opts.Body,
		ContentType: opts.ContentType,
		Header:      header,
	})
	if err != nil {
		r.metrics.RecordRequest(method, 0)
		return nil, err
	}
	r.metrics.RecordRequest(method, resp.StatusCode)
	return resp, nil
}

func buffer(resp *http.Response) (*http.Response, error) {
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, &apierr.NetworkError{Op: "reading response", Err: err}
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return resp, nil
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
