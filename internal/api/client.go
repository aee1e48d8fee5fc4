// ABOUTME: Typed endpoint operations of the compliance-auditing service
// ABOUTME: Register and login go straight to the driver; everything else goes through the authenticated requester

package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BASIL960/FinalYearProject/internal/apierr"
	"github.com/BASIL960/FinalYearProject/internal/domain"
	"github.com/BASIL960/FinalYearProject/internal/driver"
	"github.com/BASIL960/FinalYearProject/internal/metrics"
	"github.com/BASIL960/FinalYearProject/internal/session"
	"github.com/BASIL960/FinalYearProject/internal/tokenstore"
	"github.com/BASIL960/FinalYearProject/internal/transport"
)

// Endpoint paths
const (
	PathRegister = "/authentication/register/"
	PathLogin    = "/authentication/login/"
	PathLogout   = "/authentication/logout/"
	PathSubmit   = "/auditor/match-compliance"
	PathRecords  = "/auditor/compliance-records/all"
	PathRecord   = "/auditor/compliance-records/"
)

// Client exposes the service's operations over one token store
type Client struct {
	store     tokenstore.Store
	driver    *driver.Driver
	refresher *session.Refresher
	requester *transport.Requester
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewClient wires the refresher and requester around store. m may be nil.
func NewClient(store tokenstore.Store, drv *driver.Driver, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	refresher := session.NewRefresher(store, drv, m, logger)
	return &Client{
		store:     store,
		driver:    drv,
		refresher: refresher,
		requester: transport.NewRequester(store, drv, refresher, m, logger),
		metrics:   m,
		logger:    logger,
	}
}

// Session returns the persisted session, or nil for a guest
func (c *Client) Session(ctx context.Context) (*domain.Session, error) {
	s, err := tokenstore.LoadSession(ctx, c.store)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return s, nil
}

// RefreshSession renews the access token on demand. It reports false, with
// the store cleared, when the session cannot be renewed.
func (c *Client) RefreshSession(ctx context.Context) (bool, error) {
	creds, err := c.store.Read(ctx)
	if err != nil && !errors.Is(err, tokenstore.ErrNotFound) {
		return false, fmt.Errorf("reading session: %w", err)
	}
	return c.refresher.Refresh(ctx, creds.AccessToken)
}

// Request performs an arbitrary authenticated call with the same renewal
// policy as the typed operations. The caller owns the response body.
func (c *Client) Request(ctx context.Context, path string, opts transport.Options) (*http.Response, error) {
	return c.requester.Send(ctx, path, opts)
}

// publicCall sends an unauthenticated JSON request
func (c *Client) publicCall(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := driver.JSONBody(body)
	if err != nil {
		return nil, err
	}
	resp, err := c.driver.Do(ctx, driver.Request{
		Method:      http.MethodPost,
		Path:        path,
		Body:        data,
		ContentType: "application/json",
	})
	if err != nil {
		c.metrics.RecordRequest(http.MethodPost, 0)
		return nil, err
	}
	c.metrics.RecordRequest(http.MethodPost, resp.StatusCode)
	return resp, nil
}

// responseError maps a non-2xx response of an authenticated call. The body
// is consumed.
func responseError(resp *http.Response) error {
	payload := driver.DecodeError(resp)
	if resp.StatusCode == http.StatusUnauthorized {
		reason := apierr.ReasonRefreshFailed
		if transport.Retried(resp) {
			reason = apierr.ReasonRetryRejected
		}
		return &apierr.AuthenticationError{Reason: reason, Payload: payload}
	}
	return &apierr.ServerError{StatusCode: resp.StatusCode, Payload: payload}
}
