// ABOUTME: Session renewal with single-flight coalescing of concurrent refreshes
// ABOUTME: Exchanges the stored refresh token for a new access token at most once per expiry

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/BASIL960/FinalYearProject/internal/apierr"
	"github.com/BASIL960/FinalYearProject/internal/domain"
	"github.com/BASIL960/FinalYearProject/internal/driver"
	"github.com/BASIL960/FinalYearProject/internal/metrics"
	"github.com/BASIL960/FinalYearProject/internal/tokenstore"
)

const (
	// RefreshPath is the renewal endpoint
	RefreshPath = "/authentication/refresh/"

	tracerName = "github.com/BASIL960/FinalYearProject/internal/session"
	refreshKey = "session_refresh"
)

// Refresher renews the access token. It is safe for concurrent use; callers
// that ask while a renewal is in flight share its outcome.
type Refresher struct {
	store        tokenstore.Store
	driver       *driver.Driver
	metrics      *metrics.Metrics
	refreshGroup singleflight.Group
	logger       *slog.Logger
}

// NewRefresher creates a refresher. m may be nil.
func NewRefresher(store tokenstore.Store, drv *driver.Driver, m *metrics.Metrics, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		store:   store,
		driver:  drv,
		metrics: m,
		logger:  logger,
	}
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Refresh renews the session after failedAccess was rejected. It reports
// true when a usable access token is now stored.
//
// When the stored access token already differs from failedAccess, another
// caller renewed in the meantime and no network call is made. A rejected
// refresh, or no refresh token at all, clears the store and returns false
// with a nil error. A refresh call that got no response leaves the store
// untouched and returns *apierr.NetworkError or *apierr.TimeoutError.
func (r *Refresher) Refresh(ctx context.Context, failedAccess string) (bool, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "session.Refresh")
	defer span.End()

	creds, err := r.store.Read(ctx)
	if err != nil && !errors.Is(err, tokenstore.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reading session failed")
		return false, fmt.Errorf("reading session: %w", err)
	}

	if alreadyRenewed(creds, failedAccess) {
		r.metrics.RecordRefresh(metrics.RefreshStale)
		span.SetAttributes(attribute.String("session.refresh.result", metrics.RefreshStale))
		return true, nil
	}

	if creds.RefreshToken == "" {
		r.metrics.RecordRefresh(metrics.RefreshNoToken)
		span.SetAttributes(attribute.String("session.refresh.result", metrics.RefreshNoToken))
		if err := r.store.Clear(ctx); err != nil {
			return false, fmt.Errorf("clearing session: %w", err)
		}
		return false, nil
	}

	var leader bool
	// The shared call must not die with whichever waiter started it
	flightCtx := context.WithoutCancel(ctx)
	ch := r.refreshGroup.DoChan(refreshKey, func() (any, error) {
		leader = true
		return r.redeem(flightCtx, failedAccess)
	})

	select {
	case res := <-ch:
		if !leader {
			r.metrics.RecordCoalesced()
			r.logger.Debug("Session refresh result shared from concurrent caller")
		}
		span.SetAttributes(attribute.Bool("session.refresh.shared", !leader))
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, "refresh failed")
			return false, res.Err
		}
		return res.Val.(bool), nil
	case <-ctx.Done():
		err := waitError(ctx.Err())
		span.RecordError(err)
		span.SetStatus(codes.Error, "gave up waiting for refresh")
		return false, err
	}
}

// redeem runs inside the single flight
func (r *Refresher) redeem(ctx context.Context, failedAccess string) (bool, error) {
	// Re-check in case a flight that just finished already renewed
	creds, err := r.store.Read(ctx)
	if err != nil && !errors.Is(err, tokenstore.ErrNotFound) {
		return false, fmt.Errorf("reading session: %w", err)
	}
	if alreadyRenewed(creds, failedAccess) {
		r.metrics.RecordRefresh(metrics.RefreshStale)
		return true, nil
	}
	if creds.RefreshToken == "" {
		r.metrics.RecordRefresh(metrics.RefreshNoToken)
		if err := r.store.Clear(ctx); err != nil {
			return false, fmt.Errorf("clearing session: %w", err)
		}
		return false, nil
	}

	body, err := driver.JSONBody(refreshRequest{Refresh: creds.RefreshToken})
	if err != nil {
		return false, err
	}

	r.logger.Info("Refreshing session",
		"refresh_token_prefix", tokenPrefix(creds.RefreshToken))

	start := time.Now()
	resp, err := r.driver.Do(ctx, driver.Request{
		Method:      "POST",
		Path:        RefreshPath,
		Body:        body,
		ContentType: "application/json",
	})
	r.metrics.RecordRefreshCall(time.Since(start).Seconds())
	if err != nil {
		r.metrics.RecordRequest("POST", 0)
		r.metrics.RecordRefresh(metrics.RefreshError)
		r.logger.Warn("Session refresh got no response, keeping stored session", "error", err)
		return false, err
	}
	r.metrics.RecordRequest("POST", resp.StatusCode)

	if !driver.IsSuccess(resp) {
		payload := driver.DecodeError(resp)
		r.logger.Warn("Session refresh rejected, clearing session",
			"status_code", resp.StatusCode,
			"detail", payload.Headline())
		return false, r.reject(ctx)
	}

	var tokens refreshResponse
	if err := driver.DecodeJSON(resp, &tokens); err != nil || tokens.Access == "" {
		r.logger.Error("Session refresh returned no access token, clearing session", "error", err)
		return false, r.reject(ctx)
	}

	renewed := domain.Credentials{AccessToken: tokens.Access, RefreshToken: tokens.Refresh}
	if renewed.RefreshToken == "" {
		renewed.RefreshToken = creds.RefreshToken
	}
	if err := r.store.Save(ctx, renewed); err != nil {
		r.metrics.RecordRefresh(metrics.RefreshError)
		return false, fmt.Errorf("saving renewed session: %w", err)
	}

	r.metrics.RecordRefresh(metrics.RefreshRenewed)
	r.logger.Info("Session refreshed",
		"access_token_prefix", tokenPrefix(renewed.AccessToken),
		"refresh_rotated", tokens.Refresh != "")
	return true, nil
}

func (r *Refresher) reject(ctx context.Context) error {
	r.metrics.RecordRefresh(metrics.RefreshRejected)
	if err := r.store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

func alreadyRenewed(creds domain.Credentials, failedAccess string) bool {
	return failedAccess != "" && creds.AccessToken != "" && creds.AccessToken != failedAccess
}

func waitError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &apierr.TimeoutError{Op: "POST " + RefreshPath, Err: err}
	}
	return &apierr.NetworkError{Op: "POST " + RefreshPath, Err: err}
}

func tokenPrefix(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
