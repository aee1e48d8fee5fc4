package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/BASIL960/FinalYearProject/internal/apierr"
	"github.com/BASIL960/FinalYearProject/internal/domain"
	"github.com/BASIL960/FinalYearProject/internal/driver"
	"github.com/BASIL960/FinalYearProject/internal/tokenstore"
	"github.com/BASIL960/FinalYearProject/internal/transport"
)

// RegisterRequest carries the sign-up form. Only the fields of the chosen
// user type are sent.
type RegisterRequest struct {
	Username string
	Email    string
	Password string
	UserType domain.UserType

	FirstName string
	LastName  string
	JobTitle  string

	CompanyName string
	Industry    string
	Location    string
}

func (r RegisterRequest) body() (map[string]string, error) {
	userType, err := domain.ParseUserType(string(r.UserType))
	if err != nil {
		return nil, err
	}
	body := map[string]string{
		"username":  r.Username,
		"email":     r.Email,
		"password":  r.Password,
		"user_type": string(userType),
	}
	switch userType {
	case domain.UserTypeIndividual:
		body["first_name"] = r.FirstName
		body["last_name"] = r.LastName
		body["job_title"] = r.JobTitle
	case domain.UserTypeOrganization:
		body["company_name"] = r.CompanyName
		body["industry"] = r.Industry
		body["location"] = r.Location
	}
	return body, nil
}

type authResponse struct {
	User   domain.UserProfile `json:"user"`
	Tokens domain.Credentials `json:"tokens"`
}

// Register creates an account and persists the new session
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*domain.Session, error) {
	body, err := req.body()
	if err != nil {
		return nil, err
	}
	return c.authenticate(ctx, PathRegister, body, "Registration failed. Please try again.")
}

// Login exchanges a username and password for a persisted session
func (c *Client) Login(ctx context.Context, username, password string) (*domain.Session, error) {
	body := map[string]string{"username": username, "password": password}
	return c.authenticate(ctx, PathLogin, body, "Login failed. Please check your credentials.")
}

func (c *Client) authenticate(ctx context.Context, path string, body any, fallback string) (*domain.Session, error) {
	resp, err := c.publicCall(ctx, path, body)
	if err != nil {
		return nil, err
	}

	if !driver.IsSuccess(resp) {
		payload := driver.DecodeError(resp)
		switch resp.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized:
			return nil, &apierr.ValidationError{StatusCode: resp.StatusCode, Payload: payload, Fallback: fallback}
		default:
			return nil, &apierr.ServerError{StatusCode: resp.StatusCode, Payload: payload}
		}
	}

	var out authResponse
	if err := driver.DecodeJSON(resp, &out); err != nil {
		return nil, err
	}
	s := &domain.Session{Credentials: out.Tokens, User: out.User}
	if err := tokenstore.SaveSession(ctx, c.store, *s); err != nil {
		return nil, fmt.Errorf("persisting session: %w", err)
	}

	c.logger.Info("Session established",
		"username", s.User.Username,
		"user_type", s.User.UserType)
	return s, nil
}

// Logout tells the server to blacklist the refresh token, then clears the
// local session whatever the outcome. Only a failure to clear local state is
// returned.
func (c *Client) Logout(ctx context.Context) error {
	creds, err := c.store.Read(ctx)
	if err != nil && !errors.Is(err, tokenstore.ErrNotFound) {
		c.logger.Warn("Could not read session before logout", "error", err)
	}

	if !creds.IsEmpty() {
		c.notifyLogout(ctx, creds.RefreshToken)
	}

	// Local logout must not depend on the caller's deadline
	if err := c.store.Clear(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("clearing local session: %w", err)
	}
	c.logger.Info("Logged out")
	return nil
}

func (c *Client) notifyLogout(ctx context.Context, refresh string) {
	body, err := driver.JSONBody(map[string]string{"refresh": refresh})
	if err != nil {
		c.logger.Warn("Skipping server logout", "error", err)
		return
	}
	resp, err := c.requester.Send(ctx, PathLogout, transport.Options{
		Method:      http.MethodPost,
		Body:        body,
		ContentType: "application/json",
	})
	if err != nil {
		c.logger.Warn("Server logout failed, clearing local session anyway", "error", err)
		return
	}
	if !driver.IsSuccess(resp) {
		c.logger.Warn("Server logout rejected, clearing local session anyway",
			"error", responseError(resp))
		return
	}
	resp.Body.Close()
}
