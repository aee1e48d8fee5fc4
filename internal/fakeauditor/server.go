// ABOUTME: In-process fake of the compliance-auditing service's HTTP contract
// ABOUTME: Issues real HS256 JWTs and exposes knobs for expiry, rejection and slow refreshes

package fakeauditor

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Wire paths served by the fake
const (
	PathRegister = "/authentication/register/"
	PathLogin    = "/authentication/login/"
	PathRefresh  = "/authentication/refresh/"
	PathLogout   = "/authentication/logout/"
	PathSubmit   = "/auditor/match-compliance"
	PathRecords  = "/auditor/compliance-records/all"
	PathRecord   = "/auditor/compliance-records/"
)

type account struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	UserType  string `json:"user_type"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	JobTitle  string `json:"job_title,omitempty"`
	Company   string `json:"company_name,omitempty"`
	Industry  string `json:"industry,omitempty"`
	Location  string `json:"location,omitempty"`

	password string
}

// Server is a wire-compatible fake. The zero value is not usable; call New.
type Server struct {
	mu         sync.Mutex
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	generation int
	nextUserID int
	accounts   map[string]*account
	records    map[string][]*record
	blacklist  map[string]bool
	calls      map[string]int

	rejectRefresh      bool
	rotateRefresh      bool
	failLogout         bool
	alwaysUnauthorized bool
	refreshDelay       time.Duration

	mux    *http.ServeMux
	logger *slog.Logger
}

// New creates a fake with an empty user database
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(fmt.Sprintf("fakeauditor: generating signing key: %v", err))
	}

	s := &Server{
		secret:     secret,
		accessTTL:  5 * time.Minute,
		refreshTTL: 24 * time.Hour,
		nextUserID: 1,
		accounts:   make(map[string]*account),
		records:    make(map[string][]*record),
		blacklist:  make(map[string]bool),
		calls:      make(map[string]int),
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathRegister, s.handleRegister)
	mux.HandleFunc("POST "+PathLogin, s.handleLogin)
	mux.HandleFunc("POST "+PathRefresh, s.handleRefresh)
	mux.HandleFunc("POST "+PathLogout, s.authenticated(s.handleLogout))
	mux.HandleFunc("POST "+PathSubmit, s.authenticated(s.handleSubmit))
	mux.HandleFunc("GET "+PathRecords, s.authenticated(s.handleListRecords))
	mux.HandleFunc("GET "+PathRecord+"{id}", s.authenticated(s.handleGetRecord))
	s.mux = mux
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.calls[r.URL.Path]++
	s.mu.Unlock()
	s.mux.ServeHTTP(w, r)
}

// Calls returns how many requests hit path
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// RefreshCalls returns how many refresh requests were received
func (s *Server) RefreshCalls() int {
	return s.Calls(PathRefresh)
}

// SetAccessTTL changes the lifetime of tokens issued from now on
func (s *Server) SetAccessTTL(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTTL = d
}

// SetRejectRefresh makes every refresh answer 401
func (s *Server) SetRejectRefresh(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectRefresh = v
}

// SetRotateRefresh makes refresh return a new refresh token and blacklist the old one
func (s *Server) SetRotateRefresh(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotateRefresh = v
}

// SetRefreshDelay holds every refresh response for d
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshDelay = d
}

// SetFailLogout makes logout answer 500
func (s *Server) SetFailLogout(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLogout = v
}

// SetAlwaysUnauthorized makes every authenticated endpoint answer 401
func (s *Server) SetAlwaysUnauthorized(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alwaysUnauthorized = v
}

// ExpireAccessTokens invalidates every access token issued so far.
// Refresh tokens stay valid.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
}

// SeedUser creates an individual account and returns a fresh token pair
func (s *Server) SeedUser(username, password string) (access, refresh string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.createAccount(registration{
		Username: username,
		Email:    username + "@example.com",
		Password: password,
		UserType: "INDIVIDUAL",
	})
	return s.issuePair(acct.ID)
}

// SeedRecord stores a raw record for username and returns its id. Fields
// are served verbatim under report_data.
func (s *Server) SeedRecord(username string, framework int, report map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[username]
	if !ok {
		return "", fmt.Errorf("unknown user %q", username)
	}
	rec := &record{
		ID:             uuid.NewString(),
		FrameworkID:    framework,
		AssessmentDate: time.Now().UTC().Format(time.RFC3339),
		Report:         report,
	}
	if score, ok := report["compliance_score"].(float64); ok {
		rec.Score = score
	}
	rec.Status = statusFor(rec.Score)
	s.records[acct.ID] = append(s.records[acct.ID], rec)
	return rec.ID, nil
}

type registration struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	UserType  string `json:"user_type"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	JobTitle  string `json:"job_title"`
	Company   string `json:"company_name"`
	Industry  string `json:"industry"`
	Location  string `json:"location"`
}

// createAccount must be called with s.mu held
func (s *Server) createAccount(reg registration) *account {
	acct := &account{
		ID:        strconv.Itoa(s.nextUserID),
		Username:  reg.Username,
		Email:     reg.Email,
		UserType:  reg.UserType,
		FirstName: reg.FirstName,
		LastName:  reg.LastName,
		JobTitle:  reg.JobTitle,
		Company:   reg.Company,
		Industry:  reg.Industry,
		Location:  reg.Location,
		password:  reg.Password,
	}
	s.nextUserID++
	s.accounts[acct.Username] = acct
	return acct
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "JSON parse error"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fieldErrors := map[string][]string{}
	if reg.Username == "" {
		fieldErrors["username"] = []string{"This field is required."}
	} else if _, exists := s.accounts[reg.Username]; exists {
		fieldErrors["username"] = []string{"A user with that username already exists."}
	}
	if reg.Email == "" {
		fieldErrors["email"] = []string{"This field is required."}
	} else if !strings.Contains(reg.Email, "@") {
		fieldErrors["email"] = []string{"Enter a valid email address."}
	}
	if len(reg.Password) < 8 {
		fieldErrors["password"] = []string{"This password is too short. It must contain at least 8 characters."}
	}
	switch reg.UserType {
	case "INDIVIDUAL", "ORGANIZATION":
	default:
		fieldErrors["user_type"] = []string{fmt.Sprintf("%q is not a valid choice.", reg.UserType)}
	}
	if len(fieldErrors) > 0 {
		writeJSON(w, http.StatusBadRequest, fieldErrors)
		return
	}

	acct := s.createAccount(reg)
	s.writeSession(w, http.StatusCreated, acct)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "JSON parse error"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[body.Username]
	if !ok || acct.password != body.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"detail": "No active account found with the given credentials",
		})
		return
	}
	s.writeSession(w, http.StatusOK, acct)
}

// writeSession must be called with s.mu held
func (s *Server) writeSession(w http.ResponseWriter, status int, acct *account) {
	access, refresh, err := s.issuePair(acct.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": err.Error()})
		return
	}
	writeJSON(w, status, map[string]any{
		"user":   acct,
		"tokens": map[string]string{"access": access, "refresh": refresh},
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "JSON parse error"})
		return
	}

	s.mu.Lock()
	delay := s.refreshDelay
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rejectRefresh {
		writeTokenInvalid(w)
		return
	}
	c, err := s.verify(body.Refresh, tokenTypeRefresh)
	if err != nil {
		s.logger.Debug("Rejected refresh token", "error", err)
		writeTokenInvalid(w)
		return
	}

	access, _, err := s.issue(c.Subject, tokenTypeAccess, s.accessTTL)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": err.Error()})
		return
	}
	resp := map[string]string{"access": access}
	if s.rotateRefresh {
		refresh, _, err := s.issue(c.Subject, tokenTypeRefresh, s.refreshTTL)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": err.Error()})
			return
		}
		s.blacklist[c.ID] = true
		resp["refresh"] = refresh
	}
	writeJSON(w, http.StatusOK, resp)
}

type authedHandler func(w http.ResponseWriter, r *http.Request, acct *account)

func (s *Server) authenticated(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")

		s.mu.Lock()
		var acct *account
		if ok && !s.alwaysUnauthorized {
			if c, err := s.verify(raw, tokenTypeAccess); err == nil {
				acct = s.accountByID(c.Subject)
			}
		}
		s.mu.Unlock()

		if acct == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"detail": "Given token not valid for any token type",
				"code":   "token_not_valid",
			})
			return
		}
		next(w, r, acct)
	}
}

// accountByID must be called with s.mu held
func (s *Server) accountByID(id string) *account {
	for _, acct := range s.accounts {
		if acct.ID == id {
			return acct
		}
	}
	return nil
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, acct *account) {
	var body struct {
		Refresh string `json:"refresh"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failLogout {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": "logout is unavailable"})
		return
	}
	c, err := s.verify(body.Refresh, tokenTypeRefresh)
	if err != nil || c.Subject != acct.ID {
		writeTokenInvalid(w)
		return
	}
	s.blacklist[c.ID] = true
	w.WriteHeader(http.StatusResetContent)
}

func writeTokenInvalid(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, map[string]any{
		"detail": "Token is invalid or expired",
		"code":   "token_not_valid",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
