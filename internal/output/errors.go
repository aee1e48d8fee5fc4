package output

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/BASIL960/FinalYearProject/internal/apierr"
	"github.com/BASIL960/FinalYearProject/internal/domain"
)

// Exit code constants
const (
	ExitSuccess     = 0
	ExitGeneral     = 1
	ExitUsageError  = 2
	ExitAuthError   = 3
	ExitConfigError = 4
	ExitTimeout     = 5
	ExitNetwork     = 6
	ExitServerError = 7
)

// CLIError is a structured error with user-facing context
type CLIError struct {
	Summary    string
	Detail     string
	Suggestion string
	ExitCode   int
}

// Error implements the error interface, returning the summary
func (e *CLIError) Error() string {
	return e.Summary
}

// FromError maps an operation error onto a CLIError with an exit code.
// A CLIError is returned unchanged.
func FromError(err error) *CLIError {
	if err == nil {
		return nil
	}

	var (
		cliErr  *CLIError
		valErr  *apierr.ValidationError
		authErr *apierr.AuthenticationError
		toErr   *apierr.TimeoutError
		netErr  *apierr.NetworkError
		srvErr  *apierr.ServerError
	)
	switch {
	case errors.As(err, &cliErr):
		return cliErr
	case errors.As(err, &valErr):
		return &CLIError{
			Summary:  valErr.Headline(),
			Detail:   fieldDetail(valErr.Fields()),
			ExitCode: ExitUsageError,
		}
	case errors.As(err, &authErr):
		e := &CLIError{
			Summary:    apierr.Message(err),
			Suggestion: "Run 'compliancectl login' to start a new session",
			ExitCode:   ExitAuthError,
		}
		if authErr.Reason == apierr.ReasonNoSession {
			e.Summary = "You are not logged in."
		} else {
			e.Detail = authErr.Payload.Headline()
		}
		return e
	case errors.As(err, &toErr):
		return &CLIError{
			Summary:    apierr.Message(err),
			Detail:     causeOf(toErr.Err),
			Suggestion: "Raise --timeout or check the service is reachable",
			ExitCode:   ExitTimeout,
		}
	case errors.As(err, &netErr):
		return &CLIError{
			Summary:    apierr.Message(err),
			Detail:     causeOf(netErr.Err),
			Suggestion: "Check --base-url and your network connection",
			ExitCode:   ExitNetwork,
		}
	case errors.As(err, &srvErr):
		return &CLIError{
			Summary:  apierr.Message(err),
			Detail:   fmt.Sprintf("HTTP %d", srvErr.StatusCode),
			ExitCode: ExitServerError,
		}
	case errors.Is(err, domain.ErrEmptyDocument), errors.Is(err, domain.ErrInvalidFramework):
		return &CLIError{Summary: err.Error(), ExitCode: ExitUsageError}
	default:
		return &CLIError{Summary: err.Error(), ExitCode: ExitGeneral}
	}
}

func causeOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func fieldDetail(fields map[string][]string) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(fields[k], " ")))
	}
	return strings.Join(parts, "; ")
}

// FormatError prints a structured error message to stderr
func (p *Printer) FormatError(e *CLIError) {
	if p.useColors {
		color.New(color.FgRed, color.Bold).Fprintf(p.err, "Error: %s\n", e.Summary)
		if e.Detail != "" {
			fmt.Fprintf(p.err, "  Cause: %s\n", e.Detail)
		}
		if e.Suggestion != "" {
			color.New(color.FgCyan).Fprintf(p.err, "  Suggestion: %s\n", e.Suggestion)
		}
		return
	}
	fmt.Fprintf(p.err, "[ERROR] %s\n", e.Summary)
	if e.Detail != "" {
		fmt.Fprintf(p.err, "  Cause: %s\n", e.Detail)
	}
	if e.Suggestion != "" {
		fmt.Fprintf(p.err, "  Suggestion: %s\n", e.Suggestion)
	}
}
