// Package domain holds the client-side data model of the compliance service
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ID is an opaque server-assigned identifier. The server emits either JSON
// numbers or strings; both decode into the same textual form.
type ID string

// UnmarshalJSON accepts string, number and null identifiers
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the identifier text
func (id ID) String() string {
	return string(id)
}

// UserType tags a profile as an individual or an organization account
type UserType string

const (
	UserTypeIndividual   UserType = "INDIVIDUAL"
	UserTypeOrganization UserType = "ORGANIZATION"
)

// ParseUserType accepts any casing of "individual" or "organization"
func ParseUserType(s string) (UserType, error) {
	switch UserType(strings.ToUpper(strings.TrimSpace(s))) {
	case UserTypeIndividual:
		return UserTypeIndividual, nil
	case UserTypeOrganization:
		return UserTypeOrganization, nil
	default:
		return "", fmt.Errorf("invalid user type %q: must be individual or organization", s)
	}
}

// UnmarshalJSON normalizes the casing the server used
func (u *UserType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*u = UserType(strings.ToUpper(s))
	return nil
}

// UserProfile is the cached identity of the signed-in account
type UserProfile struct {
	ID       ID       `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	UserType UserType `json:"user_type"`

	// Individual accounts
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	JobTitle  string `json:"job_title,omitempty"`

	// Organization accounts
	CompanyName string `json:"company_name,omitempty"`
	Industry    string `json:"industry,omitempty"`
	Location    string `json:"location,omitempty"`
}

// DisplayName picks the most human-friendly name available
func (p UserProfile) DisplayName() string {
	switch {
	case p.UserType == UserTypeOrganization && p.CompanyName != "":
		return p.CompanyName
	case p.FirstName != "" || p.LastName != "":
		return strings.TrimSpace(p.FirstName + " " + p.LastName)
	default:
		return p.Username
	}
}

// Credentials is the bearer pair issued by the server. Both values are
// opaque: the client never parses them.
type Credentials struct {
	AccessToken  string `json:"access"`
	RefreshToken string `json:"refresh"`
}

// IsEmpty reports whether neither token is present
func (c Credentials) IsEmpty() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// Session pairs credentials with the profile they belong to
type Session struct {
	Credentials Credentials
	User        UserProfile
}
