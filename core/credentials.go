package core

import (
	"errors"
	"strconv"
	"strings"
)

// TenantID identifies a game server instance.
type TenantID int64

// AuthRecord is the tenant's view of a player's credentials.
type AuthRecord struct {
	Password   string `json:"password"`
	Privileges string `json:"privileges"`
	LastLogin  string `json:"last_login"`
}

// AuthRow is a player joined with its membership for one tenant.
type AuthRow struct {
	Password         string
	PasswordOverride *string // NULL when the tenant never set one
	LastLogin        string
	Privileges       string
}

var (
	// ErrNoMembership is returned when the player is not registered under the tenant.
	ErrNoMembership = errors.New("no membership for player in tenant")
	// ErrUnsupportedSchemaVersion is returned when the store carries a schema this build cannot serve.
	ErrUnsupportedSchemaVersion = errors.New("unsupported schema version")
)

// EffectivePassword picks the tenant override when one is set and non-empty,
// falling back to the player's global password.
func EffectivePassword(global string, override *string) string {
	if override != nil && *override != "" {
		return *override
	}
	return global
}

// Record resolves the override and returns what GetAuth answers with.
func (r AuthRow) Record() AuthRecord {
	return AuthRecord{
		Password:   EffectivePassword(r.Password, r.PasswordOverride),
		Privileges: r.Privileges,
		LastLogin:  r.LastLogin,
	}
}

// FormatLastLogin renders a login timestamp the way it is kept in the
// last_login text column: 15 significant digits, trailing zeros dropped, and
// a decimal point always present ("12345.0", "1700000000.12346", "1.0e+20").
func FormatLastLogin(ts float64) string {
	s := strconv.FormatFloat(ts, 'g', 15, 64)
	if strings.ContainsAny(s, ".IN") {
		return s
	}
	if i := strings.IndexByte(s, 'e'); i >= 0 {
		return s[:i] + ".0" + s[i:]
	}
	return s + ".0"
}
