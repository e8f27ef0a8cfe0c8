// File: internal/session/inspect.go
package session

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xkilldash9x/regress-cli/api/schemas"
)

// TokenExpiry is the expiry of a JWT found in the snapshot.
type TokenExpiry struct {
	// Source is "cookie:<name>" or "localStorage:<origin>:<name>".
	Source    string
	ExpiresAt time.Time
}

// Summary describes a snapshot's freshness.
type Summary struct {
	Cookies int
	Origins int
	// HasIndexedDB is true when the extended capture succeeded.
	HasIndexedDB bool
	// EarliestCookieExpiry is zero when every cookie is a session cookie.
	EarliestCookieExpiry time.Time
	ExpiredCookies       int
	Tokens               []TokenExpiry
}

// Stale reports whether any bearer token or persistent cookie has already expired at now.
func (s Summary) Stale(now time.Time) bool {
	if s.ExpiredCookies > 0 {
		return true
	}
	for _, tok := range s.Tokens {
		if !tok.ExpiresAt.After(now) {
			return true
		}
	}
	return false
}

// Inspect summarizes state without contacting the application. JWT-shaped
// values are decoded without signature verification to read their exp claim.
func Inspect(state *schemas.StorageState, now time.Time) Summary {
	sum := Summary{
		Cookies:      len(state.Cookies),
		Origins:      len(state.Origins),
		HasIndexedDB: state.HasIndexedDB(),
	}

	for _, c := range state.Cookies {
		if c.Expires > 0 {
			exp := time.Unix(int64(c.Expires), 0)
			if sum.EarliestCookieExpiry.IsZero() || exp.Before(sum.EarliestCookieExpiry) {
				sum.EarliestCookieExpiry = exp
			}
			if !exp.After(now) {
				sum.ExpiredCookies++
			}
		}
		if exp, ok := tokenExpiry(c.Value); ok {
			sum.Tokens = append(sum.Tokens, TokenExpiry{Source: "cookie:" + c.Name, ExpiresAt: exp})
		}
	}

	for _, o := range state.Origins {
		for _, item := range o.LocalStorage {
			if exp, ok := tokenExpiry(item.Value); ok {
				sum.Tokens = append(sum.Tokens, TokenExpiry{
					Source:    "localStorage:" + o.Origin + ":" + item.Name,
					ExpiresAt: exp,
				})
			}
		}
	}
	return sum
}

func tokenExpiry(value string) (time.Time, bool) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "Bearer ")
	if !strings.HasPrefix(value, "eyJ") || strings.Count(value, ".") != 2 {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(value, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
