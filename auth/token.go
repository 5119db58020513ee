/*
Package auth issues and verifies bearer tokens and owns account
registration. Downstream services only ever see a core.Principal.

TOKENS:
  HS256 JWT carrying {user_id, role} plus iat/exp. The signing method is
  pinned on parse, so a token re-signed with "none" or RS256 is refused.

PASSWORDS:
  bcrypt, cost configurable for tests.

REFERRALS:
  A new account registered with another user's referral code credits that
  user ReferralBonus inside the same unit of work as the account insert,
  keyed referral:<newUserID>.
*/
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ecoback/reward-engine/core"
)

// TokenIssuer signs and verifies HS256 bearer tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  core.Clock
}

func NewTokenIssuer(secret string, ttl time.Duration, clock core.Clock) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, clock: clock}, nil
}

type claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Issue returns a signed token for p and its expiry.
func (t *TokenIssuer) Issue(p core.Principal) (string, time.Time, error) {
	now := t.clock.Now()
	exp := now.Add(t.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: string(p.ID),
		Role:   string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(p.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses raw and returns the principal it names. Every failure
// wraps core.ErrUnauthorized.
func (t *TokenIssuer) Verify(raw string) (core.Principal, error) {
	parsed, err := jwt.ParseWithClaims(raw, &claims{}, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return core.Principal{}, fmt.Errorf("%w: %v", core.ErrUnauthorized, err)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.UserID == "" {
		return core.Principal{}, fmt.Errorf("%w: invalid token claims", core.ErrUnauthorized)
	}
	role := core.Role(c.Role)
	if !role.Valid() {
		return core.Principal{}, fmt.Errorf("%w: unknown role %q", core.ErrUnauthorized, c.Role)
	}
	return core.Principal{ID: core.UserID(c.UserID), Role: role}, nil
}
