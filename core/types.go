/*
Package core provides the reward-accounting model shared by every EcoBack
service: money, identifiers, entities, the error taxonomy, and the
persistence contract.

PURPOSE:
  The reward engine credits users for two kinds of behavior: buying products
  whose packaging carries a QR code (cashback) and returning that packaging
  for recycling (recycle rewards). Every credit or debit flows through the
  same wallet/ledger pair, so the rules that keep balances honest live here
  and nowhere else.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: an amount of Vietnamese dong backed by decimal.Decimal
  - Weight helpers: kilograms, also decimal
  - Identifiers and roles
  - Principal: the authenticated caller handed to every service operation

DESIGN PRINCIPLES:
  1. Precision: money and weight use decimal.Decimal, never float64
  2. Whole dong: every persisted reward is rounded to 0 decimal places
  3. Type safety: user and transaction identifiers are distinct types

SEE ALSO:
  - ledger.go: Transaction and the append-only ledger rules
  - store.go: Repository and Store interfaces
  - errors.go: Error taxonomy
*/
package core

import (
	"github.com/shopspring/decimal"
)

func init() {
	// weights, impact figures and percentages go out as bare JSON numbers,
	// the same as Money
	decimal.MarshalJSONWithoutQuotes = true
}

// =============================================================================
// MONEY - Amount of VND
// =============================================================================

// Money is an amount of Vietnamese dong. Signed: debits are negative.
type Money struct {
	Value decimal.Decimal
}

func NewMoney(v int64) Money                  { return Money{Value: decimal.NewFromInt(v)} }
func MoneyFromDecimal(d decimal.Decimal) Money { return Money{Value: d} }

// ParseMoney parses a decimal string such as "11000" or "1250.5".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Value: d}, nil
}

func (m Money) Add(o Money) Money          { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money          { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Mul(d decimal.Decimal) Money { return Money{Value: m.Value.Mul(d)} }
func (m Money) Neg() Money                 { return Money{Value: m.Value.Neg()} }
func (m Money) Abs() Money                 { return Money{Value: m.Value.Abs()} }
func (m Money) Round() Money               { return Money{Value: m.Value.Round(0)} }
func (m Money) IsZero() bool               { return m.Value.IsZero() }
func (m Money) IsNegative() bool           { return m.Value.IsNegative() }
func (m Money) IsPositive() bool           { return m.Value.IsPositive() }
func (m Money) GreaterThan(o Money) bool   { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool      { return m.Value.LessThan(o.Value) }
func (m Money) Equal(o Money) bool         { return m.Value.Equal(o.Value) }
func (m Money) String() string             { return m.Value.String() }

// Thousands returns floor(m / 1000). Used by XP formulas.
func (m Money) Thousands() int64 {
	return m.Value.Div(decimal.NewFromInt(1000)).Floor().IntPart()
}

// MarshalJSON renders money as a bare JSON number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Value.String()), nil
}

// UnmarshalJSON accepts both numbers and quoted decimal strings.
func (m *Money) UnmarshalJSON(b []byte) error {
	return m.Value.UnmarshalJSON(b)
}

// Kg builds a weight in kilograms from a float literal. Only for tests,
// fixtures and request decoding; arithmetic stays in decimal.
func Kg(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// =============================================================================
// IDENTIFIERS & ROLES
// =============================================================================

type UserID string
type TransactionID string

type Role string

const (
	RoleUser      Role = "user"
	RoleBrand     Role = "brand"
	RoleAdmin     Role = "admin"
	RoleCollector Role = "collector"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleBrand, RoleAdmin, RoleCollector:
		return true
	}
	return false
}

// Principal is the verified caller, produced by the auth middleware.
type Principal struct {
	ID   UserID
	Role Role
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// HasRole reports whether the principal holds any of the given roles.
func (p Principal) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// =============================================================================
// GEO
// =============================================================================

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
