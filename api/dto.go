/*
dto.go - request bodies and the few response shapes that differ from the
domain types

Most handlers return service results as-is. Users are the exception: the
stored record carries the password hash, so every user leaving the API goes
through UserDTO.

NAMING CONVENTION:
  - *DTO:     response types returned to clients
  - *Request: request body types from clients
*/
package api

import (
	"time"

	"github.com/ecoback/reward-engine/auth"
	"github.com/ecoback/reward-engine/core"
	"github.com/ecoback/reward-engine/wallet"
)

// =============================================================================
// USERS & SESSIONS
// =============================================================================

type UserDTO struct {
	ID           core.UserID        `json:"id"`
	FullName     string             `json:"fullName"`
	Email        string             `json:"email"`
	Phone        string             `json:"phone,omitempty"`
	Role         core.Role          `json:"role"`
	Wallet       core.Wallet        `json:"wallet"`
	Impact       core.Impact        `json:"environmentalImpact"`
	XP           int64              `json:"xp"`
	Level        int                `json:"level"`
	Badges       []core.EarnedBadge `json:"badges"`
	ReferralCode string             `json:"referralCode"`
	Referrals    int                `json:"referralCount"`
	IsActive     bool               `json:"isActive"`
	CreatedAt    time.Time          `json:"createdAt"`
}

func toUserDTO(u *core.User) UserDTO {
	return UserDTO{
		ID:           u.ID,
		FullName:     u.FullName,
		Email:        u.Email,
		Phone:        u.Phone,
		Role:         u.Role,
		Wallet:       u.Wallet,
		Impact:       u.Impact,
		XP:           u.XP,
		Level:        u.Level,
		Badges:       u.Badges,
		ReferralCode: u.ReferralCode,
		Referrals:    len(u.Referrals),
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt,
	}
}

type SessionDTO struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      UserDTO   `json:"user"`
}

func toSessionDTO(s *auth.Session) SessionDTO {
	return SessionDTO{Token: s.Token, ExpiresAt: s.ExpiresAt, User: toUserDTO(s.User)}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// =============================================================================
// QR CODES
// =============================================================================

type GenerateRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	BatchName string `json:"batchName"`
}

type ScanRequest struct {
	Code     string         `json:"code"`
	Location *core.GeoPoint `json:"location,omitempty"`
}

// =============================================================================
// RECYCLE REQUESTS
// =============================================================================

type StatusRequest struct {
	Status core.RequestStatus `json:"status"`
	Note   string             `json:"note"`
}

// =============================================================================
// WALLET
// =============================================================================

type WithdrawRequest struct {
	Amount   core.Money      `json:"amount"`
	BankInfo wallet.BankInfo `json:"bankInfo"`
}

type ProcessRequest struct {
	Status wallet.Decision `json:"status"`
	Note   string          `json:"note"`
}

// =============================================================================
// COLLECTION POINTS
// =============================================================================

type DropoffRequest struct {
	Items []core.DropoffItem `json:"items"`
}
