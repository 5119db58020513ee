package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ecoback/reward-engine/core"
	"github.com/ecoback/reward-engine/gamification"
	"github.com/ecoback/reward-engine/rewards"
	"github.com/ecoback/reward-engine/wallet"
)

const (
	MinPasswordLength  = 6
	referralCodeLength = 8
)

type Service struct {
	store  core.Store
	clock  core.Clock
	tokens *TokenIssuer
	cost   int
	log    *zap.Logger
}

// NewService builds the account service. A non-positive cost uses
// bcrypt.DefaultCost.
func NewService(store core.Store, clock core.Clock, tokens *TokenIssuer, cost int, log *zap.Logger) *Service {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{store: store, clock: clock, tokens: tokens, cost: cost, log: log.Named("auth")}
}

func (s *Service) Tokens() *TokenIssuer { return s.tokens }

// HashPassword is exported for seeding.
func HashPassword(password string, cost int) (string, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// ReferralCode derives a user's shareable code from their id.
func ReferralCode(id core.UserID) string {
	code := strings.ToUpper(strings.ReplaceAll(string(id), "-", ""))
	if len(code) > referralCodeLength {
		code = code[:referralCodeLength]
	}
	return code
}

// =============================================================================
// REGISTER
// =============================================================================

type RegisterInput struct {
	FullName     string `json:"fullName"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Password     string `json:"password"`
	ReferralCode string `json:"referralCode,omitempty"`
}

func (in *RegisterInput) validate() error {
	v := &core.ValidationError{}
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	if in.FullName == "" {
		v.Add("fullName", "required")
	}
	if _, err := mail.ParseAddress(in.Email); in.Email == "" || err != nil {
		v.Add("email", "must be a valid email address")
	}
	if len(in.Password) < MinPasswordLength {
		v.Add("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	return v.OrNil()
}

// Session is what register and login hand back to the client.
type Session struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      *core.User `json:"user"`
}

// Register creates a user account. A valid referral code credits the
// referrer in the same unit of work; an unknown one is a validation error.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	hash, err := HashPassword(in.Password, s.cost)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	id := core.UserID(uuid.NewString())
	u := core.User{
		ID:           id,
		FullName:     in.FullName,
		Email:        in.Email,
		Phone:        in.Phone,
		PasswordHash: hash,
		Role:         core.RoleUser,
		Wallet:       core.Wallet{Balance: core.NewMoney(0), TotalEarned: core.NewMoney(0), TotalWithdrawn: core.NewMoney(0)},
		Level:        1,
		Badges:       []core.EarnedBadge{},
		ReferralCode: ReferralCode(id),
		Referrals:    []core.UserID{},
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var (
		referrer *core.User
		unlocked []string
	)
	err = s.store.WithTx(ctx, func(r core.Repository) error {
		if code := strings.TrimSpace(in.ReferralCode); code != "" {
			ref, err := r.GetUserByReferralCode(ctx, code)
			if core.IsNotFound(err) {
				return core.Invalid("referralCode", "unknown referral code")
			}
			if err != nil {
				return err
			}
			u.ReferredBy = ref.ID
			referrer = ref
		}

		if err := r.CreateUser(ctx, u); err != nil {
			if errors.Is(err, core.ErrDuplicate) {
				return fmt.Errorf("email or phone already registered: %w", core.ErrDuplicate)
			}
			return err
		}
		if referrer == nil {
			return nil
		}

		referrer.Referrals = append(referrer.Referrals, id)
		if err := r.UpdateUser(ctx, *referrer); err != nil {
			return err
		}
		_, credited, err := wallet.ApplyDelta(ctx, r, referrer.ID, wallet.Entry{
			Kind:           core.TxReferralBonus,
			Amount:         core.NewMoney(rewards.ReferralBonus),
			Description:    "Referral bonus for inviting " + in.FullName,
			Refs:           core.TxRefs{RelatedUserID: id},
			IdempotencyKey: "referral:" + string(id),
		}, now)
		if err != nil {
			return err
		}
		// the referral count just grew; referral badges unlock here
		if unlocked = gamification.Evaluate(credited, now); len(unlocked) == 0 {
			return nil
		}
		return r.UpdateUser(ctx, *credited)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("user registered", zap.String("user_id", string(id)))
	if referrer != nil {
		s.log.Info("referral bonus credited",
			zap.String("user_id", string(referrer.ID)),
			zap.String("kind", string(core.TxReferralBonus)),
			zap.Int64("amount", rewards.ReferralBonus),
			zap.String("referred_user_id", string(id)))
	}
	if len(unlocked) > 0 {
		s.log.Info("badges unlocked",
			zap.String("user_id", string(referrer.ID)), zap.Strings("badges", unlocked))
	}
	return s.session(&u)
}

// =============================================================================
// LOGIN
// =============================================================================

// Login checks credentials. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	var u *core.User
	err := s.store.View(ctx, func(r core.Repository) error {
		var err error
		u, err = r.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
		return err
	})
	if core.IsNotFound(err) {
		return nil, fmt.Errorf("%w: invalid credentials", core.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("%w: invalid credentials", core.ErrUnauthorized)
	}
	if !u.IsActive {
		return nil, fmt.Errorf("account %s: %w", u.ID, core.ErrInactive)
	}
	return s.session(u)
}

// Me returns the caller's account.
func (s *Service) Me(ctx context.Context, id core.UserID) (*core.User, error) {
	var u *core.User
	err := s.store.View(ctx, func(r core.Repository) error {
		var err error
		u, err = r.GetUser(ctx, id)
		return err
	})
	return u, err
}

func (s *Service) session(u *core.User) (*Session, error) {
	token, exp, err := s.tokens.Issue(core.Principal{ID: u.ID, Role: u.Role})
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, User: u}, nil
}
