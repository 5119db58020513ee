/*
store.go - Persistence contract for the reward engine

PURPOSE:
  Defines the interface between domain services and the database.
  Services never hold a repository outside a unit of work: every read
  happens in View, every write in WithTx.

KEY INTERFACES:
  UserRepository:            users, wallets, impact counters
  ProductRepository:         product catalogue
  QRCodeRepository:          per-unit QR codes
  TransactionRepository:     append-only ledger
  RecycleRequestRepository:  pickup/dropoff requests
  CollectionPointRepository: dropoff sites
  Repository:                all of the above, as seen inside one unit
  Store:                     WithTx / View entry points

UNIT OF WORK:
  The "check claim + credit wallet + append transaction + advance state"
  sequence is one WithTx call. If fn returns an error every write made
  through the Repository is discarded. Write units are serialized, so a
  second claim on the same QR code observes the first one's commit.

UNIQUE KEYS:
  - users: email, phone, referral code
  - qr codes: code
  - transactions: idempotency key (when non-empty)
  Violations surface as ErrDuplicate.

IMPLEMENTATIONS:
  - store/sqlite: production
  - core/store:   in-memory, for tests and the demo server
*/
package core

import (
	"context"
	"errors"
)

// =============================================================================
// REPOSITORIES
// =============================================================================

type UserRepository interface {
	CreateUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id UserID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*User, error)
	UpdateUser(ctx context.Context, u User) error
	// ListUsers returns active users ordered by creation time.
	ListUsers(ctx context.Context) ([]User, error)
}

type ProductRepository interface {
	CreateProduct(ctx context.Context, p Product) error
	GetProduct(ctx context.Context, id string) (*Product, error)
	UpdateProduct(ctx context.Context, p Product) error
	ListProducts(ctx context.Context, f ProductFilter) ([]Product, error)
}

type QRCodeRepository interface {
	// InsertQRCodes writes a whole batch; any duplicate code fails all of it.
	InsertQRCodes(ctx context.Context, codes []QRCode) error
	GetQRCode(ctx context.Context, id string) (*QRCode, error)
	GetQRCodeByCode(ctx context.Context, code string) (*QRCode, error)
	UpdateQRCode(ctx context.Context, q QRCode) error
	ListQRCodes(ctx context.Context, f QRCodeFilter) ([]QRCode, error)
}

// TransactionRepository is append-only for amounts. UpdateTransactionStatus
// persists only Status, BalanceAfter, ProcessedAt, ProcessedBy and Metadata.
type TransactionRepository interface {
	AppendTransaction(ctx context.Context, tx Transaction) error
	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)
	UpdateTransactionStatus(ctx context.Context, tx Transaction) error
	// ListTransactions returns one page, newest first, and the total match count.
	ListTransactions(ctx context.Context, f TxFilter) ([]Transaction, int, error)
	TransactionExists(ctx context.Context, idempotencyKey string) (bool, error)
}

type RecycleRequestRepository interface {
	CreateRequest(ctx context.Context, r RecycleRequest) error
	GetRequest(ctx context.Context, id string) (*RecycleRequest, error)
	UpdateRequest(ctx context.Context, r RecycleRequest) error
	// ListRequests returns one page, newest first, and the total match count.
	ListRequests(ctx context.Context, f RequestFilter) ([]RecycleRequest, int, error)
}

type CollectionPointRepository interface {
	CreatePoint(ctx context.Context, p CollectionPoint) error
	GetPoint(ctx context.Context, id string) (*CollectionPoint, error)
	UpdatePoint(ctx context.Context, p CollectionPoint) error
	ListPoints(ctx context.Context, f PointFilter) ([]CollectionPoint, error)
}

// Repository is everything a unit of work can touch.
type Repository interface {
	UserRepository
	ProductRepository
	QRCodeRepository
	TransactionRepository
	RecycleRequestRepository
	CollectionPointRepository
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// WithTx executes fn atomically. If fn returns an error nothing it
	// wrote is kept.
	WithTx(ctx context.Context, fn func(Repository) error) error

	// View executes fn against a consistent read-only view.
	View(ctx context.Context, fn func(Repository) error) error
}

// ErrReadOnly is returned by writes attempted inside View.
var ErrReadOnly = errors.New("write attempted in read-only view")

// Page clamps offset/limit and slices items accordingly.
func Page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
