/*
Package sqlite provides a SQLite-backed implementation of core.Store.

PURPOSE:
  Persists users, products, QR codes, the transaction ledger, recycle
  requests and collection points. Aggregates are stored as JSON documents
  next to the columns that are queried or uniquely indexed; the ledger is
  fully columnar because it is filtered, paginated and audited.

KEY TABLES:
  users:             document + unique email / phone / referral_code
  products:          document + brand owner / category
  qrcodes:           document + unique code, batch, product
  qr_scanners:       (qr_id, user_id) pairs for "my scans"
  transactions:      append-only ledger, unique idempotency_key
  recycle_requests:  document + user / status / collector
  collection_points: document + city / active flag

APPEND-ONLY ENFORCEMENT:
  There is no DELETE anywhere. The only UPDATE on transactions touches
  status, balance_after, processed_at, processed_by and metadata_json.

CONCURRENCY:
  One connection, one writer. WithTx holds the write lock for the whole
  unit of work, so "check claim + credit + append" cannot interleave with
  another claim. View takes the read lock.

WAL MODE:
  File databases are opened with WAL for crash recovery.

USAGE:
  st, err := sqlite.New("./ecoback.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

MIGRATION:
  Schema is auto-migrated on New().
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/ecoback/reward-engine/core"
)

// timeLayout is fixed-width so lexicographic order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements core.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ core.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL"
	if dbPath == ":memory:" {
		dsn = dbPath
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and makes the
	// write lock below the only writer.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT,
		phone TEXT,
		referral_code TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		doc TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email
		ON users(email) WHERE email IS NOT NULL;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_phone
		ON users(phone) WHERE phone IS NOT NULL;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_referral_code
		ON users(referral_code) WHERE referral_code IS NOT NULL;

	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		brand_owner_id TEXT NOT NULL,
		category TEXT,
		created_at TEXT NOT NULL,
		doc TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_products_owner ON products(brand_owner_id);

	CREATE TABLE IF NOT EXISTS qrcodes (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		product_id TEXT NOT NULL,
		batch_id TEXT NOT NULL,
		serial_number INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		doc TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_qrcodes_batch ON qrcodes(batch_id, serial_number);
	CREATE INDEX IF NOT EXISTS idx_qrcodes_product ON qrcodes(product_id);

	CREATE TABLE IF NOT EXISTS qr_scanners (
		qr_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		PRIMARY KEY (qr_id, user_id)
	);
	CREATE INDEX IF NOT EXISTS idx_qr_scanners_user ON qr_scanners(user_id);

	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		status TEXT NOT NULL,
		description TEXT,
		refs_json TEXT,
		idempotency_key TEXT UNIQUE,
		metadata_json TEXT,
		created_at TEXT NOT NULL,
		processed_at TEXT,
		processed_by TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_user_date
		ON transactions(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_kind_status
		ON transactions(kind, status);

	CREATE TABLE IF NOT EXISTS recycle_requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		assigned_collector TEXT,
		created_at TEXT NOT NULL,
		doc TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_requests_user ON recycle_requests(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_requests_status ON recycle_requests(status);
	CREATE INDEX IF NOT EXISTS idx_requests_collector
		ON recycle_requests(assigned_collector) WHERE assigned_collector IS NOT NULL;

	CREATE TABLE IF NOT EXISTS collection_points (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		city TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		doc TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// UNIT OF WORK (core.Store)
// =============================================================================

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(core.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&repo{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// View runs fn outside a transaction. Writes are refused.
func (s *Store) View(ctx context.Context, fn func(core.Repository) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&repo{q: s.db, readOnly: true})
}

type repo struct {
	q        querier
	readOnly bool
}

func (r *repo) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if r.readOnly {
		return nil, core.ErrReadOnly
	}
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil && isUniqueConstraintError(err) {
		return nil, fmt.Errorf("%w: %v", core.ErrDuplicate, err)
	}
	return res, err
}

// mustAffect turns a zero-row update into ErrNotFound.
func mustAffect(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// =============================================================================
// DOCUMENT HELPERS
// =============================================================================

func (r *repo) getDoc(ctx context.Context, out any, query string, args ...any) error {
	var doc string
	err := r.q.QueryRowContext(ctx, query, args...).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(doc), out)
}

// queryDocs decodes every row's single doc column with decode.
func (r *repo) queryDocs(ctx context.Context, decode func([]byte) error, query string, args ...any) error {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return err
		}
		if err := decode([]byte(doc)); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *repo) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// =============================================================================
// USERS
// =============================================================================

func (r *repo) CreateUser(ctx context.Context, u core.User) error {
	doc, err := json.Marshal(u)
	if err != nil {
		return err
	}
	_, err = r.exec(ctx, `
		INSERT INTO users (id, email, phone, referral_code, is_active, created_at, doc)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, nullString(strings.ToLower(u.Email)), nullString(u.Phone),
		nullString(strings.ToUpper(u.ReferralCode)), u.IsActive, formatTime(u.CreatedAt), string(doc))
	return err
}

func (r *repo) GetUser(ctx context.Context, id core.UserID) (*core.User, error) {
	var u core.User
	if err := r.getDoc(ctx, &u, `SELECT doc FROM users WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *repo) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	var u core.User
	if err := r.getDoc(ctx, &u, `SELECT doc FROM users WHERE email = ?`, strings.ToLower(email)); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *repo) GetUserByReferralCode(ctx context.Context, code string) (*core.User, error) {
	var u core.User
	if err := r.getDoc(ctx, &u, `SELECT doc FROM users WHERE referral_code = ?`, strings.ToUpper(code)); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *repo) UpdateUser(ctx context.Context, u core.User) error {
	doc, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return mustAffect(r.exec(ctx, `
		UPDATE users SET email = ?, phone = ?, referral_code = ?, is_active = ?, doc = ?
		WHERE id = ?`,
		nullString(strings.ToLower(u.Email)), nullString(u.Phone),
		nullString(strings.ToUpper(u.ReferralCode)), u.IsActive, string(doc), u.ID))
}

func (r *repo) ListUsers(ctx context.Context) ([]core.User, error) {
	var out []core.User
	err := r.queryDocs(ctx, func(b []byte) error {
		var u core.User
		if err := json.Unmarshal(b, &u); err != nil {
			return err
		}
		out = append(out, u)
		return nil
	}, `SELECT doc FROM users WHERE is_active = 1 ORDER BY created_at ASC, id ASC`)
	return out, err
}

// =============================================================================
// PRODUCTS
// =============================================================================

func (r *repo) CreateProduct(ctx context.Context, p core.Product) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = r.exec(ctx, `
		INSERT INTO products (id, brand_owner_id, category, created_at, doc)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.BrandOwnerID, p.Category, formatTime(p.CreatedAt), string(doc))
	return err
}

func (r *repo) GetProduct(ctx context.Context, id string) (*core.Product, error) {
	var p core.Product
	if err := r.getDoc(ctx, &p, `SELECT doc FROM products WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) UpdateProduct(ctx context.Context, p core.Product) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return mustAffect(r.exec(ctx, `
		UPDATE products SET brand_owner_id = ?, category = ?, doc = ? WHERE id = ?`,
		p.BrandOwnerID, p.Category, string(doc), p.ID))
}

func (r *repo) ListProducts(ctx context.Context, f core.ProductFilter) ([]core.Product, error) {
	w := where{}
	w.eq("brand_owner_id", string(f.BrandOwnerID))
	w.eq("category", f.Category)

	var out []core.Product
	err := r.queryDocs(ctx, func(b []byte) error {
		var p core.Product
		if err := json.Unmarshal(b, &p); err != nil {
			return err
		}
		// is_active lives only in the document for products
		if f.ActiveOnly && !p.IsActive {
			return nil
		}
		out = append(out, p)
		return nil
	}, `SELECT doc FROM products`+w.sql()+` ORDER BY created_at DESC`, w.args...)
	return out, err
}

// =============================================================================
// QR CODES
// =============================================================================

func (r *repo) InsertQRCodes(ctx context.Context, codes []core.QRCode) error {
	for _, q := range codes {
		doc, err := json.Marshal(q)
		if err != nil {
			return err
		}
		_, err = r.exec(ctx, `
			INSERT INTO qrcodes (id, code, product_id, batch_id, serial_number, created_at, doc)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			q.ID, q.Code, q.ProductID, q.BatchID, q.SerialNumber, formatTime(q.CreatedAt), string(doc))
		if err != nil {
			return err
		}
		if err := r.syncScanners(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) GetQRCode(ctx context.Context, id string) (*core.QRCode, error) {
	var q core.QRCode
	if err := r.getDoc(ctx, &q, `SELECT doc FROM qrcodes WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *repo) GetQRCodeByCode(ctx context.Context, code string) (*core.QRCode, error) {
	var q core.QRCode
	if err := r.getDoc(ctx, &q, `SELECT doc FROM qrcodes WHERE code = ?`, code); err != nil {
		return nil, err
	}
	return &q, nil
}

// UpdateQRCode rewrites the document. The code string itself is immutable.
func (r *repo) UpdateQRCode(ctx context.Context, q core.QRCode) error {
	doc, err := json.Marshal(q)
	if err != nil {
		return err
	}
	if err := mustAffect(r.exec(ctx,
		`UPDATE qrcodes SET doc = ? WHERE id = ? AND code = ?`, string(doc), q.ID, q.Code)); err != nil {
		return err
	}
	return r.syncScanners(ctx, q)
}

func (r *repo) syncScanners(ctx context.Context, q core.QRCode) error {
	seen := make(map[core.UserID]bool)
	for _, s := range q.ScanHistory {
		if seen[s.UserID] {
			continue
		}
		seen[s.UserID] = true
		if _, err := r.exec(ctx,
			`INSERT OR IGNORE INTO qr_scanners (qr_id, user_id) VALUES (?, ?)`, q.ID, s.UserID); err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) ListQRCodes(ctx context.Context, f core.QRCodeFilter) ([]core.QRCode, error) {
	w := where{}
	w.eq("batch_id", f.BatchID)
	w.in("product_id", f.ProductIDs)
	if f.ScannedBy != "" {
		w.add("id IN (SELECT qr_id FROM qr_scanners WHERE user_id = ?)", f.ScannedBy)
	}

	var out []core.QRCode
	err := r.queryDocs(ctx, func(b []byte) error {
		var q core.QRCode
		if err := json.Unmarshal(b, &q); err != nil {
			return err
		}
		out = append(out, q)
		return nil
	}, `SELECT doc FROM qrcodes`+w.sql()+` ORDER BY created_at DESC, batch_id, serial_number ASC`, w.args...)
	return out, err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

const txColumns = `id, user_id, kind, amount, balance_after, status, description, refs_json,
	idempotency_key, metadata_json, created_at, processed_at, processed_by`

func (r *repo) AppendTransaction(ctx context.Context, tx core.Transaction) error {
	refsJSON, _ := json.Marshal(tx.Refs)
	metadataJSON, _ := json.Marshal(tx.Metadata)

	_, err := r.exec(ctx, `
		INSERT INTO transactions (`+txColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.UserID,
		tx.Kind,
		tx.Amount.String(),
		tx.BalanceAfter.String(),
		tx.Status,
		tx.Description,
		string(refsJSON),
		nullString(tx.IdempotencyKey),
		string(metadataJSON),
		formatTime(tx.CreatedAt),
		nullTime(tx.ProcessedAt),
		nullString(string(tx.ProcessedBy)),
	)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (r *repo) GetTransaction(ctx context.Context, id core.TransactionID) (*core.Transaction, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, core.ErrNotFound
	}
	tx, err := scanTransaction(rows)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *repo) UpdateTransactionStatus(ctx context.Context, tx core.Transaction) error {
	metadataJSON, _ := json.Marshal(tx.Metadata)
	return mustAffect(r.exec(ctx, `
		UPDATE transactions
		SET status = ?, balance_after = ?, processed_at = ?, processed_by = ?, metadata_json = ?
		WHERE id = ?`,
		tx.Status, tx.BalanceAfter.String(), nullTime(tx.ProcessedAt),
		nullString(string(tx.ProcessedBy)), string(metadataJSON), tx.ID))
}

func (r *repo) ListTransactions(ctx context.Context, f core.TxFilter) ([]core.Transaction, int, error) {
	w := where{}
	w.eq("user_id", string(f.UserID))
	kinds := make([]string, len(f.Kinds))
	for i, k := range f.Kinds {
		kinds[i] = string(k)
	}
	w.in("kind", kinds)
	statuses := make([]string, len(f.Statuses))
	for i, s := range f.Statuses {
		statuses[i] = string(s)
	}
	w.in("status", statuses)
	if f.From != nil {
		w.add("created_at >= ?", formatTime(*f.From))
	}
	if f.To != nil {
		w.add("created_at <= ?", formatTime(*f.To))
	}
	if f.MinAmount != nil {
		w.add("CAST(amount AS REAL) >= ?", f.MinAmount.Value.InexactFloat64())
	}
	if f.MaxAmount != nil {
		w.add("CAST(amount AS REAL) <= ?", f.MaxAmount.Value.InexactFloat64())
	}

	total, err := r.count(ctx, `SELECT COUNT(*) FROM transactions`+w.sql(), w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	query := `SELECT ` + txColumns + ` FROM transactions` + w.sql() + ` ORDER BY created_at DESC, rowid DESC`
	args := w.args
	query, args = paginate(query, args, f.Offset, f.Limit)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, tx)
	}
	return out, total, rows.Err()
}

func (r *repo) TransactionExists(ctx context.Context, key string) (bool, error) {
	n, err := r.count(ctx, `SELECT COUNT(*) FROM transactions WHERE idempotency_key = ?`, key)
	return n > 0, err
}

func scanTransaction(rows *sql.Rows) (core.Transaction, error) {
	var (
		tx             core.Transaction
		amount         string
		balanceAfter   string
		description    sql.NullString
		refsJSON       sql.NullString
		idempotencyKey sql.NullString
		metadataJSON   sql.NullString
		createdAt      string
		processedAt    sql.NullString
		processedBy    sql.NullString
	)

	err := rows.Scan(
		&tx.ID, &tx.UserID, &tx.Kind, &amount, &balanceAfter, &tx.Status,
		&description, &refsJSON, &idempotencyKey, &metadataJSON,
		&createdAt, &processedAt, &processedBy,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if tx.Amount, err = core.ParseMoney(amount); err != nil {
		return tx, fmt.Errorf("transaction %s amount: %w", tx.ID, err)
	}
	if tx.BalanceAfter, err = core.ParseMoney(balanceAfter); err != nil {
		return tx, fmt.Errorf("transaction %s balance_after: %w", tx.ID, err)
	}
	tx.Description = description.String
	tx.IdempotencyKey = idempotencyKey.String
	tx.ProcessedBy = core.UserID(processedBy.String)
	tx.CreatedAt = parseTime(createdAt)
	if processedAt.Valid {
		tx.ProcessedAt = core.TimePtr(parseTime(processedAt.String))
	}
	if refsJSON.Valid && refsJSON.String != "" {
		json.Unmarshal([]byte(refsJSON.String), &tx.Refs)
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		json.Unmarshal([]byte(metadataJSON.String), &tx.Metadata)
	}

	return tx, nil
}

// =============================================================================
// RECYCLE REQUESTS
// =============================================================================

func (r *repo) CreateRequest(ctx context.Context, req core.RecycleRequest) error {
	doc, err := json.Marshal(req)
	if err != nil {
		return err
	}
	_, err = r.exec(ctx, `
		INSERT INTO recycle_requests (id, user_id, status, assigned_collector, created_at, doc)
		VALUES (?, ?, ?, ?, ?, ?)`,
		req.ID, req.UserID, req.Status, nullString(string(req.AssignedCollector)),
		formatTime(req.CreatedAt), string(doc))
	return err
}

func (r *repo) GetRequest(ctx context.Context, id string) (*core.RecycleRequest, error) {
	var req core.RecycleRequest
	if err := r.getDoc(ctx, &req, `SELECT doc FROM recycle_requests WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repo) UpdateRequest(ctx context.Context, req core.RecycleRequest) error {
	doc, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return mustAffect(r.exec(ctx, `
		UPDATE recycle_requests SET status = ?, assigned_collector = ?, doc = ? WHERE id = ?`,
		req.Status, nullString(string(req.AssignedCollector)), string(doc), req.ID))
}

func (r *repo) ListRequests(ctx context.Context, f core.RequestFilter) ([]core.RecycleRequest, int, error) {
	w := where{}
	w.eq("user_id", string(f.UserID))
	w.eq("status", string(f.Status))
	w.eq("assigned_collector", string(f.CollectorID))
	if f.From != nil {
		w.add("created_at >= ?", formatTime(*f.From))
	}
	if f.To != nil {
		w.add("created_at <= ?", formatTime(*f.To))
	}

	total, err := r.count(ctx, `SELECT COUNT(*) FROM recycle_requests`+w.sql(), w.args...)
	if err != nil {
		return nil, 0, err
	}
	query, args := paginate(`SELECT doc FROM recycle_requests`+w.sql()+` ORDER BY created_at DESC, id DESC`,
		w.args, f.Offset, f.Limit)

	var out []core.RecycleRequest
	err = r.queryDocs(ctx, func(b []byte) error {
		var req core.RecycleRequest
		if err := json.Unmarshal(b, &req); err != nil {
			return err
		}
		out = append(out, req)
		return nil
	}, query, args...)
	return out, total, err
}

// =============================================================================
// COLLECTION POINTS
// =============================================================================

func (r *repo) CreatePoint(ctx context.Context, p core.CollectionPoint) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = r.exec(ctx, `
		INSERT INTO collection_points (id, name, city, is_active, doc) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.City, p.IsActive, string(doc))
	return err
}

func (r *repo) GetPoint(ctx context.Context, id string) (*core.CollectionPoint, error) {
	var p core.CollectionPoint
	if err := r.getDoc(ctx, &p, `SELECT doc FROM collection_points WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) UpdatePoint(ctx context.Context, p core.CollectionPoint) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return mustAffect(r.exec(ctx, `
		UPDATE collection_points SET name = ?, city = ?, is_active = ?, doc = ? WHERE id = ?`,
		p.Name, p.City, p.IsActive, string(doc), p.ID))
}

func (r *repo) ListPoints(ctx context.Context, f core.PointFilter) ([]core.CollectionPoint, error) {
	w := where{}
	if f.ActiveOnly {
		w.add("is_active = 1")
	}
	if f.City != "" {
		w.add("city = ? COLLATE NOCASE", f.City)
	}

	var out []core.CollectionPoint
	err := r.queryDocs(ctx, func(b []byte) error {
		var p core.CollectionPoint
		if err := json.Unmarshal(b, &p); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	}, `SELECT doc FROM collection_points`+w.sql()+` ORDER BY name ASC`, w.args...)
	return out, err
}

// =============================================================================
// HELPERS
// =============================================================================

// where accumulates AND-ed predicates.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

// eq adds column = value, skipping empty values.
func (w *where) eq(column, value string) {
	if value != "" {
		w.add(column+" = ?", value)
	}
}

func (w *where) in(column string, values []string) {
	if len(values) == 0 {
		return
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	w.add(column+" IN ("+strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")+")", args...)
}

func (w *where) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func paginate(query string, args []any, offset, limit int) (string, []any) {
	if limit <= 0 && offset <= 0 {
		return query, args
	}
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	return query + ` LIMIT ? OFFSET ?`, append(append([]any{}, args...), limit, offset)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
