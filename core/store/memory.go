// Package store provides the in-memory core.Store.
package store

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/ecoback/reward-engine/core"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps every entity by value. Entities are cloned on the way in
// and on the way out so callers never alias stored slices.
type Memory struct {
	mu    sync.RWMutex
	state memoryState
}

type memoryState struct {
	users        map[core.UserID]core.User
	products     map[string]core.Product
	qrcodes      map[string]core.QRCode
	transactions map[core.TransactionID]core.Transaction
	txOrder      []core.TransactionID
	requests     map[string]core.RecycleRequest
	points       map[string]core.CollectionPoint

	// unique indexes
	emails      map[string]core.UserID
	phones      map[string]core.UserID
	referrals   map[string]core.UserID
	codes       map[string]string
	idempotency map[string]core.TransactionID
}

func NewMemory() *Memory {
	return &Memory{state: memoryState{
		users:        make(map[core.UserID]core.User),
		products:     make(map[string]core.Product),
		qrcodes:      make(map[string]core.QRCode),
		transactions: make(map[core.TransactionID]core.Transaction),
		requests:     make(map[string]core.RecycleRequest),
		points:       make(map[string]core.CollectionPoint),
		emails:       make(map[string]core.UserID),
		phones:       make(map[string]core.UserID),
		referrals:    make(map[string]core.UserID),
		codes:        make(map[string]string),
		idempotency:  make(map[string]core.TransactionID),
	}}
}

var _ core.Store = (*Memory)(nil)

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(core.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(&memoryView{s: &m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *Memory) View(_ context.Context, fn func(core.Repository) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&memoryView{s: &m.state, readOnly: true})
}

// clone copies the maps. Stored values are never mutated in place, so
// sharing them between the snapshot and the live state is safe.
func (s *memoryState) clone() memoryState {
	return memoryState{
		users:        maps.Clone(s.users),
		products:     maps.Clone(s.products),
		qrcodes:      maps.Clone(s.qrcodes),
		transactions: maps.Clone(s.transactions),
		txOrder:      slices.Clone(s.txOrder),
		requests:     maps.Clone(s.requests),
		points:       maps.Clone(s.points),
		emails:       maps.Clone(s.emails),
		phones:       maps.Clone(s.phones),
		referrals:    maps.Clone(s.referrals),
		codes:        maps.Clone(s.codes),
		idempotency:  maps.Clone(s.idempotency),
	}
}

// =============================================================================
// VIEW - Repository bound to one unit of work
// =============================================================================

type memoryView struct {
	s        *memoryState
	readOnly bool
}

func (v *memoryView) writable() error {
	if v.readOnly {
		return core.ErrReadOnly
	}
	return nil
}

// ---- users ----

func (v *memoryView) CreateUser(_ context.Context, u core.User) error {
	if err := v.writable(); err != nil {
		return err
	}
	if _, ok := v.s.users[u.ID]; ok {
		return core.ErrDuplicate
	}
	if err := v.checkUserKeys(u); err != nil {
		return err
	}
	v.putUser(u)
	return nil
}

func (v *memoryView) GetUser(_ context.Context, id core.UserID) (*core.User, error) {
	u, ok := v.s.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	u = cloneUser(u)
	return &u, nil
}

func (v *memoryView) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	id, ok := v.s.emails[strings.ToLower(email)]
	if !ok {
		return nil, core.ErrNotFound
	}
	return v.GetUser(ctx, id)
}

func (v *memoryView) GetUserByReferralCode(ctx context.Context, code string) (*core.User, error) {
	id, ok := v.s.referrals[strings.ToUpper(code)]
	if !ok {
		return nil, core.ErrNotFound
	}
	return v.GetUser(ctx, id)
}

func (v *memoryView) UpdateUser(_ context.Context, u core.User) error {
	if err := v.writable(); err != nil {
		return err
	}
	old, ok := v.s.users[u.ID]
	if !ok {
		return core.ErrNotFound
	}
	if err := v.checkUserKeys(u); err != nil {
		return err
	}
	delete(v.s.emails, strings.ToLower(old.Email))
	delete(v.s.phones, old.Phone)
	delete(v.s.referrals, strings.ToUpper(old.ReferralCode))
	v.putUser(u)
	return nil
}

func (v *memoryView) ListUsers(_ context.Context) ([]core.User, error) {
	out := make([]core.User, 0, len(v.s.users))
	for _, u := range v.s.users {
		if u.IsActive {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (v *memoryView) checkUserKeys(u core.User) error {
	if id, ok := v.s.emails[strings.ToLower(u.Email)]; ok && u.Email != "" && id != u.ID {
		return core.ErrDuplicate
	}
	if id, ok := v.s.phones[u.Phone]; ok && u.Phone != "" && id != u.ID {
		return core.ErrDuplicate
	}
	if id, ok := v.s.referrals[strings.ToUpper(u.ReferralCode)]; ok && u.ReferralCode != "" && id != u.ID {
		return core.ErrDuplicate
	}
	return nil
}

func (v *memoryView) putUser(u core.User) {
	v.s.users[u.ID] = cloneUser(u)
	if u.Email != "" {
		v.s.emails[strings.ToLower(u.Email)] = u.ID
	}
	if u.Phone != "" {
		v.s.phones[u.Phone] = u.ID
	}
	if u.ReferralCode != "" {
		v.s.referrals[strings.ToUpper(u.ReferralCode)] = u.ID
	}
}

// ---- products ----

func (v *memoryView) CreateProduct(_ context.Context, p core.Product) error {
	if err := v.writable(); err != nil {
		return err
	}
	if _, ok := v.s.products[p.ID]; ok {
		return core.ErrDuplicate
	}
	v.s.products[p.ID] = p
	return nil
}

func (v *memoryView) GetProduct(_ context.Context, id string) (*core.Product, error) {
	p, ok := v.s.products[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &p, nil
}

func (v *memoryView) UpdateProduct(_ context.Context, p core.Product) error {
	if err := v.writable(); err != nil {
		return err
	}
	if _, ok := v.s.products[p.ID]; !ok {
		return core.ErrNotFound
	}
	v.s.products[p.ID] = p
	return nil
}

func (v *memoryView) ListProducts(_ context.Context, f core.ProductFilter) ([]core.Product, error) {
	var out []core.Product
	for _, p := range v.s.products {
		if f.ActiveOnly && !p.IsActive {
			continue
		}
		if f.BrandOwnerID != "" && p.BrandOwnerID != f.BrandOwnerID {
			continue
		}
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ---- qr codes ----

func (v *memoryView) InsertQRCodes(_ context.Context, codes []core.QRCode) error {
	if err := v.writable(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(codes))
	for _, q := range codes {
		if _, ok := v.s.codes[q.Code]; ok || seen[q.Code] {
			return core.ErrDuplicate
		}
		if _, ok := v.s.qrcodes[q.ID]; ok {
			return core.ErrDuplicate
		}
		seen[q.Code] = true
	}
	for _, q := range codes {
		v.s.qrcodes[q.ID] = cloneQR(q)
		v.s.codes[q.Code] = q.ID
	}
	return nil
}

func (v *memoryView) GetQRCode(_ context.Context, id string) (*core.QRCode, error) {
	q, ok := v.s.qrcodes[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	q = cloneQR(q)
	return &q, nil
}

func (v *memoryView) GetQRCodeByCode(ctx context.Context, code string) (*core.QRCode, error) {
	id, ok := v.s.codes[code]
	if !ok {
		return nil, core.ErrNotFound
	}
	return v.GetQRCode(ctx, id)
}

func (v *memoryView) UpdateQRCode(_ context.Context, q core.QRCode) error {
	if err := v.writable(); err != nil {
		return err
	}
	old, ok := v.s.qrcodes[q.ID]
	if !ok {
		return core.ErrNotFound
	}
	if old.Code != q.Code {
		return core.ErrConflict
	}
	v.s.qrcodes[q.ID] = cloneQR(q)
	return nil
}

func (v *memoryView) ListQRCodes(_ context.Context, f core.QRCodeFilter) ([]core.QRCode, error) {
	var out []core.QRCode
	for _, q := range v.s.qrcodes {
		if f.BatchID != "" && q.BatchID != f.BatchID {
			continue
		}
		if len(f.ProductIDs) > 0 && !slices.Contains(f.ProductIDs, q.ProductID) {
			continue
		}
		if f.ScannedBy != "" && !scannedBy(q, f.ScannedBy) {
			continue
		}
		out = append(out, cloneQR(q))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BatchID == out[j].BatchID {
			return out[i].SerialNumber < out[j].SerialNumber
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func scannedBy(q core.QRCode, user core.UserID) bool {
	for _, s := range q.ScanHistory {
		if s.UserID == user {
			return true
		}
	}
	return false
}

// ---- transactions ----

func (v *memoryView) AppendTransaction(_ context.Context, tx core.Transaction) error {
	if err := v.writable(); err != nil {
		return err
	}
	if _, ok := v.s.transactions[tx.ID]; ok {
		return core.ErrDuplicate
	}
	if tx.IdempotencyKey != "" {
		if _, ok := v.s.idempotency[tx.IdempotencyKey]; ok {
			return core.ErrDuplicate
		}
		v.s.idempotency[tx.IdempotencyKey] = tx.ID
	}
	tx.Metadata = maps.Clone(tx.Metadata)
	v.s.transactions[tx.ID] = tx
	v.s.txOrder = append(v.s.txOrder, tx.ID)
	return nil
}

func (v *memoryView) GetTransaction(_ context.Context, id core.TransactionID) (*core.Transaction, error) {
	tx, ok := v.s.transactions[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	tx.Metadata = maps.Clone(tx.Metadata)
	return &tx, nil
}

func (v *memoryView) UpdateTransactionStatus(_ context.Context, tx core.Transaction) error {
	if err := v.writable(); err != nil {
		return err
	}
	stored, ok := v.s.transactions[tx.ID]
	if !ok {
		return core.ErrNotFound
	}
	stored.Status = tx.Status
	stored.BalanceAfter = tx.BalanceAfter
	stored.ProcessedAt = tx.ProcessedAt
	stored.ProcessedBy = tx.ProcessedBy
	stored.Metadata = maps.Clone(tx.Metadata)
	v.s.transactions[tx.ID] = stored
	return nil
}

func (v *memoryView) ListTransactions(_ context.Context, f core.TxFilter) ([]core.Transaction, int, error) {
	var matched []core.Transaction
	// txOrder is append order; walk it backwards for newest first.
	for i := len(v.s.txOrder) - 1; i >= 0; i-- {
		tx := v.s.transactions[v.s.txOrder[i]]
		if f.Matches(tx) {
			tx.Metadata = maps.Clone(tx.Metadata)
			matched = append(matched, tx)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return core.Page(matched, f.Offset, f.Limit), len(matched), nil
}

func (v *memoryView) TransactionExists(_ context.Context, key string) (bool, error) {
	_, ok := v.s.idempotency[key]
	return ok, nil
}

// ---- recycle requests ----

func (v *memoryView) CreateRequest(_ context.Context, r core.RecycleRequest) error {
	if err := v.writable(); err != nil {
		return err
	}
	if _, ok := v.s.requests[r.ID]; ok {
		return core.ErrDuplicate
	}
	v.s.requests[r.ID] = cloneRequest(r)
	return nil
}

func (v *memoryView) GetRequest(_ context.Context, id string) (*core.RecycleRequest, error) {
	r, ok := v.s.requests[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	r = cloneRequest(r)
	return &r, nil
}

func (v *memoryView) UpdateRequest(_ context.Context, r core.RecycleRequest) error {
	if err := v.writable(); err != nil {
		return err
	}
	if _, ok := v.s.requests[r.ID]; !ok {
		return core.ErrNotFound
	}
	v.s.requests[r.ID] = cloneRequest(r)
	return nil
}

func (v *memoryView) ListRequests(_ context.Context, f core.RequestFilter) ([]core.RecycleRequest, int, error) {
	var matched []core.RecycleRequest
	for _, r := range v.s.requests {
		if f.Matches(r) {
			matched = append(matched, cloneRequest(r))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return core.Page(matched, f.Offset, f.Limit), len(matched), nil
}

// ---- collection points ----

func (v *memoryView) CreatePoint(_ context.Context, p core.CollectionPoint) error {
	if err := v.writable(); err != nil {
		return err
	}
	if _, ok := v.s.points[p.ID]; ok {
		return core.ErrDuplicate
	}
	v.s.points[p.ID] = clonePoint(p)
	return nil
}

func (v *memoryView) GetPoint(_ context.Context, id string) (*core.CollectionPoint, error) {
	p, ok := v.s.points[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	p = clonePoint(p)
	return &p, nil
}

func (v *memoryView) UpdatePoint(_ context.Context, p core.CollectionPoint) error {
	if err := v.writable(); err != nil {
		return err
	}
	if _, ok := v.s.points[p.ID]; !ok {
		return core.ErrNotFound
	}
	v.s.points[p.ID] = clonePoint(p)
	return nil
}

func (v *memoryView) ListPoints(_ context.Context, f core.PointFilter) ([]core.CollectionPoint, error) {
	var out []core.CollectionPoint
	for _, p := range v.s.points {
		if f.ActiveOnly && !p.IsActive {
			continue
		}
		if f.City != "" && !strings.EqualFold(p.City, f.City) {
			continue
		}
		out = append(out, clonePoint(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// =============================================================================
// CLONING
// =============================================================================

func cloneUser(u core.User) core.User {
	u.Badges = slices.Clone(u.Badges)
	u.Referrals = slices.Clone(u.Referrals)
	return u
}

func cloneQR(q core.QRCode) core.QRCode {
	q.ScanHistory = slices.Clone(q.ScanHistory)
	return q
}

func cloneRequest(r core.RecycleRequest) core.RecycleRequest {
	r.Items = slices.Clone(r.Items)
	r.ActualItems = slices.Clone(r.ActualItems)
	r.StatusHistory = slices.Clone(r.StatusHistory)
	r.Reward.BadgesEarned = slices.Clone(r.Reward.BadgesEarned)
	return r
}

func clonePoint(p core.CollectionPoint) core.CollectionPoint {
	p.AcceptedMaterials = slices.Clone(p.AcceptedMaterials)
	p.Stats.RecentDropoffs = slices.Clone(p.Stats.RecentDropoffs)
	return p
}
