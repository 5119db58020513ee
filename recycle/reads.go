package recycle

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ecoback/reward-engine/core"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// MyRequests lists the owner's requests, newest first. An empty status
// means all of them.
func (s *Service) MyRequests(ctx context.Context, userID core.UserID, status core.RequestStatus) ([]core.RecycleRequest, error) {
	if status != "" && !status.Valid() {
		return nil, core.Invalid("status", "unknown status")
	}
	var out []core.RecycleRequest
	err := s.store.View(ctx, func(r core.Repository) error {
		var err error
		out, _, err = r.ListRequests(ctx, core.RequestFilter{UserID: userID, Status: status})
		return err
	})
	if out == nil {
		out = []core.RecycleRequest{}
	}
	return out, err
}

// Get returns one request to its owner or to staff.
func (s *Service) Get(ctx context.Context, caller core.Principal, id string) (*core.RecycleRequest, error) {
	var req *core.RecycleRequest
	err := s.store.View(ctx, func(r core.Repository) error {
		var err error
		req, err = r.GetRequest(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if req.UserID != caller.ID && !caller.HasRole(core.RoleAdmin, core.RoleCollector) {
		return nil, core.ErrForbidden
	}
	return req, nil
}

type RequestPage struct {
	Items []core.RecycleRequest `json:"items"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
	Total int                   `json:"total"`
	Pages int                   `json:"pages"`
}

// All is the staff listing. Collectors only ever see their own assignments.
func (s *Service) All(ctx context.Context, caller core.Principal, f core.RequestFilter, page, limit int) (*RequestPage, error) {
	if !caller.HasRole(core.RoleAdmin, core.RoleCollector) {
		return nil, core.ErrForbidden
	}
	if caller.Role == core.RoleCollector {
		f.CollectorID = caller.ID
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	f.Offset, f.Limit = (page-1)*limit, limit

	out := &RequestPage{Page: page, Limit: limit}
	err := s.store.View(ctx, func(r core.Repository) error {
		var err error
		out.Items, out.Total, err = r.ListRequests(ctx, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out.Items == nil {
		out.Items = []core.RecycleRequest{}
	}
	out.Pages = (out.Total + limit - 1) / limit
	return out, nil
}

// =============================================================================
// STATS
// =============================================================================

type StatusCount struct {
	Status      core.RequestStatus `json:"status"`
	Count       int                `json:"count"`
	TotalWeight decimal.Decimal    `json:"totalWeight"`
}

type MonthCount struct {
	Year        int             `json:"year"`
	Month       time.Month      `json:"month"`
	Count       int             `json:"count"`
	TotalWeight decimal.Decimal `json:"totalWeight"`
}

type Stats struct {
	ByStatus    []StatusCount   `json:"byStatus"`
	Monthly     []MonthCount    `json:"monthly"`
	TotalPaid   core.Money      `json:"totalRewardPaid"`
	TotalWeight decimal.Decimal `json:"totalVerifiedWeight"`
}

// Stats groups every request by status and by creation month over the
// last six months. Weights are verified weights; unverified requests count
// as zero.
func (s *Service) Stats(ctx context.Context, caller core.Principal) (*Stats, error) {
	if !caller.IsAdmin() {
		return nil, core.ErrForbidden
	}
	var all []core.RecycleRequest
	err := s.store.View(ctx, func(r core.Repository) error {
		var err error
		all, _, err = r.ListRequests(ctx, core.RequestFilter{})
		return err
	})
	if err != nil {
		return nil, err
	}

	since := s.clock.Now().AddDate(0, -6, 0)
	st := &Stats{
		ByStatus:    []StatusCount{},
		Monthly:     []MonthCount{},
		TotalPaid:   core.NewMoney(0),
		TotalWeight: decimal.Zero,
	}
	byStatus := map[core.RequestStatus]*StatusCount{}
	type ym struct {
		y int
		m time.Month
	}
	byMonth := map[ym]*MonthCount{}

	for _, req := range all {
		w := decimal.Zero
		if req.Verification != nil {
			w = req.Verification.ActualWeight
		}
		sc, ok := byStatus[req.Status]
		if !ok {
			sc = &StatusCount{Status: req.Status, TotalWeight: decimal.Zero}
			byStatus[req.Status] = sc
		}
		sc.Count++
		sc.TotalWeight = sc.TotalWeight.Add(w)
		st.TotalWeight = st.TotalWeight.Add(w)
		if req.Status == core.RequestCompleted {
			st.TotalPaid = st.TotalPaid.Add(req.Reward.Amount)
		}

		if req.CreatedAt.Before(since) {
			continue
		}
		k := ym{req.CreatedAt.Year(), req.CreatedAt.Month()}
		mc, ok := byMonth[k]
		if !ok {
			mc = &MonthCount{Year: k.y, Month: k.m, TotalWeight: decimal.Zero}
			byMonth[k] = mc
		}
		mc.Count++
		mc.TotalWeight = mc.TotalWeight.Add(w)
	}

	for _, sc := range byStatus {
		st.ByStatus = append(st.ByStatus, *sc)
	}
	sort.Slice(st.ByStatus, func(i, j int) bool { return st.ByStatus[i].Status < st.ByStatus[j].Status })
	for _, mc := range byMonth {
		st.Monthly = append(st.Monthly, *mc)
	}
	sort.Slice(st.Monthly, func(i, j int) bool {
		if st.Monthly[i].Year != st.Monthly[j].Year {
			return st.Monthly[i].Year < st.Monthly[j].Year
		}
		return st.Monthly[i].Month < st.Monthly[j].Month
	})
	return st, nil
}
