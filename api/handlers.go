/*
handlers.go - HTTP handlers for the reward engine

PURPOSE:
  Decodes requests, resolves the caller from the bearer token, delegates to
  the domain services and renders the result in the response envelope.
  Handlers hold no business rules: authorization beyond "is authenticated /
  has role" lives in the services, which see a core.Principal.

ENDPOINTS (all under /api):
  Auth:
    POST   /auth/register                   Create account (+ referral bonus)
    POST   /auth/login                      Issue bearer token
    GET    /auth/me                         Current account

  Products:
    GET    /products                        Active catalogue (?brand=&category=)
    POST   /products                        Create product (brand/admin)
    GET    /products/{id}                   Product detail
    PUT    /products/{id}                   Update product (owning brand/admin)
    DELETE /products/{id}                   Soft delete product (owning brand/admin)

  QR codes:
    POST   /qrcodes/generate                Create a batch (brand/admin)
    POST   /qrcodes/scan                    View scan, claim eligibility
    POST   /qrcodes/{id}/activate-cashback  Claim cashback sub-reward
    POST   /qrcodes/{id}/recycle            Claim recycle sub-reward
    PUT    /qrcodes/{id}/deactivate         Tombstone a code (owning brand/admin)
    GET    /qrcodes/batches                 Batches in scope (brand/admin)
    GET    /qrcodes/batches/{batchId}       Codes of one batch (brand/admin)
    GET    /qrcodes/stats                   Scan/claim totals (brand/admin)
    GET    /qrcodes/my-scans                Caller's scan history

  Recycle requests:
    POST   /recycle-requests                Submit pickup/dropoff
    GET    /recycle-requests/my-requests    Caller's requests (?status=)
    GET    /recycle-requests/all            Paged staff listing
    GET    /recycle-requests/stats          Admin aggregates
    GET    /recycle-requests/{id}           Detail (owner or staff)
    PUT    /recycle-requests/{id}/assign    Assign collector (admin/collector)
    PUT    /recycle-requests/{id}/status    Status change / cancel
    PUT    /recycle-requests/{id}/complete  Verify weights and pay (admin/collector)

  Wallet:
    GET    /wallet                          Balance summary
    GET    /wallet/transactions             Filtered, paged ledger
    GET    /wallet/stats                    Per-kind and monthly totals
    POST   /wallet/withdraw                 Pending withdrawal
    GET    /wallet/withdrawals              Caller's withdrawals
    DELETE /wallet/withdrawals/{id}         Cancel pending withdrawal
    PUT    /wallet/withdrawals/{id}/process Settle or reject (admin)

  Users:
    GET    /users/me/impact                 Environmental impact
    GET    /users/me/badges                 Badge catalogue with status
    GET    /users/leaderboard               Ranking (?type=&limit=)

  Collection points:
    GET    /collection-points               Active points (?city=&material=&search=)
    GET    /collection-points/nearby        Closest points (?lat=&lng=&maxDistance=&limit=)
    GET    /collection-points/{id}          Point detail
    POST   /collection-points               Create point (admin/collector)
    PUT    /collection-points/{id}          Update point (admin)
    DELETE /collection-points/{id}          Soft delete point (admin)
    POST   /collection-points/{id}/dropoff  Record a walk-in dropoff
    GET    /collection-points/{id}/stats    Day/week/month totals

  GET    /health                            Liveness

ERROR HANDLING:
  See response.go for the error-to-status table.

SEE ALSO:
  - dto.go:        request bodies and the user DTO
  - middleware.go: bearer auth, role gates, access log
  - server.go:     router wiring
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ecoback/reward-engine/auth"
	"github.com/ecoback/reward-engine/collection"
	"github.com/ecoback/reward-engine/core"
	"github.com/ecoback/reward-engine/gamification"
	"github.com/ecoback/reward-engine/qrcode"
	"github.com/ecoback/reward-engine/recycle"
	"github.com/ecoback/reward-engine/wallet"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Services bundles the domain services the API delegates to.
type Services struct {
	Auth         *auth.Service
	QRCodes      *qrcode.Service
	Recycle      *recycle.Service
	Wallet       *wallet.Service
	Gamification *gamification.Service
	Collection   *collection.Service
}

type Handler struct {
	svc    Services
	tokens Verifier
	clock  core.Clock
	log    *zap.Logger
}

func NewHandler(svc Services, clock core.Clock, log *zap.Logger) *Handler {
	return &Handler{svc: svc, tokens: svc.Auth.Tokens(), clock: clock, log: log.Named("api")}
}

// maxBodyBytes caps request bodies; batch generation is the largest.
const maxBodyBytes = 1 << 20

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return core.Invalid("body", "invalid JSON: "+err.Error())
	}
	return nil
}

// =============================================================================
// QUERY PARAMETERS
// =============================================================================

// query collects parse failures so a handler reports them all at once.
type query struct {
	r *http.Request
	v core.ValidationError
}

func newQuery(r *http.Request) *query { return &query{r: r} }

func (q *query) str(name string) string {
	return strings.TrimSpace(q.r.URL.Query().Get(name))
}

func (q *query) integer(name string, def int) int {
	s := q.str(name)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		q.v.Add(name, "must be an integer")
		return def
	}
	return n
}

func (q *query) number(name string, required bool) float64 {
	s := q.str(name)
	if s == "" {
		if required {
			q.v.Add(name, "required")
		}
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		q.v.Add(name, "must be a number")
	}
	return f
}

func (q *query) money(name string) *core.Money {
	s := q.str(name)
	if s == "" {
		return nil
	}
	m, err := core.ParseMoney(s)
	if err != nil {
		q.v.Add(name, "must be a decimal amount")
		return nil
	}
	return &m
}

// date accepts YYYY-MM-DD or RFC 3339. A bare date used as an upper bound
// covers the whole day.
func (q *query) date(name string, endOfDay bool) *time.Time {
	s := q.str(name)
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		q.v.Add(name, "must be YYYY-MM-DD or RFC 3339")
		return nil
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t
}

func (q *query) list(name string) []string {
	s := q.str(name)
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (q *query) err() error {
	if len(q.v.Fields) == 0 {
		return nil
	}
	return &q.v
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ok(w, map[string]any{"status": "ok", "time": h.clock.Now()}, "")
}

// =============================================================================
// AUTH
// =============================================================================

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	s, err := h.svc.Auth.Register(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	created(w, toSessionDTO(s), "registration successful")
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in LoginRequest
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	s, err := h.svc.Auth.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, toSessionDTO(s), "login successful")
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Auth.Me(r.Context(), principal(r).ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, toUserDTO(u), "")
}

// =============================================================================
// USERS
// =============================================================================

func (h *Handler) MyImpact(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Gamification.Impact(r.Context(), principal(r).ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, rep, "")
}

func (h *Handler) MyBadges(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Gamification.Badges(r.Context(), principal(r).ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, rep, "")
}

func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	kind := gamification.ParseLeaderboardType(q.str("type"))
	limit := q.integer("limit", gamification.DefaultLeaderboardLimit)
	if err := q.err(); err != nil {
		h.writeError(w, r, err)
		return
	}
	lb, err := h.svc.Gamification.Leaderboard(r.Context(), kind, limit, principal(r).ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, lb, "")
}
