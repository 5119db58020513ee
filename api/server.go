/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack and the route table.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  unique id per request, echoed in logs
  2. RealIP:     client address behind a proxy
  3. Access log: one zap line per request
  4. Recoverer:  panic becomes a 500 instead of a crash
  5. CORS:       origins from config
  6. Authenticate / RequireRoles on the protected groups

ROUTE GROUPS:
  /api/health, /api/auth/register, /api/auth/login,
  catalogue and collection point reads                    public
  everything else under /api                              bearer token
  producer and staff routes                               + role gate

SEE ALSO:
  - handlers.go: endpoint table and handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ecoback/reward-engine/core"
)

// RouterOptions carries the transport settings that come from config.
type RouterOptions struct {
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		fail(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		fail(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	producers := RequireRoles(core.RoleBrand, core.RoleAdmin)
	staff := RequireRoles(core.RoleAdmin, core.RoleCollector)
	admin := RequireRoles(core.RoleAdmin)

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Get("/health", h.Health)
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)
		r.Get("/collection-points", h.ListCollectionPoints)
		r.Get("/collection-points/nearby", h.NearbyCollectionPoints)
		r.Get("/collection-points/{id}", h.GetCollectionPoint)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(h.Authenticate)

			r.Get("/auth/me", h.Me)
			r.With(producers).Post("/products", h.CreateProduct)
			r.With(producers).Put("/products/{id}", h.UpdateProduct)
			r.With(producers).Delete("/products/{id}", h.DeleteProduct)

			r.Route("/qrcodes", func(r chi.Router) {
				r.Post("/scan", h.ScanQRCode)
				r.Get("/my-scans", h.MyScans)
				r.Post("/{id}/activate-cashback", h.ActivateCashback)
				r.Post("/{id}/recycle", h.RedeemRecycle)

				r.Group(func(r chi.Router) {
					r.Use(producers)
					r.Post("/generate", h.GenerateQRCodes)
					r.Get("/batches", h.ListBatches)
					r.Get("/batches/{batchId}", h.GetBatch)
					r.Get("/stats", h.QRCodeStats)
					r.Put("/{id}/deactivate", h.DeactivateQRCode)
				})
			})

			r.Route("/recycle-requests", func(r chi.Router) {
				r.Post("/", h.CreateRecycleRequest)
				r.Get("/my-requests", h.MyRecycleRequests)
				r.With(staff).Get("/all", h.AllRecycleRequests)
				r.With(admin).Get("/stats", h.RecycleStats)
				r.Get("/{id}", h.GetRecycleRequest)
				r.Put("/{id}/status", h.UpdateRecycleStatus)
				r.With(staff).Put("/{id}/assign", h.AssignRecycleRequest)
				r.With(staff).Put("/{id}/complete", h.CompleteRecycleRequest)
			})

			r.Route("/wallet", func(r chi.Router) {
				r.Get("/", h.GetWallet)
				r.Get("/transactions", h.ListTransactions)
				r.Get("/stats", h.WalletStats)
				r.Post("/withdraw", h.Withdraw)
				r.Get("/withdrawals", h.ListWithdrawals)
				r.Delete("/withdrawals/{id}", h.CancelWithdrawal)
				r.With(admin).Put("/withdrawals/{id}/process", h.ProcessWithdrawal)
			})

			r.Route("/users", func(r chi.Router) {
				r.Get("/me/impact", h.MyImpact)
				r.Get("/me/badges", h.MyBadges)
				r.Get("/leaderboard", h.Leaderboard)
			})

			r.With(staff).Post("/collection-points", h.CreateCollectionPoint)
			r.With(admin).Put("/collection-points/{id}", h.UpdateCollectionPoint)
			r.With(admin).Delete("/collection-points/{id}", h.DeleteCollectionPoint)
			r.Post("/collection-points/{id}/dropoff", h.RecordDropoff)
			r.Get("/collection-points/{id}/stats", h.CollectionPointStats)
		})
	})

	return r
}
