package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"servivent/backend/internal/auth"
)

func NewRouter(handler *Handler, authManager *auth.Manager, log zerolog.Logger, requestTimeout time.Duration) http.Handler {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(Recoverer(log))
	r.Use(Timeout(requestTimeout))
	r.Use(CORS)

	r.Get("/healthz", handler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login", handler.Login)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(authManager))

			// Transactional core.
			r.Post("/create-purchase", handler.CreatePurchase)
			r.Post("/create-sale", handler.CreateSale)
			r.Post("/registrar-pago-compra", handler.RegisterPurchasePayment)
			r.Post("/receive-purchase-stock", handler.ReceivePurchaseStock)
			r.Post("/update-branch-prices", handler.UpdateBranchPrices)

			r.Get("/products", handler.ListProducts)
			r.Post("/products", handler.CreateProduct)
			r.Get("/products/{id}", handler.GetProduct)
			r.Patch("/products/{id}", handler.UpdateProduct)
			r.Get("/products/{id}/branch-prices", handler.GetBranchPrices)
			r.Post("/products/{id}/import-branch-prices", handler.ImportBranchPrices)

			r.Get("/branches", handler.ListBranches)
			r.Post("/branches", handler.CreateBranch)
			r.Get("/branches/{id}/inventory", handler.GetBranchInventory)

			r.Get("/purchases", handler.ListPurchases)
			r.Get("/purchases/{id}", handler.GetPurchase)
			r.Get("/sales", handler.ListSales)
			r.Get("/sales/{id}", handler.GetSale)
		})
	})

	return r
}
