package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/archivemart/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса archivemart.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.RequestLogger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)
		r.Post("/payments/webhook", h.PaymentWebhook)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/user/balance", h.GetBalance)
			r.Get("/user/transactions", h.GetTransactions)
			r.Get("/user/library", h.GetLibrary)
			r.Get("/user/library/{productID}", h.CheckAccess)

			r.Post("/checkout/price", h.PriceCheckout)
			r.Post("/checkout/create", h.CreateCheckout)
			r.Get("/orders", h.GetOrders)
			r.Get("/orders/{orderID}", h.GetOrder)

			r.Post("/bonuses/daily/claim", h.ClaimDaily)
			r.Get("/bonuses/daily/status", h.DailyStatus)
			r.Post("/bonuses/daily/restore", h.RestoreStreak)

			r.Post("/referrals/redeem", h.RedeemReferral)
			r.Get("/referrals/me", h.ReferralStats)
			r.Get("/referrals/leaderboard", h.ReferralLeaderboard)

			r.Get("/vip", h.VipStatus)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(custommiddleware.AdminOnly(h.cfg.AdminToken))

			r.Post("/promo-codes", h.CreatePromo)
			r.Get("/promo-codes", h.ListPromos)
			r.Patch("/promo-codes/{code}", h.PatchPromo)
			r.Put("/products/{productID}", h.PutProduct)
			r.Post("/users/{userID}/points", h.AdjustPoints)
			r.Get("/users/{userID}/reconcile", h.ReconcileUser)
			r.Post("/orders/{orderID}/simulate-payment", h.SimulatePayment)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: http.StatusText(http.StatusNotFound)})
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{
			Error:   "method_not_allowed",
			Message: http.StatusText(http.StatusMethodNotAllowed),
		})
	})

	return r
}
