package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/archivemart/internal/model"
	"github.com/mmeshcher/archivemart/internal/service"
)

type createPromoRequest struct {
	Code        string          `json:"code" validate:"required,max=64"`
	Kind        string          `json:"discount_type" validate:"required,oneof=percentage fixed"`
	Value       decimal.Decimal `json:"discount_value"`
	ExpiresAt   *time.Time      `json:"expires_at"`
	MaxUses     *int            `json:"max_uses" validate:"omitempty,gt=0"`
	MinPurchase model.Money     `json:"min_purchase" validate:"gte=0"`
}

type patchPromoRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

type productRequest struct {
	Title    string      `json:"title" validate:"required,max=200"`
	Price    model.Money `json:"price" validate:"gte=0"`
	IsActive *bool       `json:"is_active"`
}

type adjustPointsRequest struct {
	Amount int64  `json:"amount" validate:"ne=0"`
	Reason string `json:"reason" validate:"max=200"`
}

// CreatePromo создаёт промокод.
func (h *Handler) CreatePromo(w http.ResponseWriter, r *http.Request) {
	var req createPromoRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	promo, err := h.service.CreatePromo(r.Context(), service.NewPromo{
		Code:             req.Code,
		Kind:             model.DiscountKind(req.Kind),
		Value:            req.Value,
		ExpiresAt:        req.ExpiresAt,
		MaxUses:          req.MaxUses,
		MinPurchaseCents: int64(req.MinPurchase),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newPromoResponse(promo))
}

// ListPromos возвращает все промокоды.
func (h *Handler) ListPromos(w http.ResponseWriter, r *http.Request) {
	promos, err := h.service.ListPromos(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(promos) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]promoResponse, 0, len(promos))
	for i := range promos {
		resp = append(resp, newPromoResponse(&promos[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// PatchPromo включает или выключает промокод.
func (h *Handler) PatchPromo(w http.ResponseWriter, r *http.Request) {
	var req patchPromoRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	promo, err := h.service.SetPromoActive(r.Context(), chi.URLParam(r, "code"), *req.IsActive)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newPromoResponse(promo))
}

// PutProduct создаёт или обновляет позицию каталога.
func (h *Handler) PutProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := pathInt64(chi.URLParam(r, "productID"), "productID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	p, err := h.service.UpsertProduct(r.Context(), model.Product{
		ID:         productID,
		Title:      req.Title,
		PriceCents: int64(req.Price),
		IsActive:   active,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, productResponse{ID: p.ID, Title: p.Title, Price: model.Money(p.PriceCents), IsActive: p.IsActive})
}

// AdjustPoints вручную начисляет или списывает баллы пользователя.
func (h *Handler) AdjustPoints(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(chi.URLParam(r, "userID"), "userID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req adjustPointsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	balance, err := h.service.AdjustPoints(r.Context(), userID, req.Amount, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pointsResponse{UserID: userID, NewBalance: balance})
}

// ReconcileUser сверяет баланс пользователя с журналом. Расхождение возвращается
// в теле ответа с consistent=false, а не как ошибка сервера.
func (h *Handler) ReconcileUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(chi.URLParam(r, "userID"), "userID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	rec, err := h.service.ReconcileUser(r.Context(), userID)
	if err != nil && !errors.Is(err, model.ErrConsistencyViolation) {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// SimulatePayment завершает заказ без шлюза. Доступно только в режиме разработки.
func (h *Handler) SimulatePayment(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.SimulatePayment(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newOrderResponse(o))
}
