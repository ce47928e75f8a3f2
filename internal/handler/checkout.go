package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/archivemart/internal/gateway"
	"github.com/mmeshcher/archivemart/internal/model"
	"github.com/mmeshcher/archivemart/internal/service"
)

type cartItemRequest struct {
	ProductID int64 `json:"product_id" validate:"gt=0"`
	Quantity  int   `json:"quantity" validate:"min=1,max=100"`
}

type checkoutRequest struct {
	Items       []cartItemRequest `json:"items" validate:"required,min=1,max=100,dive"`
	PromoCode   string            `json:"promo_code" validate:"max=64"`
	BonusesUsed int64             `json:"bonuses_used" validate:"gte=0"`
}

func (c checkoutRequest) cart() []service.CartItem {
	items := make([]service.CartItem, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, service.CartItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return items
}

// PriceCheckout рассчитывает корзину и максимально допустимое списание баллов.
func (h *Handler) PriceCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	quote, err := h.service.QuoteCheckout(r.Context(), userID, req.cart(), req.PromoCode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, quote)
}

// CreateCheckout оформляет заказ и возвращает ссылку на оплату оставшейся суммы.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	created, err := h.service.CreateOrder(r.Context(), userID, service.CheckoutRequest{
		Items:       req.cart(),
		PromoCode:   req.PromoCode,
		BonusesUsed: req.BonusesUsed,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// GetOrders возвращает заказы пользователя, новые первыми.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ListOrders(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, newOrderResponse(&orders[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetOrder возвращает заказ пользователя со строками.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	o, err := h.service.GetOrder(r.Context(), userID, chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

// PaymentWebhook принимает уведомление платёжного шлюза. После проверки подписи
// уведомление записывается, и шлюз получает 200 даже при бизнес-ошибке обработки.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: read body: %v", model.ErrValidation, err))
		return
	}

	err = gateway.Verify(payload, r.Header.Get(gateway.SignatureHeader), h.cfg.WebhookSecret, h.now(), gateway.DefaultTolerance)
	if err != nil {
		h.logger.Warn("webhook signature rejected", zap.Error(err))
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid_signature", Message: err.Error()})
		return
	}

	var status gateway.PaymentStatus
	if err := json.NewDecoder(bytes.NewReader(payload)).Decode(&status); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid JSON body: %v", model.ErrValidation, err))
		return
	}

	err = h.service.HandlePaymentEvent(r.Context(), service.PaymentNotification{PaymentStatus: status, Payload: payload})
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			h.writeError(w, r, err)
			return
		}
		// Шлюз повторит доставку.
		h.logger.Error("payment webhook failed", zap.String("externalID", status.ExternalID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal_error", Message: "retry later"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
