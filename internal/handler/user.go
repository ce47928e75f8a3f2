package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	defaultTransactionsLimit = 50
	maxTransactionsLimit     = 500
)

type credentialsRequest struct {
	Login    string `json:"login" validate:"required,max=64"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// Register регистрирует пользователя и сразу аутентифицирует его.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	token := h.authMiddleware.SetAuthCookie(w, userID)
	h.logger.Info("user registered", zap.Int64("userID", userID))
	writeJSON(w, http.StatusOK, authResponse{UserID: userID, Token: token})
}

// Login аутентифицирует пользователя по логину и паролю.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	token := h.authMiddleware.SetAuthCookie(w, userID)
	writeJSON(w, http.StatusOK, authResponse{UserID: userID, Token: token})
}

// GetBalance возвращает баланс бонусных баллов пользователя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, balance)
}

// GetTransactions возвращает историю бонусных операций, новые первыми.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit", defaultTransactionsLimit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if limit == 0 || limit > maxTransactionsLimit {
		limit = maxTransactionsLimit
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	txs, err := h.service.ListTransactions(r.Context(), userID, limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(txs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, newTransactionResponses(txs))
}

// GetLibrary возвращает продукты, к которым у пользователя есть доступ.
func (h *Handler) GetLibrary(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	grants, err := h.service.ListAccessGrants(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(grants) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]accessGrantResponse, 0, len(grants))
	for _, g := range grants {
		resp = append(resp, accessGrantResponse{ProductID: g.ProductID, OrderID: g.OrderID, GrantedAt: g.GrantedAt})
	}
	writeJSON(w, http.StatusOK, resp)
}

// CheckAccess сообщает, есть ли у пользователя доступ к продукту.
func (h *Handler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	productID, err := pathInt64(chi.URLParam(r, "productID"), "productID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	has, err := h.service.HasAccess(r.Context(), userID, productID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"product_id": productID, "has_access": has})
}
