// Package handler содержит HTTP-обработчики API сервиса archivemart.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/archivemart/internal/ledger"
	"github.com/mmeshcher/archivemart/internal/middleware"
	"github.com/mmeshcher/archivemart/internal/model"
	"github.com/mmeshcher/archivemart/internal/repository"
	"github.com/mmeshcher/archivemart/internal/service"
	"github.com/mmeshcher/archivemart/internal/validation"
)

const maxBodySize = 1 << 20

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, error)
	GetBalance(ctx context.Context, userID int64) (*model.Balance, error)
	ListTransactions(ctx context.Context, userID int64, limit, offset int) ([]model.LedgerTransaction, error)
	ListAccessGrants(ctx context.Context, userID int64) ([]model.AccessGrant, error)
	HasAccess(ctx context.Context, userID, productID int64) (bool, error)

	QuoteCheckout(ctx context.Context, userID int64, items []service.CartItem, promo string) (*service.CheckoutQuote, error)
	CreateOrder(ctx context.Context, userID int64, req service.CheckoutRequest) (*service.OrderCreated, error)
	ListOrders(ctx context.Context, userID int64) ([]model.Order, error)
	GetOrder(ctx context.Context, userID int64, orderID string) (*model.Order, error)
	HandlePaymentEvent(ctx context.Context, n service.PaymentNotification) error

	ClaimDaily(ctx context.Context, userID int64, draw []string) (*service.DailyClaim, error)
	DailyStatus(ctx context.Context, userID int64) (*service.DailyStatus, error)
	RestoreStreak(ctx context.Context, userID int64) (*service.StreakRestore, error)

	RedeemReferralCode(ctx context.Context, userID int64, code string) (*service.ReferralRedeem, error)
	ReferralStats(ctx context.Context, userID int64) (*service.ReferralStats, error)
	ReferralLeaderboard(ctx context.Context, limit int) ([]service.LeaderboardEntry, error)
	VipStatus(ctx context.Context, userID int64) (*service.VipStatus, error)

	CreatePromo(ctx context.Context, p service.NewPromo) (*model.PromoCode, error)
	ListPromos(ctx context.Context) ([]model.PromoCode, error)
	SetPromoActive(ctx context.Context, code string, active bool) (*model.PromoCode, error)
	UpsertProduct(ctx context.Context, p model.Product) (*model.Product, error)
	AdjustPoints(ctx context.Context, userID, amount int64, reason string) (int64, error)
	ReconcileUser(ctx context.Context, userID int64) (ledger.Reconciliation, error)
	SimulatePayment(ctx context.Context, orderID string) (*model.Order, error)
}

// Config — параметры обработчиков, не относящиеся к бизнес-логике.
type Config struct {
	AdminToken    string
	WebhookSecret string
}

// Handler реализует HTTP-обработчики API сервиса archivemart.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	cfg            Config
	now            func() time.Time
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, cfg Config) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		cfg:            cfg,
		now:            time.Now,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// Порядок важен: более конкретные ошибки проверяются раньше общих.
var errorMappings = []errorMapping{
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{repository.ErrUserExists, http.StatusConflict, "user_exists"},
	{repository.ErrPromoExists, http.StatusConflict, "promo_exists"},
	{model.ErrValidation, http.StatusBadRequest, "validation_error"},
	{model.ErrNotFound, http.StatusNotFound, "not_found"},
	{model.ErrForbidden, http.StatusForbidden, "forbidden"},
	{model.ErrInsufficientBalance, http.StatusPaymentRequired, "insufficient_balance"},
	{model.ErrBonusCapExceeded, http.StatusUnprocessableEntity, "bonus_cap_exceeded"},
	{model.ErrPromoExpired, http.StatusUnprocessableEntity, "promo_expired"},
	{model.ErrPromoExhausted, http.StatusUnprocessableEntity, "promo_exhausted"},
	{model.ErrPromoInactive, http.StatusUnprocessableEntity, "promo_inactive"},
	{model.ErrPromoBelowMinimum, http.StatusUnprocessableEntity, "promo_below_minimum"},
	{model.ErrSelfReferral, http.StatusUnprocessableEntity, "self_referral"},
	{model.ErrAlreadyClaimed, http.StatusConflict, "already_claimed"},
	{model.ErrRestoreUnavailable, http.StatusConflict, "restore_unavailable"},
	{model.ErrAlreadyReferred, http.StatusConflict, "already_referred"},
	{model.ErrOrderCancelled, http.StatusConflict, "order_cancelled"},
	{model.ErrAlreadyCompleted, http.StatusConflict, "already_completed"},
	{model.ErrExternalUnavailable, http.StatusServiceUnavailable, "external_unavailable"},
}

// writeError отвечает клиенту статусом, соответствующим ошибке. Нарушения инвариантов
// и неизвестные ошибки логируются и отдаются как 500 без подробностей.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			msg := err.Error()
			if m.status == http.StatusServiceUnavailable {
				msg = "service temporarily unavailable, try again"
			}
			writeJSON(w, m.status, errorResponse{Error: m.code, Message: msg})
			return
		}
	}

	fields := []zap.Field{zap.Error(err), zap.String("method", r.Method), zap.String("path", r.URL.Path)}
	if userID, ok := middleware.GetUserIDFromContext(r.Context()); ok {
		fields = append(fields, zap.Int64("userID", userID))
	}
	if errors.Is(err, model.ErrConsistencyViolation) {
		h.logger.Error("ledger consistency violation", fields...)
	} else {
		h.logger.Error("request failed", fields...)
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Error:   "internal_error",
		Message: http.StatusText(http.StatusInternalServerError),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON читает тело запроса и проверяет его по тегам validate.
func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", model.ErrValidation, err)
	}
	return validation.Struct(dst)
}

// decodeOptionalJSON допускает пустое тело запроса.
func decodeOptionalJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid JSON body: %v", model.ErrValidation, err)
	}
	return validation.Struct(dst)
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", model.ErrValidation, name)
	}
	return v, nil
}

func pathInt64(raw, name string) (int64, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", model.ErrValidation, name)
	}
	return v, nil
}

// currentUser достаёт пользователя из контекста. Маршруты без auth middleware сюда не попадают.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized", Message: "authentication required"})
	}
	return userID, ok
}
