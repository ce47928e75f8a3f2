// Package repository содержит контракт хранилища и его реализацию в PostgreSQL.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mmeshcher/archivemart/internal/model"
)

// Ошибки хранилища оборачивают ошибки предметной области, поэтому errors.Is(err, model.ErrNotFound)
// выполняется для любой ошибки «не найдено».
var (
	// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
	ErrUserExists = fmt.Errorf("user already exists: %w", model.ErrValidation)
	// ErrReferralCodeTaken возвращается, если сгенерированный реферальный код уже занят.
	ErrReferralCodeTaken = fmt.Errorf("referral code taken: %w", model.ErrValidation)
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound   = fmt.Errorf("user: %w", model.ErrNotFound)
	ErrOrderNotFound  = fmt.Errorf("order: %w", model.ErrNotFound)
	ErrPromoNotFound  = fmt.Errorf("promo code: %w", model.ErrNotFound)
	ErrPromoExists    = fmt.Errorf("promo code already exists: %w", model.ErrValidation)
	ErrOrderNotActive = fmt.Errorf("order is not pending: %w", model.ErrValidation)
	// ErrPromoLimitReached — счётчик использований промокода уже достиг max_uses.
	ErrPromoLimitReached = fmt.Errorf("promo usage limit reached: %w", model.ErrPromoExhausted)
)

// Queries описывает операции хранилища. Один и тот же набор доступен и вне транзакции,
// и внутри WithTx; изменяющие баланс операции вызываются только внутри транзакции.
type Queries interface {
	CreateUser(ctx context.Context, u *model.User) (int64, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*model.User, error)
	// LockUser читает пользователя с блокировкой строки до конца транзакции.
	LockUser(ctx context.Context, id int64) (*model.User, error)
	UpdateUserPoints(ctx context.Context, id, balance, earned, spent int64) error
	SetUserVip(ctx context.Context, id, spendCents int64, tier model.Tier) error
	SetReferredBy(ctx context.Context, id, referrerID int64) error

	InsertTransaction(ctx context.Context, t *model.LedgerTransaction) (int64, error)
	// LastTransaction возвращает nil без ошибки, если у пользователя нет записей.
	LastTransaction(ctx context.Context, userID int64) (*model.LedgerTransaction, error)
	SumTransactions(ctx context.Context, userID int64) (int64, error)
	ListTransactions(ctx context.Context, userID int64, limit, offset int) ([]model.LedgerTransaction, error)

	// GetStreak возвращает nil без ошибки, если пользователь ещё не получал бонус.
	GetStreak(ctx context.Context, userID int64) (*model.StreakState, error)
	SaveStreak(ctx context.Context, st *model.StreakState) error

	// GetVip возвращает nil без ошибки, если у пользователя ещё нет покупок.
	GetVip(ctx context.Context, userID int64) (*model.VipState, error)
	SaveVip(ctx context.Context, st *model.VipState) error

	// GetReferralByReferred возвращает nil без ошибки, если пользователя никто не приглашал.
	GetReferralByReferred(ctx context.Context, referredID int64) (*model.Referral, error)
	InsertReferral(ctx context.Context, r *model.Referral) (int64, error)
	SaveReferral(ctx context.Context, r *model.Referral) error
	ReferrerStats(ctx context.Context, referrerID int64) (model.ReferrerStats, error)
	Leaderboard(ctx context.Context, limit int) ([]model.ReferrerStats, error)

	GetPromo(ctx context.Context, code string) (*model.PromoCode, error)
	CreatePromo(ctx context.Context, p *model.PromoCode) error
	ListPromos(ctx context.Context) ([]model.PromoCode, error)
	SetPromoActive(ctx context.Context, code string, active bool) error
	IncrementPromoUses(ctx context.Context, code string) error

	// GetProducts читает цены каталога одним запросом.
	GetProducts(ctx context.Context, ids []int64) (map[int64]model.Product, error)
	UpsertProduct(ctx context.Context, p *model.Product) error

	InsertOrder(ctx context.Context, o *model.Order) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	// LockOrder читает заказ с блокировкой строки до конца транзакции.
	LockOrder(ctx context.Context, id string) (*model.Order, error)
	GetOrderByExternalID(ctx context.Context, externalID string) (*model.Order, error)
	MarkOrderCompleted(ctx context.Context, id string, at time.Time) error
	MarkOrderCancelled(ctx context.Context, id string, at time.Time) error
	ListOrders(ctx context.Context, userID int64) ([]model.Order, error)
	ListStalePendingOrders(ctx context.Context, before time.Time, limit int) ([]model.Order, error)

	// InsertAccessGrant создаёт доступ, если его ещё нет, и сообщает, был ли он создан.
	InsertAccessGrant(ctx context.Context, g model.AccessGrant) (bool, error)
	ListAccessGrants(ctx context.Context, userID int64) ([]model.AccessGrant, error)
	HasAccess(ctx context.Context, userID, productID int64) (bool, error)

	InsertPaymentEvent(ctx context.Context, e *model.PaymentEvent) (int64, error)
}

// Store — хранилище с поддержкой транзакций. fn выполняется атомарно: при ошибке
// ни одно изменение не сохраняется. fn может быть вызвана повторно при конфликте сериализации.
type Store interface {
	Queries
	WithTx(ctx context.Context, fn func(q Queries) error) error
	Close() error
}
