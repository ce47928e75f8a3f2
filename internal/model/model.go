// Package model содержит доменные сущности сервиса archivemart.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// User представляет зарегистрированного пользователя вместе с его бонусным счётом.
type User struct {
	ID                   int64
	Login                string
	PasswordHash         []byte
	ReferralCode         string
	ReferredBy           *int64
	PointBalance         int64
	LifetimePointsEarned int64
	LifetimePointsSpent  int64
	LifetimeSpendCents   int64
	VipTier              Tier
	CreatedAt            time.Time
}

// TransactionKind описывает причину изменения бонусного баланса.
type TransactionKind string

const (
	KindPurchasePayment  TransactionKind = "purchase_payment"
	KindPurchaseCashback TransactionKind = "purchase_cashback"
	KindReferralBonus    TransactionKind = "referral_bonus"
	KindReferralPurchase TransactionKind = "referral_purchase"
	KindWelcomeBonus     TransactionKind = "welcome_bonus"
	KindDailyClaim       TransactionKind = "daily_claim"
	KindSlotJackpot      TransactionKind = "slot_jackpot"
	KindStreakRestoreFee TransactionKind = "streak_restore_fee"
	KindAdminAdjustment  TransactionKind = "admin_adjustment"
)

// Valid сообщает, известен ли тип транзакции.
func (k TransactionKind) Valid() bool {
	switch k {
	case KindPurchasePayment, KindPurchaseCashback, KindReferralBonus, KindReferralPurchase,
		KindWelcomeBonus, KindDailyClaim, KindSlotJackpot, KindStreakRestoreFee, KindAdminAdjustment:
		return true
	}
	return false
}

// LedgerTransaction — неизменяемая запись журнала бонусных операций.
type LedgerTransaction struct {
	ID                    int64
	UserID                int64
	Amount                int64
	BalanceAfter          int64
	Kind                  TransactionKind
	Description           string
	RelatedOrderID        *string
	RelatedReferralUserID *int64
	CreatedAt             time.Time
}

// StreakState хранит состояние ежедневного бонуса пользователя.
type StreakState struct {
	UserID         int64
	LastClaimDate  *time.Time
	StreakCount    int
	StreakRestored bool
	MaxStreak      int
	TotalClaims    int
	TotalClaimed   int64
	SlotWins       int
	LastSlotResult string
	UpdatedAt      time.Time
}

// Tier — уровень VIP-программы.
type Tier string

const (
	TierNone    Tier = "none"
	TierBronze  Tier = "bronze"
	TierSilver  Tier = "silver"
	TierGold    Tier = "gold"
	TierDiamond Tier = "diamond"
)

// Rank возвращает порядковый номер уровня, чтобы уровни можно было сравнивать.
func (t Tier) Rank() int {
	switch t {
	case TierBronze:
		return 1
	case TierSilver:
		return 2
	case TierGold:
		return 3
	case TierDiamond:
		return 4
	default:
		return 0
	}
}

// VipState хранит накопленные траты пользователя и его текущий VIP-уровень.
type VipState struct {
	UserID              int64
	LifetimeSpendCents  int64
	CurrentTier         Tier
	CashbackRate        decimal.Decimal
	PurchasesCount      int
	TotalCashbackEarned int64
	TierChangedAt       *time.Time
}

// Referral связывает приглашённого пользователя с пригласившим.
type Referral struct {
	ID                int64
	ReferrerID        int64
	ReferredID        int64
	FirstPurchaseMade bool
	FirstPurchaseAt   *time.Time
	TotalPurchases    int
	TotalSpendCents   int64
	BonusesPaid       int64
	CreatedAt         time.Time
}

// DiscountKind описывает способ расчёта скидки промокода.
type DiscountKind string

const (
	DiscountPercentage DiscountKind = "percentage"
	DiscountFixed      DiscountKind = "fixed"
)

// PromoCode описывает промокод со скидкой.
type PromoCode struct {
	Code             string
	Kind             DiscountKind
	Value            decimal.Decimal
	ExpiresAt        *time.Time
	MaxUses          *int
	CurrentUses      int
	MinPurchaseCents int64
	IsActive         bool
	CreatedAt        time.Time
}

// Product — позиция каталога с актуальной ценой.
type Product struct {
	ID         int64
	Title      string
	PriceCents int64
	IsActive   bool
}

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order описывает заказ с разбивкой оплаты на бонусы и деньги.
type Order struct {
	ID                string
	UserID            int64
	SubtotalCents     int64
	DiscountCents     int64
	BonusesUsed       int64
	TotalCents        int64
	Status            OrderStatus
	PromoCode         *string
	ExternalPaymentID *string
	PaymentURL        *string
	Items             []OrderItem
	CreatedAt         time.Time
	CompletedAt       *time.Time
	CancelledAt       *time.Time
}

// OrderItem — строка заказа с зафиксированной ценой каталога.
type OrderItem struct {
	ProductID  int64
	Quantity   int
	PriceCents int64
}

// AccessGrant фиксирует право пользователя скачивать продукт.
type AccessGrant struct {
	UserID    int64
	ProductID int64
	OrderID   string
	GrantedAt time.Time
}

// PaymentEvent — полученное от платёжного шлюза уведомление.
type PaymentEvent struct {
	ID          int64
	ExternalID  string
	Status      string
	AmountCents int64
	Payload     []byte
	ReceivedAt  time.Time
}

// Balance содержит текущий баланс пользователя и итоги начислений и списаний.
type Balance struct {
	Current int64 `json:"current"`
	Earned  int64 `json:"earned"`
	Spent   int64 `json:"spent"`
}

// ReferrerStats — агрегаты реферальной программы по одному пригласившему.
type ReferrerStats struct {
	UserID        int64
	Login         string
	Invited       int
	Active        int
	BonusesEarned int64
}

// Money — денежная сумма в центах. В JSON передаётся числом с двумя знаками после запятой.
type Money int64

// MarshalJSON выводит сумму в единицах валюты.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(decimal.New(int64(m), -2).StringFixed(2)), nil
}

// UnmarshalJSON принимает сумму числом или строкой и округляет её до цента.
func (m *Money) UnmarshalJSON(b []byte) error {
	d, err := decimal.NewFromString(strings.Trim(string(b), `"`))
	if err != nil {
		return fmt.Errorf("parse money: %w", err)
	}
	*m = Money(d.Shift(2).Round(0).IntPart())
	return nil
}
