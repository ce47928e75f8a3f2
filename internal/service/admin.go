package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/archivemart/internal/ledger"
	"github.com/mmeshcher/archivemart/internal/loyalty"
	"github.com/mmeshcher/archivemart/internal/model"
)

// NewPromo — параметры нового промокода.
type NewPromo struct {
	Code             string
	Kind             model.DiscountKind
	Value            decimal.Decimal
	ExpiresAt        *time.Time
	MaxUses          *int
	MinPurchaseCents int64
}

// CreatePromo создаёт активный промокод. Код хранится в верхнем регистре.
func (s *Service) CreatePromo(ctx context.Context, p NewPromo) (*model.PromoCode, error) {
	code := loyalty.NormalizePromoCode(p.Code)
	if code == "" {
		return nil, fmt.Errorf("%w: promo code is required", model.ErrValidation)
	}
	if !p.Value.IsPositive() {
		return nil, fmt.Errorf("%w: promo value must be positive", model.ErrValidation)
	}
	switch p.Kind {
	case model.DiscountPercentage:
		if p.Value.GreaterThan(decimal.NewFromInt(100)) {
			return nil, fmt.Errorf("%w: percentage must not exceed 100", model.ErrValidation)
		}
	case model.DiscountFixed:
	default:
		return nil, fmt.Errorf("%w: unknown discount kind %q", model.ErrValidation, p.Kind)
	}
	if p.MaxUses != nil && *p.MaxUses <= 0 {
		return nil, fmt.Errorf("%w: max_uses must be positive", model.ErrValidation)
	}
	if p.MinPurchaseCents < 0 {
		return nil, fmt.Errorf("%w: min_purchase must not be negative", model.ErrValidation)
	}

	promo := &model.PromoCode{
		Code:             code,
		Kind:             p.Kind,
		Value:            p.Value,
		ExpiresAt:        p.ExpiresAt,
		MaxUses:          p.MaxUses,
		MinPurchaseCents: p.MinPurchaseCents,
		IsActive:         true,
		CreatedAt:        s.now(),
	}
	if err := s.repo.CreatePromo(ctx, promo); err != nil {
		return nil, err
	}

	s.logger.Info("promo code created", zap.String("code", code))
	return promo, nil
}

// ListPromos возвращает все промокоды.
func (s *Service) ListPromos(ctx context.Context) ([]model.PromoCode, error) {
	return s.repo.ListPromos(ctx)
}

// SetPromoActive включает или выключает промокод.
func (s *Service) SetPromoActive(ctx context.Context, code string, active bool) (*model.PromoCode, error) {
	code = loyalty.NormalizePromoCode(code)
	if err := s.repo.SetPromoActive(ctx, code, active); err != nil {
		return nil, err
	}
	return s.repo.GetPromo(ctx, code)
}

// UpsertProduct создаёт или обновляет позицию каталога.
func (s *Service) UpsertProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	if p.ID <= 0 {
		return nil, fmt.Errorf("%w: product id must be positive", model.ErrValidation)
	}
	if p.PriceCents < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", model.ErrValidation)
	}
	if err := s.repo.UpsertProduct(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// AdjustPoints начисляет или списывает бонусы вручную и возвращает новый баланс.
func (s *Service) AdjustPoints(ctx context.Context, userID, amount int64, reason string) (int64, error) {
	if reason == "" {
		reason = "Manual adjustment"
	}
	res, err := s.ledger.ApplyDelta(ctx, ledgerEntry(userID, amount, model.KindAdminAdjustment, reason))
	if err != nil {
		return 0, err
	}

	s.logger.Info("points adjusted",
		zap.Int64("userID", userID),
		zap.Int64("amount", amount),
		zap.Int64("balance", res.BalanceAfter),
	)
	return res.BalanceAfter, nil
}

// ReconcileUser сверяет баланс пользователя с журналом. Расхождение логируется как ошибка.
func (s *Service) ReconcileUser(ctx context.Context, userID int64) (ledger.Reconciliation, error) {
	rec, err := s.ledger.Reconcile(ctx, userID)
	if errors.Is(err, model.ErrConsistencyViolation) {
		s.logger.Error("ledger drift detected", zap.Int64("userID", userID), zap.Error(err))
	}
	return rec, err
}
