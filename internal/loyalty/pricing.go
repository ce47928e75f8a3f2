package loyalty

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/archivemart/internal/model"
)

var hundred = decimal.NewFromInt(100)

// PromoQuote — результат применения промокода к сумме корзины.
type PromoQuote struct {
	DiscountCents      int64
	FinalSubtotalCents int64
}

// NormalizePromoCode приводит код к виду, в котором он хранится.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// PricePromo проверяет промокод и рассчитывает скидку. Счётчик использований не меняется:
// он увеличивается только при завершении заказа.
func PricePromo(p *model.PromoCode, subtotalCents int64, now time.Time) (PromoQuote, error) {
	if p == nil {
		return PromoQuote{}, fmt.Errorf("promo code: %w", model.ErrNotFound)
	}
	if !p.IsActive {
		return PromoQuote{}, model.ErrPromoInactive
	}
	if p.ExpiresAt != nil && !now.Before(*p.ExpiresAt) {
		return PromoQuote{}, model.ErrPromoExpired
	}
	if p.MaxUses != nil && p.CurrentUses >= *p.MaxUses {
		return PromoQuote{}, model.ErrPromoExhausted
	}
	if subtotalCents < p.MinPurchaseCents {
		return PromoQuote{}, model.ErrPromoBelowMinimum
	}

	var discount int64
	switch p.Kind {
	case model.DiscountPercentage:
		discount = decimal.NewFromInt(subtotalCents).Mul(p.Value).Div(hundred).Round(0).IntPart()
	case model.DiscountFixed:
		discount = p.Value.Shift(2).Round(0).IntPart()
	default:
		return PromoQuote{}, fmt.Errorf("%w: unknown discount kind %q", model.ErrValidation, p.Kind)
	}

	if discount < 0 {
		discount = 0
	}
	if discount > subtotalCents {
		discount = subtotalCents
	}

	return PromoQuote{
		DiscountCents:      discount,
		FinalSubtotalCents: subtotalCents - discount,
	}, nil
}

// MaxBonus возвращает максимальное число бонусов, которым можно оплатить заказ:
// floor(BonusCapRatio × (subtotal − discount) × PointsPerUnit).
func (s Settings) MaxBonus(subtotalCents, discountCents int64) int64 {
	base := subtotalCents - discountCents
	if base <= 0 {
		return 0
	}

	return decimal.NewFromInt(base).
		Mul(decimal.NewFromInt(s.PointsPerUnit)).
		Div(hundred).
		Mul(s.BonusCapRatio).
		Floor().
		IntPart()
}

// BonusValueCents переводит бонусы в денежный эквивалент, округляя вниз до цента.
func (s Settings) BonusValueCents(points int64) int64 {
	if points <= 0 {
		return 0
	}
	return decimal.NewFromInt(points).
		Mul(hundred).
		Div(decimal.NewFromInt(s.PointsPerUnit)).
		Floor().
		IntPart()
}

// Total рассчитывает сумму к оплате деньгами после скидки и бонусов.
func (s Settings) Total(subtotalCents, discountCents, points int64) int64 {
	total := subtotalCents - discountCents - s.BonusValueCents(points)
	if total < 0 {
		return 0
	}
	return total
}

// PointsFor переводит долю денежной суммы в бонусы с отбрасыванием дробной части:
// trunc(cash × rate × PointsPerUnit).
func (s Settings) PointsFor(cashCents int64, rate decimal.Decimal) int64 {
	if cashCents <= 0 || !rate.IsPositive() {
		return 0
	}
	return decimal.NewFromInt(cashCents).
		Div(hundred).
		Mul(rate).
		Mul(decimal.NewFromInt(s.PointsPerUnit)).
		Truncate(0).
		IntPart()
}

// CheckRedemption проверяет запрошенное списание бонусов против лимита и баланса.
// Лишние бонусы не урезаются молча: превышение возвращается ошибкой.
func (s Settings) CheckRedemption(requested, capPoints, balance int64) error {
	if requested < 0 {
		return fmt.Errorf("%w: bonuses_used must not be negative", model.ErrValidation)
	}
	if requested > capPoints {
		return fmt.Errorf("%w: requested %d, allowed %d", model.ErrBonusCapExceeded, requested, capPoints)
	}
	if requested > balance {
		return fmt.Errorf("%w: requested %d, balance %d", model.ErrInsufficientBalance, requested, balance)
	}
	return nil
}

// CentsToDecimal переводит центы в денежную сумму с двумя знаками.
func CentsToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// DecimalToCents переводит денежную сумму в центы, округляя до ближайшего цента.
func DecimalToCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}
