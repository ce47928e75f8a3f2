package loyalty

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/archivemart/internal/model"
)

func intPtr(v int) *int { return &v }

func TestPricePromo(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name     string
		promo    *model.PromoCode
		subtotal int64
		want     PromoQuote
		wantErr  error
	}{
		{
			name:     "percentage",
			promo:    &model.PromoCode{Code: "SAVE10", Kind: model.DiscountPercentage, Value: decimal.NewFromInt(10), IsActive: true},
			subtotal: 100_00,
			want:     PromoQuote{DiscountCents: 10_00, FinalSubtotalCents: 90_00},
		},
		{
			name:     "percentage rounds to cents",
			promo:    &model.PromoCode{Code: "P15", Kind: model.DiscountPercentage, Value: decimal.NewFromInt(15), IsActive: true},
			subtotal: 3_33,
			want:     PromoQuote{DiscountCents: 50, FinalSubtotalCents: 2_83},
		},
		{
			name:     "fixed clamped to subtotal",
			promo:    &model.PromoCode{Code: "FIVE", Kind: model.DiscountFixed, Value: decimal.RequireFromString("5.00"), IsActive: true},
			subtotal: 3_00,
			want:     PromoQuote{DiscountCents: 3_00, FinalSubtotalCents: 0},
		},
		{
			name:    "unknown code",
			wantErr: model.ErrNotFound,
		},
		{
			name:    "inactive",
			promo:   &model.PromoCode{Kind: model.DiscountFixed, Value: decimal.NewFromInt(1)},
			wantErr: model.ErrPromoInactive,
		},
		{
			name:     "expired",
			promo:    &model.PromoCode{Kind: model.DiscountFixed, Value: decimal.NewFromInt(1), IsActive: true, ExpiresAt: &past},
			subtotal: 10_00,
			wantErr:  model.ErrPromoExpired,
		},
		{
			name:     "not yet expired",
			promo:    &model.PromoCode{Kind: model.DiscountFixed, Value: decimal.NewFromInt(1), IsActive: true, ExpiresAt: &future},
			subtotal: 10_00,
			want:     PromoQuote{DiscountCents: 1_00, FinalSubtotalCents: 9_00},
		},
		{
			name:     "usage limit reached",
			promo:    &model.PromoCode{Kind: model.DiscountFixed, Value: decimal.NewFromInt(1), IsActive: true, MaxUses: intPtr(2), CurrentUses: 2},
			subtotal: 10_00,
			wantErr:  model.ErrPromoExhausted,
		},
		{
			name:     "below minimum",
			promo:    &model.PromoCode{Kind: model.DiscountFixed, Value: decimal.NewFromInt(1), IsActive: true, MinPurchaseCents: 20_00},
			subtotal: 10_00,
			wantErr:  model.ErrPromoBelowMinimum,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PricePromo(tt.promo, tt.subtotal, now)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMaxBonusAndTotal(t *testing.T) {
	s := DefaultSettings()

	capPoints := s.MaxBonus(100_00, 10_00)
	assert.Equal(t, int64(6300), capPoints)
	assert.Equal(t, int64(27_00), s.Total(100_00, 10_00, capPoints))

	assert.Equal(t, int64(0), s.MaxBonus(10_00, 10_00))
	assert.Equal(t, int64(0), s.Total(10_00, 0, 5000))

	// 0.7 × 0.99 × 100 = 69.3 → 69
	assert.Equal(t, int64(69), s.MaxBonus(99, 0))
}

func TestCheckRedemption(t *testing.T) {
	s := DefaultSettings()
	capPoints := s.MaxBonus(100_00, 10_00)

	require.NoError(t, s.CheckRedemption(capPoints, capPoints, capPoints))
	require.ErrorIs(t, s.CheckRedemption(capPoints+1, capPoints, 1_000_000), model.ErrBonusCapExceeded)
	require.ErrorIs(t, s.CheckRedemption(100, capPoints, 99), model.ErrInsufficientBalance)
	require.ErrorIs(t, s.CheckRedemption(-1, capPoints, 99), model.ErrValidation)
}

func TestPointsFor(t *testing.T) {
	s := DefaultSettings()

	assert.Equal(t, int64(500), s.PointsFor(100_00, decimal.RequireFromString("0.05")))
	// 0.33 × 0.03 × 100 = 0.99 → 0
	assert.Equal(t, int64(0), s.PointsFor(33, decimal.RequireFromString("0.03")))
	assert.Equal(t, int64(0), s.PointsFor(100_00, decimal.Zero))
}

func TestSettingsValidate(t *testing.T) {
	s := DefaultSettings()
	require.NoError(t, s.Validate())

	bad := DefaultSettings()
	bad.BonusCapRatio = decimal.RequireFromString("1.5")
	bad.PointsPerUnit = 0
	bad.JackpotPolicy = "lottery"
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bonus cap ratio")
	assert.Contains(t, err.Error(), "points per unit")
	assert.Contains(t, err.Error(), "jackpot policy")
}
