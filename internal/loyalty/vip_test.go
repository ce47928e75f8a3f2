package loyalty

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/archivemart/internal/model"
)

func TestTierFor(t *testing.T) {
	s := DefaultSettings()

	tests := []struct {
		spend int64
		want  model.Tier
	}{
		{0, model.TierNone},
		{1, model.TierBronze},
		{99_99, model.TierBronze},
		{100_00, model.TierSilver},
		{500_00, model.TierGold},
		{999_99, model.TierGold},
		{1000_00, model.TierDiamond},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, s.TierFor(tt.spend).Tier, "spend %d", tt.spend)
	}
}

func TestRecordSpendCrossingThresholdUsesNewRate(t *testing.T) {
	s := DefaultSettings()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	st := &model.VipState{UserID: 7, LifetimeSpendCents: 90_00, CurrentTier: model.TierBronze, CashbackRate: decimal.RequireFromString("0.03")}

	res := s.RecordSpend(st, 7, 20_00, now)
	require.True(t, res.TierChanged)
	assert.Equal(t, model.TierBronze, res.Previous)
	assert.Equal(t, model.TierSilver, res.State.CurrentTier)
	assert.Equal(t, int64(110_00), res.State.LifetimeSpendCents)
	// $20 × 5% × 100 = 100 points, not $20 × 3% × 100 = 60
	assert.Equal(t, int64(100), res.CashbackPoints)
	assert.True(t, res.State.CashbackRate.Equal(decimal.RequireFromString("0.05")))
	require.NotNil(t, res.State.TierChangedAt)
}

func TestRecordSpendFirstPurchaseAndMonotonicity(t *testing.T) {
	s := DefaultSettings()
	now := time.Now()

	res := s.RecordSpend(nil, 1, 10_00, now)
	assert.Equal(t, model.TierBronze, res.State.CurrentTier)
	assert.True(t, res.TierChanged)
	assert.Equal(t, int64(30), res.CashbackPoints)
	assert.Equal(t, 1, res.State.PurchasesCount)

	// a tier above the spend table is never lowered
	high := &model.VipState{UserID: 1, LifetimeSpendCents: 10_00, CurrentTier: model.TierGold}
	res = s.RecordSpend(high, 1, 0, now)
	assert.Equal(t, model.TierGold, res.State.CurrentTier)
	assert.False(t, res.TierChanged)
	assert.Equal(t, int64(0), res.CashbackPoints)
}

func TestNextTier(t *testing.T) {
	s := DefaultSettings()

	next, ok := s.NextTier(150_00)
	require.True(t, ok)
	assert.Equal(t, model.TierGold, next.Tier)

	_, ok = s.NextTier(5000_00)
	assert.False(t, ok)
}

func TestApplyReferralPurchase(t *testing.T) {
	s := DefaultSettings()
	now := time.Now()

	r := model.Referral{ReferrerID: 1, ReferredID: 2}

	r, first := s.ApplyReferralPurchase(r, 50_00, now)
	assert.Equal(t, int64(20), first.FirstPurchaseBonus)
	assert.Equal(t, int64(250), first.Commission)
	assert.True(t, r.FirstPurchaseMade)

	r, second := s.ApplyReferralPurchase(r, 50_00, now)
	assert.Equal(t, int64(0), second.FirstPurchaseBonus)
	assert.Equal(t, int64(250), second.Commission)
	assert.Equal(t, 2, r.TotalPurchases)
	assert.Equal(t, int64(520), r.BonusesPaid)
}

func TestBadgeFor(t *testing.T) {
	assert.Equal(t, "Starter", BadgeFor(0).Name)
	assert.Equal(t, "Bronze Referrer", BadgeFor(5).Name)
	assert.Equal(t, "Referral King", BadgeFor(150).Name)
}
