package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/archivemart/internal/model"
	"github.com/mmeshcher/archivemart/internal/notify"
)

func referralCode(t *testing.T, f *fixture, userID int64) string {
	t.Helper()
	stats, err := f.svc.ReferralStats(context.Background(), userID)
	require.NoError(t, err)
	return stats.Code
}

func TestRedeemReferralCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	code := referralCode(t, f, alice)

	_, err := f.svc.RedeemReferralCode(ctx, bob, "12345")
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.RedeemReferralCode(ctx, alice, code)
	require.ErrorIs(t, err, model.ErrSelfReferral)

	res, err := f.svc.RedeemReferralCode(ctx, bob, code)
	require.NoError(t, err)
	assert.Equal(t, "alice", res.ReferrerLogin)
	assert.Equal(t, int64(0), res.WelcomeBonus)

	_, err = f.svc.RedeemReferralCode(ctx, bob, code)
	require.ErrorIs(t, err, model.ErrAlreadyReferred)

	u, err := f.store.GetUser(ctx, bob)
	require.NoError(t, err)
	require.NotNil(t, u.ReferredBy)
	require.Equal(t, alice, *u.ReferredBy)
}

func TestRedeemReferralCodeRejectsMutualReferral(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	_, err := f.svc.RedeemReferralCode(ctx, alice, referralCode(t, f, bob))
	require.NoError(t, err)

	_, err = f.svc.RedeemReferralCode(ctx, bob, referralCode(t, f, alice))
	require.ErrorIs(t, err, model.ErrSelfReferral)

	u, err := f.store.GetUser(ctx, bob)
	require.NoError(t, err)
	assert.Nil(t, u.ReferredBy)

	stats, err := f.svc.ReferralStats(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalInvited)
}

func TestRedeemReferralCodeUnknown(t *testing.T) {
	f := newFixture(t)
	bob := f.user(t, "bob")

	code := "000000018"
	if referralCode(t, f, bob) == code {
		t.Skip("generated code collides with the fixed lookup code")
	}
	_, err := f.svc.RedeemReferralCode(context.Background(), bob, code)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestRedeemReferralCodeWelcomeBonus(t *testing.T) {
	f := newFixture(t)
	f.svc.settings.WelcomeBonus = 50
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	res, err := f.svc.RedeemReferralCode(ctx, bob, referralCode(t, f, alice))
	require.NoError(t, err)
	require.Equal(t, int64(50), res.WelcomeBonus)
	require.Equal(t, int64(50), f.balance(t, bob))
	require.Equal(t, 1, f.countKind(t, bob, model.KindWelcomeBonus))
}

func TestReferralPurchaseScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	f.product(t, 1, 50_00)
	f.product(t, 2, 50_00)

	_, err := f.svc.RedeemReferralCode(ctx, bob, referralCode(t, f, alice))
	require.NoError(t, err)

	first, err := f.svc.CreateOrder(ctx, bob, CheckoutRequest{Items: []CartItem{{ProductID: 1, Quantity: 1}}})
	require.NoError(t, err)
	f.pay(t, first.OrderID)
	f.pay(t, first.OrderID)

	// Бонус 20 и 5% с $50 = 250.
	require.Equal(t, int64(270), f.balance(t, alice))
	require.Equal(t, 1, f.countKind(t, alice, model.KindReferralBonus))
	require.Equal(t, 1, f.countKind(t, alice, model.KindReferralPurchase))

	second, err := f.svc.CreateOrder(ctx, bob, CheckoutRequest{Items: []CartItem{{ProductID: 2, Quantity: 1}}})
	require.NoError(t, err)
	f.pay(t, second.OrderID)

	require.Equal(t, int64(520), f.balance(t, alice))
	require.Equal(t, 1, f.countKind(t, alice, model.KindReferralBonus))
	require.Equal(t, 2, f.countKind(t, alice, model.KindReferralPurchase))
	require.Equal(t, 2, f.pub.count(notify.EventReferralBonusPaid))

	// Кэшбэк покупателя: bronze 3% с $50, затем silver 5% с $50.
	require.Equal(t, int64(400), f.balance(t, bob))
	require.Equal(t, 2, f.pub.count(notify.EventTierUpgraded))

	stats, err := f.svc.ReferralStats(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalInvited)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, int64(520), stats.TotalEarned)
	assert.Equal(t, int64(0), stats.PotentialEarnings)
	assert.Equal(t, "Starter", stats.Badge.Name)

	board, err := f.svc.ReferralLeaderboard(ctx, 0)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, "alice", board[0].Login)
	assert.Equal(t, int64(520), board[0].BonusesEarned)

	f.requireConsistent(t, alice)
	f.requireConsistent(t, bob)
}

func TestReferralStatsPotentialEarnings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	code := referralCode(t, f, alice)

	for _, login := range []string{"bob", "carol", "dave"} {
		id := f.user(t, login)
		_, err := f.svc.RedeemReferralCode(ctx, id, code)
		require.NoError(t, err)
	}

	stats, err := f.svc.ReferralStats(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalInvited)
	require.Equal(t, 0, stats.Active)
	require.Equal(t, int64(60), stats.PotentialEarnings)
}

func TestVipStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.user(t, "alice")
	f.product(t, 1, 50_00)

	status, err := f.svc.VipStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.TierNone, status.Tier)
	require.NotNil(t, status.NextTier)
	assert.Equal(t, model.TierBronze, *status.NextTier)
	assert.Equal(t, model.Money(1), *status.AmountToNext)

	created, err := f.svc.CreateOrder(ctx, id, CheckoutRequest{Items: []CartItem{{ProductID: 1, Quantity: 1}}})
	require.NoError(t, err)
	f.pay(t, created.OrderID)

	status, err = f.svc.VipStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.TierBronze, status.Tier)
	assert.Equal(t, "0.03", status.CashbackRate.String())
	assert.Equal(t, model.Money(50_00), status.LifetimeSpend)
	assert.Equal(t, model.TierSilver, *status.NextTier)
	assert.Equal(t, model.Money(50_00), *status.AmountToNext)
	assert.Equal(t, 1, status.Purchases)
	assert.Equal(t, int64(150), status.TotalCashback)

	u, err := f.store.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.TierBronze, u.VipTier)
	assert.Equal(t, int64(50_00), u.LifetimeSpendCents)
}
