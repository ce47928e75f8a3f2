package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/archivemart/internal/model"
	"github.com/mmeshcher/archivemart/internal/repository"
)

func newUser(t *testing.T, s *Store, login, code string) int64 {
	t.Helper()
	id, err := s.CreateUser(context.Background(), &model.User{Login: login, PasswordHash: []byte("x"), ReferralCode: code})
	require.NoError(t, err)
	return id
}

func TestCreateUserUniqueness(t *testing.T) {
	s := New()
	newUser(t, s, "alice", "000000018")

	_, err := s.CreateUser(context.Background(), &model.User{Login: "alice", ReferralCode: "000000026"})
	require.ErrorIs(t, err, repository.ErrUserExists)

	_, err = s.CreateUser(context.Background(), &model.User{Login: "bob", ReferralCode: "000000018"})
	require.ErrorIs(t, err, repository.ErrReferralCodeTaken)

	_, err = s.GetUser(context.Background(), 42)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	uid := newUser(t, s, "alice", "000000018")

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(q repository.Queries) error {
		if _, err := q.InsertTransaction(ctx, &model.LedgerTransaction{UserID: uid, Amount: 10, BalanceAfter: 10, Kind: model.KindAdminAdjustment}); err != nil {
			return err
		}
		if err := q.UpdateUserPoints(ctx, uid, 10, 10, 0); err != nil {
			return err
		}
		if _, err := q.InsertAccessGrant(ctx, model.AccessGrant{UserID: uid, ProductID: 1, OrderID: "o1"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	u, err := s.GetUser(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, int64(0), u.PointBalance)

	last, err := s.LastTransaction(ctx, uid)
	require.NoError(t, err)
	assert.Nil(t, last)

	ok, err := s.HasAccess(ctx, uid, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccessGrantIsUnique(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, err := s.InsertAccessGrant(ctx, model.AccessGrant{UserID: 1, ProductID: 7, OrderID: "a"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.InsertAccessGrant(ctx, model.AccessGrant{UserID: 1, ProductID: 7, OrderID: "b"})
	require.NoError(t, err)
	assert.False(t, created)

	grants, err := s.ListAccessGrants(ctx, 1)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "a", grants[0].OrderID)
}

func TestListTransactionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i := int64(1); i <= 5; i++ {
		_, err := s.InsertTransaction(ctx, &model.LedgerTransaction{UserID: 1, Amount: i, BalanceAfter: i * (i + 1) / 2, Kind: model.KindDailyClaim})
		require.NoError(t, err)
	}

	page, err := s.ListTransactions(ctx, 1, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(4), page[0].Amount)
	assert.Equal(t, int64(3), page[1].Amount)

	sum, err := s.SumTransactions(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(15), sum)
}

func TestOrderTransitionsOnlyFromPending(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.InsertOrder(ctx, &model.Order{ID: "o1", UserID: 1, Status: model.OrderStatusPending,
		Items: []model.OrderItem{{ProductID: 1, Quantity: 1, PriceCents: 100}}}))

	require.NoError(t, s.MarkOrderCompleted(ctx, "o1", time.Now()))
	require.ErrorIs(t, s.MarkOrderCompleted(ctx, "o1", time.Now()), repository.ErrOrderNotActive)
	require.ErrorIs(t, s.MarkOrderCancelled(ctx, "o1", time.Now()), repository.ErrOrderNotActive)

	o, err := s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCompleted, o.Status)
	require.NotNil(t, o.CompletedAt)
	require.Len(t, o.Items, 1)
}

func TestSetReferredByIsImmutable(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := newUser(t, s, "a", "000000018")
	b := newUser(t, s, "b", "000000026")

	require.NoError(t, s.SetReferredBy(ctx, b, a))
	require.ErrorIs(t, s.SetReferredBy(ctx, b, a), model.ErrAlreadyReferred)

	_, err := s.InsertReferral(ctx, &model.Referral{ReferrerID: a, ReferredID: b})
	require.NoError(t, err)
	_, err = s.InsertReferral(ctx, &model.Referral{ReferrerID: a, ReferredID: b})
	require.ErrorIs(t, err, model.ErrAlreadyReferred)

	board, err := s.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, "a", board[0].Login)
	assert.Equal(t, 1, board[0].Invited)
}

func TestWithTxSerializesConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s := New()
	uid := newUser(t, s, "alice", "000000018")

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithTx(ctx, func(q repository.Queries) error {
				u, err := q.LockUser(ctx, uid)
				if err != nil {
					return err
				}
				return q.UpdateUserPoints(ctx, uid, u.PointBalance+1, u.LifetimePointsEarned+1, 0)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	u, err := s.GetUser(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, int64(50), u.PointBalance)
}

func TestInsertPaymentEventRequiresPayload(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.InsertPaymentEvent(ctx, &model.PaymentEvent{ExternalID: "pay_1", Status: "paid"})
	require.Error(t, err)
	assert.Empty(t, s.PaymentEvents())

	id, err := s.InsertPaymentEvent(ctx, &model.PaymentEvent{ExternalID: "pay_1", Status: "paid", Payload: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestIncrementPromoUsesStopsAtLimit(t *testing.T) {
	ctx := context.Background()
	s := New()
	limit := 1
	require.NoError(t, s.CreatePromo(ctx, &model.PromoCode{Code: "ONCE", Kind: model.DiscountFixed, MaxUses: &limit, IsActive: true}))
	require.NoError(t, s.CreatePromo(ctx, &model.PromoCode{Code: "OPEN", Kind: model.DiscountFixed, IsActive: true}))

	require.NoError(t, s.IncrementPromoUses(ctx, "ONCE"))
	err := s.IncrementPromoUses(ctx, "ONCE")
	require.ErrorIs(t, err, repository.ErrPromoLimitReached)
	require.ErrorIs(t, err, model.ErrPromoExhausted)

	for range 3 {
		require.NoError(t, s.IncrementPromoUses(ctx, "OPEN"))
	}
	require.ErrorIs(t, s.IncrementPromoUses(ctx, "NOPE"), repository.ErrPromoNotFound)

	once, err := s.GetPromo(ctx, "ONCE")
	require.NoError(t, err)
	assert.Equal(t, 1, once.CurrentUses)
	open, err := s.GetPromo(ctx, "OPEN")
	require.NoError(t, err)
	assert.Equal(t, 3, open.CurrentUses)
}
