package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/archivemart/internal/model"
	"github.com/mmeshcher/archivemart/internal/notify"
)

func TestClaimDailySequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.user(t, "alice")

	claim, err := f.svc.ClaimDaily(ctx, id, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, claim.StreakDay)
	assert.Equal(t, int64(1), claim.Reward)
	assert.Equal(t, int64(1), claim.NewBalance)

	_, err = f.svc.ClaimDaily(ctx, id, nil)
	require.ErrorIs(t, err, model.ErrAlreadyClaimed)

	f.clock.Advance(24 * time.Hour)
	claim, err = f.svc.ClaimDaily(ctx, id, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, claim.StreakDay)
	assert.Equal(t, int64(2), claim.Reward)
	assert.Equal(t, int64(3), claim.NewBalance)

	f.clock.Advance(72 * time.Hour)
	claim, err = f.svc.ClaimDaily(ctx, id, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, claim.StreakDay)
	assert.True(t, claim.StreakRestart)

	require.Equal(t, 3, f.countKind(t, id, model.KindDailyClaim))
	require.Equal(t, 3, f.pub.count(notify.EventDailyBonusClaimed))
	f.requireConsistent(t, id)
}

func TestClaimDailyConcurrentSameDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.user(t, "alice")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ClaimDaily(ctx, id, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, model.ErrAlreadyClaimed):
				rejected++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, ok)
	require.Equal(t, 9, rejected)
	require.Equal(t, int64(1), f.balance(t, id))
}

func TestClaimDailyJackpot(t *testing.T) {
	f := newFixture(t, WithRoll(func() float64 { return 0 }))
	ctx := context.Background()
	id := f.user(t, "alice")

	claim, err := f.svc.ClaimDaily(ctx, id, nil)
	require.NoError(t, err)
	require.True(t, claim.Jackpot)
	require.Equal(t, int64(100), claim.JackpotBonus)
	require.Equal(t, int64(101), claim.NewBalance)
	require.Equal(t, 1, f.countKind(t, id, model.KindSlotJackpot))

	st, err := f.store.GetStreak(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 1, st.SlotWins)
	require.Equal(t, "jackpot", st.LastSlotResult)
}

func TestRestoreStreak(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.user(t, "alice")

	_, err := f.svc.RestoreStreak(ctx, id)
	require.ErrorIs(t, err, model.ErrRestoreUnavailable)

	_, err = f.svc.ClaimDaily(ctx, id, nil)
	require.NoError(t, err)
	f.clock.Advance(24 * time.Hour)
	_, err = f.svc.ClaimDaily(ctx, id, nil)
	require.NoError(t, err)

	// Пропущен один день.
	f.clock.Advance(48 * time.Hour)

	status, err := f.svc.DailyStatus(ctx, id)
	require.NoError(t, err)
	assert.True(t, status.StreakBroken)
	assert.True(t, status.CanRestore)
	assert.True(t, status.CanClaim)
	assert.Equal(t, 2, status.CurrentStreak)
	assert.Equal(t, int64(30), status.RestoreCost)

	_, err = f.svc.RestoreStreak(ctx, id)
	require.ErrorIs(t, err, model.ErrInsufficientBalance)
	require.Equal(t, int64(3), f.balance(t, id))

	f.fund(t, id, 100)
	restored, err := f.svc.RestoreStreak(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, restored.StreakDay)
	assert.Equal(t, int64(73), restored.NewBalance)

	_, err = f.svc.RestoreStreak(ctx, id)
	require.ErrorIs(t, err, model.ErrRestoreUnavailable)

	claim, err := f.svc.ClaimDaily(ctx, id, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, claim.StreakDay)
	assert.Equal(t, int64(3), claim.Reward)
	assert.Equal(t, int64(76), claim.NewBalance)

	f.requireConsistent(t, id)
}

func TestDailyStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.user(t, "alice")

	status, err := f.svc.DailyStatus(ctx, id)
	require.NoError(t, err)
	assert.True(t, status.CanClaim)
	assert.Equal(t, 0, status.CurrentStreak)
	assert.Equal(t, int64(1), status.NextReward)
	assert.False(t, status.StreakBroken)

	_, err = f.svc.ClaimDaily(ctx, id, nil)
	require.NoError(t, err)

	status, err = f.svc.DailyStatus(ctx, id)
	require.NoError(t, err)
	assert.False(t, status.CanClaim)
	assert.Equal(t, 1, status.CurrentStreak)
	assert.Equal(t, int64(2), status.NextReward)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), status.NextClaimAt)
	assert.Equal(t, 1, status.TotalClaims)
	assert.Equal(t, int64(1), status.Balance)

	_, err = f.svc.DailyStatus(ctx, 999)
	require.ErrorIs(t, err, model.ErrNotFound)
}
