package loyalty

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/archivemart/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestTodayUsesConfiguredTimezone(t *testing.T) {
	s := DefaultSettings()
	s.Location = time.FixedZone("UTC+3", 3*3600)

	// 22:30 UTC is already the next day at UTC+3.
	now := time.Date(2026, 5, 1, 22, 30, 0, 0, time.UTC)
	assert.Equal(t, date(2026, 5, 2), s.Today(now))
	assert.Equal(t, time.Date(2026, 5, 3, 0, 0, 0, 0, s.Location), s.NextReset(now))
}

func TestStreakReward(t *testing.T) {
	s := DefaultSettings()

	want := []int64{1, 2, 3, 4, 5, 7, 10, 10, 10}
	for i, w := range want {
		assert.Equal(t, w, s.StreakReward(i+1), "day %d", i+1)
	}
}

func TestClaimStreak(t *testing.T) {
	s := DefaultSettings()
	today := date(2026, 5, 10)

	tests := []struct {
		name      string
		last      *time.Time
		count     int
		wantDay   int
		wantErr   error
		restarted bool
	}{
		{name: "first claim", wantDay: 1},
		{name: "consecutive day", last: ptr(date(2026, 5, 9)), count: 3, wantDay: 4},
		{name: "same day", last: ptr(today), count: 3, wantErr: model.ErrAlreadyClaimed},
		{name: "one missed day resets", last: ptr(date(2026, 5, 8)), count: 5, wantDay: 1, restarted: true},
		{name: "two missed days reset", last: ptr(date(2026, 5, 7)), count: 5, wantDay: 1, restarted: true},
		{name: "flat ceiling after day seven", last: ptr(date(2026, 5, 9)), count: 9, wantDay: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var st *model.StreakState
			if tt.last != nil {
				st = &model.StreakState{UserID: 1, LastClaimDate: tt.last, StreakCount: tt.count, MaxStreak: tt.count}
			}

			next, plan, err := s.ClaimStreak(st, 1, today)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			assert.Equal(t, tt.wantDay, plan.StreakDay)
			assert.Equal(t, s.StreakReward(tt.wantDay), plan.Reward)
			assert.Equal(t, tt.restarted, plan.Restarted)
			assert.Equal(t, today, *next.LastClaimDate)
			assert.Equal(t, tt.wantDay, next.StreakCount)
			assert.GreaterOrEqual(t, next.MaxStreak, next.StreakCount)
		})
	}
}

func TestRestoreStreak(t *testing.T) {
	s := DefaultSettings()
	today := date(2026, 5, 10)

	broken := &model.StreakState{UserID: 1, LastClaimDate: ptr(date(2026, 5, 8)), StreakCount: 5}

	view := s.InspectStreak(broken, today)
	require.Equal(t, StreakBroken, view.Phase)
	require.True(t, view.CanRestore)

	restored, err := s.RestoreStreak(broken, today)
	require.NoError(t, err)
	assert.Equal(t, date(2026, 5, 9), *restored.LastClaimDate)
	assert.Equal(t, 5, restored.StreakCount)
	assert.True(t, restored.StreakRestored)

	// after restore the streak continues
	_, plan, err := s.ClaimStreak(&restored, 1, today)
	require.NoError(t, err)
	assert.Equal(t, 6, plan.StreakDay)

	// restore is refused a second time for the same break
	_, err = s.RestoreStreak(&restored, today.AddDate(0, 0, 1))
	require.ErrorIs(t, err, model.ErrRestoreUnavailable)

	lost := &model.StreakState{UserID: 1, LastClaimDate: ptr(date(2026, 5, 7)), StreakCount: 5}
	_, err = s.RestoreStreak(lost, today)
	require.ErrorIs(t, err, model.ErrRestoreUnavailable)

	active := &model.StreakState{UserID: 1, LastClaimDate: ptr(date(2026, 5, 9)), StreakCount: 5}
	_, err = s.RestoreStreak(active, today)
	require.ErrorIs(t, err, model.ErrRestoreUnavailable)
}

func TestJackpotWon(t *testing.T) {
	chance := DefaultSettings()
	assert.True(t, chance.JackpotWon(nil, 0.001))
	assert.False(t, chance.JackpotWon([]string{"⭐", "⭐", "⭐"}, 0.5))

	match := DefaultSettings()
	match.JackpotPolicy = JackpotMatch
	assert.True(t, match.JackpotWon([]string{"⭐", "⭐", "⭐"}, 0.9))
	assert.False(t, match.JackpotWon([]string{"⭐", "🍒", "⭐"}, 0.0))
	assert.False(t, match.JackpotWon([]string{"⭐", "⭐"}, 0.0))
}

func ptr[T any](v T) *T { return &v }
