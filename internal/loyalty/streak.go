package loyalty

import (
	"fmt"
	"time"

	"github.com/mmeshcher/archivemart/internal/model"
)

// StreakPhase — положение серии относительно текущего дня.
type StreakPhase int

const (
	// StreakNone — пользователь ещё ни разу не получал бонус.
	StreakNone StreakPhase = iota
	// StreakClaimedToday — бонус за сегодня уже получен.
	StreakClaimedToday
	// StreakActive — последний бонус получен вчера, серия продолжается.
	StreakActive
	// StreakBroken — пропущен ровно один день, серию можно восстановить.
	StreakBroken
	// StreakLost — пропущено два дня и больше, следующая серия начнётся с первого дня.
	StreakLost
)

// StreakView описывает серию с точки зрения сегодняшнего дня.
type StreakView struct {
	Phase StreakPhase
	// Current — длина серии, которая продолжится при получении бонуса сегодня.
	Current int
	// NextDay — номер дня серии, который будет засчитан при получении бонуса сегодня.
	NextDay    int
	CanClaim   bool
	CanRestore bool
}

// ClaimPlan — результат получения ежедневного бонуса.
type ClaimPlan struct {
	StreakDay int
	Reward    int64
	Restarted bool
}

// Today возвращает календарную дату момента now в настроенном часовом поясе.
// Дата представлена полуночью UTC, чтобы разница дат считалась целыми сутками.
func (s Settings) Today(now time.Time) time.Time {
	local := now.In(s.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// NextReset возвращает момент следующей полуночи в настроенном часовом поясе.
func (s Settings) NextReset(now time.Time) time.Time {
	local := now.In(s.Location)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, s.Location)
}

// StreakReward возвращает награду за день серии; после таблицы награда не растёт.
func (s Settings) StreakReward(day int) int64 {
	if day < 1 {
		day = 1
	}
	if day > len(s.StreakRewards) {
		return s.StreakRewards[len(s.StreakRewards)-1]
	}
	return s.StreakRewards[day-1]
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// InspectStreak вычисляет положение серии на дату today.
func (s Settings) InspectStreak(st *model.StreakState, today time.Time) StreakView {
	if st == nil || st.LastClaimDate == nil {
		return StreakView{Phase: StreakNone, NextDay: 1, CanClaim: true}
	}

	gap := daysBetween(*st.LastClaimDate, today)
	switch {
	case gap <= 0:
		return StreakView{Phase: StreakClaimedToday, Current: st.StreakCount, NextDay: st.StreakCount + 1}
	case gap == 1:
		return StreakView{Phase: StreakActive, Current: st.StreakCount, NextDay: st.StreakCount + 1, CanClaim: true}
	case gap == 2:
		return StreakView{
			Phase:      StreakBroken,
			NextDay:    1,
			CanClaim:   true,
			CanRestore: !st.StreakRestored && st.StreakCount > 0,
		}
	default:
		return StreakView{Phase: StreakLost, NextDay: 1, CanClaim: true}
	}
}

// ClaimStreak применяет получение бонуса к состоянию и возвращает новое состояние.
// Повторное получение в тот же календарный день возвращает model.ErrAlreadyClaimed.
func (s Settings) ClaimStreak(st *model.StreakState, userID int64, today time.Time) (model.StreakState, ClaimPlan, error) {
	view := s.InspectStreak(st, today)
	if !view.CanClaim {
		return model.StreakState{}, ClaimPlan{}, model.ErrAlreadyClaimed
	}

	next := model.StreakState{UserID: userID}
	if st != nil {
		next = *st
	}

	plan := ClaimPlan{StreakDay: view.NextDay, Restarted: view.Phase == StreakBroken || view.Phase == StreakLost}
	plan.Reward = s.StreakReward(plan.StreakDay)

	date := today
	next.LastClaimDate = &date
	next.StreakCount = plan.StreakDay
	next.StreakRestored = false
	next.TotalClaims++
	next.TotalClaimed += plan.Reward
	if next.StreakCount > next.MaxStreak {
		next.MaxStreak = next.StreakCount
	}

	return next, plan, nil
}

// RestoreStreak восстанавливает серию после одного пропущенного дня: дата последнего
// получения переносится на вчера, счётчик серии сохраняется. Плату списывает вызывающий код.
func (s Settings) RestoreStreak(st *model.StreakState, today time.Time) (model.StreakState, error) {
	view := s.InspectStreak(st, today)
	if !view.CanRestore {
		return model.StreakState{}, fmt.Errorf("%w: streak is not broken or was already restored", model.ErrRestoreUnavailable)
	}

	next := *st
	yesterday := today.AddDate(0, 0, -1)
	next.LastClaimDate = &yesterday
	next.StreakRestored = true

	return next, nil
}

// JackpotWon решает, выпал ли джекпот. roll — равномерное число из [0,1),
// draw — символы розыгрыша, переданные клиентом.
func (s Settings) JackpotWon(draw []string, roll float64) bool {
	if s.JackpotBonus <= 0 {
		return false
	}

	switch s.JackpotPolicy {
	case JackpotMatch:
		if len(draw) < 3 {
			return false
		}
		for _, symbol := range draw[1:] {
			if symbol != draw[0] || symbol == "" {
				return false
			}
		}
		return true
	default:
		return roll < s.JackpotChance
	}
}
