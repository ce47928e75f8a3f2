package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/archivemart/internal/ledger"
	"github.com/mmeshcher/archivemart/internal/loyalty"
	"github.com/mmeshcher/archivemart/internal/model"
	"github.com/mmeshcher/archivemart/internal/notify"
	"github.com/mmeshcher/archivemart/internal/repository"
)

// DailyClaim — итог получения ежедневного бонуса.
type DailyClaim struct {
	StreakDay     int   `json:"streak_day"`
	Reward        int64 `json:"reward"`
	Jackpot       bool  `json:"jackpot"`
	JackpotBonus  int64 `json:"jackpot_bonus,omitempty"`
	StreakRestart bool  `json:"streak_restarted"`
	NewBalance    int64 `json:"new_balance"`
}

// DailyStatus описывает состояние ежедневного бонуса на текущий день.
type DailyStatus struct {
	CanClaim      bool      `json:"can_claim"`
	CurrentStreak int       `json:"current_streak"`
	NextReward    int64     `json:"next_reward"`
	StreakBroken  bool      `json:"streak_broken"`
	CanRestore    bool      `json:"can_restore"`
	RestoreCost   int64     `json:"restore_cost"`
	NextClaimAt   time.Time `json:"next_claim_at"`
	MaxStreak     int       `json:"max_streak"`
	TotalClaims   int       `json:"total_claims"`
	TotalClaimed  int64     `json:"total_claimed"`
	Balance       int64     `json:"balance"`
}

// StreakRestore — итог восстановления серии.
type StreakRestore struct {
	StreakDay  int   `json:"current_streak"`
	Cost       int64 `json:"cost"`
	NewBalance int64 `json:"new_balance"`
}

func ledgerEntry(userID, amount int64, kind model.TransactionKind, description string) ledger.Entry {
	return ledger.Entry{UserID: userID, Amount: amount, Kind: kind, Description: description}
}

// ClaimDaily начисляет ежедневный бонус. Проверка даты, запись серии и начисления
// выполняются в одной транзакции, поэтому второй запрос в тот же день получает model.ErrAlreadyClaimed.
func (s *Service) ClaimDaily(ctx context.Context, userID int64, draw []string) (*DailyClaim, error) {
	now := s.now()
	today := s.settings.Today(now)
	jackpot := s.settings.JackpotWon(draw, s.roll())

	var res DailyClaim
	err := s.repo.WithTx(ctx, func(q repository.Queries) error {
		res = DailyClaim{}

		if _, err := q.LockUser(ctx, userID); err != nil {
			return err
		}
		st, err := q.GetStreak(ctx, userID)
		if err != nil {
			return err
		}

		next, plan, err := s.settings.ClaimStreak(st, userID, today)
		if err != nil {
			return err
		}

		applied, err := s.ledger.Apply(ctx, q, ledgerEntry(userID, plan.Reward, model.KindDailyClaim,
			fmt.Sprintf("Daily bonus, day %d", plan.StreakDay)))
		if err != nil {
			return err
		}
		res.StreakDay = plan.StreakDay
		res.Reward = plan.Reward
		res.StreakRestart = plan.Restarted
		res.NewBalance = applied.BalanceAfter

		next.LastSlotResult = ""
		if jackpot {
			applied, err = s.ledger.Apply(ctx, q, ledgerEntry(userID, s.settings.JackpotBonus, model.KindSlotJackpot, "Daily jackpot"))
			if err != nil {
				return err
			}
			res.Jackpot = true
			res.JackpotBonus = s.settings.JackpotBonus
			res.NewBalance = applied.BalanceAfter
			next.SlotWins++
			next.LastSlotResult = "jackpot"
		}

		next.UpdatedAt = now
		return q.SaveStreak(ctx, &next)
	})
	if err != nil {
		return nil, err
	}

	if res.Jackpot {
		s.logger.Info("daily jackpot won", zap.Int64("userID", userID), zap.Int64("bonus", res.JackpotBonus))
	}
	s.publish(ctx, []notify.Event{{
		Type:   notify.EventDailyBonusClaimed,
		UserID: userID,
		Data: map[string]any{
			"streak_day": res.StreakDay,
			"reward":     res.Reward,
			"jackpot":    res.Jackpot,
		},
		At: now,
	}})

	return &res, nil
}

// RestoreStreak восстанавливает серию после одного пропущенного дня за плату бонусами.
func (s *Service) RestoreStreak(ctx context.Context, userID int64) (*StreakRestore, error) {
	now := s.now()
	today := s.settings.Today(now)
	cost := s.settings.StreakRestoreCost

	var res StreakRestore
	err := s.repo.WithTx(ctx, func(q repository.Queries) error {
		u, err := q.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		st, err := q.GetStreak(ctx, userID)
		if err != nil {
			return err
		}

		next, err := s.settings.RestoreStreak(st, today)
		if err != nil {
			return err
		}

		res = StreakRestore{StreakDay: next.StreakCount, Cost: cost, NewBalance: u.PointBalance}
		if cost > 0 {
			applied, err := s.ledger.Apply(ctx, q, ledgerEntry(userID, -cost, model.KindStreakRestoreFee, "Streak restore"))
			if err != nil {
				return err
			}
			res.NewBalance = applied.BalanceAfter
		}

		next.UpdatedAt = now
		return q.SaveStreak(ctx, &next)
	})
	if err != nil {
		return nil, err
	}

	return &res, nil
}

// DailyStatus возвращает состояние ежедневного бонуса пользователя.
func (s *Service) DailyStatus(ctx context.Context, userID int64) (*DailyStatus, error) {
	now := s.now()
	today := s.settings.Today(now)

	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	st, err := s.repo.GetStreak(ctx, userID)
	if err != nil {
		return nil, err
	}

	view := s.settings.InspectStreak(st, today)
	status := &DailyStatus{
		CanClaim:      view.CanClaim,
		CurrentStreak: view.Current,
		NextReward:    s.settings.StreakReward(view.NextDay),
		StreakBroken:  view.Phase == loyalty.StreakBroken,
		CanRestore:    view.CanRestore,
		RestoreCost:   s.settings.StreakRestoreCost,
		NextClaimAt:   now,
		Balance:       u.PointBalance,
	}
	if !view.CanClaim {
		status.NextClaimAt = s.settings.NextReset(now)
	}
	if view.CanRestore {
		// Серию ещё можно восстановить, показываем её длину до пропуска.
		status.CurrentStreak = st.StreakCount
	}
	if st != nil {
		status.MaxStreak = st.MaxStreak
		status.TotalClaims = st.TotalClaims
		status.TotalClaimed = st.TotalClaimed
	}

	return status, nil
}
