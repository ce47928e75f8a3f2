package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/archivemart/internal/ledger"
	"github.com/mmeshcher/archivemart/internal/loyalty"
	"github.com/mmeshcher/archivemart/internal/model"
	"github.com/mmeshcher/archivemart/internal/repository"
	"github.com/mmeshcher/archivemart/internal/validation"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// ReferralRedeem — итог применения реферального кода.
type ReferralRedeem struct {
	ReferrerLogin string `json:"referrer"`
	WelcomeBonus  int64  `json:"welcome_bonus"`
	NewBalance    int64  `json:"new_balance"`
}

// ReferralStats — сводка реферальной программы пользователя.
type ReferralStats struct {
	Code              string        `json:"code"`
	TotalInvited      int           `json:"total_invited"`
	Active            int           `json:"active"`
	TotalEarned       int64         `json:"total_earned"`
	PotentialEarnings int64         `json:"potential_earnings"`
	Badge             loyalty.Badge `json:"badge"`
}

// LeaderboardEntry — строка реферального рейтинга.
type LeaderboardEntry struct {
	Rank          int           `json:"rank"`
	Login         string        `json:"login"`
	TotalInvited  int           `json:"total_invited"`
	Active        int           `json:"active"`
	BonusesEarned int64         `json:"bonuses_earned"`
	Badge         loyalty.Badge `json:"badge"`
}

// RedeemReferralCode привязывает пользователя к пригласившему. Привязка возможна один раз.
func (s *Service) RedeemReferralCode(ctx context.Context, userID int64, code string) (*ReferralRedeem, error) {
	code = strings.TrimSpace(code)
	if !validation.IsValidReferralCode(code) {
		return nil, fmt.Errorf("%w: malformed referral code", model.ErrValidation)
	}

	var res ReferralRedeem
	err := s.repo.WithTx(ctx, func(q repository.Queries) error {
		referrer, err := q.GetUserByReferralCode(ctx, code)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return fmt.Errorf("referral code: %w", model.ErrNotFound)
			}
			return err
		}
		if referrer.ID == userID {
			return model.ErrSelfReferral
		}
		if referrer.ReferredBy != nil && *referrer.ReferredBy == userID {
			return fmt.Errorf("%w: mutual referral", model.ErrSelfReferral)
		}

		u, err := q.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		if u.ReferredBy != nil {
			return model.ErrAlreadyReferred
		}
		existing, err := q.GetReferralByReferred(ctx, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			return model.ErrAlreadyReferred
		}

		if _, err := q.InsertReferral(ctx, &model.Referral{
			ReferrerID: referrer.ID,
			ReferredID: userID,
			CreatedAt:  s.now(),
		}); err != nil {
			return err
		}
		if err := q.SetReferredBy(ctx, userID, referrer.ID); err != nil {
			return err
		}

		res = ReferralRedeem{ReferrerLogin: referrer.Login, NewBalance: u.PointBalance}
		if s.settings.WelcomeBonus > 0 {
			referrerID := referrer.ID
			applied, err := s.ledger.Apply(ctx, q, ledger.Entry{
				UserID:         userID,
				Amount:         s.settings.WelcomeBonus,
				Kind:           model.KindWelcomeBonus,
				Description:    "Welcome bonus for joining by referral",
				ReferralUserID: &referrerID,
			})
			if err != nil {
				return err
			}
			res.WelcomeBonus = s.settings.WelcomeBonus
			res.NewBalance = applied.BalanceAfter
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("referral code redeemed", zap.Int64("userID", userID), zap.String("referrer", res.ReferrerLogin))
	return &res, nil
}

// ReferralStats возвращает реферальный код пользователя и итоги по приглашённым.
func (s *Service) ReferralStats(ctx context.Context, userID int64) (*ReferralStats, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats, err := s.repo.ReferrerStats(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &ReferralStats{
		Code:              u.ReferralCode,
		TotalInvited:      stats.Invited,
		Active:            stats.Active,
		TotalEarned:       stats.BonusesEarned,
		PotentialEarnings: int64(stats.Invited-stats.Active) * s.settings.ReferralBonus,
		Badge:             loyalty.BadgeFor(stats.Invited),
	}, nil
}

// ReferralLeaderboard возвращает рейтинг пригласивших по числу приглашённых.
func (s *Service) ReferralLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	rows, err := s.repo.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(rows))
	for i, r := range rows {
		entries = append(entries, LeaderboardEntry{
			Rank:          i + 1,
			Login:         r.Login,
			TotalInvited:  r.Invited,
			Active:        r.Active,
			BonusesEarned: r.BonusesEarned,
			Badge:         loyalty.BadgeFor(r.Invited),
		})
	}
	return entries, nil
}
