package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/archivemart/internal/model"
)

// GetStreak возвращает состояние ежедневного бонуса пользователя.
func (q *queries) GetStreak(ctx context.Context, userID int64) (*model.StreakState, error) {
	var st model.StreakState
	err := q.db.QueryRow(ctx,
		`SELECT user_id, last_claim_date, streak_count, streak_restored, max_streak,
			total_claims, total_claimed, slot_wins, last_slot_result, updated_at
		 FROM streaks WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&st.UserID, &st.LastClaimDate, &st.StreakCount, &st.StreakRestored, &st.MaxStreak,
		&st.TotalClaims, &st.TotalClaimed, &st.SlotWins, &st.LastSlotResult, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get streak: %w", err)
	}
	return &st, nil
}

// SaveStreak создаёт или обновляет состояние ежедневного бонуса.
func (q *queries) SaveStreak(ctx context.Context, st *model.StreakState) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO streaks (user_id, last_claim_date, streak_count, streak_restored, max_streak,
			total_claims, total_claimed, slot_wins, last_slot_result, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (user_id) DO UPDATE SET
			last_claim_date = EXCLUDED.last_claim_date,
			streak_count = EXCLUDED.streak_count,
			streak_restored = EXCLUDED.streak_restored,
			max_streak = EXCLUDED.max_streak,
			total_claims = EXCLUDED.total_claims,
			total_claimed = EXCLUDED.total_claimed,
			slot_wins = EXCLUDED.slot_wins,
			last_slot_result = EXCLUDED.last_slot_result,
			updated_at = EXCLUDED.updated_at`,
		st.UserID, st.LastClaimDate, st.StreakCount, st.StreakRestored, st.MaxStreak,
		st.TotalClaims, st.TotalClaimed, st.SlotWins, st.LastSlotResult, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save streak: %w", err)
	}
	return nil
}

// GetVip возвращает VIP-состояние пользователя.
func (q *queries) GetVip(ctx context.Context, userID int64) (*model.VipState, error) {
	var (
		st   model.VipState
		tier string
		rate string
	)
	err := q.db.QueryRow(ctx,
		`SELECT user_id, lifetime_spend_cents, current_tier, cashback_rate::text,
			purchases_count, total_cashback_earned, tier_changed_at
		 FROM vip_tiers WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&st.UserID, &st.LifetimeSpendCents, &tier, &rate,
		&st.PurchasesCount, &st.TotalCashbackEarned, &st.TierChangedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get vip: %w", err)
	}

	st.CurrentTier = model.Tier(tier)
	st.CashbackRate, err = decimal.NewFromString(rate)
	if err != nil {
		return nil, fmt.Errorf("parse cashback rate: %w", err)
	}
	return &st, nil
}

// SaveVip создаёт или обновляет VIP-состояние пользователя.
func (q *queries) SaveVip(ctx context.Context, st *model.VipState) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO vip_tiers (user_id, lifetime_spend_cents, current_tier, cashback_rate,
			purchases_count, total_cashback_earned, tier_changed_at)
		 VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
		 ON CONFLICT (user_id) DO UPDATE SET
			lifetime_spend_cents = EXCLUDED.lifetime_spend_cents,
			current_tier = EXCLUDED.current_tier,
			cashback_rate = EXCLUDED.cashback_rate,
			purchases_count = EXCLUDED.purchases_count,
			total_cashback_earned = EXCLUDED.total_cashback_earned,
			tier_changed_at = EXCLUDED.tier_changed_at`,
		st.UserID, st.LifetimeSpendCents, string(st.CurrentTier), st.CashbackRate.String(),
		st.PurchasesCount, st.TotalCashbackEarned, st.TierChangedAt,
	)
	if err != nil {
		return fmt.Errorf("save vip: %w", err)
	}
	return nil
}

// GetReferralByReferred возвращает реферальную связь приглашённого пользователя.
func (q *queries) GetReferralByReferred(ctx context.Context, referredID int64) (*model.Referral, error) {
	var r model.Referral
	err := q.db.QueryRow(ctx,
		`SELECT id, referrer_id, referred_id, first_purchase_made, first_purchase_at,
			total_purchases, total_spend_cents, bonuses_paid, created_at
		 FROM referrals WHERE referred_id = $1 FOR UPDATE`,
		referredID,
	).Scan(&r.ID, &r.ReferrerID, &r.ReferredID, &r.FirstPurchaseMade, &r.FirstPurchaseAt,
		&r.TotalPurchases, &r.TotalSpendCents, &r.BonusesPaid, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get referral: %w", err)
	}
	return &r, nil
}

// InsertReferral создаёт реферальную связь. У пользователя может быть только один пригласивший.
func (q *queries) InsertReferral(ctx context.Context, r *model.Referral) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`INSERT INTO referrals (referrer_id, referred_id, created_at) VALUES ($1, $2, $3) RETURNING id`,
		r.ReferrerID, r.ReferredID, r.CreatedAt,
	).Scan(&id)
	if err != nil {
		if _, ok := isUniqueViolation(err); ok {
			return 0, model.ErrAlreadyReferred
		}
		return 0, fmt.Errorf("insert referral: %w", err)
	}
	return id, nil
}

// SaveReferral обновляет счётчики реферальной связи.
func (q *queries) SaveReferral(ctx context.Context, r *model.Referral) error {
	_, err := q.db.Exec(ctx,
		`UPDATE referrals SET first_purchase_made = $2, first_purchase_at = $3,
			total_purchases = $4, total_spend_cents = $5, bonuses_paid = $6
		 WHERE id = $1`,
		r.ID, r.FirstPurchaseMade, r.FirstPurchaseAt, r.TotalPurchases, r.TotalSpendCents, r.BonusesPaid,
	)
	if err != nil {
		return fmt.Errorf("save referral: %w", err)
	}
	return nil
}

const referrerStatsQuery = `SELECT u.id, u.login,
		COUNT(r.id),
		COUNT(r.id) FILTER (WHERE r.first_purchase_made),
		COALESCE(SUM(r.bonuses_paid), 0)
	FROM users u
	LEFT JOIN referrals r ON r.referrer_id = u.id`

// ReferrerStats возвращает агрегаты реферальной программы для одного пригласившего.
func (q *queries) ReferrerStats(ctx context.Context, referrerID int64) (model.ReferrerStats, error) {
	var s model.ReferrerStats
	err := q.db.QueryRow(ctx,
		referrerStatsQuery+` WHERE u.id = $1 GROUP BY u.id, u.login`,
		referrerID,
	).Scan(&s.UserID, &s.Login, &s.Invited, &s.Active, &s.BonusesEarned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s, ErrUserNotFound
		}
		return s, fmt.Errorf("referrer stats: %w", err)
	}
	return s, nil
}

// Leaderboard возвращает пригласивших с наибольшим числом приглашённых.
func (q *queries) Leaderboard(ctx context.Context, limit int) ([]model.ReferrerStats, error) {
	rows, err := q.db.Query(ctx,
		referrerStatsQuery+`
		 GROUP BY u.id, u.login
		 HAVING COUNT(r.id) > 0
		 ORDER BY COUNT(r.id) DESC, COALESCE(SUM(r.bonuses_paid), 0) DESC, u.id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select leaderboard: %w", err)
	}
	defer rows.Close()

	var res []model.ReferrerStats
	for rows.Next() {
		var s model.ReferrerStats
		if err := rows.Scan(&s.UserID, &s.Login, &s.Invited, &s.Active, &s.BonusesEarned); err != nil {
			return nil, fmt.Errorf("scan leaderboard: %w", err)
		}
		res = append(res, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
