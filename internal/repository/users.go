package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/archivemart/internal/model"
)

const userColumns = `id, login, password_hash, referral_code, referred_by, point_balance,
	lifetime_points_earned, lifetime_points_spent, lifetime_spend_cents, vip_tier, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u    model.User
		tier string
	)
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.ReferralCode, &u.ReferredBy, &u.PointBalance,
		&u.LifetimePointsEarned, &u.LifetimePointsSpent, &u.LifetimeSpendCents, &tier, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.VipTier = model.Tier(tier)
	return &u, nil
}

// CreateUser создаёт нового пользователя.
func (q *queries) CreateUser(ctx context.Context, u *model.User) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`INSERT INTO users (login, password_hash, referral_code) VALUES ($1, $2, $3) RETURNING id`,
		u.Login, u.PasswordHash, u.ReferralCode,
	).Scan(&id)
	if err != nil {
		if pgErr, ok := isUniqueViolation(err); ok {
			if pgErr.ConstraintName == "users_referral_code_key" {
				return 0, ErrReferralCodeTaken
			}
			return 0, fmt.Errorf("%w: %s", ErrUserExists, u.Login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUser возвращает пользователя по идентификатору.
func (q *queries) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetUserByLogin возвращает пользователя по логину.
func (q *queries) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE login = $1`, login))
}

// GetUserByReferralCode возвращает владельца реферального кода.
func (q *queries) GetUserByReferralCode(ctx context.Context, code string) (*model.User, error) {
	return scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE referral_code = $1`, code))
}

// LockUser блокирует строку пользователя для сериализации изменений его баланса.
func (q *queries) LockUser(ctx context.Context, id int64) (*model.User, error) {
	return scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
}

// UpdateUserPoints записывает новый баланс и накопленные итоги.
func (q *queries) UpdateUserPoints(ctx context.Context, id, balance, earned, spent int64) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE users SET point_balance = $2, lifetime_points_earned = $3, lifetime_points_spent = $4 WHERE id = $1`,
		id, balance, earned, spent,
	)
	if err != nil {
		return fmt.Errorf("update user points: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetUserVip копирует сумму трат и уровень в запись пользователя.
func (q *queries) SetUserVip(ctx context.Context, id, spendCents int64, tier model.Tier) error {
	_, err := q.db.Exec(ctx,
		`UPDATE users SET lifetime_spend_cents = $2, vip_tier = $3 WHERE id = $1`,
		id, spendCents, string(tier),
	)
	if err != nil {
		return fmt.Errorf("update user vip: %w", err)
	}
	return nil
}

// SetReferredBy сохраняет ссылку на пригласившего. Ссылку нельзя изменить после установки.
func (q *queries) SetReferredBy(ctx context.Context, id, referrerID int64) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE users SET referred_by = $2 WHERE id = $1 AND referred_by IS NULL`,
		id, referrerID,
	)
	if err != nil {
		return fmt.Errorf("set referred by: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAlreadyReferred
	}
	return nil
}
