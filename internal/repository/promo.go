package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/archivemart/internal/model"
)

const promoColumns = `code, kind, value::text, expires_at, max_uses, current_uses,
	min_purchase_cents, is_active, created_at`

func scanPromo(row pgx.Row) (model.PromoCode, error) {
	var (
		p     model.PromoCode
		kind  string
		value string
	)
	if err := row.Scan(&p.Code, &kind, &value, &p.ExpiresAt, &p.MaxUses, &p.CurrentUses,
		&p.MinPurchaseCents, &p.IsActive, &p.CreatedAt); err != nil {
		return p, err
	}

	v, err := decimal.NewFromString(value)
	if err != nil {
		return p, fmt.Errorf("parse promo value: %w", err)
	}
	p.Kind = model.DiscountKind(kind)
	p.Value = v
	return p, nil
}

// GetPromo возвращает промокод по коду.
func (q *queries) GetPromo(ctx context.Context, code string) (*model.PromoCode, error) {
	p, err := scanPromo(q.db.QueryRow(ctx, `SELECT `+promoColumns+` FROM promo_codes WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPromoNotFound
		}
		return nil, fmt.Errorf("get promo: %w", err)
	}
	return &p, nil
}

// CreatePromo сохраняет новый промокод.
func (q *queries) CreatePromo(ctx context.Context, p *model.PromoCode) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO promo_codes (code, kind, value, expires_at, max_uses, min_purchase_cents, is_active, created_at)
		 VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8)`,
		p.Code, string(p.Kind), p.Value.String(), p.ExpiresAt, p.MaxUses, p.MinPurchaseCents, p.IsActive, p.CreatedAt,
	)
	if err != nil {
		if _, ok := isUniqueViolation(err); ok {
			return fmt.Errorf("%w: %s", ErrPromoExists, p.Code)
		}
		return fmt.Errorf("create promo: %w", err)
	}
	return nil
}

// ListPromos возвращает все промокоды.
func (q *queries) ListPromos(ctx context.Context) ([]model.PromoCode, error) {
	rows, err := q.db.Query(ctx, `SELECT `+promoColumns+` FROM promo_codes ORDER BY created_at DESC, code`)
	if err != nil {
		return nil, fmt.Errorf("select promos: %w", err)
	}
	defer rows.Close()

	var res []model.PromoCode
	for rows.Next() {
		p, err := scanPromo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan promo: %w", err)
		}
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// SetPromoActive включает или выключает промокод.
func (q *queries) SetPromoActive(ctx context.Context, code string, active bool) error {
	tag, err := q.db.Exec(ctx, `UPDATE promo_codes SET is_active = $2 WHERE code = $1`, code, active)
	if err != nil {
		return fmt.Errorf("update promo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPromoNotFound
	}
	return nil
}

// IncrementPromoUses увеличивает счётчик использований промокода, не выходя за max_uses.
func (q *queries) IncrementPromoUses(ctx context.Context, code string) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE promo_codes SET current_uses = current_uses + 1
		WHERE code = $1 AND (max_uses IS NULL OR current_uses < max_uses)`, code)
	if err != nil {
		return fmt.Errorf("increment promo uses: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := q.GetPromo(ctx, code); err != nil {
			return err
		}
		return ErrPromoLimitReached
	}
	return nil
}
