package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/archivemart/internal/model"
)

const transactionColumns = `id, user_id, amount, balance_after, kind, description,
	related_order_id, related_referral_user_id, created_at`

func scanTransaction(row pgx.Row) (model.LedgerTransaction, error) {
	var (
		t    model.LedgerTransaction
		kind string
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Amount, &t.BalanceAfter, &kind, &t.Description,
		&t.RelatedOrderID, &t.RelatedReferralUserID, &t.CreatedAt)
	t.Kind = model.TransactionKind(kind)
	return t, err
}

// InsertTransaction добавляет запись в журнал. Записи журнала не изменяются и не удаляются.
func (q *queries) InsertTransaction(ctx context.Context, t *model.LedgerTransaction) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`INSERT INTO ledger_transactions
			(user_id, amount, balance_after, kind, description, related_order_id, related_referral_user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		t.UserID, t.Amount, t.BalanceAfter, string(t.Kind), t.Description,
		t.RelatedOrderID, t.RelatedReferralUserID, t.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	return id, nil
}

// LastTransaction возвращает последнюю запись журнала пользователя.
func (q *queries) LastTransaction(ctx context.Context, userID int64) (*model.LedgerTransaction, error) {
	t, err := scanTransaction(q.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM ledger_transactions WHERE user_id = $1 ORDER BY id DESC LIMIT 1`,
		userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("last transaction: %w", err)
	}
	return &t, nil
}

// SumTransactions возвращает сумму всех записей журнала пользователя.
func (q *queries) SumTransactions(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	err := q.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_transactions WHERE user_id = $1`,
		userID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum transactions: %w", err)
	}
	return sum, nil
}

// ListTransactions возвращает историю операций пользователя, новые первыми.
func (q *queries) ListTransactions(ctx context.Context, userID int64, limit, offset int) ([]model.LedgerTransaction, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+transactionColumns+`
		 FROM ledger_transactions
		 WHERE user_id = $1
		 ORDER BY id DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.LedgerTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
