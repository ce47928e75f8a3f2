// Package ledger — единственная точка изменения бонусного баланса пользователя.
//
// Каждое изменение записывается в журнал вместе с балансом после операции, а баланс
// в записи пользователя обновляется в той же транзакции. Поэтому в любой момент
// point_balance равен сумме записей журнала и равен balance_after последней записи.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/mmeshcher/archivemart/internal/model"
	"github.com/mmeshcher/archivemart/internal/repository"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// Queries — операции хранилища, которые журнал выполняет внутри транзакции вызывающего.
type Queries interface {
	LockUser(ctx context.Context, id int64) (*model.User, error)
	LastTransaction(ctx context.Context, userID int64) (*model.LedgerTransaction, error)
	InsertTransaction(ctx context.Context, t *model.LedgerTransaction) (int64, error)
	UpdateUserPoints(ctx context.Context, id, balance, earned, spent int64) error
}

// Store — хранилище, в котором журнал может открыть собственную транзакцию.
type Store interface {
	WithTx(ctx context.Context, fn func(q repository.Queries) error) error
	ListTransactions(ctx context.Context, userID int64, limit, offset int) ([]model.LedgerTransaction, error)
}

// Entry описывает одно изменение баланса. Amount со знаком: положительное начисляет, отрицательное списывает.
type Entry struct {
	UserID         int64
	Amount         int64
	Kind           model.TransactionKind
	Description    string
	OrderID        *string
	ReferralUserID *int64
}

// Result — итог применения записи.
type Result struct {
	TransactionID int64
	BalanceAfter  int64
}

// Reconciliation сравнивает баланс пользователя с журналом.
type Reconciliation struct {
	UserID           int64 `json:"user_id"`
	Balance          int64 `json:"balance"`
	LedgerSum        int64 `json:"ledger_sum"`
	LastBalanceAfter int64 `json:"last_balance_after"`
	Consistent       bool  `json:"consistent"`
}

// Ledger применяет изменения баланса.
type Ledger struct {
	store Store
	now   func() time.Time
}

// New создаёт журнал поверх хранилища.
func New(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// WithClock подменяет источник времени для записей журнала.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Apply применяет запись внутри транзакции вызывающего: блокирует строку пользователя,
// сверяет баланс с последней записью журнала, проверяет неотрицательность результата,
// добавляет запись и обновляет баланс. Любая ошибка должна откатить всю транзакцию.
func (l *Ledger) Apply(ctx context.Context, q Queries, e Entry) (Result, error) {
	if e.Amount == 0 {
		return Result{}, fmt.Errorf("%w: ledger amount must not be zero", model.ErrValidation)
	}
	if !e.Kind.Valid() {
		return Result{}, fmt.Errorf("%w: unknown transaction kind %q", model.ErrValidation, e.Kind)
	}

	u, err := q.LockUser(ctx, e.UserID)
	if err != nil {
		return Result{}, err
	}

	last, err := q.LastTransaction(ctx, e.UserID)
	if err != nil {
		return Result{}, err
	}

	var expected int64
	if last != nil {
		expected = last.BalanceAfter
	}
	if expected != u.PointBalance {
		return Result{}, fmt.Errorf("%w: user %d balance %d, ledger %d",
			model.ErrConsistencyViolation, u.ID, u.PointBalance, expected)
	}

	balance := u.PointBalance + e.Amount
	if balance < 0 {
		return Result{}, fmt.Errorf("%w: balance %d, debit %d", model.ErrInsufficientBalance, u.PointBalance, -e.Amount)
	}

	earned, spent := u.LifetimePointsEarned, u.LifetimePointsSpent
	if e.Amount > 0 {
		earned += e.Amount
	} else {
		spent -= e.Amount
	}

	id, err := q.InsertTransaction(ctx, &model.LedgerTransaction{
		UserID:                e.UserID,
		Amount:                e.Amount,
		BalanceAfter:          balance,
		Kind:                  e.Kind,
		Description:           e.Description,
		RelatedOrderID:        e.OrderID,
		RelatedReferralUserID: e.ReferralUserID,
		CreatedAt:             l.now(),
	})
	if err != nil {
		return Result{}, err
	}

	if err := q.UpdateUserPoints(ctx, e.UserID, balance, earned, spent); err != nil {
		return Result{}, err
	}

	return Result{TransactionID: id, BalanceAfter: balance}, nil
}

// ApplyDelta применяет запись в собственной транзакции.
func (l *Ledger) ApplyDelta(ctx context.Context, e Entry) (Result, error) {
	var res Result
	err := l.store.WithTx(ctx, func(q repository.Queries) error {
		var err error
		res, err = l.Apply(ctx, q, e)
		return err
	})
	return res, err
}

// Reconcile сверяет баланс пользователя с суммой журнала и последней записью.
// При расхождении возвращает отчёт вместе с model.ErrConsistencyViolation.
func (l *Ledger) Reconcile(ctx context.Context, userID int64) (Reconciliation, error) {
	var rec Reconciliation

	err := l.store.WithTx(ctx, func(q repository.Queries) error {
		u, err := q.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		sum, err := q.SumTransactions(ctx, userID)
		if err != nil {
			return err
		}
		last, err := q.LastTransaction(ctx, userID)
		if err != nil {
			return err
		}

		rec = Reconciliation{UserID: userID, Balance: u.PointBalance, LedgerSum: sum}
		if last != nil {
			rec.LastBalanceAfter = last.BalanceAfter
		}
		rec.Consistent = rec.Balance == rec.LedgerSum && rec.Balance == rec.LastBalanceAfter
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}

	if !rec.Consistent {
		return rec, fmt.Errorf("%w: user %d balance %d, ledger sum %d, last balance_after %d",
			model.ErrConsistencyViolation, userID, rec.Balance, rec.LedgerSum, rec.LastBalanceAfter)
	}
	return rec, nil
}

// History возвращает страницу истории операций, новые первыми.
func (l *Ledger) History(ctx context.Context, userID int64, limit, offset int) ([]model.LedgerTransaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return l.store.ListTransactions(ctx, userID, limit, offset)
}
