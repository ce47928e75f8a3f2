package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/archivemart/internal/model"
)

const orderColumns = `id, user_id, subtotal_cents, discount_cents, bonuses_used, total_cents, status,
	promo_code, external_payment_id, payment_url, created_at, completed_at, cancelled_at`

func scanOrder(row pgx.Row) (model.Order, error) {
	var (
		o      model.Order
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.SubtotalCents, &o.DiscountCents, &o.BonusesUsed, &o.TotalCents, &status,
		&o.PromoCode, &o.ExternalPaymentID, &o.PaymentURL, &o.CreatedAt, &o.CompletedAt, &o.CancelledAt)
	o.Status = model.OrderStatus(status)
	return o, err
}

// GetProducts возвращает позиции каталога по списку идентификаторов.
func (q *queries) GetProducts(ctx context.Context, ids []int64) (map[int64]model.Product, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, title, price_cents, is_active FROM products WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	res := make(map[int64]model.Product, len(ids))
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Title, &p.PriceCents, &p.IsActive); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		res[p.ID] = p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpsertProduct создаёт или обновляет позицию каталога.
func (q *queries) UpsertProduct(ctx context.Context, p *model.Product) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO products (id, title, price_cents, is_active) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, price_cents = EXCLUDED.price_cents,
			is_active = EXCLUDED.is_active`,
		p.ID, p.Title, p.PriceCents, p.IsActive,
	)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

// InsertOrder сохраняет заказ вместе со строками.
func (q *queries) InsertOrder(ctx context.Context, o *model.Order) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO orders (id, user_id, subtotal_cents, discount_cents, bonuses_used, total_cents, status,
			promo_code, external_payment_id, payment_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		o.ID, o.UserID, o.SubtotalCents, o.DiscountCents, o.BonusesUsed, o.TotalCents, string(o.Status),
		o.PromoCode, o.ExternalPaymentID, o.PaymentURL, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, it := range o.Items {
		_, err := q.db.Exec(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, price_cents) VALUES ($1, $2, $3, $4)`,
			o.ID, it.ProductID, it.Quantity, it.PriceCents,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return nil
}

func (q *queries) getOrder(ctx context.Context, query string, arg any) (*model.Order, error) {
	o, err := scanOrder(q.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	orders := []model.Order{o}
	if err := q.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// GetOrder возвращает заказ со строками.
func (q *queries) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return q.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// LockOrder возвращает заказ со строками и блокирует его до конца транзакции.
func (q *queries) LockOrder(ctx context.Context, id string) (*model.Order, error) {
	return q.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

// GetOrderByExternalID возвращает заказ по идентификатору платежа во внешнем шлюзе.
func (q *queries) GetOrderByExternalID(ctx context.Context, externalID string) (*model.Order, error) {
	return q.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE external_payment_id = $1`, externalID)
}

// MarkOrderCompleted переводит ожидающий заказ в завершённые.
func (q *queries) MarkOrderCompleted(ctx context.Context, id string, at time.Time) error {
	return q.transition(ctx,
		`UPDATE orders SET status = $2, completed_at = $3 WHERE id = $1 AND status = $4`,
		id, string(model.OrderStatusCompleted), at, string(model.OrderStatusPending))
}

// MarkOrderCancelled переводит ожидающий заказ в отменённые.
func (q *queries) MarkOrderCancelled(ctx context.Context, id string, at time.Time) error {
	return q.transition(ctx,
		`UPDATE orders SET status = $2, cancelled_at = $3 WHERE id = $1 AND status = $4`,
		id, string(model.OrderStatusCancelled), at, string(model.OrderStatusPending))
}

func (q *queries) transition(ctx context.Context, query string, args ...any) error {
	tag, err := q.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotActive
	}
	return nil
}

// ListOrders возвращает заказы пользователя, новые первыми.
func (q *queries) ListOrders(ctx context.Context, userID int64) ([]model.Order, error) {
	return q.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`,
		userID)
}

// ListStalePendingOrders возвращает ожидающие оплаты заказы, созданные раньше before.
func (q *queries) ListStalePendingOrders(ctx context.Context, before time.Time, limit int) ([]model.Order, error) {
	return q.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status = $1 AND created_at < $2 ORDER BY created_at LIMIT $3`,
		string(model.OrderStatusPending), before, limit)
}

func (q *queries) listOrders(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if err := q.loadItems(ctx, orders); err != nil {
		return nil, err
	}

	return orders, nil
}

// loadItems читает строки всех переданных заказов одним запросом.
func (q *queries) loadItems(ctx context.Context, orders []model.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := q.db.Query(ctx,
		`SELECT order_id, product_id, quantity, price_cents FROM order_items WHERE order_id = ANY($1) ORDER BY product_id`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			it      model.OrderItem
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.Quantity, &it.PriceCents); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, it)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	return nil
}

// InsertAccessGrant создаёт доступ к продукту. Повторная выдача не создаёт дубликат.
func (q *queries) InsertAccessGrant(ctx context.Context, g model.AccessGrant) (bool, error) {
	tag, err := q.db.Exec(ctx,
		`INSERT INTO access_grants (user_id, product_id, order_id, granted_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, product_id) DO NOTHING`,
		g.UserID, g.ProductID, g.OrderID, g.GrantedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert access grant: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListAccessGrants возвращает библиотеку пользователя.
func (q *queries) ListAccessGrants(ctx context.Context, userID int64) ([]model.AccessGrant, error) {
	rows, err := q.db.Query(ctx,
		`SELECT user_id, product_id, order_id, granted_at FROM access_grants WHERE user_id = $1 ORDER BY granted_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select access grants: %w", err)
	}
	defer rows.Close()

	var res []model.AccessGrant
	for rows.Next() {
		var g model.AccessGrant
		if err := rows.Scan(&g.UserID, &g.ProductID, &g.OrderID, &g.GrantedAt); err != nil {
			return nil, fmt.Errorf("scan access grant: %w", err)
		}
		res = append(res, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// HasAccess сообщает, есть ли у пользователя доступ к продукту.
func (q *queries) HasAccess(ctx context.Context, userID, productID int64) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM access_grants WHERE user_id = $1 AND product_id = $2)`,
		userID, productID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check access: %w", err)
	}
	return ok, nil
}

// InsertPaymentEvent сохраняет уведомление платёжного шлюза.
func (q *queries) InsertPaymentEvent(ctx context.Context, e *model.PaymentEvent) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`INSERT INTO payment_events (external_id, status, amount_cents, payload, received_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		e.ExternalID, e.Status, e.AmountCents, e.Payload, e.ReceivedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert payment event: %w", err)
	}
	return id, nil
}
