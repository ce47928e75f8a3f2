package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/archivemart/internal/loyalty"
	"github.com/mmeshcher/archivemart/internal/model"
	"github.com/mmeshcher/archivemart/internal/notify"
	"github.com/mmeshcher/archivemart/internal/repository"
)

// CartItem — строка корзины. Цена берётся только из каталога.
type CartItem struct {
	ProductID int64
	Quantity  int
}

// CheckoutRequest — параметры оформления заказа.
type CheckoutRequest struct {
	Items       []CartItem
	PromoCode   string
	BonusesUsed int64
}

// CheckoutQuote — предварительный расчёт корзины.
type CheckoutQuote struct {
	Subtotal          model.Money `json:"subtotal"`
	Discount          model.Money `json:"discount"`
	PromoCode         string      `json:"promo_code,omitempty"`
	BonusCap          int64       `json:"bonus_cap"`
	Balance           int64       `json:"balance"`
	MaxBonusAllowed   int64       `json:"max_bonus_allowed"`
	MaxBonusValue     model.Money `json:"max_bonus_value"`
	TotalWithoutBonus model.Money `json:"total_without_bonus"`
}

// OrderCreated — результат оформления заказа.
type OrderCreated struct {
	OrderID     string            `json:"order_id"`
	Status      model.OrderStatus `json:"status"`
	Subtotal    model.Money       `json:"subtotal"`
	Discount    model.Money       `json:"discount"`
	BonusesUsed int64             `json:"bonuses_used"`
	Total       model.Money       `json:"total"`
	PaymentURL  *string           `json:"payment_url,omitempty"`
}

type pricedCart struct {
	items         []model.OrderItem
	subtotalCents int64
	discountCents int64
	promoCode     *string
}

// priceCart объединяет одинаковые позиции, читает цены каталога одним запросом и применяет промокод.
func (s *Service) priceCart(ctx context.Context, items []CartItem, promo string) (pricedCart, error) {
	if len(items) == 0 {
		return pricedCart{}, fmt.Errorf("%w: cart is empty", model.ErrValidation)
	}

	quantities := make(map[int64]int, len(items))
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if it.ProductID <= 0 || it.Quantity <= 0 {
			return pricedCart{}, fmt.Errorf("%w: invalid cart line for product %d", model.ErrValidation, it.ProductID)
		}
		if _, ok := quantities[it.ProductID]; !ok {
			ids = append(ids, it.ProductID)
		}
		quantities[it.ProductID] += it.Quantity
	}
	slices.Sort(ids)

	products, err := s.repo.GetProducts(ctx, ids)
	if err != nil {
		return pricedCart{}, err
	}

	var cart pricedCart
	for _, id := range ids {
		p, ok := products[id]
		if !ok {
			return pricedCart{}, fmt.Errorf("product %d: %w", id, model.ErrNotFound)
		}
		if !p.IsActive {
			return pricedCart{}, fmt.Errorf("%w: product %d is not available", model.ErrValidation, id)
		}
		qty := quantities[id]
		cart.items = append(cart.items, model.OrderItem{ProductID: id, Quantity: qty, PriceCents: p.PriceCents})
		cart.subtotalCents += p.PriceCents * int64(qty)
	}

	code := loyalty.NormalizePromoCode(promo)
	if code == "" {
		return cart, nil
	}

	p, err := s.repo.GetPromo(ctx, code)
	if err != nil {
		return pricedCart{}, err
	}
	quote, err := loyalty.PricePromo(p, cart.subtotalCents, s.now())
	if err != nil {
		return pricedCart{}, err
	}
	cart.discountCents = quote.DiscountCents
	cart.promoCode = &code

	return cart, nil
}

// QuoteCheckout рассчитывает корзину и максимальное число бонусов, которыми её можно оплатить.
func (s *Service) QuoteCheckout(ctx context.Context, userID int64, items []CartItem, promo string) (*CheckoutQuote, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	cart, err := s.priceCart(ctx, items, promo)
	if err != nil {
		return nil, err
	}

	capPoints := s.settings.MaxBonus(cart.subtotalCents, cart.discountCents)
	allowed := min(capPoints, u.PointBalance)

	quote := &CheckoutQuote{
		Subtotal:          model.Money(cart.subtotalCents),
		Discount:          model.Money(cart.discountCents),
		BonusCap:          capPoints,
		Balance:           u.PointBalance,
		MaxBonusAllowed:   allowed,
		MaxBonusValue:     model.Money(s.settings.BonusValueCents(allowed)),
		TotalWithoutBonus: model.Money(cart.subtotalCents - cart.discountCents),
	}
	if cart.promoCode != nil {
		quote.PromoCode = *cart.promoCode
	}
	return quote, nil
}

// CreateOrder оформляет заказ. Запрошенные бонусы проверяются против лимита и баланса,
// лишние бонусы не урезаются. Платёж в шлюзе создаётся до записи заказа, поэтому
// недоступность шлюза не оставляет заказов. Заказ с нулевой суммой к оплате
// завершается в той же транзакции, в которой создаётся.
func (s *Service) CreateOrder(ctx context.Context, userID int64, req CheckoutRequest) (*OrderCreated, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	cart, err := s.priceCart(ctx, req.Items, req.PromoCode)
	if err != nil {
		return nil, err
	}

	capPoints := s.settings.MaxBonus(cart.subtotalCents, cart.discountCents)
	if err := s.settings.CheckRedemption(req.BonusesUsed, capPoints, u.PointBalance); err != nil {
		return nil, err
	}
	total := s.settings.Total(cart.subtotalCents, cart.discountCents, req.BonusesUsed)

	order := &model.Order{
		ID:            uuid.NewString(),
		UserID:        userID,
		SubtotalCents: cart.subtotalCents,
		DiscountCents: cart.discountCents,
		BonusesUsed:   req.BonusesUsed,
		TotalCents:    total,
		Status:        model.OrderStatusPending,
		PromoCode:     cart.promoCode,
		Items:         cart.items,
		CreatedAt:     s.now(),
	}

	if total > 0 {
		switch {
		case s.gateway != nil:
			payment, err := s.gateway.CreatePayment(ctx, total, s.currency, order.ID)
			if err != nil {
				s.logger.Warn("create payment failed", zap.String("orderID", order.ID), zap.Error(err))
				return nil, err
			}
			order.ExternalPaymentID = &payment.ExternalID
			order.PaymentURL = &payment.PaymentURL
		case !s.devMode:
			return nil, fmt.Errorf("payment gateway is not configured: %w", model.ErrExternalUnavailable)
		}
	}

	var events []notify.Event
	err = s.repo.WithTx(ctx, func(q repository.Queries) error {
		events = nil
		if err := q.InsertOrder(ctx, order); err != nil {
			return err
		}
		if total > 0 {
			return nil
		}
		var err error
		events, _, err = s.completeInTx(ctx, q, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if total == 0 {
		order.Status = model.OrderStatusCompleted
	}
	s.publish(ctx, events)

	s.logger.Info("order created",
		zap.String("orderID", order.ID),
		zap.Int64("userID", userID),
		zap.Int64("total", total),
		zap.Int64("bonusesUsed", req.BonusesUsed),
	)

	return &OrderCreated{
		OrderID:     order.ID,
		Status:      order.Status,
		Subtotal:    model.Money(order.SubtotalCents),
		Discount:    model.Money(order.DiscountCents),
		BonusesUsed: order.BonusesUsed,
		Total:       model.Money(order.TotalCents),
		PaymentURL:  order.PaymentURL,
	}, nil
}

// GetOrder возвращает заказ пользователя. Чужой заказ не отдаётся.
func (s *Service) GetOrder(ctx context.Context, userID int64, orderID string) (*model.Order, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, model.ErrForbidden
	}
	return o, nil
}

// ListOrders возвращает заказы пользователя, новые первыми.
func (s *Service) ListOrders(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.repo.ListOrders(ctx, userID)
}

func isBusinessError(err error) bool {
	for _, target := range []error{
		model.ErrValidation, model.ErrNotFound, model.ErrInsufficientBalance,
		model.ErrOrderCancelled, model.ErrAlreadyCompleted,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
