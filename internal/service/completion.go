package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/archivemart/internal/gateway"
	"github.com/mmeshcher/archivemart/internal/ledger"
	"github.com/mmeshcher/archivemart/internal/loyalty"
	"github.com/mmeshcher/archivemart/internal/model"
	"github.com/mmeshcher/archivemart/internal/notify"
	"github.com/mmeshcher/archivemart/internal/repository"
)

// PaymentNotification — уведомление шлюза вместе с исходным телом запроса.
type PaymentNotification struct {
	gateway.PaymentStatus
	Payload []byte
}

// completeInTx завершает заказ внутри транзакции вызывающего. Строка заказа блокируется,
// поэтому параллельные попытки завершить один заказ выполняются по очереди, и только первая
// применяет начисления. Для уже завершённого заказа возвращается done=true без изменений.
func (s *Service) completeInTx(ctx context.Context, q repository.Queries, orderID string) ([]notify.Event, bool, error) {
	o, err := q.LockOrder(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	switch o.Status {
	case model.OrderStatusCompleted:
		return nil, true, nil
	case model.OrderStatusCancelled:
		return nil, false, fmt.Errorf("complete order %s: %w", o.ID, model.ErrOrderCancelled)
	}

	// Покупки одного пользователя завершаются по очереди: VIP-состояние читается и пишется целиком.
	if _, err := q.LockUser(ctx, o.UserID); err != nil {
		return nil, false, err
	}

	now := s.now()
	orderRef := o.ID
	var events []notify.Event

	if o.BonusesUsed > 0 {
		if _, err := s.ledger.Apply(ctx, q, ledger.Entry{
			UserID:      o.UserID,
			Amount:      -o.BonusesUsed,
			Kind:        model.KindPurchasePayment,
			Description: "Payment for order " + o.ID,
			OrderID:     &orderRef,
		}); err != nil {
			return nil, false, err
		}
	}

	for _, it := range o.Items {
		if _, err := q.InsertAccessGrant(ctx, model.AccessGrant{
			UserID:    o.UserID,
			ProductID: it.ProductID,
			OrderID:   o.ID,
			GrantedAt: now,
		}); err != nil {
			return nil, false, err
		}
	}

	vip, err := q.GetVip(ctx, o.UserID)
	if err != nil {
		return nil, false, err
	}
	spend := s.settings.RecordSpend(vip, o.UserID, o.TotalCents, now)
	if err := q.SaveVip(ctx, &spend.State); err != nil {
		return nil, false, err
	}
	if err := q.SetUserVip(ctx, o.UserID, spend.State.LifetimeSpendCents, spend.State.CurrentTier); err != nil {
		return nil, false, err
	}
	if spend.CashbackPoints > 0 {
		if _, err := s.ledger.Apply(ctx, q, ledger.Entry{
			UserID:      o.UserID,
			Amount:      spend.CashbackPoints,
			Kind:        model.KindPurchaseCashback,
			Description: fmt.Sprintf("Cashback %s%% for order %s", spend.State.CashbackRate.Shift(2).String(), o.ID),
			OrderID:     &orderRef,
		}); err != nil {
			return nil, false, err
		}
	}
	if spend.TierChanged {
		events = append(events, notify.Event{
			Type:    notify.EventTierUpgraded,
			UserID:  o.UserID,
			OrderID: o.ID,
			Data:    map[string]any{"from": spend.Previous, "to": spend.State.CurrentTier},
			At:      now,
		})
	}

	referralEvents, err := s.payReferrer(ctx, q, o, now)
	if err != nil {
		return nil, false, err
	}
	events = append(events, referralEvents...)

	// Оплата уже принята, поэтому исчерпанный лимит промокода не мешает завершению:
	// счётчик остаётся на max_uses.
	if o.PromoCode != nil {
		if err := q.IncrementPromoUses(ctx, *o.PromoCode); err != nil {
			if !errors.Is(err, repository.ErrPromoLimitReached) {
				return nil, false, err
			}
			s.logger.Warn("promo code usage limit exceeded by paid order",
				zap.String("orderID", o.ID),
				zap.String("promoCode", *o.PromoCode),
			)
		}
	}

	if err := q.MarkOrderCompleted(ctx, o.ID, now); err != nil {
		return nil, false, err
	}

	events = append(events, notify.Event{
		Type:    notify.EventOrderCompleted,
		UserID:  o.UserID,
		OrderID: o.ID,
		Data: map[string]any{
			"total":        loyalty.CentsToDecimal(o.TotalCents).StringFixed(2),
			"bonuses_used": o.BonusesUsed,
			"cashback":     spend.CashbackPoints,
		},
		At: now,
	})
	return events, false, nil
}

// payReferrer начисляет пригласившему бонус за первую покупку и процент с каждой покупки.
// Флаг первой покупки меняется в той же транзакции, что и начисление бонуса.
func (s *Service) payReferrer(ctx context.Context, q repository.Queries, o *model.Order, now time.Time) ([]notify.Event, error) {
	ref, err := q.GetReferralByReferred(ctx, o.UserID)
	if err != nil || ref == nil {
		return nil, err
	}

	next, payout := s.settings.ApplyReferralPurchase(*ref, o.TotalCents, now)
	orderRef := o.ID
	buyer := o.UserID

	if payout.FirstPurchaseBonus > 0 {
		if _, err := s.ledger.Apply(ctx, q, ledger.Entry{
			UserID:         ref.ReferrerID,
			Amount:         payout.FirstPurchaseBonus,
			Kind:           model.KindReferralBonus,
			Description:    "Referral bonus: invited user made the first purchase",
			OrderID:        &orderRef,
			ReferralUserID: &buyer,
		}); err != nil {
			return nil, err
		}
	}
	if payout.Commission > 0 {
		if _, err := s.ledger.Apply(ctx, q, ledger.Entry{
			UserID:         ref.ReferrerID,
			Amount:         payout.Commission,
			Kind:           model.KindReferralPurchase,
			Description:    "Referral commission for order " + o.ID,
			OrderID:        &orderRef,
			ReferralUserID: &buyer,
		}); err != nil {
			return nil, err
		}
	}
	if err := q.SaveReferral(ctx, &next); err != nil {
		return nil, err
	}

	paid := payout.FirstPurchaseBonus + payout.Commission
	if paid == 0 {
		return nil, nil
	}
	return []notify.Event{{
		Type:    notify.EventReferralBonusPaid,
		UserID:  ref.ReferrerID,
		OrderID: o.ID,
		Data: map[string]any{
			"referred_user_id": buyer,
			"first_purchase":   payout.FirstPurchaseBonus,
			"commission":       payout.Commission,
		},
		At: now,
	}}, nil
}

// CompleteOrder завершает оплаченный заказ. Повторный вызов для завершённого заказа
// ничего не меняет и возвращает заказ без ошибки.
func (s *Service) CompleteOrder(ctx context.Context, orderID string) (*model.Order, error) {
	var (
		events []notify.Event
		done   bool
	)
	err := s.repo.WithTx(ctx, func(q repository.Queries) error {
		var err error
		events, done, err = s.completeInTx(ctx, q, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if done {
		s.logger.Debug("order already completed", zap.String("orderID", orderID))
	} else {
		s.logger.Info("order completed", zap.String("orderID", orderID))
		s.publish(ctx, events)
	}

	return s.repo.GetOrder(ctx, orderID)
}

// CancelOrder отменяет ожидающий оплаты заказ. Бонусы по такому заказу не списывались,
// поэтому отмена не меняет баланс. Отмена отменённого заказа ничего не делает.
func (s *Service) CancelOrder(ctx context.Context, orderID string) (*model.Order, error) {
	err := s.repo.WithTx(ctx, func(q repository.Queries) error {
		o, err := q.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		switch o.Status {
		case model.OrderStatusCancelled:
			return nil
		case model.OrderStatusCompleted:
			return fmt.Errorf("cancel order %s: %w", o.ID, model.ErrAlreadyCompleted)
		}
		return q.MarkOrderCancelled(ctx, o.ID, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order cancelled", zap.String("orderID", orderID))
	return s.repo.GetOrder(ctx, orderID)
}

// HandlePaymentEvent обрабатывает проверенное уведомление шлюза. Уведомление сначала
// сохраняется, после чего ошибки бизнес-правил только логируются: повторная доставка
// того же уведомления ничего не изменит. Ошибка возвращается, только если уведомление
// не удалось сохранить или обработка упала по инфраструктурной причине.
func (s *Service) HandlePaymentEvent(ctx context.Context, n PaymentNotification) error {
	if n.ExternalID == "" {
		return fmt.Errorf("%w: external_id is required", model.ErrValidation)
	}

	amount := loyalty.DecimalToCents(n.Amount)
	if _, err := s.repo.InsertPaymentEvent(ctx, &model.PaymentEvent{
		ExternalID:  n.ExternalID,
		Status:      n.Status,
		AmountCents: amount,
		Payload:     n.Payload,
		ReceivedAt:  s.now(),
	}); err != nil {
		return fmt.Errorf("record payment event: %w", err)
	}

	log := s.logger.With(zap.String("externalID", n.ExternalID), zap.String("status", n.Status))

	o, err := s.repo.GetOrderByExternalID(ctx, n.ExternalID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			log.Warn("payment event for unknown order")
			return nil
		}
		return err
	}
	log = log.With(zap.String("orderID", o.ID))

	switch {
	case n.Paid():
		if amount != o.TotalCents {
			log.Error("payment amount mismatch",
				zap.Int64("paid", amount),
				zap.Int64("expected", o.TotalCents),
			)
			return nil
		}
		_, err = s.CompleteOrder(ctx, o.ID)
		if errors.Is(err, model.ErrInsufficientBalance) {
			return s.cancelUnpayableOrder(ctx, o, log)
		}
	case n.Failed():
		_, err = s.CancelOrder(ctx, o.ID)
	default:
		log.Debug("payment event recorded")
		return nil
	}

	if err != nil {
		if isBusinessError(err) {
			log.Warn("payment event not applied", zap.Error(err))
			return nil
		}
		log.Error("payment event processing failed", zap.Error(err))
		return err
	}
	return nil
}

// cancelUnpayableOrder отменяет оплаченный заказ, бонусную часть которого уже нельзя
// списать. Деньги по такому заказу подлежат возврату, о чём публикуется событие.
func (s *Service) cancelUnpayableOrder(ctx context.Context, o *model.Order, log *zap.Logger) error {
	log.Error("paid order cannot be completed, refund required",
		zap.Int64("bonusesUsed", o.BonusesUsed),
		zap.Int64("totalCents", o.TotalCents),
	)
	if _, err := s.CancelOrder(ctx, o.ID); err != nil {
		if isBusinessError(err) {
			log.Warn("unpayable order not cancelled", zap.Error(err))
			return nil
		}
		return err
	}
	s.publish(ctx, []notify.Event{{
		Type:    notify.EventRefundRequired,
		UserID:  o.UserID,
		OrderID: o.ID,
		Data:    map[string]any{"cash": loyalty.CentsToDecimal(o.TotalCents).StringFixed(2)},
		At:      s.now(),
	}})
	return nil
}

// SimulatePayment завершает заказ так же, как подтверждение от шлюза. Доступно только в режиме разработки.
func (s *Service) SimulatePayment(ctx context.Context, orderID string) (*model.Order, error) {
	if !s.devMode {
		return nil, model.ErrForbidden
	}
	return s.CompleteOrder(ctx, orderID)
}
