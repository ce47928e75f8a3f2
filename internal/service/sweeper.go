package service

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// StartPaymentSweep запускает фоновую проверку заказов, которые ждут оплаты дольше
// допустимого срока. Статус каждого такого заказа запрашивается у шлюза.
func (s *Service) StartPaymentSweep(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processSweepBatch(ctx)
			}
		}
	}()
}

func (s *Service) processSweepBatch(ctx context.Context) {
	orders, err := s.repo.ListStalePendingOrders(ctx, s.now().Add(-s.paymentTimeout), sweepBatchSize)
	if err != nil {
		s.logger.Warn("list stale orders failed", zap.Error(err))
		return
	}

	for _, o := range orders {
		log := s.logger.With(zap.String("orderID", o.ID))

		if s.gateway == nil || o.ExternalPaymentID == nil {
			if _, err := s.CancelOrder(ctx, o.ID); err != nil {
				log.Warn("cancel stale order failed", zap.Error(err))
			}
			continue
		}

		resp, statusCode, retryAfter, err := s.gateway.GetPaymentStatus(ctx, *o.ExternalPaymentID)
		if err != nil {
			log.Warn("payment status request failed", zap.Error(err))
			continue
		}

		if statusCode == http.StatusTooManyRequests {
			if retryAfter > 0 {
				timer := time.NewTimer(retryAfter)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			continue
		}

		if statusCode == http.StatusNotFound {
			if _, err := s.CancelOrder(ctx, o.ID); err != nil {
				log.Warn("cancel unknown payment order failed", zap.Error(err))
			}
			continue
		}

		if resp == nil {
			continue
		}

		polled := *resp
		if polled.ExternalID == "" {
			polled.ExternalID = *o.ExternalPaymentID
		}
		payload, err := json.Marshal(polled)
		if err != nil {
			log.Warn("encode polled payment status failed", zap.Error(err))
			continue
		}
		if err := s.HandlePaymentEvent(ctx, PaymentNotification{PaymentStatus: polled, Payload: payload}); err != nil {
			log.Warn("apply polled payment status failed", zap.Error(err))
		}
	}
}
