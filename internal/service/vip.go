package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/archivemart/internal/model"
)

// VipStatus — текущий VIP-уровень пользователя и прогресс до следующего.
type VipStatus struct {
	Tier          model.Tier      `json:"tier"`
	CashbackRate  decimal.Decimal `json:"cashback_rate"`
	LifetimeSpend model.Money     `json:"lifetime_spend"`
	NextTier      *model.Tier     `json:"next_tier"`
	AmountToNext  *model.Money    `json:"amount_to_next"`
	Purchases     int             `json:"purchases"`
	TotalCashback int64           `json:"total_cashback"`
}

// VipStatus возвращает VIP-статус пользователя.
func (s *Service) VipStatus(ctx context.Context, userID int64) (*VipStatus, error) {
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	st, err := s.repo.GetVip(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := &VipStatus{Tier: model.TierNone, CashbackRate: decimal.Zero}
	if st != nil {
		status.Tier = st.CurrentTier
		status.CashbackRate = st.CashbackRate
		status.LifetimeSpend = model.Money(st.LifetimeSpendCents)
		status.Purchases = st.PurchasesCount
		status.TotalCashback = st.TotalCashbackEarned
	}

	if next, ok := s.settings.NextTier(int64(status.LifetimeSpend)); ok {
		tier := next.Tier
		left := model.Money(next.ThresholdCents - int64(status.LifetimeSpend))
		status.NextTier = &tier
		status.AmountToNext = &left
	}

	return status, nil
}
