package loyalty

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/archivemart/internal/model"
)

// SpendResult — итог учёта покупки в VIP-программе.
type SpendResult struct {
	State       model.VipState
	Previous    model.Tier
	TierChanged bool
	// CashbackPoints рассчитан по ставке уровня, действующего уже после учёта этой покупки.
	CashbackPoints int64
}

// TierFor возвращает правило уровня для накопленной суммы трат.
func (s Settings) TierFor(spendCents int64) TierRule {
	rule := s.Tiers[0]
	for _, t := range s.Tiers {
		if spendCents >= t.ThresholdCents {
			rule = t
		}
	}
	return rule
}

// RateFor возвращает ставку кэшбэка уровня.
func (s Settings) RateFor(tier model.Tier) decimal.Decimal {
	for _, t := range s.Tiers {
		if t.Tier == tier {
			return t.CashbackRate
		}
	}
	return decimal.Zero
}

// NextTier возвращает следующий уровень после накопленной суммы, если он есть.
func (s Settings) NextTier(spendCents int64) (TierRule, bool) {
	for _, t := range s.Tiers {
		if t.ThresholdCents > spendCents {
			return t, true
		}
	}
	return TierRule{}, false
}

// RecordSpend добавляет оплаченную деньгами сумму к накопленным тратам и пересчитывает уровень.
// Уровень только растёт. Кэшбэк считается по ставке нового уровня, поэтому покупка,
// пересёкшая порог, получает кэшбэк по повышенной ставке.
func (s Settings) RecordSpend(st *model.VipState, userID, cashCents int64, now time.Time) SpendResult {
	next := model.VipState{UserID: userID, CurrentTier: model.TierNone, CashbackRate: decimal.Zero}
	if st != nil {
		next = *st
	}
	if next.CurrentTier == "" {
		next.CurrentTier = model.TierNone
	}
	if cashCents < 0 {
		cashCents = 0
	}

	prev := next.CurrentTier
	next.LifetimeSpendCents += cashCents
	next.PurchasesCount++

	rule := s.TierFor(next.LifetimeSpendCents)
	changed := false
	if rule.Tier.Rank() > prev.Rank() {
		next.CurrentTier = rule.Tier
		at := now
		next.TierChangedAt = &at
		changed = true
	}
	next.CashbackRate = s.RateFor(next.CurrentTier)

	cashback := s.PointsFor(cashCents, next.CashbackRate)
	next.TotalCashbackEarned += cashback

	return SpendResult{
		State:          next,
		Previous:       prev,
		TierChanged:    changed,
		CashbackPoints: cashback,
	}
}
