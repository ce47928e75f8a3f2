package loyalty

import (
	"time"

	"github.com/mmeshcher/archivemart/internal/model"
)

// ReferralPayout — выплаты пригласившему за одну завершённую покупку приглашённого.
type ReferralPayout struct {
	FirstPurchaseBonus int64
	Commission         int64
}

// ReferralCommission рассчитывает процент от суммы заказа в бонусах.
func (s Settings) ReferralCommission(totalCents int64) int64 {
	return s.PointsFor(totalCents, s.ReferralPercent)
}

// ApplyReferralPurchase обновляет реферальную связь после завершённой покупки.
// Фиксированный бонус выплачивается только если первая покупка ещё не была учтена.
func (s Settings) ApplyReferralPurchase(r model.Referral, totalCents int64, now time.Time) (model.Referral, ReferralPayout) {
	var payout ReferralPayout

	if !r.FirstPurchaseMade {
		r.FirstPurchaseMade = true
		at := now
		r.FirstPurchaseAt = &at
		payout.FirstPurchaseBonus = s.ReferralBonus
	}

	payout.Commission = s.ReferralCommission(totalCents)

	r.TotalPurchases++
	r.TotalSpendCents += totalCents
	r.BonusesPaid += payout.FirstPurchaseBonus + payout.Commission

	return r, payout
}

// Badge — отличительный знак участника реферального рейтинга.
type Badge struct {
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
}

// BadgeFor возвращает знак по числу приглашённых.
func BadgeFor(invited int) Badge {
	switch {
	case invited >= 100:
		return Badge{Name: "Referral King", Emoji: "👑"}
	case invited >= 50:
		return Badge{Name: "Diamond Referrer", Emoji: "💎"}
	case invited >= 25:
		return Badge{Name: "Gold Referrer", Emoji: "🏆"}
	case invited >= 10:
		return Badge{Name: "Silver Referrer", Emoji: "🥈"}
	case invited >= 5:
		return Badge{Name: "Bronze Referrer", Emoji: "🥉"}
	default:
		return Badge{Name: "Starter", Emoji: "⭐"}
	}
}
