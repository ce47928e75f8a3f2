// Package loyalty содержит чистые правила программы лояльности: лимит оплаты бонусами,
// промокоды, серию ежедневных бонусов, VIP-уровни и реферальные выплаты.
//
// Пакет не обращается к хранилищу: все функции получают состояние и возвращают новое,
// а запись выполняет вызывающий код внутри транзакции.
package loyalty

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/archivemart/internal/model"
)

// JackpotPolicy определяет, как разыгрывается джекпот при получении ежедневного бонуса.
type JackpotPolicy string

const (
	// JackpotChance — джекпот выпадает с фиксированной вероятностью, бросок делает сервер.
	JackpotChance JackpotPolicy = "chance"
	// JackpotMatch — джекпот выпадает, если все символы розыгрыша клиента совпали.
	JackpotMatch JackpotPolicy = "match"
)

// TierRule задаёт порог накопленных трат и ставку кэшбэка VIP-уровня.
type TierRule struct {
	Tier           model.Tier
	ThresholdCents int64
	CashbackRate   decimal.Decimal
}

// Settings — неизменяемый набор параметров программы лояльности.
// Передаётся по значению во все движки при их создании.
type Settings struct {
	BonusCapRatio     decimal.Decimal
	PointsPerUnit     int64
	StreakRewards     []int64
	StreakRestoreCost int64
	JackpotBonus      int64
	JackpotChance     float64
	JackpotPolicy     JackpotPolicy
	ReferralBonus     int64
	ReferralPercent   decimal.Decimal
	WelcomeBonus      int64
	Tiers             []TierRule
	Location          *time.Location
}

// DefaultTiers возвращает пороги VIP-уровней по возрастанию.
func DefaultTiers() []TierRule {
	return []TierRule{
		{Tier: model.TierNone, ThresholdCents: 0, CashbackRate: decimal.Zero},
		{Tier: model.TierBronze, ThresholdCents: 1, CashbackRate: decimal.RequireFromString("0.03")},
		{Tier: model.TierSilver, ThresholdCents: 100_00, CashbackRate: decimal.RequireFromString("0.05")},
		{Tier: model.TierGold, ThresholdCents: 500_00, CashbackRate: decimal.RequireFromString("0.07")},
		{Tier: model.TierDiamond, ThresholdCents: 1000_00, CashbackRate: decimal.RequireFromString("0.10")},
	}
}

// DefaultStreakRewards — награды за дни серии с первого по седьмой.
func DefaultStreakRewards() []int64 {
	return []int64{1, 2, 3, 4, 5, 7, 10}
}

// DefaultSettings возвращает параметры программы по умолчанию.
func DefaultSettings() Settings {
	loc, err := time.LoadLocation("Europe/Kiev")
	if err != nil {
		loc = time.UTC
	}

	return Settings{
		BonusCapRatio:     decimal.RequireFromString("0.7"),
		PointsPerUnit:     100,
		StreakRewards:     DefaultStreakRewards(),
		StreakRestoreCost: 30,
		JackpotBonus:      100,
		JackpotChance:     0.005,
		JackpotPolicy:     JackpotChance,
		ReferralBonus:     20,
		ReferralPercent:   decimal.RequireFromString("0.05"),
		WelcomeBonus:      0,
		Tiers:             DefaultTiers(),
		Location:          loc,
	}
}

// Validate проверяет согласованность параметров.
func (s Settings) Validate() error {
	var errs []error

	if s.BonusCapRatio.IsNegative() || s.BonusCapRatio.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Errorf("bonus cap ratio %s out of [0,1]", s.BonusCapRatio))
	}
	if s.PointsPerUnit <= 0 {
		errs = append(errs, fmt.Errorf("points per unit must be positive, got %d", s.PointsPerUnit))
	}
	if len(s.StreakRewards) == 0 {
		errs = append(errs, errors.New("streak reward table is empty"))
	}
	if s.StreakRestoreCost < 0 || s.JackpotBonus < 0 || s.ReferralBonus < 0 || s.WelcomeBonus < 0 {
		errs = append(errs, errors.New("bonus amounts must not be negative"))
	}
	if s.JackpotChance < 0 || s.JackpotChance > 1 {
		errs = append(errs, fmt.Errorf("jackpot chance %v out of [0,1]", s.JackpotChance))
	}
	if s.JackpotPolicy != JackpotChance && s.JackpotPolicy != JackpotMatch {
		errs = append(errs, fmt.Errorf("unknown jackpot policy %q", s.JackpotPolicy))
	}
	if s.ReferralPercent.IsNegative() || s.ReferralPercent.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Errorf("referral percent %s out of [0,1]", s.ReferralPercent))
	}
	if len(s.Tiers) == 0 {
		errs = append(errs, errors.New("tier table is empty"))
	}
	for i := 1; i < len(s.Tiers); i++ {
		if s.Tiers[i].ThresholdCents <= s.Tiers[i-1].ThresholdCents {
			errs = append(errs, fmt.Errorf("tier %s threshold is not ascending", s.Tiers[i].Tier))
		}
	}
	if s.Location == nil {
		errs = append(errs, errors.New("reset timezone is not set"))
	}

	return errors.Join(errs...)
}
