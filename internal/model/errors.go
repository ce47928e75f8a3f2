package model

import "errors"

// Ошибки предметной области. Нижележащие слои оборачивают их через fmt.Errorf("...: %w", err).
var (
	// ErrValidation возвращается при некорректных входных данных.
	ErrValidation = errors.New("validation error")
	// ErrNotFound возвращается, если сущность не найдена.
	ErrNotFound = errors.New("not found")
	// ErrForbidden возвращается при обращении к чужим данным.
	ErrForbidden = errors.New("forbidden")
	// ErrInsufficientBalance возвращается, если операция увела бы баланс в минус.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrBonusCapExceeded возвращается, если запрошено больше бонусов, чем разрешено лимитом.
	ErrBonusCapExceeded = errors.New("bonus cap exceeded")
	// ErrAlreadyClaimed возвращается при повторном получении ежедневного бонуса в тот же день.
	ErrAlreadyClaimed = errors.New("daily bonus already claimed")
	// ErrRestoreUnavailable возвращается, если серию нельзя восстановить.
	ErrRestoreUnavailable = errors.New("streak restore unavailable")
	ErrPromoExpired       = errors.New("promo code expired")
	ErrPromoExhausted     = errors.New("promo code usage limit reached")
	ErrPromoInactive      = errors.New("promo code inactive")
	ErrPromoBelowMinimum  = errors.New("subtotal below promo minimum")
	// ErrAlreadyCompleted сигнализирует об идемпотентном повторе завершения заказа.
	ErrAlreadyCompleted = errors.New("order already completed")
	ErrOrderCancelled   = errors.New("order cancelled")
	ErrAlreadyReferred  = errors.New("user already has a referrer")
	ErrSelfReferral     = errors.New("own referral code")
	// ErrExternalUnavailable возвращается при недоступности внешнего сервиса; операцию можно повторить.
	ErrExternalUnavailable = errors.New("external service unavailable")
	// ErrConsistencyViolation возвращается при нарушении инварианта журнала; транзакция откатывается.
	ErrConsistencyViolation = errors.New("consistency violation")
)
