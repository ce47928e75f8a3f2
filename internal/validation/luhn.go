// Package validation содержит функции валидации входных данных.
package validation

import "unicode"

// ReferralCodeLength — длина реферального кода вместе с контрольной цифрой.
const ReferralCodeLength = 9

// IsValidLuhn проверяет строку цифр по алгоритму Луна.
func IsValidLuhn(number string) bool {
	if number == "" {
		return false
	}

	sum, ok := luhnSum(number, false)
	return ok && sum%10 == 0
}

// luhnSum считает сумму Луна. Если checkPending, удвоение начинается с последней цифры,
// как если бы справа уже стояла контрольная цифра.
func luhnSum(number string, checkPending bool) (int, bool) {
	sum := 0
	double := checkPending

	for i := len(number) - 1; i >= 0; i-- {
		ch := rune(number[i])
		if !unicode.IsDigit(ch) {
			return 0, false
		}
		digit := int(ch - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}

	return sum, true
}

// AppendCheckDigit дописывает к строке цифр контрольную цифру Луна.
// Для строки с нецифровыми символами возвращает пустую строку.
func AppendCheckDigit(payload string) string {
	sum, ok := luhnSum(payload, true)
	if !ok || payload == "" {
		return ""
	}
	check := (10 - sum%10) % 10
	return payload + string(rune('0'+check))
}

// IsValidReferralCode проверяет формат реферального кода: девять цифр, последняя — контрольная.
func IsValidReferralCode(code string) bool {
	return len(code) == ReferralCodeLength && IsValidLuhn(code)
}
