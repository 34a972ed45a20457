// Package validation содержит функции валидации входных данных.
package validation

import "unicode"

// IsValidPhone проверяет корректность телефонного номера: допускаются цифры,
// пробелы, дефисы и ведущий знак «+», значащих цифр должно быть от 5 до 15.
func IsValidPhone(phone string) bool {
	if phone == "" {
		return false
	}

	digits := 0

	for i, ch := range phone {
		switch {
		case unicode.IsDigit(ch):
			digits++
		case ch == '+':
			if i != 0 {
				return false
			}
		case ch == ' ' || ch == '-' || ch == '(' || ch == ')':
		default:
			return false
		}
	}

	return digits >= 5 && digits <= 15
}
