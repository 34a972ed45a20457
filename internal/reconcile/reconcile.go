// Package reconcile содержит чистую функцию пересчёта производных полей оплаты.
package reconcile

import "github.com/mmeshcher/printshop-system/internal/model"

// Settle вычисляет остаток и расчётный статус оплаты по внесённому авансу и
// полной стоимости заказа в копейках. Отрицательный остаток означает
// переплату и ошибкой не является. Функция вызывается внутри каждой
// транзакции записи: ни один путь сохранения Payment не обходит пересчёт.
func Settle(advanceCents, totalCents int64) (int64, model.PaymentStatus) {
	balance := totalCents - advanceCents

	switch {
	case advanceCents == 0:
		return balance, model.PaymentStatusUnpaid
	case totalCents > 0 && advanceCents >= totalCents:
		return balance, model.PaymentStatusPaid
	default:
		return balance, model.PaymentStatusPartial
	}
}
