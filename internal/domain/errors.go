package domain

import "errors"

var (
	// Ошибка отрицательной денежной суммы.
	ErrMoneyNegative = errors.New("money amount must be non-negative")
	// Ошибка некорректного кода валюты (ожидается три латинские буквы).
	ErrMoneyCurrencyInvalid = errors.New("currency must be a three-letter code")
	// Ошибка арифметики над разными валютами.
	ErrMoneyCurrencyMismatch = errors.New("money currency mismatch")
	// Ошибка вычитания, дающего отрицательный результат.
	ErrMoneyNegativeResult = errors.New("money subtraction result must be non-negative")

	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка отсутствующего идентификатора покупателя.
	ErrPayerRequired = errors.New("payer_id is required")
	// Ошибка отсутствующего идентификатора чекаута.
	ErrCheckoutIDRequired = errors.New("checkout_id is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка некорректного количества товара (<= 0).
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order total does not match items sum")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении заказа.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrCheckoutAlreadyProcessed означает, что заказ по этому checkout_id уже создан.
	ErrCheckoutAlreadyProcessed = errors.New("checkout already processed")
	// ErrOrderNotCancellable — заказ в статусе, из которого отмена запрещена.
	ErrOrderNotCancellable = errors.New("order cannot be cancelled in its current status")
	// ErrUnknownOrderStatus — строка статуса не входит в закрытый перечень.
	ErrUnknownOrderStatus = errors.New("unknown order status")

	// ErrPaymentNotFound возвращается, если платёж не найден.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrPaymentExists — для заказа уже существует платёж (uniqueness по order_id).
	ErrPaymentExists = errors.New("payment for order already exists")
	// ErrPaymentVersionConflict сигнализирует о конфликте версий при сохранении платежа.
	ErrPaymentVersionConflict = errors.New("payment version conflict")
	// ErrPaymentInvalidTransition — переход статуса платежа вне допустимой последовательности.
	// Это ошибка программирования, а не ожидаемое состояние в рантайме.
	ErrPaymentInvalidTransition = errors.New("invalid payment status transition")
	// ErrUnknownPaymentStatus — строка статуса платежа не входит в закрытый перечень.
	ErrUnknownPaymentStatus = errors.New("unknown payment status")

	// ErrEventIDRequired — пустой идентификатор события в inbox.
	ErrEventIDRequired = errors.New("event_id is required")
	// ErrEventAlreadyProcessed — событие с таким идентификатором уже обработано.
	ErrEventAlreadyProcessed = errors.New("event already processed")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий заказа или платежа.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict) || errors.Is(err, ErrPaymentVersionConflict)
}

// IsValidation проверяет, относится ли ошибка к невалидному входу команды.
// Такие ошибки отклоняются синхронно и не подлежат повтору доставкой.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrMoneyNegative,
		ErrMoneyCurrencyInvalid,
		ErrMoneyCurrencyMismatch,
		ErrMoneyNegativeResult,
		ErrOrderIDRequired,
		ErrPayerRequired,
		ErrCheckoutIDRequired,
		ErrItemsRequired,
		ErrItemQtyInvalid,
		ErrUnknownOrderStatus,
		ErrUnknownPaymentStatus,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
