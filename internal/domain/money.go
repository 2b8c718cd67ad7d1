package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money — неизменяемое денежное значение: сумма плюс трёхбуквенный код валюты.
// Арифметика допустима только между значениями одной валюты.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// NewMoney создаёт денежное значение, отклоняя отрицательную сумму
// и некорректный код валюты.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if amount.IsNegative() {
		return Money{}, ErrMoneyNegative
	}
	if !validCurrency(currency) {
		return Money{}, ErrMoneyCurrencyInvalid
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// Add возвращает сумму двух значений одной валюты.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrMoneyCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// Sub возвращает разность значений одной валюты; отрицательный результат запрещён.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrMoneyCurrencyMismatch, m.Currency, other.Currency)
	}
	result := m.Amount.Sub(other.Amount)
	if result.IsNegative() {
		return Money{}, ErrMoneyNegativeResult
	}
	return Money{Amount: result, Currency: m.Currency}, nil
}

// MulInt умножает сумму на целое количество (субтоталы позиций).
func (m Money) MulInt(qty int64) Money {
	return Money{Amount: m.Amount.Mul(decimal.NewFromInt(qty)), Currency: m.Currency}
}

// Equal сравнивает значения по паре (сумма, валюта).
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// IsZero сообщает, является ли сумма нулевой.
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

func (m Money) String() string {
	return m.Amount.String() + " " + m.Currency
}

func validCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
