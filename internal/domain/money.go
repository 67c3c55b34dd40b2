package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Money: денежная сумма в минимальных единицах (центах).
type Money int64

const moneyExponent = -2

var maxMinorUnits = decimal.NewFromInt(math.MaxInt64)

// ParseMoney разбирает десятичную строку вида "3.50". Более двух знаков после
// запятой и отрицательные суммы отклоняются.
func ParseMoney(raw string) (Money, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, &ValidationError{Field: "price", Rule: "decimal", Value: raw}
	}
	if d.IsNegative() {
		return 0, &ValidationError{Field: "price", Rule: "gte=0", Value: raw}
	}
	if !d.Equal(d.Truncate(-moneyExponent)) {
		return 0, &ValidationError{Field: "price", Rule: "max 2 decimal places", Value: raw}
	}
	minor := d.Shift(-moneyExponent)
	if minor.GreaterThan(maxMinorUnits) {
		return 0, &ValidationError{Field: "price", Rule: "max", Value: raw}
	}
	return Money(minor.IntPart()), nil
}

// MoneyFromMinor создаёт сумму из минимальных единиц.
func MoneyFromMinor(minor int64) Money {
	return Money(minor)
}

// Minor возвращает сумму в минимальных единицах.
func (m Money) Minor() int64 {
	return int64(m)
}

// Mul умножает цену на количество. При переполнении возвращает math.MaxInt64;
// там, где результат сохраняется, используется MulChecked.
func (m Money) Mul(qty int32) Money {
	total, err := m.MulChecked(qty)
	if err != nil {
		return math.MaxInt64
	}
	return total
}

// MulChecked умножает цену на неотрицательное количество с проверкой переполнения.
func (m Money) MulChecked(qty int32) (Money, error) {
	if m < 0 || qty < 0 {
		return 0, fmt.Errorf("%w: %s x %d", ErrMoneyOverflow, m, qty)
	}
	if qty != 0 && m > math.MaxInt64/Money(qty) {
		return 0, fmt.Errorf("%w: %s x %d", ErrMoneyOverflow, m, qty)
	}
	return m * Money(qty), nil
}

// AddChecked складывает неотрицательные суммы с проверкой переполнения.
func (m Money) AddChecked(other Money) (Money, error) {
	if m < 0 || other < 0 || m > math.MaxInt64-other {
		return 0, fmt.Errorf("%w: %s + %s", ErrMoneyOverflow, m, other)
	}
	return m + other, nil
}

// Decimal возвращает сумму как decimal с двумя знаками.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), moneyExponent)
}

// String рендерит сумму с двумя знаками после точки: 700 -> "7.00".
func (m Money) String() string {
	return m.Decimal().StringFixed(-moneyExponent)
}
