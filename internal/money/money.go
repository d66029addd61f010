package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Количество знаков после запятой у минимальной единицы по умолчанию (центы)
const DefaultDecimals = 2

var (
	ErrInvalidAmount = errors.New("неверная сумма")
	ErrNonPositive   = errors.New("сумма должна быть больше нуля")
)

// ParseMinor переводит строку "10.00" в минимальные единицы с округлением вниз.
// Принимает и запятую как разделитель: "10,5".
func ParseMinor(s string, decimals int32) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	minor := d.Shift(decimals).RoundDown(0)
	if !minor.IsPositive() {
		return 0, ErrNonPositive
	}
	if !minor.BigInt().IsInt64() {
		return 0, ErrInvalidAmount
	}
	return minor.IntPart(), nil
}

// FormatMinor обратное преобразование: 1050 -> "10.50"
func FormatMinor(minor int64, decimals int32) string {
	return decimal.New(minor, -decimals).StringFixed(decimals)
}
