package domain

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

var ErrInvalidWallet = errors.New("неверный адрес кошелька")

// NormalizeWallet проверяет EVM адрес (0x + 40 hex) и возвращает его без пробелов
func NormalizeWallet(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if err := validate.Var(addr, "required,eth_addr"); err != nil {
		return "", ErrInvalidWallet
	}
	return addr, nil
}

// Validate проверяет struct по тегам validate
func Validate(v any) error {
	return validate.Struct(v)
}
