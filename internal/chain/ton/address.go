package ton

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/xssnick/tonutils-go/address"
)

// NormalizeAddress приводит user-friendly (EQ.../UQ...) и raw (0:hex) адреса к raw виду
// в нижнем регистре. Нераспознанный адрес возвращается как есть.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	a, err := parseAddress(addr)
	if err != nil {
		return addr
	}
	return fmt.Sprintf("%d:%s", a.Workchain(), hex.EncodeToString(a.Data()))
}

func parseAddress(addr string) (*address.Address, error) {
	if strings.Contains(addr, ":") {
		return parseRawAddress(addr)
	}
	return address.ParseAddr(addr)
}

// parseRawAddress парсит raw адрес формата "0:hex" или "-1:hex"
func parseRawAddress(rawAddr string) (*address.Address, error) {
	var workchain int32
	var hashHex string

	switch {
	case strings.HasPrefix(rawAddr, "0:"):
		workchain = 0
		hashHex = rawAddr[2:]
	case strings.HasPrefix(rawAddr, "-1:"):
		workchain = -1
		hashHex = rawAddr[3:]
	default:
		return nil, fmt.Errorf("unknown raw address format: %s", rawAddr)
	}

	hashBytes, err := hex.DecodeString(hashHex)
	if err != nil {
		return nil, fmt.Errorf("invalid hex in address: %w", err)
	}
	if len(hashBytes) != 32 {
		return nil, fmt.Errorf("invalid hash length: expected 32 bytes, got %d", len(hashBytes))
	}

	return address.NewAddress(0, byte(workchain), hashBytes), nil
}
