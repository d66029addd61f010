package evm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ABI контракта приема платежей по умолчанию
const defaultABI = `[
  {
    "type": "event",
    "name": "PaymentReceived",
    "anonymous": false,
    "inputs": [
      {"name": "payer", "type": "address", "indexed": true},
      {"name": "amount", "type": "uint256", "indexed": false},
      {"name": "ref", "type": "string", "indexed": false}
    ]
  }
]`

// имена аргументов в разных версиях контракта
var (
	payerArgs  = []string{"payer", "from", "sender"}
	amountArgs = []string{"amount", "value"}
	refArgs    = []string{"ref", "paymentId", "refCode"}
)

// loadABI читает ABI из файла или берет встроенный.
// Файл может быть как голым массивом, так и артефактом сборки с полем "abi".
func loadABI(path string) (abi.ABI, error) {
	if path == "" {
		return abi.JSON(strings.NewReader(defaultABI))
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("read abi: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		raw, err = extractArtifactABI(raw)
		if err != nil {
			return abi.ABI{}, err
		}
	}
	return abi.JSON(bytes.NewReader(raw))
}

func extractArtifactABI(raw []byte) ([]byte, error) {
	var artifact struct {
		ABI json.RawMessage `json:"abi"`
	}
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return nil, fmt.Errorf("parse abi artifact: %w", err)
	}
	if len(artifact.ABI) == 0 {
		return nil, errors.New("abi artifact has no \"abi\" field")
	}
	return artifact.ABI, nil
}

func pick(values map[string]interface{}, names []string) (interface{}, bool) {
	for _, n := range names {
		if v, ok := values[n]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// stringify приводит значение аргумента события к строке
func stringify(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case *big.Int:
		return x.String()
	case common.Address:
		return x.Hex()
	case [32]byte:
		// ref, записанный контрактом как bytes32 ascii
		return string(bytes.TrimRight(x[:], "\x00"))
	case []byte:
		return string(bytes.TrimRight(x, "\x00"))
	case uint64:
		return new(big.Int).SetUint64(x).String()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
