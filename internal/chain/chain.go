// Package chain описывает источники платежных событий из блокчейнов.
package chain

import "context"

// Event - входящий платеж, найденный в сети
type Event struct {
	Source string `json:"source"` // имя источника: evm, ton
	Ref    string `json:"ref"`    // correlation ref из данных события (memo, аргумент ref)
	Payer  string `json:"payer"`
	Amount string `json:"amount"` // сумма в минимальных единицах сети, как пришла
	TxHash string `json:"tx_hash"`
}

// Source отдает новые события с момента прошлого вызова Poll
type Source interface {
	Name() string
	Poll(ctx context.Context) ([]Event, error)
}

// Cursor хранит позицию источника между перезапусками (номер блока, lt)
type Cursor interface {
	Load(ctx context.Context, key string) (uint64, bool, error)
	Save(ctx context.Context, key string, value uint64) error
}
