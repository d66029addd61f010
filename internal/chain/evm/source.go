// Package evm читает события оплаты из контракта приема платежей в EVM сети.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"xepbot/internal/chain"
	"xepbot/internal/logger"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	sourceName = "evm"

	// многие RPC ограничивают диапазон eth_getLogs
	maxBlockRange = 2000
)

// LogFilterer - часть ethclient.Client, нужная источнику
type LogFilterer interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

type Config struct {
	RPCURL        string
	Contract      string
	ABIPath       string
	EventName     string
	Confirmations uint64
	StartBlock    uint64
}

// Source опрашивает логи контракта начиная с сохраненного блока
type Source struct {
	client   LogFilterer
	contract common.Address
	abi      abi.ABI
	event    abi.Event
	indexed  abi.Arguments
	confirm  uint64
	start    uint64
	cursor   chain.Cursor
	closer   func()
}

var _ chain.Source = (*Source)(nil)

// Dial подключается к RPC и создает источник
func Dial(ctx context.Context, cfg Config, cursor chain.Cursor) (*Source, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial evm rpc: %w", err)
	}
	s, err := New(client, cfg, cursor)
	if err != nil {
		client.Close()
		return nil, err
	}
	s.closer = client.Close
	return s, nil
}

func New(client LogFilterer, cfg Config, cursor chain.Cursor) (*Source, error) {
	if !common.IsHexAddress(cfg.Contract) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.Contract)
	}
	parsed, err := loadABI(cfg.ABIPath)
	if err != nil {
		return nil, err
	}
	name := cfg.EventName
	if name == "" {
		name = "PaymentReceived"
	}
	ev, ok := parsed.Events[name]
	if !ok {
		return nil, fmt.Errorf("event %q not found in abi", name)
	}

	var indexed abi.Arguments
	for _, in := range ev.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}

	return &Source{
		client:   client,
		contract: common.HexToAddress(cfg.Contract),
		abi:      parsed,
		event:    ev,
		indexed:  indexed,
		confirm:  cfg.Confirmations,
		start:    cfg.StartBlock,
		cursor:   cursor,
	}, nil
}

func (s *Source) Name() string { return sourceName }

func (s *Source) Close() {
	if s.closer != nil {
		s.closer()
	}
}

// Poll читает логи с блока курсора до head - confirmations
func (s *Source) Poll(ctx context.Context) ([]chain.Event, error) {
	log := logger.With("component", "evm_source", "contract", s.contract.Hex())

	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("block number: %w", err)
	}
	if head < s.confirm {
		return nil, nil
	}
	safe := head - s.confirm

	from, ok, err := s.cursor.Load(ctx, sourceName)
	if err != nil {
		return nil, fmt.Errorf("load cursor: %w", err)
	}
	if !ok {
		from = s.start
		if from == 0 {
			// первый запуск без EVM_START_BLOCK: только новые блоки
			from = safe
		}
	}
	if from > safe {
		return nil, nil
	}

	to := safe
	if to-from+1 > maxBlockRange {
		to = from + maxBlockRange - 1
	}

	logs, err := s.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{s.contract},
		Topics:    [][]common.Hash{{s.event.ID}},
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs %d-%d: %w", from, to, err)
	}

	events := make([]chain.Event, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		ev, err := s.decode(l)
		if err != nil {
			log.Warn("не удалось разобрать событие", "tx", l.TxHash.Hex(), "error", err)
			continue
		}
		events = append(events, ev)
	}

	if err := s.cursor.Save(ctx, sourceName, to+1); err != nil {
		return events, fmt.Errorf("save cursor: %w", err)
	}

	log.Debug("evm poll", "from", from, "to", to, "events", len(events))
	return events, nil
}

func (s *Source) decode(l types.Log) (chain.Event, error) {
	if len(l.Topics) == 0 || l.Topics[0] != s.event.ID {
		return chain.Event{}, errors.New("unexpected topic")
	}

	values := make(map[string]interface{})
	if err := s.abi.UnpackIntoMap(values, s.event.Name, l.Data); err != nil {
		return chain.Event{}, fmt.Errorf("unpack data: %w", err)
	}
	if len(s.indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(values, s.indexed, l.Topics[1:]); err != nil {
			return chain.Event{}, fmt.Errorf("parse topics: %w", err)
		}
	}

	ev := chain.Event{Source: sourceName, TxHash: l.TxHash.Hex()}
	if v, ok := pick(values, refArgs); ok {
		ev.Ref = stringify(v)
	}
	if v, ok := pick(values, payerArgs); ok {
		ev.Payer = stringify(v)
	}
	if v, ok := pick(values, amountArgs); ok {
		ev.Amount = stringify(v)
	}
	return ev, nil
}
