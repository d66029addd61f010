// Package ton читает входящие TON переводы на кошелек платформы.
// Комментарий (memo) перевода должен совпадать с ref платежа.
package ton

import (
	"context"
	"fmt"
	"strconv"

	"xepbot/internal/chain"
	"xepbot/internal/logger"
)

const (
	sourceName = "ton"
	pageSize   = 50
	maxPages   = 20
)

type transactionsGetter interface {
	GetTransactions(ctx context.Context, address string, limit int, beforeLt int64) ([]Transaction, error)
}

type Source struct {
	client transactionsGetter
	wallet string
	cursor chain.Cursor
}

var _ chain.Source = (*Source)(nil)

func NewSource(client transactionsGetter, platformWallet string, cursor chain.Cursor) *Source {
	return &Source{client: client, wallet: platformWallet, cursor: cursor}
}

func (s *Source) Name() string { return sourceName }

// Poll возвращает входящие переводы с lt больше сохраненного
func (s *Source) Poll(ctx context.Context) ([]chain.Event, error) {
	log := logger.With("component", "ton_source", "wallet", s.wallet)

	lastLt, hasCursor, err := s.cursor.Load(ctx, sourceName)
	if err != nil {
		return nil, fmt.Errorf("load cursor: %w", err)
	}

	txs, err := s.fetchSince(ctx, lastLt, hasCursor)
	if err != nil {
		return nil, fmt.Errorf("get transactions: %w", err)
	}

	maxLt := lastLt
	var events []chain.Event
	for _, tx := range ParseIncomingTransactions(txs, s.wallet) {
		if tx.Lt <= 0 || uint64(tx.Lt) <= lastLt {
			continue
		}
		if uint64(tx.Lt) > maxLt {
			maxLt = uint64(tx.Lt)
		}

		memo := ExtractMemo(&tx)
		if memo == "" {
			log.Debug("перевод без комментария", "hash", tx.Hash)
			continue
		}

		var payer string
		if tx.InMsg.Source != nil {
			payer = NormalizeAddress(tx.InMsg.Source.Address)
		}
		events = append(events, chain.Event{
			Source: sourceName,
			Ref:    memo,
			Payer:  payer,
			Amount: strconv.FormatInt(tx.InMsg.Value, 10),
			TxHash: tx.Hash,
		})
	}

	if maxLt > lastLt {
		if err := s.cursor.Save(ctx, sourceName, maxLt); err != nil {
			return events, fmt.Errorf("save cursor: %w", err)
		}
	}

	log.Debug("ton poll", "transactions", len(txs), "events", len(events))
	return events, nil
}

// fetchSince листает страницы назад по before_lt, пока не дойдет до lastLt.
// Без курсора берется только последняя страница.
func (s *Source) fetchSince(ctx context.Context, lastLt uint64, hasCursor bool) ([]Transaction, error) {
	var all []Transaction
	var beforeLt int64
	for page := 0; page < maxPages; page++ {
		txs, err := s.client.GetTransactions(ctx, s.wallet, pageSize, beforeLt)
		if err != nil {
			return nil, err
		}
		all = append(all, txs...)
		if !hasCursor || len(txs) < pageSize {
			return all, nil
		}

		oldest := txs[len(txs)-1].Lt
		for _, tx := range txs {
			if tx.Lt > 0 && tx.Lt < oldest {
				oldest = tx.Lt
			}
		}
		if oldest <= 0 || uint64(oldest) <= lastLt || (beforeLt > 0 && oldest >= beforeLt) {
			return all, nil
		}
		beforeLt = oldest
	}
	logger.Warn("ton: достигнут лимит страниц, более старые переводы пропущены", "wallet", s.wallet, "pages", maxPages)
	return all, nil
}
