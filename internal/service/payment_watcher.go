package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"xepbot/internal/chain"
	"xepbot/internal/domain"
	"xepbot/internal/logger"
	"xepbot/internal/metrics"
	"xepbot/internal/state"
)

// ключ очереди событий, которые не удалось подтвердить
const watcherRetryKey = "xepbot:watcher:retry"

type paymentConfirmer interface {
	ConfirmPayment(ctx context.Context, key domain.PaymentKey, txHash string, source Source) (*Confirmation, error)
}

// CheckResult - итог одного прохода watcher'а
type CheckResult struct {
	Events    int
	Confirmed int
	Skipped   int
	Failed    int
	Retried   int // события из очереди повторов
}

type retryEntry struct {
	Event    chain.Event `json:"event"`
	Attempts int         `json:"attempts"`
}

func retryID(ev chain.Event) string {
	return ev.Source + ":" + ev.TxHash + ":" + ev.Ref
}

// PaymentWatcher опрашивает источники событий и подтверждает платежи по ref.
// Запускается планировщиком, сам циклов не крутит.
// Курсор источника уже сдвинут к моменту подтверждения, поэтому события, упавшие
// на ошибке хранилища, держатся в очереди повторов (в памяти и в state.Store).
type PaymentWatcher struct {
	confirmer paymentConfirmer
	sources   []chain.Source
	store     state.Store

	retry    map[string]*retryEntry
	loaded   bool
	onFailed func(ev chain.Event, err error)

	mu sync.Mutex
}

// store может быть nil, тогда очередь повторов живет только в памяти
func NewPaymentWatcher(confirmer paymentConfirmer, store state.Store, sources ...chain.Source) *PaymentWatcher {
	return &PaymentWatcher{
		confirmer: confirmer,
		sources:   sources,
		store:     store,
		retry:     make(map[string]*retryEntry),
	}
}

// OnFailed вызывается один раз на событие, когда его не удалось подтвердить с первого раза
func (w *PaymentWatcher) OnFailed(fn func(ev chain.Event, err error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onFailed = fn
}

// Pending - сколько событий ждет повтора
func (w *PaymentWatcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.retry)
}

// Sources имена подключенных источников
func (w *PaymentWatcher) Sources() []string {
	names := make([]string, 0, len(w.sources))
	for _, s := range w.sources {
		names = append(names, s.Name())
	}
	return names
}

// Check проходит по всем источникам. Ошибка одного источника не мешает остальным.
func (w *PaymentWatcher) Check(ctx context.Context) CheckResult {
	// защита от наложения, если Check вызван не из планировщика
	w.mu.Lock()
	defer w.mu.Unlock()

	var res CheckResult
	w.loadRetry(ctx)
	changed := w.runRetries(ctx, &res)

	for _, src := range w.sources {
		log := logger.With("component", "payment_watcher", "source", src.Name())

		events, err := src.Poll(ctx)
		if err != nil {
			metrics.ChainPollErrors.WithLabelValues(src.Name()).Inc()
			log.Error("payment watcher: ошибка опроса источника", "error", err)
			// часть событий могла прийти до ошибки сохранения курсора
			if len(events) == 0 {
				continue
			}
		}

		for _, ev := range events {
			res.Events++
			metrics.ChainEvents.WithLabelValues(src.Name()).Inc()
			outcome, err := w.process(ctx, ev)
			switch outcome {
			case processConfirmed:
				res.Confirmed++
			case processSkipped:
				res.Skipped++
			case processFailed:
				res.Failed++
				if w.enqueue(ev, err) {
					changed = true
				}
			}
		}
	}

	if changed {
		w.saveRetry(ctx)
	}
	return res
}

// runRetries повторяет события из очереди, успешные и неактуальные убирает
func (w *PaymentWatcher) runRetries(ctx context.Context, res *CheckResult) bool {
	if len(w.retry) == 0 {
		return false
	}

	ids := make([]string, 0, len(w.retry))
	for id := range w.retry {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	changed := false
	for _, id := range ids {
		entry := w.retry[id]
		res.Retried++
		outcome, _ := w.process(ctx, entry.Event)
		switch outcome {
		case processConfirmed:
			res.Confirmed++
			delete(w.retry, id)
			changed = true
		case processSkipped:
			res.Skipped++
			delete(w.retry, id)
			changed = true
		case processFailed:
			res.Failed++
			entry.Attempts++
			changed = true
		}
	}
	return changed
}

func (w *PaymentWatcher) enqueue(ev chain.Event, err error) bool {
	id := retryID(ev)
	if _, ok := w.retry[id]; ok {
		return false
	}
	w.retry[id] = &retryEntry{Event: ev, Attempts: 1}
	if w.onFailed != nil {
		w.onFailed(ev, err)
	}
	return true
}

func (w *PaymentWatcher) loadRetry(ctx context.Context) {
	if w.loaded || w.store == nil {
		return
	}
	raw, err := w.store.Get(ctx, watcherRetryKey)
	if errors.Is(err, state.ErrNoValue) {
		w.loaded = true
		return
	}
	if err != nil {
		logger.Warn("payment watcher: очередь повторов не прочитана", "error", err)
		return
	}
	w.loaded = true

	var entries []retryEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		logger.Error("payment watcher: битая очередь повторов", "error", err)
		return
	}
	for i := range entries {
		id := retryID(entries[i].Event)
		if _, ok := w.retry[id]; !ok {
			w.retry[id] = &entries[i]
		}
	}
}

func (w *PaymentWatcher) saveRetry(ctx context.Context) {
	if w.store == nil {
		return
	}
	if len(w.retry) == 0 {
		if err := w.store.Delete(ctx, watcherRetryKey); err != nil {
			logger.Warn("payment watcher: очередь повторов не очищена", "error", err)
		}
		return
	}

	entries := make([]retryEntry, 0, len(w.retry))
	for _, e := range w.retry {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return retryID(entries[i].Event) < retryID(entries[j].Event) })

	raw, err := json.Marshal(entries)
	if err != nil {
		logger.Error("payment watcher: marshal очереди повторов", "error", err)
		return
	}
	// без TTL: событие должно дожить до подтверждения
	if err := w.store.Set(ctx, watcherRetryKey, string(raw), 0); err != nil {
		logger.Warn("payment watcher: очередь повторов не сохранена, остается в памяти", "error", err)
	}
}

type processOutcome int

const (
	processSkipped processOutcome = iota
	processConfirmed
	processFailed
)

func (w *PaymentWatcher) process(ctx context.Context, ev chain.Event) (processOutcome, error) {
	log := logger.With("component", "payment_watcher", "source", ev.Source, "tx", ev.TxHash, "ref", ev.Ref)

	if ev.Ref == "" || ev.TxHash == "" {
		log.Debug("payment watcher: событие без ref или tx, пропуск")
		return processSkipped, nil
	}

	conf, err := w.confirmer.ConfirmPayment(ctx, domain.PaymentByRef(ev.Ref), ev.TxHash, SourceChain)
	switch {
	case err == nil:
		// сумма в сети только логируется, награда считается от суммы платежа
		log.Info("payment watcher: платеж подтвержден",
			"payment_id", conf.PaymentID,
			"payer", ev.Payer,
			"onchain_amount", ev.Amount,
			"stored_amount", conf.Amount)
		return processConfirmed, nil
	case errors.Is(err, ErrNotFound):
		log.Info("payment watcher: ref не соответствует ни одному платежу", "payer", ev.Payer, "amount", ev.Amount)
		return processSkipped, nil
	case errors.Is(err, ErrAlreadyConfirmed):
		return processSkipped, nil
	default:
		log.Error("payment watcher: ошибка подтверждения", "error", err)
		return processFailed, err
	}
}
