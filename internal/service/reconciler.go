package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"xepbot/internal/domain"
	"xepbot/internal/logger"
	"xepbot/internal/metrics"
	"xepbot/internal/repository"
)

var (
	ErrNotFound         = errors.New("платеж не найден")
	ErrAlreadyConfirmed = errors.New("платеж уже подтвержден")
	ErrStoreUnavailable = errors.New("хранилище недоступно")
	ErrEmptyTxHash      = errors.New("не указан хэш транзакции")
)

// Source - откуда пришло подтверждение
type Source string

const (
	SourceChain Source = "chain"
	SourceAdmin Source = "admin"
	SourceHTTP  Source = "http"
)

// Confirmation - результат успешного подтверждения.
// RewardID == 0 означает, что награда не создана.
type Confirmation struct {
	PaymentID    int64                `json:"payment_id"`
	UserID       int64                `json:"user_id"`
	Ref          string               `json:"ref"`
	Amount       *int64               `json:"amount"`
	Status       domain.PaymentStatus `json:"status"`
	TxHash       string               `json:"tx_hash"`
	PaidAt       time.Time            `json:"paid_at"`
	RewardID     int64                `json:"reward_id,omitempty"`
	RewardAmount int64                `json:"reward_amount,omitempty"`
	ReferrerID   int64                `json:"referrer_id,omitempty"`
	Source       Source               `json:"source"`
}

// Reconciler переводит платеж pending -> paid ровно один раз и начисляет награду пригласившему
type Reconciler struct {
	ledger        repository.Ledger
	rewardPercent int
	now           func() time.Time

	mu        sync.RWMutex
	callbacks []func(Confirmation)
}

func NewReconciler(ledger repository.Ledger, rewardPercent int) *Reconciler {
	return &Reconciler{
		ledger:        ledger,
		rewardPercent: rewardPercent,
		now:           time.Now,
	}
}

// RewardPercent текущий процент награды
func (r *Reconciler) RewardPercent() int {
	return r.rewardPercent
}

// OnConfirmed регистрирует callback, который вызывается после коммита в отдельной горутине
func (r *Reconciler) OnConfirmed(fn func(Confirmation)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, fn)
}

// ConfirmPayment подтверждает платеж по id или ref.
// Повторное подтверждение возвращает ErrAlreadyConfirmed и ничего не меняет.
func (r *Reconciler) ConfirmPayment(ctx context.Context, key domain.PaymentKey, txHash string, source Source) (*Confirmation, error) {
	log := logger.WithContext(ctx).With("component", "reconciler", "payment", key.String(), "source", source)

	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		metrics.Confirmations.WithLabelValues(string(source), "invalid").Inc()
		return nil, ErrEmptyTxHash
	}

	var conf *Confirmation
	err := r.ledger.InTx(ctx, func(l repository.Ledger) error {
		p, err := l.FindPayment(ctx, key)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if p.IsPaid() {
			return ErrAlreadyConfirmed
		}

		paidAt := r.now().UTC()
		ok, err := l.MarkPaid(ctx, p.ID, txHash, paidAt)
		if err != nil {
			return err
		}
		// параллельное подтверждение успело первым
		if !ok {
			return ErrAlreadyConfirmed
		}

		c := &Confirmation{
			PaymentID: p.ID,
			UserID:    p.UserID,
			Ref:       p.Ref,
			Amount:    p.Amount,
			Status:    domain.PaymentStatusPaid,
			TxHash:    txHash,
			PaidAt:    paidAt,
			Source:    source,
		}

		referrerID, hasReferrer, err := l.FindReferrer(ctx, p.UserID)
		if err != nil {
			return err
		}
		if hasReferrer {
			amount, valid := domain.RewardAmount(p.Amount, r.rewardPercent)
			if !valid {
				log.Warn("битая сумма платежа, награда 0", "payment_id", p.ID, "amount", p.Amount)
			}
			reward := &domain.Reward{
				ReferrerUserID: referrerID,
				ReferredUserID: p.UserID,
				PaymentID:      p.ID,
				Amount:         amount,
				Status:         domain.RewardStatusPending,
			}
			inserted, err := l.InsertReward(ctx, reward)
			if err != nil {
				return err
			}
			if inserted {
				c.RewardID = reward.ID
				c.RewardAmount = reward.Amount
				c.ReferrerID = referrerID
			} else {
				log.Warn("награда за платеж уже существует", "payment_id", p.ID)
			}
		}

		if err := l.ActivateUser(ctx, p.UserID); err != nil {
			return err
		}

		conf = c
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			metrics.Confirmations.WithLabelValues(string(source), "not_found").Inc()
			return nil, ErrNotFound
		case errors.Is(err, ErrAlreadyConfirmed):
			metrics.Confirmations.WithLabelValues(string(source), "already_confirmed").Inc()
			log.Info("повторное подтверждение, пропускаем")
			return nil, ErrAlreadyConfirmed
		default:
			metrics.Confirmations.WithLabelValues(string(source), "error").Inc()
			log.Error("ошибка подтверждения платежа", "error", err)
			return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
	}

	metrics.Confirmations.WithLabelValues(string(source), "ok").Inc()
	if conf.RewardAmount > 0 {
		metrics.RewardsAccrued.Add(float64(conf.RewardAmount))
	}
	log.Info("платеж подтвержден",
		"payment_id", conf.PaymentID,
		"user_id", conf.UserID,
		"tx_hash", conf.TxHash,
		"reward_id", conf.RewardID,
		"reward", conf.RewardAmount)

	r.mu.RLock()
	callbacks := make([]func(Confirmation), len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.RUnlock()

	for _, cb := range callbacks {
		go cb(*conf)
	}

	return conf, nil
}
