package repository

import (
	"context"
	"errors"
	"time"

	"xepbot/internal/domain"

	"github.com/jackc/pgx/v5"
)

// Ledger - операции хранилища, которые нужны сверке платежей
type Ledger interface {
	// FindPayment ищет платеж по id или ref, ErrNotFound если нет
	FindPayment(ctx context.Context, key domain.PaymentKey) (*domain.Payment, error)
	// MarkPaid условный апдейт pending -> paid, false если платеж уже не pending
	MarkPaid(ctx context.Context, paymentID int64, txHash string, paidAt time.Time) (bool, error)
	// FindReferrer возвращает id пригласившего, ok=false если его нет
	FindReferrer(ctx context.Context, userID int64) (referrerID int64, ok bool, err error)
	// InsertReward добавляет награду, false если на платеж уже есть награда
	InsertReward(ctx context.Context, reward *domain.Reward) (bool, error)
	ActivateUser(ctx context.Context, userID int64) error
	// InTx выполняет fn в одной транзакции
	InTx(ctx context.Context, fn func(Ledger) error) error
}

type LedgerRepository struct {
	db       TxBeginner
	payments *PaymentRepository
}

var _ Ledger = (*LedgerRepository)(nil)

func NewLedgerRepository(db TxBeginner) *LedgerRepository {
	return &LedgerRepository{db: db, payments: NewPaymentRepository(db)}
}

func (r *LedgerRepository) FindPayment(ctx context.Context, key domain.PaymentKey) (*domain.Payment, error) {
	if key.Ref != "" {
		return r.payments.GetByRef(ctx, key.Ref)
	}
	if key.ID <= 0 {
		return nil, ErrNotFound
	}
	return r.payments.GetByID(ctx, key.ID)
}

func (r *LedgerRepository) MarkPaid(ctx context.Context, paymentID int64, txHash string, paidAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE payments SET status = 'paid', tx_hash = $2, paid_at = $3
		WHERE id = $1 AND status = 'pending'
	`, paymentID, txHash, paidAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *LedgerRepository) FindReferrer(ctx context.Context, userID int64) (int64, bool, error) {
	var referrerID *int64
	err := r.db.QueryRow(ctx,
		`SELECT referrer_id FROM users WHERE id = $1`,
		userID,
	).Scan(&referrerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if referrerID == nil || *referrerID == userID {
		return 0, false, nil
	}
	return *referrerID, true, nil
}

func (r *LedgerRepository) InsertReward(ctx context.Context, reward *domain.Reward) (bool, error) {
	if reward.Status == "" {
		reward.Status = domain.RewardStatusPending
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO rewards (referrer_user_id, referred_user_id, payment_id, amount, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (payment_id) DO NOTHING
		RETURNING id, created_at
	`, reward.ReferrerUserID, reward.ReferredUserID, reward.PaymentID, reward.Amount, reward.Status,
	).Scan(&reward.ID, &reward.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *LedgerRepository) ActivateUser(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET active = TRUE WHERE id = $1`, userID)
	return err
}

func (r *LedgerRepository) InTx(ctx context.Context, fn func(Ledger) error) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		return fn(NewLedgerRepository(tx))
	})
}
