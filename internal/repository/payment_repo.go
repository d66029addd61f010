package repository

import (
	"context"
	"strings"
	"time"

	"xepbot/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const paymentColumns = `id, user_id, amount, ref, status, tx_hash, created_at, paid_at`

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// NewPaymentRef генерирует correlation ref: 32 hex символа без дефисов
func NewPaymentRef() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// создает платеж в статусе pending
func (r *PaymentRepository) Create(ctx context.Context, userID, amount int64) (*domain.Payment, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO payments (user_id, amount, ref, status)
		VALUES ($1, $2, $3, 'pending')
		RETURNING `+paymentColumns,
		userID, amount, NewPaymentRef())
	return scanPayment(row)
}

// получает платеж по id
func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*domain.Payment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	return scanPayment(row)
}

// получает платеж по correlation ref
func (r *PaymentRepository) GetByRef(ctx context.Context, ref string) (*domain.Payment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE ref = $1`, ref)
	return scanPayment(row)
}

// получает платежи пользователя, новые первыми
func (r *PaymentRepository) GetByUserID(ctx context.Context, userID int64, limit int) ([]domain.Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPayments(rows)
}

// PendingPayment - ожидающий платеж с данными владельца для /pending
type PendingPayment struct {
	domain.Payment
	TgID     int64
	Username string
}

// ожидающие платежи вместе с telegram данными владельца
func (r *PaymentRepository) GetPendingWithUser(ctx context.Context, limit int) ([]PendingPayment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.id, p.user_id, p.amount, p.ref, p.status, p.tx_hash, p.created_at, p.paid_at,
		       u.tg_id, u.username
		FROM payments p
		JOIN users u ON u.id = p.user_id
		WHERE p.status = 'pending'
		ORDER BY p.created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingPayment
	for rows.Next() {
		var pp PendingPayment
		var txHash *string
		if err := rows.Scan(&pp.ID, &pp.UserID, &pp.Amount, &pp.Ref, &pp.Status, &txHash,
			&pp.CreatedAt, &pp.PaidAt, &pp.TgID, &pp.Username); err != nil {
			return nil, err
		}
		out = append(out, pp)
	}
	return out, rows.Err()
}

// PaymentStats статистика для дайджеста и /stats
type PaymentStats struct {
	PaidCount    int64
	PaidAmount   int64
	PendingCount int64
}

// статистика платежей с момента since
func (r *PaymentRepository) StatsSince(ctx context.Context, since time.Time) (*PaymentStats, error) {
	var s PaymentStats
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'paid' AND paid_at >= $1),
		       COALESCE(SUM(amount) FILTER (WHERE status = 'paid' AND paid_at >= $1), 0),
		       COUNT(*) FILTER (WHERE status = 'pending')
		FROM payments
	`, since).Scan(&s.PaidCount, &s.PaidAmount, &s.PendingCount)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// сканирует строку из базы данных в структуру Payment
func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	var txHash *string

	if err := row.Scan(
		&p.ID, &p.UserID, &p.Amount, &p.Ref, &p.Status, &txHash, &p.CreatedAt, &p.PaidAt,
	); err != nil {
		return nil, notFound(err)
	}

	if txHash != nil {
		p.TxHash = *txHash
	}
	return &p, nil
}

// сканирует набор строк в срез Payment
func scanPayments(rows pgx.Rows) ([]domain.Payment, error) {
	var payments []domain.Payment

	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}

	return payments, rows.Err()
}
