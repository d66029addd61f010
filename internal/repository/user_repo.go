package repository

import (
	"context"
	"fmt"

	"xepbot/internal/domain"

	"github.com/jackc/pgx/v5"
)

const userColumns = `id, tg_id, username, COALESCE(wallet, ''), COALESCE(referral_code, ''), referrer_id,
	mode, accepted_terms, active, created_at`

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// получает или создает пользователя по telegram id, username обновляется
func (r *UserRepository) GetOrCreate(ctx context.Context, tgID int64, username string) (*domain.User, bool, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO users (tg_id, username)
		VALUES ($1, $2)
		ON CONFLICT (tg_id) DO UPDATE SET username = CASE WHEN EXCLUDED.username <> '' THEN EXCLUDED.username ELSE users.username END
		RETURNING `+userColumns+`, (xmax = 0) AS inserted
	`, tgID, username)

	var u domain.User
	var inserted bool
	if err := row.Scan(
		&u.ID, &u.TgID, &u.Username, &u.Wallet, &u.ReferralCode, &u.ReferrerID,
		&u.Mode, &u.AcceptedTerms, &u.Active, &u.CreatedAt, &inserted,
	); err != nil {
		return nil, false, err
	}
	return &u, inserted, nil
}

// получает пользователя по id
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// получает пользователя по telegram id
func (r *UserRepository) GetByTgID(ctx context.Context, tgID int64) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE tg_id = $1`, tgID)
	return scanUser(row)
}

// помечает, что пользователь принял правила
func (r *UserRepository) AcceptTerms(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET accepted_terms = TRUE WHERE id = $1`, userID)
	return err
}

// сохраняет кошелек пользователя
func (r *UserRepository) SetWallet(ctx context.Context, userID int64, wallet string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET wallet = $2 WHERE id = $1`, userID, wallet)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// меняет режим начисления
func (r *UserRepository) SetMode(ctx context.Context, userID int64, mode domain.Mode) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET mode = $2 WHERE id = $1`, userID, mode)
	return err
}

// проверяет, привязан ли кошелек к другому пользователю
func (r *UserRepository) WalletTaken(ctx context.Context, wallet string, exceptUserID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(wallet) = LOWER($1) AND id <> $2)
	`, wallet, exceptUserID).Scan(&exists)
	return exists, err
}

// получает пользователя по username без @, регистр не важен
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(username) = LOWER($1) LIMIT 1`, username)
	return scanUser(row)
}

// количество активных (оплативших) пользователей
func (r *UserRepository) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE active`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active users: %w", err)
	}
	return n, nil
}

// количество пользователей для дайджеста
func (r *UserRepository) CountAll(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(
		&u.ID, &u.TgID, &u.Username, &u.Wallet, &u.ReferralCode, &u.ReferrerID,
		&u.Mode, &u.AcceptedTerms, &u.Active, &u.CreatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}
