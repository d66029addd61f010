package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"xepbot/internal/domain"
)

var (
	ErrSelfReferral    = errors.New("нельзя пригласить самого себя")
	ErrAlreadyReferred = errors.New("пригласивший уже указан")
)

const referralCodeAttempts = 5

type ReferralRepository struct {
	db DBTX
}

func NewReferralRepository(db DBTX) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// Генерирует реферальный код из 12 hex символов
func GenerateReferralCode() string {
	bytes := make([]byte, 6)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// Возвращает код пользователя, назначая новый при отсутствии. Назначенный код не меняется.
func (r *ReferralRepository) GetOrCreateReferralCode(ctx context.Context, userID int64) (string, error) {
	var code string
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(referral_code, '') FROM users WHERE id = $1`,
		userID,
	).Scan(&code)
	if err != nil {
		return "", notFound(err)
	}
	if code != "" {
		return code, nil
	}

	for i := 0; i < referralCodeAttempts; i++ {
		candidate := GenerateReferralCode()
		// COALESCE: параллельный вызов мог уже назначить код
		err = r.db.QueryRow(ctx, `
			UPDATE users SET referral_code = COALESCE(referral_code, $1)
			WHERE id = $2
			RETURNING referral_code
		`, candidate, userID).Scan(&code)
		if err == nil {
			return code, nil
		}
		if !isUniqueViolation(err, "") {
			return "", err
		}
	}

	return "", fmt.Errorf("referral code collision after %d attempts: %w", referralCodeAttempts, err)
}

// Находит пользователя по реферальному коду
func (r *ReferralRepository) GetUserIDByReferralCode(ctx context.Context, code string) (int64, error) {
	var userID int64
	err := r.db.QueryRow(ctx,
		`SELECT id FROM users WHERE referral_code = $1`,
		code,
	).Scan(&userID)
	return userID, notFound(err)
}

// Привязывает пригласившего. Привязка одноразовая, самоприглашение запрещено.
func (r *ReferralRepository) BindReferrer(ctx context.Context, userID, referrerID int64) error {
	if userID == referrerID {
		return ErrSelfReferral
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET referrer_id = $1 WHERE id = $2 AND referrer_id IS NULL`,
		referrerID, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyReferred
	}
	return nil
}

// Возвращает сводку по рефералам и наградам пользователя
func (r *ReferralRepository) GetSummary(ctx context.Context, userID int64) (*domain.ReferralSummary, error) {
	s := &domain.ReferralSummary{}

	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE referrer_id = $1`,
		userID,
	).Scan(&s.Referrals)
	if err != nil {
		return nil, err
	}

	err = r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0),
		       COALESCE(SUM(amount) FILTER (WHERE status = 'pending'), 0)
		FROM rewards
		WHERE referrer_user_id = $1
	`, userID).Scan(&s.Accrued, &s.Pending)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Возвращает награды, начисленные пользователю
func (r *ReferralRepository) GetRewardsByReferrer(ctx context.Context, userID int64, limit int) ([]domain.Reward, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, referrer_user_id, referred_user_id, payment_id, amount, status, created_at
		FROM rewards
		WHERE referrer_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rewards []domain.Reward
	for rows.Next() {
		var rw domain.Reward
		if err := rows.Scan(&rw.ID, &rw.ReferrerUserID, &rw.ReferredUserID, &rw.PaymentID,
			&rw.Amount, &rw.Status, &rw.CreatedAt); err != nil {
			return nil, err
		}
		rewards = append(rewards, rw)
	}
	return rewards, rows.Err()
}

// Топ пригласивших по сумме начисленных наград
func (r *ReferralRepository) GetLeaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT u.id, u.tg_id, u.username, COALESCE(u.referral_code, ''), COALESCE(SUM(r.amount), 0) AS total
		FROM users u
		JOIN rewards r ON r.referrer_user_id = u.id
		GROUP BY u.id, u.tg_id, u.username, u.referral_code
		ORDER BY total DESC, u.id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.TgID, &e.Username, &e.ReferralCode, &e.Total); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Сумма наград, начисленных с момента since (для дайджеста)
func (r *ReferralRepository) SumAccruedSince(ctx context.Context, since time.Time) (count int64, total int64, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM rewards WHERE created_at >= $1
	`, since).Scan(&count, &total)
	return count, total, err
}
