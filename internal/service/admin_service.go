package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"xepbot/internal/domain"
	"xepbot/internal/logger"
	"xepbot/internal/money"
	"xepbot/internal/repository"
)

type adminUsers interface {
	GetByTgID(ctx context.Context, tgID int64) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	CountAll(ctx context.Context) (int64, error)
	CountActive(ctx context.Context) (int64, error)
}

type adminPayments interface {
	GetPendingWithUser(ctx context.Context, limit int) ([]repository.PendingPayment, error)
	StatsSince(ctx context.Context, since time.Time) (*repository.PaymentStats, error)
}

type adminRewards interface {
	SumAccruedSince(ctx context.Context, since time.Time) (count int64, total int64, err error)
	GetSummary(ctx context.Context, userID int64) (*domain.ReferralSummary, error)
}

// предоставляет административную статистику и операции
type AdminService struct {
	users     adminUsers
	payments  adminPayments
	rewards   adminRewards
	confirmer paymentConfirmer
	audit     *AuditService

	decimals int32
	symbol   string
}

// создает новый административный сервис
func NewAdminService(db repository.DBTX, confirmer paymentConfirmer, audit *AuditService, decimals int32, symbol string) *AdminService {
	return &AdminService{
		users:     repository.NewUserRepository(db),
		payments:  repository.NewPaymentRepository(db),
		rewards:   repository.NewReferralRepository(db),
		confirmer: confirmer,
		audit:     audit,
		decimals:  decimals,
		symbol:    symbol,
	}
}

// представляет статистику платформы
type Stats struct {
	Since        time.Time `json:"since"`
	TotalUsers   int64     `json:"total_users"`
	ActiveUsers  int64     `json:"active_users"`
	PaidCount    int64     `json:"paid_count"`
	PaidAmount   int64     `json:"paid_amount"`
	PendingCount int64     `json:"pending_count"`
	RewardsCount int64     `json:"rewards_count"`
	RewardsTotal int64     `json:"rewards_total"`
}

// возвращает статистику платформы начиная с since
func (s *AdminService) GetStats(ctx context.Context, since time.Time) (*Stats, error) {
	stats := &Stats{Since: since}

	var err error
	if stats.TotalUsers, err = s.users.CountAll(ctx); err != nil {
		return nil, err
	}
	if stats.ActiveUsers, err = s.users.CountActive(ctx); err != nil {
		return nil, err
	}

	ps, err := s.payments.StatsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("payment stats: %w", err)
	}
	stats.PaidCount = ps.PaidCount
	stats.PaidAmount = ps.PaidAmount
	stats.PendingCount = ps.PendingCount

	stats.RewardsCount, stats.RewardsTotal, err = s.rewards.SumAccruedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("reward stats: %w", err)
	}

	return stats, nil
}

// Digest - текст ежедневной сводки за последние сутки
func (s *AdminService) Digest(ctx context.Context, now time.Time) (string, error) {
	stats, err := s.GetStats(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return "", err
	}
	return s.FormatStats("📊 Сводка за сутки", stats), nil
}

func (s *AdminService) FormatStats(title string, st *Stats) string {
	var b strings.Builder
	b.WriteString(title + "\n\n")
	fmt.Fprintf(&b, "👥 Пользователей: %d (активных: %d)\n", st.TotalUsers, st.ActiveUsers)
	fmt.Fprintf(&b, "✅ Оплачено: %d на %s %s\n", st.PaidCount, money.FormatMinor(st.PaidAmount, s.decimals), s.symbol)
	fmt.Fprintf(&b, "⏳ Ожидают оплаты: %d\n", st.PendingCount)
	fmt.Fprintf(&b, "🎁 Начислено наград: %d на %s %s", st.RewardsCount, money.FormatMinor(st.RewardsTotal, s.decimals), s.symbol)
	return b.String()
}

// возвращает ожидающие оплаты платежи, старые первыми
func (s *AdminService) PendingPayments(ctx context.Context, limit int) ([]repository.PendingPayment, error) {
	return s.payments.GetPendingWithUser(ctx, limit)
}

// ConfirmPayment - ручное подтверждение платежа админом
func (s *AdminService) ConfirmPayment(ctx context.Context, adminTgID, paymentID int64, txHash string, source Source) (*Confirmation, error) {
	conf, err := s.confirmer.ConfirmPayment(ctx, domain.PaymentByID(paymentID), txHash, source)
	if err != nil {
		return nil, err
	}
	if s.audit != nil {
		s.audit.LogAdminAction(ctx, adminTgID, domain.AuditActionPaymentConfirm, conf.UserID, map[string]interface{}{
			"payment_id": paymentID,
			"tx_hash":    conf.TxHash,
		})
	}
	return conf, nil
}

// UserInfo - карточка пользователя для администратора
type UserInfo struct {
	User     *domain.User
	Summary  *domain.ReferralSummary
	Activity []*domain.AuditLog
}

// возвращает информацию о пользователе по telegram id или @username
func (s *AdminService) GetUser(ctx context.Context, identifier string) (*UserInfo, error) {
	identifier = strings.TrimPrefix(strings.TrimSpace(identifier), "@")
	if identifier == "" {
		return nil, ErrUnknownUser
	}

	var u *domain.User
	var err error
	if tgID, parseErr := strconv.ParseInt(identifier, 10, 64); parseErr == nil {
		u, err = s.users.GetByTgID(ctx, tgID)
	} else {
		u, err = s.users.GetByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, err
	}

	summary, err := s.rewards.GetSummary(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	info := &UserInfo{User: u, Summary: summary}
	if s.audit != nil {
		// история не обязательна для карточки
		if logs, err := s.audit.GetUserAuditLogs(ctx, u.ID, 5); err == nil {
			info.Activity = logs
		} else {
			logger.Warn("audit lookup failed", "user_id", u.ID, "error", err)
		}
	}
	return info, nil
}

// Amount форматирует минимальные единицы для сообщений
func (s *AdminService) Amount(minor int64) string {
	return money.FormatMinor(minor, s.decimals) + " " + s.symbol
}
