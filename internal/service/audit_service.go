package service

import (
	"context"

	"xepbot/internal/domain"
	"xepbot/internal/logger"
	"xepbot/internal/repository"
)

// auditStore - то, что нужно сервису аудита от репозитория
type auditStore interface {
	Create(ctx context.Context, log *domain.AuditLog) error
	GetByUserID(ctx context.Context, userID int64, limit int) ([]*domain.AuditLog, error)
	GetRecent(ctx context.Context, category string, limit int) ([]*domain.AuditLog, error)
}

// обрабатывает логирование аудита
type AuditService struct {
	repo auditStore
}

// создает новый сервис аудита
func NewAuditService(db repository.DBTX) *AuditService {
	return &AuditService{
		repo: repository.NewAuditRepository(db),
	}
}

// создает новую запись в журнале аудита, ошибка только логируется
func (s *AuditService) Log(ctx context.Context, userID int64, action, category string, details map[string]interface{}) {
	log := &domain.AuditLog{
		UserID:   userID,
		Action:   action,
		Category: category,
		Details:  details,
	}

	if err := s.repo.Create(ctx, log); err != nil {
		logger.Error("не удалось создать запись аудита", "error", err, "action", action, "user_id", userID)
	}
}

// логирует подтверждение платежа и начисленную награду.
// Подходит как callback для Reconciler.OnConfirmed.
func (s *AuditService) LogConfirmation(c Confirmation) {
	ctx := context.Background()

	s.Log(ctx, c.UserID, domain.AuditActionPaymentConfirm, domain.AuditCategoryPayment, map[string]interface{}{
		"payment_id": c.PaymentID,
		"tx_hash":    c.TxHash,
		"source":     string(c.Source),
	})

	if c.RewardID != 0 {
		s.Log(ctx, c.ReferrerID, domain.AuditActionRewardAccrued, domain.AuditCategoryReferral, map[string]interface{}{
			"reward_id":        c.RewardID,
			"amount":           c.RewardAmount,
			"payment_id":       c.PaymentID,
			"referred_user_id": c.UserID,
		})
	}
}

// логирует создание платежа
func (s *AuditService) LogPaymentCreate(ctx context.Context, p *domain.Payment) {
	s.Log(ctx, p.UserID, domain.AuditActionPaymentCreate, domain.AuditCategoryPayment, map[string]interface{}{
		"payment_id": p.ID,
		"ref":        p.Ref,
		"amount":     p.Amount,
	})
}

// логирует привязку пригласившего
func (s *AuditService) LogReferralBind(ctx context.Context, userID, referrerID int64, code string) {
	s.Log(ctx, userID, domain.AuditActionReferralBind, domain.AuditCategoryReferral, map[string]interface{}{
		"referrer_id": referrerID,
		"code":        code,
	})
}

// логирует действие администратора
func (s *AuditService) LogAdminAction(ctx context.Context, adminTgID int64, action string, targetUserID int64, details map[string]interface{}) {
	if details == nil {
		details = make(map[string]interface{})
	}
	details["admin_tg_id"] = adminTgID
	details["target_user_id"] = targetUserID

	s.Log(ctx, targetUserID, action, domain.AuditCategoryAdmin, details)
}

// возвращает записи аудита для пользователя
func (s *AuditService) GetUserAuditLogs(ctx context.Context, userID int64, limit int) ([]*domain.AuditLog, error) {
	return s.repo.GetByUserID(ctx, userID, limit)
}

// возвращает последние записи аудита, пустая категория - все
func (s *AuditService) GetRecentLogs(ctx context.Context, category string, limit int) ([]*domain.AuditLog, error) {
	return s.repo.GetRecent(ctx, category, limit)
}
