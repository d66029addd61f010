package domain

import "time"

// Логирование важных действий с платежами и рефералами
type AuditLog struct {
	ID        int64                  `db:"id" json:"id"`
	UserID    int64                  `db:"user_id" json:"user_id"`
	Action    string                 `db:"action" json:"action"`
	Category  string                 `db:"category" json:"category"`
	Details   map[string]interface{} `db:"details" json:"details"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}

// Категории действий
const (
	AuditCategoryUser     = "user"
	AuditCategoryPayment  = "payment"
	AuditCategoryReferral = "referral"
	AuditCategoryAdmin    = "admin"
)

const (
	// Пользователь
	AuditActionRegister   = "register"
	AuditActionModeChange = "mode_change"

	// Платежи
	AuditActionPaymentCreate  = "payment_create"
	AuditActionPaymentConfirm = "payment_confirm"

	// Рефералы
	AuditActionReferralBind  = "referral_bind"
	AuditActionRewardAccrued = "reward_accrued"
)
