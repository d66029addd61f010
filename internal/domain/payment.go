package domain

import (
	"fmt"
	"time"
)

// Платеж за доступ к торговому боту. Сумма в минимальных единицах (центы)
type Payment struct {
	ID        int64         `db:"id" json:"id"`
	UserID    int64         `db:"user_id" json:"user_id"`
	Amount    *int64        `db:"amount" json:"amount"` // nil у старых записей, см. RewardAmount
	Ref       string        `db:"ref" json:"ref"`       // correlation ref, должен прийти в событии сети
	Status    PaymentStatus `db:"status" json:"status"`
	TxHash    string        `db:"tx_hash" json:"tx_hash,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	PaidAt    *time.Time    `db:"paid_at" json:"paid_at,omitempty"`
}

// Статус платежа, переход только pending -> paid
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

func (p *Payment) IsPaid() bool {
	return p.Status == PaymentStatusPaid
}

// Реферальное вознаграждение пригласившему
type Reward struct {
	ID             int64        `db:"id" json:"id"`
	ReferrerUserID int64        `db:"referrer_user_id" json:"referrer_user_id"`
	ReferredUserID int64        `db:"referred_user_id" json:"referred_user_id"`
	PaymentID      int64        `db:"payment_id" json:"payment_id"` // не больше одной награды на платеж
	Amount         int64        `db:"amount" json:"amount"`
	Status         RewardStatus `db:"status" json:"status"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}

type RewardStatus string

const (
	RewardStatusPending RewardStatus = "pending"
	RewardStatusPaid    RewardStatus = "paid"
)

// Процент награды по умолчанию
const DefaultRewardPercent = 10

// RewardAmount считает floor(amount * percent / 100), percent не больше 100.
// Битая сумма (nil или отрицательная) дает 0 и ok=false: подтверждение платежа она не блокирует.
func RewardAmount(amount *int64, percent int) (reward int64, ok bool) {
	if amount == nil || *amount < 0 {
		return 0, false
	}
	if percent <= 0 {
		return 0, true
	}
	if percent > 100 {
		percent = 100
	}
	// amount = 100*q + r, считаем по частям без переполнения int64
	p := int64(percent)
	return (*amount/100)*p + (*amount%100)*p/100, true
}

// Сводка наград реферера для /my_refs
type ReferralSummary struct {
	Referrals int   `json:"referrals"`
	Accrued   int64 `json:"accrued"` // всего начислено
	Pending   int64 `json:"pending"` // ждет выплаты
}

// Строка лидерборда
type LeaderboardEntry struct {
	UserID       int64  `json:"user_id"`
	TgID         int64  `json:"tg_id"`
	Username     string `json:"username"`
	ReferralCode string `json:"referral_code"`
	Total        int64  `json:"total"`
}

// PaymentKey - ключ поиска платежа: по ID (админ) или по correlation ref (событие сети)
type PaymentKey struct {
	ID  int64
	Ref string
}

func PaymentByID(id int64) PaymentKey    { return PaymentKey{ID: id} }
func PaymentByRef(ref string) PaymentKey { return PaymentKey{Ref: ref} }

func (k PaymentKey) String() string {
	if k.Ref != "" {
		return "ref:" + k.Ref
	}
	return fmt.Sprintf("id:%d", k.ID)
}
