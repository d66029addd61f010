package domain

import "time"

type User struct {
	ID            int64     `db:"id" json:"id"`
	TgID          int64     `db:"tg_id" json:"tg_id"`
	Username      string    `db:"username" json:"username"`
	Wallet        string    `db:"wallet" json:"wallet,omitempty"`
	ReferralCode  string    `db:"referral_code" json:"referral_code,omitempty"`
	ReferrerID    *int64    `db:"referrer_id" json:"referrer_id,omitempty"` // слабая ссылка на users.id
	Mode          Mode      `db:"mode" json:"mode"`
	AcceptedTerms bool      `db:"accepted_terms" json:"accepted_terms"`
	Active        bool      `db:"active" json:"active"` // true после первого подтвержденного платежа
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Registered - пользователь принял правила и указал кошелек
func (u *User) Registered() bool {
	return u.AcceptedTerms && u.Wallet != ""
}

// Режим начисления: test - бумажная торговля, real - реальные ордера
type Mode string

const (
	ModeTest Mode = "test"
	ModeReal Mode = "real"
)

func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeTest, ModeReal:
		return Mode(s), true
	}
	return "", false
}

// Статус лицензии для /status и GET /api/status
type LicenseStatus string

const (
	LicenseNotRegistered LicenseStatus = "not_registered"
	LicenseInactive      LicenseStatus = "inactive"
	LicenseActive        LicenseStatus = "active"
)

func (u *User) LicenseStatus() LicenseStatus {
	if u == nil {
		return LicenseNotRegistered
	}
	if u.Active {
		return LicenseActive
	}
	return LicenseInactive
}
