package bot

import (
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"

	"xepbot/internal/chain"
	"xepbot/internal/domain"
	"xepbot/internal/repository"
	"xepbot/internal/service"
)

const userHelp = `<b>Команды</b>
/start - регистрация
/buy &lt;сумма&gt; - купить доступ
/status - статус лицензии
/mode [test|real] - режим торговли
/my_refs - рефералы и награды
/leaderboard - топ пригласивших`

const adminHelp = `<b>🤖 Команды администратора</b>
/confirm &lt;payment_id&gt; &lt;tx_hash&gt; - подтвердить платеж
/pending - ожидающие оплаты
/stats - статистика за сутки
/user &lt;@username|tg_id&gt; - информация о пользователе`

// errorText переводит ошибку сервиса в ответ пользователю
func errorText(err error) string {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return "Платеж не найден."
	case errors.Is(err, service.ErrAlreadyConfirmed):
		return "Уже отмечен как оплачен."
	case errors.Is(err, service.ErrEmptyTxHash):
		return "Укажите хэш транзакции."
	case errors.Is(err, service.ErrStoreUnavailable):
		return "Хранилище недоступно, попробуйте позже."
	case errors.Is(err, service.ErrUnknownUser):
		return "Сначала /start"
	case errors.Is(err, service.ErrNotRegistered), errors.Is(err, service.ErrTermsRequired):
		return "Сначала примите правила и укажите кошелек: /start"
	case errors.Is(err, service.ErrWalletTaken),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidRefCode),
		errors.Is(err, service.ErrSelfReferral),
		errors.Is(err, service.ErrAlreadyReferred),
		errors.Is(err, domain.ErrInvalidWallet):
		return err.Error()
	default:
		return "Ошибка, попробуйте позже."
	}
}

func refLink(botUsername, code string) string {
	if code == "" {
		return "-"
	}
	return fmt.Sprintf("https://t.me/%s?start=%s", botUsername, code)
}

// paymentQRPayload - что зашить в QR: TON deep link с memo или сам ref
func paymentQRPayload(p *domain.Payment, t PaymentTarget) string {
	if t.TonWallet != "" {
		return "ton://transfer/" + t.TonWallet + "?text=" + url.QueryEscape(p.Ref)
	}
	return p.Ref
}

func buyText(p *domain.Payment, t PaymentTarget, amount string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Создан платеж #%d на <b>%s</b>.\n", p.ID, html.EscapeString(amount))
	fmt.Fprintf(&b, "Ref платежа: <code>%s</code>\n", p.Ref)
	if t.Contract != "" {
		fmt.Fprintf(&b, "\nEVM: вызовите контракт <code>%s</code> с этим ref.", t.Contract)
	}
	if t.TonWallet != "" {
		fmt.Fprintf(&b, "\nTON: переведите на <code>%s</code>, в комментарии укажите ref.", t.TonWallet)
	}
	b.WriteString("\n\nПлатеж подтвердится автоматически после поступления в сеть.")
	return b.String()
}

func statusText(u *domain.User) string {
	switch u.LicenseStatus() {
	case domain.LicenseActive:
		return fmt.Sprintf("✅ Лицензия активна. Режим: %s", u.Mode)
	case domain.LicenseInactive:
		if !u.Registered() {
			return "Регистрация не завершена: /start"
		}
		return "⏳ Лицензия не активна. Купить: /buy &lt;сумма&gt;"
	default:
		return "Не зарегистрирован."
	}
}

func myRefsText(s *domain.ReferralSummary, link string, amount func(int64) string) string {
	return fmt.Sprintf("Рефералов: %d\nНачислено: %s\nОжидает выплаты: %s\n\nТвоя ссылка:\n%s",
		s.Referrals, amount(s.Accrued), amount(s.Pending), link)
}

func leaderboardText(entries []domain.LeaderboardEntry, amount func(int64) string) string {
	if len(entries) == 0 {
		return "Нет данных."
	}
	var b strings.Builder
	b.WriteString("🏆 Лидерборд:\n")
	for i, e := range entries {
		name := "tg:" + fmt.Sprint(e.TgID)
		if e.Username != "" {
			name = "@" + html.EscapeString(e.Username)
		}
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, name, amount(e.Total))
	}
	return strings.TrimRight(b.String(), "\n")
}

func pendingText(payments []repository.PendingPayment, amount func(int64) string) string {
	if len(payments) == 0 {
		return "Нет ожидающих платежей."
	}
	var b strings.Builder
	b.WriteString("<b>⏳ Ожидают оплаты</b>\n")
	for _, p := range payments {
		sum := "?"
		if p.Amount != nil {
			sum = amount(*p.Amount)
		}
		who := fmt.Sprint(p.TgID)
		if p.Username != "" {
			who = "@" + html.EscapeString(p.Username)
		}
		fmt.Fprintf(&b, "\n#%d %s %s <code>%s</code> %s", p.ID, who, sum, p.Ref, p.CreatedAt.Format("02.01 15:04"))
	}
	return b.String()
}

func userInfoText(info *service.UserInfo, amount func(int64) string) string {
	u := info.User
	referrer := "-"
	if u.ReferrerID != nil {
		referrer = fmt.Sprint(*u.ReferrerID)
	}
	text := fmt.Sprintf(`<b>Информация о пользователе</b>

- ID: %d
- Telegram ID: %d
- Username: @%s
- Кошелек: %s
- Режим: %s
- Лицензия: %s
- Пригласил: %s
- Рефералов: %d
- Начислено: %s
- Регистрация: %s`,
		u.ID,
		u.TgID,
		html.EscapeString(u.Username),
		orDash(u.Wallet),
		u.Mode,
		u.LicenseStatus(),
		referrer,
		info.Summary.Referrals,
		amount(info.Summary.Accrued),
		u.CreatedAt.Format("02.01.2006 15:04"),
	)
	if len(info.Activity) > 0 {
		text += "\n\n<b>Последние действия</b>"
		for _, l := range info.Activity {
			text += fmt.Sprintf("\n%s %s", l.CreatedAt.Format("02.01 15:04"), html.EscapeString(l.Action))
		}
	}
	return text
}

func payerConfirmedText(c service.Confirmation) string {
	return fmt.Sprintf("✅ Платеж #%d подтвержден. Лицензия активна.\nTx: <code>%s</code>", c.PaymentID, html.EscapeString(c.TxHash))
}

func adminConfirmedText(c service.Confirmation, amount func(int64) string) string {
	sum := "?"
	if c.Amount != nil {
		sum = amount(*c.Amount)
	}
	text := fmt.Sprintf("💰 Платеж #%d (%s) подтвержден [%s]\nTx: <code>%s</code>", c.PaymentID, sum, c.Source, html.EscapeString(c.TxHash))
	if c.RewardID != 0 {
		text += fmt.Sprintf("\nНаграда %s пользователю %d", amount(c.RewardAmount), c.ReferrerID)
	}
	return text
}

func chainFailedText(ev chain.Event) string {
	return fmt.Sprintf("⚠️ Платеж из сети [%s] не подтвержден: хранилище недоступно.\nRef: <code>%s</code>\nTx: <code>%s</code>\nПовтор на следующем проходе, вручную: /pending и /confirm",
		ev.Source, html.EscapeString(ev.Ref), html.EscapeString(ev.TxHash))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
