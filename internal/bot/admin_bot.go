package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"xepbot/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const pendingLimit = 20

func isAdminCommand(cmd string) bool {
	switch cmd {
	case "confirm", "pending", "stats", "user":
		return true
	}
	return false
}

// handleAdminCommand обрабатывает команды администраторов
func (b *Bot) handleAdminCommand(ctx context.Context, msg *tgbotapi.Message) string {
	switch msg.Command() {
	case "confirm":
		return b.handleConfirm(ctx, msg.From.ID, msg.CommandArguments())
	case "pending":
		return b.handlePending(ctx)
	case "stats":
		return b.handleStats(ctx)
	case "user":
		return b.handleUser(ctx, msg.CommandArguments())
	default:
		return "❌ Неизвестная команда. Используйте /help для списка команд."
	}
}

func (b *Bot) handleConfirm(ctx context.Context, adminTgID int64, args string) string {
	paymentID, txHash, ok := parseConfirmArgs(args)
	if !ok {
		return "Использование: /confirm &lt;payment_id&gt; &lt;tx_hash&gt;"
	}

	conf, err := b.admin.ConfirmPayment(ctx, adminTgID, paymentID, txHash, service.SourceAdmin)
	if err != nil {
		b.log.Info("admin confirm rejected", "payment_id", paymentID, "error", err)
		return errorText(err)
	}

	text := fmt.Sprintf("Платеж %d подтвержден. Пользователь активирован", conf.PaymentID)
	if conf.RewardID != 0 {
		text += fmt.Sprintf(", рефереру начислено %s", b.admin.Amount(conf.RewardAmount))
	}
	return text + "."
}

// "/confirm 7 0xabc" -> 7, "0xabc"
func parseConfirmArgs(args string) (int64, string, bool) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return 0, "", false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(fields[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	return id, fields[1], true
}

func (b *Bot) handlePending(ctx context.Context) string {
	payments, err := b.admin.PendingPayments(ctx, pendingLimit)
	if err != nil {
		return errorText(err)
	}
	return pendingText(payments, b.admin.Amount)
}

func (b *Bot) handleStats(ctx context.Context) string {
	stats, err := b.admin.GetStats(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		return fmt.Sprintf("Ошибка: %v", err)
	}
	return b.admin.FormatStats("<b>Статистика за 24 часа</b>", stats)
}

func (b *Bot) handleUser(ctx context.Context, args string) string {
	if strings.TrimSpace(args) == "" {
		return "Использование: /user &lt;@username|tg_id&gt;"
	}

	info, err := b.admin.GetUser(ctx, args)
	if err != nil {
		return fmt.Sprintf("Пользователь не найден: %v", err)
	}
	return userInfoText(info, b.admin.Amount)
}

// SendDigest отправляет ежедневную сводку админам
func (b *Bot) SendDigest(ctx context.Context) {
	text, err := b.admin.Digest(ctx, time.Now())
	if err != nil {
		b.log.Error("digest failed", "error", err)
		return
	}
	b.NotifyAdmins(text)
}
