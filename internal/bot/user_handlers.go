package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"xepbot/internal/domain"
	"xepbot/internal/money"
	"xepbot/internal/state"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	callbackAcceptTerms = "accept_terms"
	awaitWalletTTL      = time.Hour
	leaderboardSize     = 10
)

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	u, _, err := b.users.Start(ctx, msg.From.ID, msg.From.UserName, msg.CommandArguments())
	if err != nil {
		b.log.Error("start failed", "tg_id", msg.From.ID, "error", err)
		b.reply(msg, errorText(err))
		return
	}

	switch {
	case u.Registered():
		b.reply(msg, fmt.Sprintf("С возвращением!\nТвоя реф-ссылка:\n%s\n\nКупить доступ: /buy &lt;сумма&gt;",
			refLink(b.api.Self.UserName, u.ReferralCode)))
	case u.AcceptedTerms:
		b.awaitWallet(ctx, msg.From.ID)
		b.reply(msg, "Введите адрес кошелька (EVM, 0x...):")
	default:
		reply := tgbotapi.NewMessage(msg.Chat.ID, "Привет! Это бот продажи трейдинг-бота. Нажми, чтобы принять правила.")
		reply.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✅ Принять правила и продолжить", callbackAcceptTerms),
			),
		)
		if _, err := b.api.Send(reply); err != nil {
			b.log.Error("error sending message", "error", err)
		}
	}
}

func (b *Bot) handleCallback(q *tgbotapi.CallbackQuery) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if q.Data != callbackAcceptTerms {
		b.api.Request(tgbotapi.NewCallback(q.ID, ""))
		return
	}

	u, err := b.users.GetByTgID(ctx, q.From.ID)
	if err != nil {
		b.api.Request(tgbotapi.NewCallback(q.ID, errorText(err)))
		return
	}
	if err := b.users.AcceptTerms(ctx, u.ID); err != nil {
		b.log.Error("accept terms failed", "user_id", u.ID, "error", err)
		b.api.Request(tgbotapi.NewCallback(q.ID, errorText(err)))
		return
	}

	b.api.Request(tgbotapi.NewCallback(q.ID, "Условия приняты"))
	if u.Wallet != "" {
		b.SendNotification(q.From.ID, "Кошелек уже указан. Купить доступ: /buy &lt;сумма&gt;")
		return
	}
	b.awaitWallet(ctx, q.From.ID)
	b.SendNotification(q.From.ID, "Введите адрес кошелька (EVM, 0x...):")
}

func (b *Bot) awaitWallet(ctx context.Context, tgID int64) {
	if err := b.state.Set(ctx, state.AwaitWalletKey(tgID), "1", awaitWalletTTL); err != nil {
		b.log.Warn("failed to store wallet step", "tg_id", tgID, "error", err)
	}
}

// handleText - обычное сообщение, ждем кошелек
func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	if _, err := b.state.Get(ctx, state.AwaitWalletKey(msg.From.ID)); err != nil {
		if !errors.Is(err, state.ErrNoValue) {
			b.log.Warn("failed to read wallet step", "tg_id", msg.From.ID, "error", err)
		}
		if _, err := b.users.GetByTgID(ctx, msg.From.ID); err != nil {
			b.reply(msg, "Пожалуйста, начните с /start")
		}
		return
	}

	u, err := b.users.GetByTgID(ctx, msg.From.ID)
	if err != nil {
		b.reply(msg, errorText(err))
		return
	}

	u, err = b.users.RegisterWallet(ctx, u.ID, msg.Text)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidWallet) {
			b.reply(msg, "Неверный адрес. Попробуй снова.")
			return
		}
		b.reply(msg, errorText(err))
		return
	}

	b.state.Delete(ctx, state.AwaitWalletKey(msg.From.ID))
	b.reply(msg, fmt.Sprintf("Адрес сохранен.\nТвоя реф-ссылка:\n%s\n\nЧтобы купить, используй /buy &lt;сумма&gt; (например: /buy 10.00)",
		refLink(b.api.Self.UserName, u.ReferralCode)))
}

func (b *Bot) handleBuy(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		b.reply(msg, "Использование: /buy &lt;сумма&gt; (например /buy 10.00)")
		return
	}
	amount, err := money.ParseMinor(args, b.decimals)
	if err != nil {
		b.reply(msg, "Неверная сумма")
		return
	}

	u, err := b.users.GetByTgID(ctx, msg.From.ID)
	if err != nil {
		b.reply(msg, errorText(err))
		return
	}
	p, err := b.users.CreatePayment(ctx, u.ID, amount)
	if err != nil {
		b.reply(msg, errorText(err))
		return
	}

	caption := buyText(p, b.target, money.FormatMinor(amount, b.decimals)+" "+b.symbol)

	png, err := qrcode.Encode(paymentQRPayload(p, b.target), qrcode.Medium, 256)
	if err != nil {
		b.log.Warn("qr encode failed", "payment_id", p.ID, "error", err)
		b.reply(msg, caption)
		return
	}

	photo := tgbotapi.NewPhoto(msg.Chat.ID, tgbotapi.FileBytes{Name: fmt.Sprintf("payment-%d.png", p.ID), Bytes: png})
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	photo.ReplyToMessageID = msg.MessageID
	if _, err := b.api.Send(photo); err != nil {
		b.log.Error("error sending payment photo", "error", err)
		b.reply(msg, caption)
	}
}

func (b *Bot) handleMode(ctx context.Context, tgID int64, args string) string {
	u, err := b.users.GetByTgID(ctx, tgID)
	if err != nil {
		return errorText(err)
	}

	args = strings.ToLower(strings.TrimSpace(args))
	if args == "" {
		return fmt.Sprintf("Текущий режим: <b>%s</b>\nИспользование: /mode [test|real]", u.Mode)
	}
	mode, ok := domain.ParseMode(args)
	if !ok {
		return "Использование: /mode [test|real]\nПример: /mode test"
	}
	if err := b.users.SetMode(ctx, u.ID, mode); err != nil {
		return errorText(err)
	}
	return fmt.Sprintf("Режим изменен на <b>%s</b>. (test - бумажная торговля; real - реальные ордера)", mode)
}

func (b *Bot) handleStatus(ctx context.Context, tgID int64) string {
	u, err := b.users.GetByTgID(ctx, tgID)
	if err != nil {
		return errorText(err)
	}
	return statusText(u)
}

func (b *Bot) handleMyRefs(ctx context.Context, tgID int64) string {
	u, err := b.users.GetByTgID(ctx, tgID)
	if err != nil {
		return "Не зарегистрирован."
	}
	code, summary, err := b.users.Referrals(ctx, u.ID)
	if err != nil {
		return errorText(err)
	}
	return myRefsText(summary, refLink(b.api.Self.UserName, code), b.admin.Amount)
}

func (b *Bot) handleLeaderboard(ctx context.Context) string {
	entries, err := b.users.Leaderboard(ctx, leaderboardSize)
	if err != nil {
		return errorText(err)
	}
	return leaderboardText(entries, b.admin.Amount)
}
