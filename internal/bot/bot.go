// Package bot - telegram бот: регистрация, покупка лицензии, рефералы и команды админа.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"xepbot/internal/chain"
	"xepbot/internal/logger"
	"xepbot/internal/service"
	"xepbot/internal/state"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// PaymentTarget - куда пользователю отправлять оплату
type PaymentTarget struct {
	Contract  string // EVM контракт, ref передается аргументом
	TonWallet string // TON кошелек, ref в комментарии перевода
}

type Bot struct {
	api      *tgbotapi.BotAPI
	users    *service.UserService
	admin    *service.AdminService
	state    state.Store
	adminIDs []int64
	target   PaymentTarget
	decimals int32
	symbol   string

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
	log     *slog.Logger
}

type Options struct {
	Token    string
	AdminIDs []int64
	Target   PaymentTarget
	Decimals int32
	Symbol   string
}

func New(opts Options, users *service.UserService, admin *service.AdminService, st state.Store) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(opts.Token)
	if err != nil {
		return nil, err
	}

	log := logger.With("component", "bot")
	log.Info("bot authorized", "username", api.Self.UserName)

	return &Bot{
		api:      api,
		users:    users,
		admin:    admin,
		state:    st,
		adminIDs: opts.AdminIDs,
		target:   opts.Target,
		decimals: opts.Decimals,
		symbol:   opts.Symbol,
		stopCh:   make(chan struct{}),
		log:      log,
	}, nil
}

// Username - имя бота для реферальных ссылок
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// Start запускает прослушивание обновлений, блокирует до Stop
func (b *Bot) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("starting bot update loop")

	for {
		select {
		case <-b.stopCh:
			b.log.Info("stopping bot update loop")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}

			switch {
			case update.CallbackQuery != nil:
				b.spawn(func() { b.handleCallback(update.CallbackQuery) })
			case update.Message != nil && update.Message.From != nil:
				msg := update.Message
				b.spawn(func() { b.handleMessage(msg) })
			}
		}
	}
}

// spawn запускает обработчик, после Stop новые не стартуют
func (b *Bot) spawn(fn func()) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.log.Error("bot handler panicked", "panic", r)
			}
		}()
		fn()
	}()
}

// Stop плавно останавливает бота
func (b *Bot) Stop() {
	if !b.beginStop() {
		return
	}
	b.log.Info("stopping bot...")
	b.api.StopReceivingUpdates()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.log.Info("bot stopped gracefully")
	case <-time.After(10 * time.Second):
		b.log.Warn("bot shutdown timeout, some handlers may not have completed")
	}
}

// beginStop закрывает прием новых обработчиков, false при повторном вызове
func (b *Bot) beginStop() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return false
	}
	b.stopped = true
	close(b.stopCh)
	return true
}

func (b *Bot) isAdmin(tgID int64) bool {
	for _, id := range b.adminIDs {
		if id == tgID {
			return true
		}
	}
	return false
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if !msg.IsCommand() {
		b.handleText(ctx, msg)
		return
	}

	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg)
		return
	case "buy":
		b.handleBuy(ctx, msg)
		return
	}

	var response string
	switch msg.Command() {
	case "mode":
		response = b.handleMode(ctx, msg.From.ID, msg.CommandArguments())
	case "status":
		response = b.handleStatus(ctx, msg.From.ID)
	case "my_refs":
		response = b.handleMyRefs(ctx, msg.From.ID)
	case "leaderboard":
		response = b.handleLeaderboard(ctx)
	case "help":
		response = userHelp
		if b.isAdmin(msg.From.ID) {
			response += "\n\n" + adminHelp
		}
	default:
		if !b.isAdmin(msg.From.ID) {
			if isAdminCommand(msg.Command()) {
				response = "Только админ."
			} else {
				response = "❌ Неизвестная команда. Используйте /help для списка команд."
			}
			break
		}
		response = b.handleAdminCommand(ctx, msg)
	}

	b.reply(msg, response)
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	reply.ParseMode = tgbotapi.ModeHTML
	reply.ReplyToMessageID = msg.MessageID
	reply.DisableWebPagePreview = true

	if _, err := b.api.Send(reply); err != nil {
		b.log.Error("error sending message", "error", err)
	}
}

// SendNotification отправляет сообщение пользователю
func (b *Bot) SendNotification(tgID int64, text string) error {
	msg := tgbotapi.NewMessage(tgID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := b.api.Send(msg)
	return err
}

// NotifyAdmins рассылает текст всем админам
func (b *Bot) NotifyAdmins(text string) {
	for _, id := range b.adminIDs {
		if err := b.SendNotification(id, text); err != nil {
			b.log.Error("failed to notify admin", "admin_id", id, "error", err)
		}
	}
}

// NotifyConfirmation сообщает плательщику, пригласившему и админам о подтверждении.
// Вызывается из Reconciler.OnConfirmed.
func (b *Bot) NotifyConfirmation(conf service.Confirmation) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if payer, err := b.users.GetByID(ctx, conf.UserID); err == nil {
		if err := b.SendNotification(payer.TgID, payerConfirmedText(conf)); err != nil {
			b.log.Warn("failed to notify payer", "tg_id", payer.TgID, "error", err)
		}
	} else {
		b.log.Warn("payer lookup failed", "user_id", conf.UserID, "error", err)
	}

	if conf.RewardID != 0 && conf.RewardAmount > 0 {
		if referrer, err := b.users.GetByID(ctx, conf.ReferrerID); err == nil {
			text := fmt.Sprintf("🎁 Вам начислено реферальное вознаграждение: %s", b.admin.Amount(conf.RewardAmount))
			if err := b.SendNotification(referrer.TgID, text); err != nil {
				b.log.Warn("failed to notify referrer", "tg_id", referrer.TgID, "error", err)
			}
		}
	}

	// ручные подтверждения админ и так видит в ответе на /confirm
	if conf.Source != service.SourceAdmin {
		b.NotifyAdmins(adminConfirmedText(conf, b.admin.Amount))
	}
}

// NotifyChainFailure сообщает админам о событии из сети, которое не удалось записать
func (b *Bot) NotifyChainFailure(ev chain.Event, err error) {
	b.log.Warn("chain event not confirmed", "source", ev.Source, "ref", ev.Ref, "tx", ev.TxHash, "error", err)
	b.NotifyAdmins(chainFailedText(ev))
}
