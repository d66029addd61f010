package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"xepbot/internal/bot"
	"xepbot/internal/chain"
	"xepbot/internal/chain/evm"
	"xepbot/internal/chain/ton"
	"xepbot/internal/config"
	"xepbot/internal/db"
	httpServer "xepbot/internal/http"
	"xepbot/internal/http/middleware"
	"xepbot/internal/logger"
	"xepbot/internal/repository"
	"xepbot/internal/scheduler"
	"xepbot/internal/service"
	"xepbot/internal/state"
	"xepbot/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Version устанавливается при сборке
var Version = "dev"

func main() {
	cfg := config.Load()

	// Инициализация структурированного логгера
	jsonLogs := os.Getenv("LOG_FORMAT") == "json"
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger.Init(logLevel, jsonLogs)
	log := logger.Get()

	service.InitJWT()

	dbPool := db.Connect(cfg.DatabaseURL)
	defer dbPool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.EnsureSchema(ctx, dbPool); err != nil {
		cancel()
		logger.Fatal("schema apply failed", "error", err)
	}
	cancel()

	// Короткоживущее состояние диалогов: redis, если настроен, иначе память процесса
	var (
		store   state.Store
		limiter middleware.Limiter
		rdb     *redis.Client
	)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Fatal("redis connect failed", "addr", cfg.RedisAddr, "error", err)
		}
		pingCancel()
		store = state.NewRedisStore(rdb)
		limiter = middleware.NewRedisLimiter(rdb, int64(cfg.RateLimitPerMin), time.Minute)
		log.Info("redis state enabled", "addr", cfg.RedisAddr)
	} else {
		store = state.NewMemoryStore()
		log.Warn("REDIS_ADDR not set: pending referrals live in memory, rate limit disabled")
	}

	audit := service.NewAuditService(dbPool)
	reconciler := service.NewReconciler(repository.NewLedgerRepository(dbPool), cfg.RewardPercent)
	reconciler.OnConfirmed(audit.LogConfirmation)

	users := service.NewUserService(dbPool, store, audit)
	admin := service.NewAdminService(dbPool, reconciler, audit, cfg.AmountDecimals, cfg.TokenSymbol)

	hub := ws.NewHub()
	reconciler.OnConfirmed(hub.NotifyConfirmation)

	// Бот запускается до watcher'а, чтобы уведомления о подтверждениях не терялись
	var tgBot *bot.Bot
	botUsername := ""
	if cfg.BotEnabled && cfg.BotToken != "" {
		var err error
		tgBot, err = bot.New(bot.Options{
			Token:    cfg.BotToken,
			AdminIDs: cfg.AdminTelegramIDs,
			Target:   bot.PaymentTarget{Contract: cfg.ContractAddress, TonWallet: cfg.TonPlatformWallet},
			Decimals: cfg.AmountDecimals,
			Symbol:   cfg.TokenSymbol,
		}, users, admin, store)
		if err != nil {
			log.Error("failed to start bot", "error", err)
		} else {
			botUsername = tgBot.Username()
			reconciler.OnConfirmed(tgBot.NotifyConfirmation)
			go tgBot.Start()
			log.Info("bot started", "admin_ids", cfg.AdminTelegramIDs)
		}
	} else {
		log.Warn("bot disabled: BOT_TOKEN not set or BOT_ENABLED=false")
	}

	// Источники событий оплаты
	cursor := chain.NewStateCursor(store)
	var sources []chain.Source
	var evmSource *evm.Source
	if cfg.EVMRPCURL != "" && cfg.ContractAddress != "" {
		dialCtx, dialCancel := context.WithTimeout(context.Background(), 15*time.Second)
		src, err := evm.Dial(dialCtx, evm.Config{
			RPCURL:        cfg.EVMRPCURL,
			Contract:      cfg.ContractAddress,
			ABIPath:       cfg.ContractABIPath,
			EventName:     cfg.PaymentEventName,
			Confirmations: cfg.EVMConfirmations,
			StartBlock:    cfg.EVMStartBlock,
		}, cursor)
		dialCancel()
		if err != nil {
			log.Error("evm source disabled", "error", err)
		} else {
			evmSource = src
			sources = append(sources, src)
		}
	}
	if cfg.TonPlatformWallet != "" {
		network := ton.NetworkMainnet
		if cfg.TonNetwork == "testnet" {
			network = ton.NetworkTestnet
		}
		sources = append(sources, ton.NewSource(ton.NewClient(network, cfg.TonAPIKey), cfg.TonPlatformWallet, cursor))
	}

	watcher := service.NewPaymentWatcher(reconciler, store, sources...)
	if tgBot != nil {
		watcher.OnFailed(tgBot.NotifyChainFailure)
	}

	sched, err := scheduler.New(time.UTC)
	if err != nil {
		logger.Fatal("scheduler init failed", "error", err)
	}
	if len(sources) > 0 {
		if err := sched.Every("payment_watcher", cfg.ChainPollInterval, func(ctx context.Context) {
			res := watcher.Check(ctx)
			if res.Events > 0 || res.Retried > 0 {
				log.Info("payment watcher pass", "events", res.Events, "confirmed", res.Confirmed,
					"skipped", res.Skipped, "failed", res.Failed, "retried", res.Retried)
			}
		}); err != nil {
			logger.Fatal("watcher job failed", "error", err)
		}
		log.Info("payment watcher scheduled", "sources", watcher.Sources(), "interval", cfg.ChainPollInterval)
	} else {
		log.Warn("payment watcher не запущен: нет источников (EVM_RPC_URL/CONTRACT_ADDRESS, TON_PLATFORM_WALLET)")
	}
	if tgBot != nil && len(cfg.AdminTelegramIDs) > 0 {
		if err := sched.Daily("admin_digest", cfg.DigestHour, tgBot.SendDigest); err != nil {
			log.Error("digest job disabled", "error", err)
		}
	}
	sched.Start()

	gin.SetMode(gin.ReleaseMode)
	r := httpServer.NewRouter(httpServer.Config{
		Version:         Version,
		BotToken:        cfg.BotToken,
		BotUsername:     botUsername,
		WebAppShortName: cfg.WebAppShortName,
		AllowedOrigin:   cfg.AllowedOrigin,
		Decimals:        cfg.AmountDecimals,
		Symbol:          cfg.TokenSymbol,
		IsAdmin:         cfg.IsAdmin,
	}, httpServer.Deps{Users: users, Admin: admin, Hub: hub, Limiter: limiter})

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	go func() {
		log.Info("server started", "port", cfg.AppPort, "version", Version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Сначала останавливаем прием платежей, потом бота и HTTP
	if err := sched.Stop(); err != nil {
		log.Warn("scheduler shutdown", "error", err)
	}
	if evmSource != nil {
		evmSource.Close()
	}

	if tgBot != nil {
		tgBot.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	hub.Close()

	if rdb != nil {
		rdb.Close()
	}

	log.Info("server exited")
}
