package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort       string
	DatabaseURL   string
	AllowedOrigin string

	// short name web app для ссылок startapp, пусто - обычный /start
	WebAppShortName string
	RateLimitPerMin int

	BotToken         string
	BotEnabled       bool
	AdminTelegramIDs []int64

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RewardPercent  int
	AmountDecimals int32
	TokenSymbol    string

	// EVM контракт приема платежей
	EVMRPCURL        string
	ContractAddress  string
	ContractABIPath  string
	PaymentEventName string
	EVMConfirmations uint64
	EVMStartBlock    uint64

	// TON кошелек платформы, memo перевода = ref платежа
	TonPlatformWallet string
	TonNetwork        string
	TonAPIKey         string

	ChainPollInterval time.Duration
	DigestHour        int
}

// Load читает .env (если есть) и переменные окружения
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug(".env not found, using process environment")
	}

	cfg := &Config{
		AppPort:     getenv("APP_PORT", "8080"),
		DatabaseURL: must("DATABASE_URL"),

		AllowedOrigin:   os.Getenv("ALLOWED_ORIGIN"),
		WebAppShortName: os.Getenv("WEBAPP_SHORT_NAME"),
		RateLimitPerMin: getInt("RATE_LIMIT_PER_MIN", 120),

		BotToken:         os.Getenv("BOT_TOKEN"),
		BotEnabled:       getenv("BOT_ENABLED", "true") == "true",
		AdminTelegramIDs: parseIDs(os.Getenv("ADMIN_TELEGRAM_IDS")),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),

		RewardPercent:  getInt("REWARD_PERCENT", 10),
		AmountDecimals: int32(getInt("AMOUNT_DECIMALS", 2)),
		TokenSymbol:    getenv("TOKEN_SYMBOL", "USDC"),

		EVMRPCURL:        os.Getenv("EVM_RPC_URL"),
		ContractAddress:  os.Getenv("CONTRACT_ADDRESS"),
		ContractABIPath:  os.Getenv("CONTRACT_ABI_PATH"),
		PaymentEventName: getenv("PAYMENT_EVENT_NAME", "PaymentReceived"),
		EVMConfirmations: uint64(getInt("EVM_CONFIRMATIONS", 2)),
		EVMStartBlock:    uint64(getInt("EVM_START_BLOCK", 0)),

		TonPlatformWallet: os.Getenv("TON_PLATFORM_WALLET"),
		TonNetwork:        getenv("TON_NETWORK", "mainnet"),
		TonAPIKey:         os.Getenv("TON_API_KEY"),

		ChainPollInterval: getDuration("CHAIN_POLL_INTERVAL", 15*time.Second),
		DigestHour:        getInt("DIGEST_HOUR", 9),
	}

	// старое имя переменной из первой версии бота
	if len(cfg.AdminTelegramIDs) == 0 {
		cfg.AdminTelegramIDs = parseIDs(os.Getenv("ADMIN_ID"))
	}

	if cfg.RewardPercent < 0 || cfg.RewardPercent > 100 {
		slog.Warn("REWARD_PERCENT out of range, using default", "value", cfg.RewardPercent)
		cfg.RewardPercent = 10
	}

	return cfg
}

// IsAdmin проверяет telegram id по списку админов
func (c *Config) IsAdmin(tgID int64) bool {
	for _, id := range c.AdminTelegramIDs {
		if id == tgID {
			return true
		}
	}
	return false
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		slog.Error("required env missing", "key", k)
		panic("missing env " + k)
	}
	return v
}

func getInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid int env, using default", "key", k, "value", v)
		return def
	}
	return n
}

func getDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration env, using default", "key", k, "value", v)
		return def
	}
	return d
}

// "1, 2,3" -> [1 2 3], мусор пропускается
func parseIDs(s string) []int64 {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id == 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
