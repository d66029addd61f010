package http

import (
	"xepbot/internal/http/handlers"
	"xepbot/internal/http/middleware"
	"xepbot/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	Version         string
	BotToken        string
	BotUsername     string
	WebAppShortName string
	AllowedOrigin   string
	Decimals        int32
	Symbol          string
	IsAdmin         func(tgID int64) bool
}

// Deps - сервисы, которые обслуживает API
type Deps struct {
	Users   handlers.UserAPI
	Admin   handlers.AdminAPI
	Hub     *ws.Hub
	Limiter middleware.Limiter
}

// NewRouter собирает gin engine со всеми маршрутами
func NewRouter(cfg Config, deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(), middleware.Metrics(), middleware.CORS(cfg.AllowedOrigin))

	RegisterRoutes(r, cfg, deps)
	return r
}

func RegisterRoutes(r *gin.Engine, cfg Config, deps Deps) {
	h := handlers.NewHandler(deps.Users, deps.Admin, cfg.BotToken, cfg.Decimals, cfg.Symbol)
	refs := handlers.NewReferralHandler(deps.Users, cfg.BotUsername, cfg.WebAppShortName)

	r.GET("/healthz", handlers.Health(cfg.Version))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.POST("/auth/telegram", middleware.RateLimit(deps.Limiter), h.TelegramAuth)
	api.GET("/leaderboard", h.Leaderboard)
	if deps.Hub != nil {
		api.GET("/ws", ws.HandleWS(deps.Hub, cfg.AllowedOrigin))
	}

	authed := api.Group("", middleware.Auth(), middleware.RateLimit(deps.Limiter))
	authed.POST("/register", h.Register)
	authed.GET("/status", h.Status)
	authed.POST("/mode", h.SetMode)
	authed.GET("/referrals", refs.GetReferrals)
	authed.GET("/referrals/rewards", refs.GetRewards)
	authed.POST("/referrals/apply", refs.ApplyReferralCode)
	authed.GET("/payments", h.ListPayments)
	authed.POST("/payments", h.CreatePayment)

	isAdmin := cfg.IsAdmin
	if isAdmin == nil {
		isAdmin = func(int64) bool { return false }
	}
	admin := authed.Group("/admin", middleware.AdminOnly(isAdmin))
	admin.POST("/payments/:id/confirm", h.ConfirmPayment)
	admin.GET("/stats", h.Stats)
}
