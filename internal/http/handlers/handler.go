package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"xepbot/internal/domain"
	"xepbot/internal/http/middleware"
	"xepbot/internal/logger"
	"xepbot/internal/service"

	"github.com/gin-gonic/gin"
)

// UserAPI - то, что нужно хендлерам от UserService
type UserAPI interface {
	Start(ctx context.Context, tgID int64, username, refCode string) (*domain.User, bool, error)
	AcceptTerms(ctx context.Context, userID int64) error
	GetByID(ctx context.Context, userID int64) (*domain.User, error)
	RegisterWallet(ctx context.Context, userID int64, wallet string) (*domain.User, error)
	ApplyReferralCode(ctx context.Context, u *domain.User, code string) error
	SetMode(ctx context.Context, userID int64, mode domain.Mode) error
	CreatePayment(ctx context.Context, userID, amount int64) (*domain.Payment, error)
	Payments(ctx context.Context, userID int64, limit int) ([]domain.Payment, error)
	Referrals(ctx context.Context, userID int64) (string, *domain.ReferralSummary, error)
	Rewards(ctx context.Context, userID int64, limit int) ([]domain.Reward, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

// AdminAPI - то, что нужно хендлерам от AdminService
type AdminAPI interface {
	ConfirmPayment(ctx context.Context, adminTgID, paymentID int64, txHash string, source service.Source) (*service.Confirmation, error)
	GetStats(ctx context.Context, since time.Time) (*service.Stats, error)
}

type Handler struct {
	users    UserAPI
	admin    AdminAPI
	botToken string
	decimals int32
	symbol   string
}

func NewHandler(users UserAPI, admin AdminAPI, botToken string, decimals int32, symbol string) *Handler {
	return &Handler{users: users, admin: admin, botToken: botToken, decimals: decimals, symbol: symbol}
}

func getUserID(c *gin.Context) (int64, bool) {
	return middleware.UserID(c)
}

// Health - проверка живости для балансировщика
func Health(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version})
	}
}

// respondError переводит ошибки сервисов в HTTP статусы
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrUnknownUser):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrEmptyTxHash),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidRefCode),
		errors.Is(err, service.ErrSelfReferral),
		errors.Is(err, service.ErrAlreadyReferred),
		errors.Is(err, domain.ErrInvalidWallet):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrTermsRequired), errors.Is(err, service.ErrNotRegistered):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrWalletTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
	default:
		logger.WithContext(c.Request.Context()).Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
