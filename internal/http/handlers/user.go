package handlers

import (
	"net/http"
	"strconv"

	"xepbot/internal/domain"
	"xepbot/internal/money"

	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	AcceptTerms bool   `json:"accept_terms"`
	Wallet      string `json:"wallet" binding:"required"`
}

// Register - принятие правил и привязка кошелька из web app
func (h *Handler) Register(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "wallet is required"})
		return
	}

	ctx := c.Request.Context()
	if req.AcceptTerms {
		if err := h.users.AcceptTerms(ctx, userID); err != nil {
			respondError(c, err)
			return
		}
	}

	user, err := h.users.RegisterWallet(ctx, userID, req.Wallet)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Status - состояние лицензии
func (h *Handler) Status(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     user.LicenseStatus(),
		"registered": user.Registered(),
		"mode":       user.Mode,
		"wallet":     user.Wallet,
	})
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required,oneof=test real"`
}

func (h *Handler) SetMode(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be test or real"})
		return
	}

	if err := h.users.SetMode(c.Request.Context(), userID, domain.Mode(req.Mode)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": req.Mode})
}

type createPaymentRequest struct {
	Amount string `json:"amount" binding:"required"` // "10.00"
}

// CreatePayment создает pending платеж, ref нужно передать в транзакции
func (h *Handler) CreatePayment(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount is required"})
		return
	}

	amount, err := money.ParseMinor(req.Amount, h.decimals)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.users.CreatePayment(c.Request.Context(), userID, amount)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"payment": p,
		"display": money.FormatMinor(amount, h.decimals) + " " + h.symbol,
	})
}

// ListPayments - последние платежи пользователя
func (h *Handler) ListPayments(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	payments, err := h.users.Payments(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if payments == nil {
		payments = []domain.Payment{}
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

// Leaderboard - топ-10 пригласивших
func (h *Handler) Leaderboard(c *gin.Context) {
	entries, err := h.users.Leaderboard(c.Request.Context(), 10)
	if err != nil {
		respondError(c, err)
		return
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}
