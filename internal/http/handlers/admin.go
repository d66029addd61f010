package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"xepbot/internal/http/middleware"
	"xepbot/internal/service"

	"github.com/gin-gonic/gin"
)

type confirmRequest struct {
	TxHash string `json:"tx_hash" binding:"required"`
}

// ConfirmPayment - ручное подтверждение платежа админом через API.
// Повторное подтверждение не ошибка: 200 с already_confirmed.
func (h *Handler) ConfirmPayment(c *gin.Context) {
	paymentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || paymentID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}

	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tx_hash is required"})
		return
	}

	adminTgID, _ := middleware.TgID(c)
	conf, err := h.admin.ConfirmPayment(c.Request.Context(), adminTgID, paymentID, req.TxHash, service.SourceHTTP)
	if err != nil {
		if errors.Is(err, service.ErrAlreadyConfirmed) {
			c.JSON(http.StatusOK, gin.H{"already_confirmed": true, "payment_id": paymentID})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"already_confirmed": false, "confirmation": conf})
}

// Stats - статистика за последние hours часов (по умолчанию сутки)
func (h *Handler) Stats(c *gin.Context) {
	hours, err := strconv.Atoi(c.DefaultQuery("hours", "24"))
	if err != nil || hours <= 0 {
		hours = 24
	}

	stats, err := h.admin.GetStats(c.Request.Context(), time.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
