package handlers

import (
	"net/http"

	"xepbot/internal/service"

	"github.com/gin-gonic/gin"
)

type telegramAuthRequest struct {
	InitData string `json:"init_data" binding:"required"`
	RefCode  string `json:"ref_code"`
}

// TelegramAuth обменивает init_data Telegram WebApp на JWT
func (h *Handler) TelegramAuth(c *gin.Context) {
	var req telegramAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "init_data is required"})
		return
	}

	tgUser, err := service.ParseTelegramUser(req.InitData, h.botToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid init data"})
		return
	}

	user, created, err := h.users.Start(c.Request.Context(), tgUser.ID, tgUser.Username, req.RefCode)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := service.GenerateJWT(user.ID, user.TgID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"user":    user,
		"created": created,
	})
}
