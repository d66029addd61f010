package handlers

import (
	"net/http"

	"xepbot/internal/domain"
	"xepbot/internal/service"

	"github.com/gin-gonic/gin"
)

// Обработка запросов с рефками
type ReferralHandler struct {
	users           UserAPI
	botUsername     string
	webAppShortName string
}

// создает новый handler для реф ссылок
func NewReferralHandler(users UserAPI, botUsername, webAppShortName string) *ReferralHandler {
	return &ReferralHandler{users: users, botUsername: botUsername, webAppShortName: webAppShortName}
}

// код, ссылка и сводка наград пользователя
func (h *ReferralHandler) GetReferrals(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	code, summary, err := h.users.Referrals(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    code,
		"link":    h.link(code),
		"summary": summary,
	})
}

// последние начисленные награды
func (h *ReferralHandler) GetRewards(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	rewards, err := h.users.Rewards(c.Request.Context(), userID, 50)
	if err != nil {
		respondError(c, err)
		return
	}
	if rewards == nil {
		rewards = []domain.Reward{}
	}
	c.JSON(http.StatusOK, gin.H{"rewards": rewards})
}

// Применяет реферральный код для текущего юзера
type ApplyReferralRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *ReferralHandler) ApplyReferralCode(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req ApplyReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.GetByID(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	// был ли юзер уже приглашен? свой код и гонку двух запросов отсекает сервис
	if user.ReferrerID != nil {
		respondError(c, service.ErrAlreadyReferred)
		return
	}

	if err := h.users.ApplyReferralCode(ctx, user, req.Code); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "referral applied successfully"})
}

// https://t.me/bot_username/webapp_short_name?startapp=ref_CODE открывает web app,
// без short name - обычный /start бота
func (h *ReferralHandler) link(code string) string {
	if h.webAppShortName != "" {
		return "https://t.me/" + h.botUsername + "/" + h.webAppShortName + "?startapp=ref_" + code
	}
	return "https://t.me/" + h.botUsername + "?start=" + code
}
