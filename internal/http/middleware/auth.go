package middleware

import (
	"net/http"
	"strings"

	"xepbot/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserID = "userID"
	ctxTgID   = "tgID"
)

// Auth проверяет Bearer JWT и кладет userID и tgID в контекст
func Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		claims, err := service.ParseJWT(strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxTgID, claims.TgID)
		c.Next()
	}
}

// AdminOnly пропускает только telegram id из списка админов. Ставится после Auth.
func AdminOnly(isAdmin func(tgID int64) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tgID, ok := TgID(c)
		if !ok || !isAdmin(tgID) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ctxUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id > 0
}

func TgID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ctxTgID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id != 0
}
