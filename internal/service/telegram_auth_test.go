package service

import (
	"encoding/hex"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// создает валидную строку init_data для тестов
func buildInitData(t *testing.T, botToken string, fields map[string]string) string {
	t.Helper()

	vals := url.Values{}
	for k, v := range fields {
		vals.Set(k, v)
	}
	vals.Set("hash", hex.EncodeToString(initDataHash(vals, botToken)))
	return vals.Encode()
}

func TestValidateTelegramInitData_Valid(t *testing.T) {
	botToken := "test-bot-token"
	fields := map[string]string{
		"auth_date": strconv.FormatInt(time.Now().Unix(), 10),
		"user":      `{"id":1,"username":"u","first_name":"F"}`,
	}

	initData := buildInitData(t, botToken, fields)

	vals, ok := ValidateTelegramInitData(initData, botToken)
	require.True(t, ok, "ожидалась валидная init data")
	require.NotEmpty(t, vals.Get("user"))
}

func TestValidateTelegramInitData_Tampered(t *testing.T) {
	botToken := "test-bot-token"
	fields := map[string]string{
		"auth_date": strconv.FormatInt(time.Now().Unix(), 10),
		"user":      `{"id":1,"username":"u","first_name":"F"}`,
	}
	initData := buildInitData(t, botToken, fields)

	// дополнительное поле нарушит хэш
	_, ok := ValidateTelegramInitData(initData+"&x=1", botToken)
	require.False(t, ok)

	_, ok = ValidateTelegramInitData(initData, "other-token")
	require.False(t, ok)
}

func TestValidateTelegramInitData_Expired(t *testing.T) {
	botToken := "test-bot-token"
	fields := map[string]string{
		"auth_date": strconv.FormatInt(time.Now().Add(-2*time.Hour).Unix(), 10),
		"user":      `{"id":1}`,
	}
	_, ok := ValidateTelegramInitData(buildInitData(t, botToken, fields), botToken)
	require.False(t, ok)
}

func TestParseTelegramUser(t *testing.T) {
	botToken := "test-bot-token"
	initData := buildInitData(t, botToken, map[string]string{
		"auth_date": strconv.FormatInt(time.Now().Unix(), 10),
		"user":      `{"id":555,"username":"alice","first_name":"A"}`,
	})

	u, err := ParseTelegramUser(initData, botToken)
	require.NoError(t, err)
	require.Equal(t, int64(555), u.ID)
	require.Equal(t, "alice", u.Username)

	noUser := buildInitData(t, botToken, map[string]string{
		"auth_date": strconv.FormatInt(time.Now().Unix(), 10),
	})
	_, err = ParseTelegramUser(noUser, botToken)
	require.ErrorIs(t, err, ErrInvalidInitData)
}
