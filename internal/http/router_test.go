package http

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"xepbot/internal/domain"
	"xepbot/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const testBotToken = "123:test-token"

type fakeUsers struct {
	users    map[int64]*domain.User
	payments []domain.Payment
	applyErr error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[int64]*domain.User{}}
}

func (f *fakeUsers) Start(_ context.Context, tgID int64, username, _ string) (*domain.User, bool, error) {
	for _, u := range f.users {
		if u.TgID == tgID {
			return u, false, nil
		}
	}
	u := &domain.User{ID: int64(len(f.users) + 1), TgID: tgID, Username: username, Mode: domain.ModeTest}
	f.users[u.ID] = u
	return u, true, nil
}

func (f *fakeUsers) AcceptTerms(_ context.Context, userID int64) error {
	f.users[userID].AcceptedTerms = true
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, userID int64) (*domain.User, error) {
	if u, ok := f.users[userID]; ok {
		return u, nil
	}
	return nil, service.ErrUnknownUser
}

func (f *fakeUsers) RegisterWallet(_ context.Context, userID int64, wallet string) (*domain.User, error) {
	u := f.users[userID]
	if !u.AcceptedTerms {
		return nil, service.ErrTermsRequired
	}
	w, err := domain.NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	u.Wallet = w
	return u, nil
}

func (f *fakeUsers) ApplyReferralCode(context.Context, *domain.User, string) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	return service.ErrInvalidRefCode
}

func (f *fakeUsers) SetMode(_ context.Context, userID int64, mode domain.Mode) error {
	f.users[userID].Mode = mode
	return nil
}

func (f *fakeUsers) CreatePayment(_ context.Context, userID, amount int64) (*domain.Payment, error) {
	if !f.users[userID].Registered() {
		return nil, service.ErrNotRegistered
	}
	p := domain.Payment{ID: int64(len(f.payments) + 1), UserID: userID, Amount: &amount, Ref: "ref", Status: domain.PaymentStatusPending}
	f.payments = append(f.payments, p)
	return &p, nil
}

func (f *fakeUsers) Payments(context.Context, int64, int) ([]domain.Payment, error) {
	return f.payments, nil
}

func (f *fakeUsers) Referrals(context.Context, int64) (string, *domain.ReferralSummary, error) {
	return "abc123", &domain.ReferralSummary{Referrals: 2, Accrued: 100}, nil
}

func (f *fakeUsers) Rewards(_ context.Context, userID int64, _ int) ([]domain.Reward, error) {
	return []domain.Reward{{ID: 1, ReferrerUserID: userID, ReferredUserID: 9, PaymentID: 4, Amount: 50, Status: domain.RewardStatusPending}}, nil
}

func (f *fakeUsers) Leaderboard(context.Context, int) ([]domain.LeaderboardEntry, error) {
	return nil, nil
}

type fakeAdmin struct {
	err error
}

func (f *fakeAdmin) ConfirmPayment(_ context.Context, _, paymentID int64, txHash string, source service.Source) (*service.Confirmation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.Confirmation{PaymentID: paymentID, TxHash: txHash, Source: source, Status: domain.PaymentStatusPaid}, nil
}

func (f *fakeAdmin) GetStats(_ context.Context, since time.Time) (*service.Stats, error) {
	return &service.Stats{Since: since, TotalUsers: 3}, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *fakeUsers, *fakeAdmin) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	service.SetJWTSecret("router-test-secret")

	users := newFakeUsers()
	admin := &fakeAdmin{}
	r := NewRouter(Config{
		Version:     "test",
		BotToken:    testBotToken,
		BotUsername: "xepbot",
		Decimals:    2,
		Symbol:      "USDC",
		IsAdmin:     func(tg int64) bool { return tg == 1 },
	}, Deps{Users: users, Admin: admin})
	return r, users, admin
}

func signInitData(t *testing.T, tgID int64, username string) string {
	t.Helper()
	userJSON, err := json.Marshal(map[string]interface{}{"id": tgID, "username": username})
	require.NoError(t, err)

	values := url.Values{}
	values.Set("user", string(userJSON))
	values.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))

	pairs := make([]string, 0, len(values))
	for k, v := range values {
		pairs = append(pairs, k+"="+v[0])
	}
	sort.Strings(pairs)

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(testBotToken))
	h := hmac.New(sha256.New, secret.Sum(nil))
	h.Write([]byte(strings.Join(pairs, "\n")))
	values.Set("hash", hex.EncodeToString(h.Sum(nil)))
	return values.Encode()
}

func call(r *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, r *gin.Engine, tgID int64) string {
	t.Helper()
	w := call(r, "POST", "/api/auth/telegram", "", map[string]string{"init_data": signInitData(t, tgID, "alice")})
	require.Equal(t, nethttp.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestHealthz(t *testing.T) {
	r, _, _ := newTestRouter(t)
	w := call(r, "GET", "/healthz", "", nil)
	require.Equal(t, nethttp.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok","version":"test"}`, w.Body.String())
}

func TestTelegramAuth_RejectsBadInitData(t *testing.T) {
	r, _, _ := newTestRouter(t)

	require.Equal(t, nethttp.StatusBadRequest, call(r, "POST", "/api/auth/telegram", "", map[string]string{}).Code)
	require.Equal(t, nethttp.StatusUnauthorized,
		call(r, "POST", "/api/auth/telegram", "", map[string]string{"init_data": "user=%7B%7D&hash=00"}).Code)
}

func TestRegistrationAndPayment(t *testing.T) {
	r, _, _ := newTestRouter(t)
	token := login(t, r, 100)

	require.Equal(t, nethttp.StatusUnauthorized, call(r, "GET", "/api/status", "", nil).Code)

	w := call(r, "GET", "/api/status", token, nil)
	require.Equal(t, nethttp.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"inactive"`)

	// без правил нельзя
	w = call(r, "POST", "/api/register", token, map[string]interface{}{"wallet": "0x52908400098527886E0F7030069857D2E4169EE7"})
	require.Equal(t, nethttp.StatusForbidden, w.Code)

	w = call(r, "POST", "/api/register", token, map[string]interface{}{"accept_terms": true, "wallet": "0x123"})
	require.Equal(t, nethttp.StatusBadRequest, w.Code)

	w = call(r, "POST", "/api/register", token, map[string]interface{}{"accept_terms": true, "wallet": "0x52908400098527886E0F7030069857D2E4169EE7"})
	require.Equal(t, nethttp.StatusOK, w.Code, w.Body.String())

	w = call(r, "POST", "/api/payments", token, map[string]string{"amount": "abc"})
	require.Equal(t, nethttp.StatusBadRequest, w.Code)

	w = call(r, "POST", "/api/payments", token, map[string]string{"amount": "10.50"})
	require.Equal(t, nethttp.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Payment domain.Payment `json:"payment"`
		Display string         `json:"display"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Equal(t, int64(1050), *created.Payment.Amount)
	require.Equal(t, "10.50 USDC", created.Display)

	w = call(r, "GET", "/api/referrals", token, nil)
	require.Equal(t, nethttp.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "https://t.me/xepbot?start=abc123")

	w = call(r, "GET", "/api/referrals/rewards", token, nil)
	require.Equal(t, nethttp.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"payment_id":4`)

	w = call(r, "POST", "/api/mode", token, map[string]string{"mode": "live"})
	require.Equal(t, nethttp.StatusBadRequest, w.Code)
	w = call(r, "POST", "/api/mode", token, map[string]string{"mode": "real"})
	require.Equal(t, nethttp.StatusOK, w.Code)
}

func TestAdminConfirm(t *testing.T) {
	r, _, admin := newTestRouter(t)
	adminToken, err := service.GenerateJWT(50, 1)
	require.NoError(t, err)
	userToken, err := service.GenerateJWT(51, 2)
	require.NoError(t, err)

	body := map[string]string{"tx_hash": "0xabc"}

	require.Equal(t, nethttp.StatusForbidden, call(r, "POST", "/api/admin/payments/7/confirm", userToken, body).Code)
	require.Equal(t, nethttp.StatusBadRequest, call(r, "POST", "/api/admin/payments/x/confirm", adminToken, body).Code)
	require.Equal(t, nethttp.StatusBadRequest, call(r, "POST", "/api/admin/payments/7/confirm", adminToken, map[string]string{}).Code)

	w := call(r, "POST", "/api/admin/payments/7/confirm", adminToken, body)
	require.Equal(t, nethttp.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"already_confirmed":false`)
	require.Contains(t, w.Body.String(), `"source":"http"`)

	admin.err = service.ErrAlreadyConfirmed
	w = call(r, "POST", "/api/admin/payments/7/confirm", adminToken, body)
	require.Equal(t, nethttp.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"already_confirmed":true`)

	admin.err = service.ErrNotFound
	require.Equal(t, nethttp.StatusNotFound, call(r, "POST", "/api/admin/payments/7/confirm", adminToken, body).Code)

	admin.err = errors.Join(service.ErrStoreUnavailable, errors.New("conn refused"))
	require.Equal(t, nethttp.StatusServiceUnavailable, call(r, "POST", "/api/admin/payments/7/confirm", adminToken, body).Code)

	admin.err = nil
	w = call(r, "GET", "/api/admin/stats", adminToken, nil)
	require.Equal(t, nethttp.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"total_users":3`)
}

func TestApplyReferralCode_Errors(t *testing.T) {
	r, users, _ := newTestRouter(t)
	token := login(t, r, 100)

	cases := []struct {
		name string
		err  error
		want string
	}{
		{"unknown code", nil, service.ErrInvalidRefCode.Error()},
		{"own code", service.ErrSelfReferral, service.ErrSelfReferral.Error()},
		{"concurrent apply", fmt.Errorf("bind: %w", service.ErrAlreadyReferred), "bind: " + service.ErrAlreadyReferred.Error()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			users.applyErr = tc.err
			w := call(r, "POST", "/api/referrals/apply", token, map[string]string{"code": "ref_ABC "})
			require.Equal(t, nethttp.StatusBadRequest, w.Code, w.Body.String())
			require.Contains(t, w.Body.String(), tc.want)
		})
	}

	ref := int64(9)
	for _, u := range users.users {
		u.ReferrerID = &ref
	}
	w := call(r, "POST", "/api/referrals/apply", token, map[string]string{"code": "abc"})
	require.Equal(t, nethttp.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), service.ErrAlreadyReferred.Error())
}
