package service

import (
	"context"
	"strings"
	"testing"

	"xepbot/internal/domain"
	"xepbot/internal/repository"
	"xepbot/internal/state"

	"github.com/stretchr/testify/require"
)

// memUsers - users, referrals и payments в памяти
type memUsers struct {
	users    map[int64]*domain.User
	payments []domain.Payment
	rewards  []domain.Reward
	nextID   int64
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[int64]*domain.User)}
}

func (m *memUsers) GetOrCreate(_ context.Context, tgID int64, username string) (*domain.User, bool, error) {
	for _, u := range m.users {
		if u.TgID == tgID {
			cp := *u
			return &cp, false, nil
		}
	}
	m.nextID++
	u := &domain.User{ID: m.nextID, TgID: tgID, Username: username, Mode: domain.ModeTest}
	m.users[u.ID] = u
	cp := *u
	return &cp, true, nil
}

func (m *memUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByTgID(_ context.Context, tgID int64) (*domain.User, error) {
	for _, u := range m.users {
		if u.TgID == tgID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memUsers) AcceptTerms(_ context.Context, userID int64) error {
	m.users[userID].AcceptedTerms = true
	return nil
}

func (m *memUsers) SetWallet(_ context.Context, userID int64, wallet string) error {
	m.users[userID].Wallet = wallet
	return nil
}

func (m *memUsers) SetMode(_ context.Context, userID int64, mode domain.Mode) error {
	m.users[userID].Mode = mode
	return nil
}

func (m *memUsers) WalletTaken(_ context.Context, wallet string, exceptUserID int64) (bool, error) {
	for _, u := range m.users {
		if u.ID != exceptUserID && strings.EqualFold(u.Wallet, wallet) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memUsers) GetOrCreateReferralCode(_ context.Context, userID int64) (string, error) {
	u := m.users[userID]
	if u.ReferralCode == "" {
		u.ReferralCode = "code" + string(rune('a'+userID))
	}
	return u.ReferralCode, nil
}

func (m *memUsers) GetUserIDByReferralCode(_ context.Context, code string) (int64, error) {
	for _, u := range m.users {
		if u.ReferralCode == code {
			return u.ID, nil
		}
	}
	return 0, repository.ErrNotFound
}

func (m *memUsers) BindReferrer(_ context.Context, userID, referrerID int64) error {
	if userID == referrerID {
		return repository.ErrSelfReferral
	}
	u := m.users[userID]
	if u.ReferrerID != nil {
		return repository.ErrAlreadyReferred
	}
	u.ReferrerID = &referrerID
	return nil
}

func (m *memUsers) GetSummary(_ context.Context, userID int64) (*domain.ReferralSummary, error) {
	s := &domain.ReferralSummary{}
	for _, u := range m.users {
		if u.ReferrerID != nil && *u.ReferrerID == userID {
			s.Referrals++
		}
	}
	return s, nil
}

func (m *memUsers) GetLeaderboard(context.Context, int) ([]domain.LeaderboardEntry, error) {
	return nil, nil
}

func (m *memUsers) GetRewardsByReferrer(_ context.Context, userID int64, _ int) ([]domain.Reward, error) {
	var out []domain.Reward
	for _, r := range m.rewards {
		if r.ReferrerUserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memUsers) Create(_ context.Context, userID, amount int64) (*domain.Payment, error) {
	p := domain.Payment{
		ID:     int64(len(m.payments) + 1),
		UserID: userID,
		Amount: &amount,
		Ref:    repository.NewPaymentRef(),
		Status: domain.PaymentStatusPending,
	}
	m.payments = append(m.payments, p)
	return &p, nil
}

func (m *memUsers) GetByUserID(_ context.Context, userID int64, _ int) ([]domain.Payment, error) {
	var out []domain.Payment
	for _, p := range m.payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func newTestUserService() (*UserService, *memUsers, *state.MemoryStore) {
	mem := newMemUsers()
	st := state.NewMemoryStore()
	return &UserService{users: mem, referrals: mem, payments: mem, state: st}, mem, st
}

const testWallet = "0x52908400098527886E0F7030069857D2E4169EE7"

func register(t *testing.T, s *UserService, tgID int64, refCode string) *domain.User {
	t.Helper()
	ctx := context.Background()
	u, _, err := s.Start(ctx, tgID, "user", refCode)
	require.NoError(t, err)
	require.NoError(t, s.AcceptTerms(ctx, u.ID))
	return u
}

func TestUserService_StartAndPendingReferral(t *testing.T) {
	ctx := context.Background()
	s, mem, st := newTestUserService()

	inviter := register(t, s, 100, "")
	require.NotEmpty(t, inviter.ReferralCode)

	invited := register(t, s, 200, "ref_"+inviter.ReferralCode)
	require.Nil(t, mem.users[invited.ID].ReferrerID, "до регистрации код только отложен")

	pending, err := st.Get(ctx, state.PendingRefKey(200))
	require.NoError(t, err)
	require.Equal(t, inviter.ReferralCode, pending)

	u, err := s.RegisterWallet(ctx, invited.ID, testWallet)
	require.NoError(t, err)
	require.NotNil(t, u.ReferrerID)
	require.Equal(t, inviter.ID, *u.ReferrerID)
	require.Equal(t, inviter.ID, *mem.users[invited.ID].ReferrerID)

	_, err = st.Get(ctx, state.PendingRefKey(200))
	require.ErrorIs(t, err, state.ErrNoValue)
}

func TestUserService_OwnCodeIgnored(t *testing.T) {
	ctx := context.Background()
	s, _, st := newTestUserService()

	u := register(t, s, 100, "")
	_, _, err := s.Start(ctx, 100, "user", u.ReferralCode)
	require.NoError(t, err)

	_, err = st.Get(ctx, state.PendingRefKey(100))
	require.ErrorIs(t, err, state.ErrNoValue)
}

func TestUserService_RegisterWalletValidation(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestUserService()

	u, _, err := s.Start(ctx, 1, "a", "")
	require.NoError(t, err)

	_, err = s.RegisterWallet(ctx, u.ID, testWallet)
	require.ErrorIs(t, err, ErrTermsRequired)

	require.NoError(t, s.AcceptTerms(ctx, u.ID))
	_, err = s.RegisterWallet(ctx, u.ID, "not-a-wallet")
	require.ErrorIs(t, err, domain.ErrInvalidWallet)

	_, err = s.RegisterWallet(ctx, u.ID, "  "+testWallet+" ")
	require.NoError(t, err)

	other := register(t, s, 2, "")
	_, err = s.RegisterWallet(ctx, other.ID, strings.ToLower(testWallet))
	require.ErrorIs(t, err, ErrWalletTaken)
}

func TestUserService_CreatePayment(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestUserService()

	u := register(t, s, 1, "")

	_, err := s.CreatePayment(ctx, u.ID, 1000)
	require.ErrorIs(t, err, ErrNotRegistered)

	_, err = s.RegisterWallet(ctx, u.ID, testWallet)
	require.NoError(t, err)

	_, err = s.CreatePayment(ctx, u.ID, 0)
	require.ErrorIs(t, err, ErrInvalidAmount)

	p, err := s.CreatePayment(ctx, u.ID, 1000)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPending, p.Status)
	require.Len(t, p.Ref, 32)
	require.Equal(t, int64(1000), *p.Amount)

	list, err := s.Payments(ctx, u.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestUserService_UnknownUser(t *testing.T) {
	s, _, _ := newTestUserService()

	_, err := s.GetByTgID(context.Background(), 999)
	require.ErrorIs(t, err, ErrUnknownUser)
}

func TestUserService_ApplyInvalidCode(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestUserService()
	u := register(t, s, 1, "")

	err := s.ApplyReferralCode(ctx, u, "nope")
	require.ErrorIs(t, err, ErrInvalidRefCode)
}

func TestUserService_ReferralsSummary(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestUserService()

	inviter := register(t, s, 1, "")
	invited := register(t, s, 2, inviter.ReferralCode)
	_, err := s.RegisterWallet(ctx, invited.ID, testWallet)
	require.NoError(t, err)

	code, summary, err := s.Referrals(ctx, inviter.ID)
	require.NoError(t, err)
	require.Equal(t, inviter.ReferralCode, code)
	require.Equal(t, 1, summary.Referrals)
}

func TestUserService_Rewards(t *testing.T) {
	ctx := context.Background()
	s, m, _ := newTestUserService()
	m.rewards = []domain.Reward{
		{ID: 1, ReferrerUserID: 1, ReferredUserID: 2, PaymentID: 10, Amount: 50},
		{ID: 2, ReferrerUserID: 3, ReferredUserID: 4, PaymentID: 11, Amount: 70},
	}

	rewards, err := s.Rewards(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, rewards, 1)
	require.Equal(t, int64(10), rewards[0].PaymentID)
}

func TestUserService_ApplyOwnCodeVariants(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestUserService()
	u := register(t, s, 1, "")
	require.NotEmpty(t, u.ReferralCode)

	for _, code := range []string{u.ReferralCode, "ref_" + u.ReferralCode, "  " + strings.ToUpper(u.ReferralCode) + " "} {
		err := s.ApplyReferralCode(ctx, u, code)
		require.ErrorIs(t, err, ErrSelfReferral, code)
	}
	require.Nil(t, u.ReferrerID)
}

func TestUserService_ApplyTwice(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestUserService()
	inviter := register(t, s, 1, "")
	other := register(t, s, 2, "")
	u := register(t, s, 3, "")

	require.NoError(t, s.ApplyReferralCode(ctx, u, inviter.ReferralCode))

	// второй запрос со старой копией пользователя
	stale := *u
	stale.ReferrerID = nil
	err := s.ApplyReferralCode(ctx, &stale, other.ReferralCode)
	require.ErrorIs(t, err, ErrAlreadyReferred)
}
