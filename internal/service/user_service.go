package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"xepbot/internal/domain"
	"xepbot/internal/logger"
	"xepbot/internal/repository"
	"xepbot/internal/state"
)

var (
	ErrNotRegistered  = errors.New("пользователь не зарегистрирован")
	ErrTermsRequired  = errors.New("нужно принять правила")
	ErrWalletTaken    = errors.New("кошелек уже привязан к другому аккаунту")
	ErrInvalidAmount  = errors.New("сумма должна быть больше нуля")
	ErrUnknownUser    = errors.New("пользователь не найден")
	ErrInvalidRefCode = errors.New("неверный реферальный код")

	ErrSelfReferral    = repository.ErrSelfReferral
	ErrAlreadyReferred = repository.ErrAlreadyReferred
)

type userStore interface {
	GetOrCreate(ctx context.Context, tgID int64, username string) (*domain.User, bool, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByTgID(ctx context.Context, tgID int64) (*domain.User, error)
	AcceptTerms(ctx context.Context, userID int64) error
	SetWallet(ctx context.Context, userID int64, wallet string) error
	SetMode(ctx context.Context, userID int64, mode domain.Mode) error
	WalletTaken(ctx context.Context, wallet string, exceptUserID int64) (bool, error)
}

type referralStore interface {
	GetOrCreateReferralCode(ctx context.Context, userID int64) (string, error)
	GetUserIDByReferralCode(ctx context.Context, code string) (int64, error)
	BindReferrer(ctx context.Context, userID, referrerID int64) error
	GetSummary(ctx context.Context, userID int64) (*domain.ReferralSummary, error)
	GetLeaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
	GetRewardsByReferrer(ctx context.Context, userID int64, limit int) ([]domain.Reward, error)
}

type paymentStore interface {
	Create(ctx context.Context, userID, amount int64) (*domain.Payment, error)
	GetByUserID(ctx context.Context, userID int64, limit int) ([]domain.Payment, error)
}

// UserService - регистрация, реферальные коды и создание платежей
type UserService struct {
	users     userStore
	referrals referralStore
	payments  paymentStore
	state     state.Store
	audit     *AuditService
}

func NewUserService(db repository.DBTX, st state.Store, audit *AuditService) *UserService {
	return &UserService{
		users:     repository.NewUserRepository(db),
		referrals: repository.NewReferralRepository(db),
		payments:  repository.NewPaymentRepository(db),
		state:     st,
		audit:     audit,
	}
}

// Start - обработка /start [code]. Код пригласившего откладывается до регистрации.
func (s *UserService) Start(ctx context.Context, tgID int64, username, refCode string) (*domain.User, bool, error) {
	u, created, err := s.users.GetOrCreate(ctx, tgID, username)
	if err != nil {
		return nil, false, fmt.Errorf("get or create user: %w", err)
	}

	if code, err := s.referrals.GetOrCreateReferralCode(ctx, u.ID); err != nil {
		logger.Warn("не удалось назначить реферальный код", "user_id", u.ID, "error", err)
	} else {
		u.ReferralCode = code
	}

	refCode = normalizeRefCode(refCode)
	if refCode != "" && u.ReferrerID == nil && refCode != u.ReferralCode {
		if err := s.state.Set(ctx, state.PendingRefKey(tgID), refCode, state.PendingRefTTL); err != nil {
			logger.Warn("не удалось сохранить код пригласившего", "tg_id", tgID, "error", err)
		}
	}

	if created && s.audit != nil {
		s.audit.Log(ctx, u.ID, domain.AuditActionRegister, domain.AuditCategoryUser, map[string]interface{}{
			"tg_id": tgID,
		})
	}

	return u, created, nil
}

// deep-link из web app приходит как ref_CODE
func normalizeRefCode(code string) string {
	code = strings.TrimSpace(code)
	code = strings.TrimPrefix(code, "ref_")
	return strings.ToLower(code)
}

func (s *UserService) AcceptTerms(ctx context.Context, userID int64) error {
	return s.users.AcceptTerms(ctx, userID)
}

// GetByTgID возвращает ErrUnknownUser для незнакомого telegram id
func (s *UserService) GetByTgID(ctx context.Context, tgID int64) (*domain.User, error) {
	u, err := s.users.GetByTgID(ctx, tgID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnknownUser
	}
	return u, err
}

func (s *UserService) GetByID(ctx context.Context, userID int64) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnknownUser
	}
	return u, err
}

// RegisterWallet сохраняет кошелек и применяет отложенный реферальный код
func (s *UserService) RegisterWallet(ctx context.Context, userID int64, wallet string) (*domain.User, error) {
	u, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.AcceptedTerms {
		return nil, ErrTermsRequired
	}

	wallet, err = domain.NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}

	taken, err := s.users.WalletTaken(ctx, wallet, u.ID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrWalletTaken
	}

	if err := s.users.SetWallet(ctx, u.ID, wallet); err != nil {
		return nil, err
	}
	u.Wallet = wallet

	if u.ReferrerID == nil {
		code, err := s.state.Take(ctx, state.PendingRefKey(u.TgID))
		switch {
		case err == nil:
			if err := s.ApplyReferralCode(ctx, u, code); err != nil {
				logger.Info("реферальный код не применен", "user_id", u.ID, "code", code, "error", err)
			}
		case !errors.Is(err, state.ErrNoValue):
			logger.Warn("не удалось прочитать код пригласившего", "user_id", u.ID, "error", err)
		}
	}

	return u, nil
}

// ApplyReferralCode привязывает пригласившего по коду
func (s *UserService) ApplyReferralCode(ctx context.Context, u *domain.User, code string) error {
	code = normalizeRefCode(code)
	if code == "" {
		return ErrInvalidRefCode
	}
	referrerID, err := s.referrals.GetUserIDByReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidRefCode
		}
		return err
	}
	if referrerID == u.ID {
		return ErrSelfReferral
	}
	if err := s.referrals.BindReferrer(ctx, u.ID, referrerID); err != nil {
		return err
	}
	u.ReferrerID = &referrerID

	if s.audit != nil {
		s.audit.LogReferralBind(ctx, u.ID, referrerID, code)
	}
	return nil
}

func (s *UserService) SetMode(ctx context.Context, userID int64, mode domain.Mode) error {
	if err := s.users.SetMode(ctx, userID, mode); err != nil {
		return err
	}
	if s.audit != nil {
		s.audit.Log(ctx, userID, domain.AuditActionModeChange, domain.AuditCategoryUser, map[string]interface{}{
			"mode": string(mode),
		})
	}
	return nil
}

// CreatePayment создает pending платеж с новым correlation ref
func (s *UserService) CreatePayment(ctx context.Context, userID, amount int64) (*domain.Payment, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	u, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.Registered() {
		return nil, ErrNotRegistered
	}

	p, err := s.payments.Create(ctx, userID, amount)
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	if s.audit != nil {
		s.audit.LogPaymentCreate(ctx, p)
	}
	return p, nil
}

func (s *UserService) Payments(ctx context.Context, userID int64, limit int) ([]domain.Payment, error) {
	return s.payments.GetByUserID(ctx, userID, limit)
}

// Referrals - код пользователя и сводка наград
func (s *UserService) Referrals(ctx context.Context, userID int64) (string, *domain.ReferralSummary, error) {
	code, err := s.referrals.GetOrCreateReferralCode(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	summary, err := s.referrals.GetSummary(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	return code, summary, nil
}

// Rewards - последние награды, начисленные пользователю
func (s *UserService) Rewards(ctx context.Context, userID int64, limit int) ([]domain.Reward, error) {
	return s.referrals.GetRewardsByReferrer(ctx, userID, limit)
}

func (s *UserService) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	return s.referrals.GetLeaderboard(ctx, limit)
}
