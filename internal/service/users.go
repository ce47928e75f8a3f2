package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/archivemart/internal/model"
	"github.com/mmeshcher/archivemart/internal/repository"
	"github.com/mmeshcher/archivemart/internal/validation"
)

const referralCodeAttempts = 5

// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
var ErrInvalidCredentials = errors.New("invalid credentials")

// RegisterUser регистрирует нового пользователя и выдаёт ему реферальный код.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return 0, fmt.Errorf("%w: login and password are required", model.ErrValidation)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	for range referralCodeAttempts {
		code, err := newReferralCode()
		if err != nil {
			return 0, err
		}

		id, err := s.repo.CreateUser(ctx, &model.User{
			Login:        login,
			PasswordHash: hashed,
			ReferralCode: code,
			VipTier:      model.TierNone,
			CreatedAt:    s.now(),
		})
		if errors.Is(err, repository.ErrReferralCodeTaken) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return id, nil
	}

	return 0, fmt.Errorf("generate unique referral code: %w", repository.ErrReferralCodeTaken)
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	u, err := s.repo.GetUserByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return 0, ErrInvalidCredentials
	}

	return u.ID, nil
}

// newReferralCode генерирует восемь случайных цифр и дописывает контрольную цифру Луна.
func newReferralCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(100_000_000))
	if err != nil {
		return "", fmt.Errorf("generate referral code: %w", err)
	}
	return validation.AppendCheckDigit(fmt.Sprintf("%08d", n.Int64())), nil
}

// GetBalance возвращает бонусный баланс пользователя.
func (s *Service) GetBalance(ctx context.Context, userID int64) (*model.Balance, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &model.Balance{
		Current: u.PointBalance,
		Earned:  u.LifetimePointsEarned,
		Spent:   u.LifetimePointsSpent,
	}, nil
}

// ListTransactions возвращает журнал бонусных операций пользователя, новые первыми.
func (s *Service) ListTransactions(ctx context.Context, userID int64, limit, offset int) ([]model.LedgerTransaction, error) {
	return s.ledger.History(ctx, userID, limit, offset)
}

// ListAccessGrants возвращает купленные пользователем продукты.
func (s *Service) ListAccessGrants(ctx context.Context, userID int64) ([]model.AccessGrant, error) {
	return s.repo.ListAccessGrants(ctx, userID)
}

// HasAccess сообщает, может ли пользователь скачать продукт.
func (s *Service) HasAccess(ctx context.Context, userID, productID int64) (bool, error) {
	return s.repo.HasAccess(ctx, userID, productID)
}
