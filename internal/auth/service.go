package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgAuth "github.com/simvoyage/esim-backend/pkg/auth"
	"github.com/simvoyage/esim-backend/pkg/config"
	"github.com/simvoyage/esim-backend/pkg/db"
	"github.com/simvoyage/esim-backend/pkg/db/models"
	"github.com/simvoyage/esim-backend/pkg/enums"
	pkgerrors "github.com/simvoyage/esim-backend/pkg/errors"
	"github.com/simvoyage/esim-backend/pkg/security"
)

const invalidCredentialsMessage = "invalid credentials"

// RegisterRequest is the signup payload.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginRequest is the credentials payload.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Session is a minted access token plus the account it belongs to.
type Session struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Account   *AccountSummary `json:"account"`
}

// AccountSummary is the account shape returned to clients. The password hash
// never leaves this package.
type AccountSummary struct {
	ID           uuid.UUID         `json:"id"`
	Email        string            `json:"email"`
	Name         string            `json:"name"`
	Role         enums.AccountRole `json:"role"`
	BalanceCents int64             `json:"balance_cents"`
}

type accountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
}

// Service handles signup and credential verification.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*Session, error)
	Login(ctx context.Context, req LoginRequest) (*Session, error)
}

type service struct {
	accounts    accountRepository
	jwtCfg      config.JWTConfig
	passwordCfg config.PasswordConfig
	now         func() time.Time
}

// ServiceParams bundles the dependencies for the auth service.
type ServiceParams struct {
	Accounts       accountRepository
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
}

// NewService constructs an auth service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Accounts == nil {
		return nil, fmt.Errorf("accounts repository required")
	}
	if params.JWTConfig.Secret == "" {
		return nil, fmt.Errorf("jwt secret required")
	}
	return &service{
		accounts:    params.Accounts,
		jwtCfg:      params.JWTConfig,
		passwordCfg: params.PasswordConfig,
		now:         time.Now,
	}, nil
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if len(req.Password) < 8 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "password must be at least 8 characters")
	}

	existing, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up account")
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
	}

	hash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	account := &models.Account{
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		Role:         enums.AccountRoleCustomer,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create account")
	}

	return s.mintSession(account)
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up account")
	}
	if account == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	ok, err := security.VerifyPassword(req.Password, account.PasswordHash)
	if err != nil || !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	return s.mintSession(account)
}

func (s *service) mintSession(account *models.Account) (*Session, error) {
	now := s.now()
	token, err := pkgAuth.MintAccessToken(s.jwtCfg, now, pkgAuth.AccessTokenPayload{
		AccountID: account.ID,
		Role:      account.Role,
		JTI:       uuid.NewString(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token")
	}

	return &Session{
		Token:     token,
		ExpiresAt: now.Add(time.Duration(s.jwtCfg.ExpirationMinutes) * time.Minute),
		Account: &AccountSummary{
			ID:           account.ID,
			Email:        account.Email,
			Name:         account.Name,
			Role:         account.Role,
			BalanceCents: account.BalanceCents,
		},
	}, nil
}
