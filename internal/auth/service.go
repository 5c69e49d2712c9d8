package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	tokens   *Tokens
	denylist Denylist
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService constructs a new Service. denylist may be nil, in which case
// logout has no server-side effect.
func NewService(repo Repository, tokens *Tokens, denylist Denylist, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tokens: tokens, denylist: denylist, logger: logger, validate: shared.NewValidator()}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.ErrorContext(ctx, "auth lookup failed", slog.Any("error", err))
		}
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues a bearer token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return nil, err
	}
	user, err := s.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	token, expires, err := s.tokens.Issue(user)
	if err != nil {
		return nil, shared.WrapOperation(ctx, s.logger, "auth", "login", err, slog.Int64("user_id", user.ID))
	}
	s.logger.Info("user logged in", slog.Int64("user_id", user.ID), slog.Int64("company_id", user.CompanyID))
	return &LoginResponse{Token: token, ExpiresAt: expires, User: user}, nil
}

// IssueToken mints a token for an existing user.
func (s *Service) IssueToken(ctx context.Context, userID int64) (string, time.Time, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("find user %d: %w", userID, err)
	}
	return s.tokens.Issue(user)
}

// Verify turns a bearer token into the acting principal. A denylist outage
// is logged and the token accepted.
func (s *Service) Verify(ctx context.Context, raw string) (shared.Actor, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return shared.Actor{}, fmt.Errorf("%w: %v", shared.ErrUnauthorized, err)
	}
	if s.denylist != nil {
		revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			s.logger.WarnContext(ctx, "token denylist unavailable", slog.Any("error", err))
		} else if revoked {
			return shared.Actor{}, fmt.Errorf("%w: token revoked", shared.ErrUnauthorized)
		}
	}
	return shared.Actor{UserID: claims.UserID, Role: claims.Role, CompanyID: claims.CompanyID}, nil
}

// Logout revokes the token for its remaining lifetime.
func (s *Service) Logout(ctx context.Context, raw string) error {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrUnauthorized, err)
	}
	if s.denylist == nil {
		return nil
	}
	ttl := claims.ExpiresAt.Time.Sub(s.tokens.now())
	if err := s.denylist.Revoke(ctx, claims.ID, ttl); err != nil {
		return shared.WrapOperation(ctx, s.logger, "auth", "logout", err, slog.Int64("user_id", claims.UserID))
	}
	return nil
}

// Me returns the signed-in user.
func (s *Service) Me(ctx context.Context, actor shared.Actor) (*User, error) {
	user, err := s.repo.FindByID(ctx, actor.UserID)
	if err != nil {
		return nil, shared.WrapOperation(ctx, s.logger, "auth", "me", err, slog.Int64("user_id", actor.UserID))
	}
	return user, nil
}

// CreateUser hashes the password and provisions an account.
func (s *Service) CreateUser(ctx context.Context, nu NewUser) (*User, error) {
	nu.Email = strings.ToLower(strings.TrimSpace(nu.Email))
	if err := shared.ValidateStruct(s.validate, nu); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(nu.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := User{CompanyID: nu.CompanyID, Email: nu.Email, PasswordHash: string(hash), FullName: nu.FullName, Role: nu.Role, IsActive: true}
	id, err := s.repo.Create(ctx, u)
	if err != nil {
		return nil, shared.WrapOperation(ctx, s.logger, "user", "create", err)
	}
	u.ID = id
	return &u, nil
}
