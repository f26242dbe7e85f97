package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	apperrors "warnet/backend/internal/errors"
	"warnet/backend/internal/lib/sl"
	"warnet/backend/internal/model"
	"warnet/backend/internal/repository"
)

type AuthService struct {
	admins    *repository.AdminRepository
	jwtSecret []byte
	tokenTTL  time.Duration
	log       *slog.Logger
}

func NewAuthService(
	admins *repository.AdminRepository,
	jwtSecret string,
	tokenTTL time.Duration,
	log *slog.Logger,
) *AuthService {
	return &AuthService{
		admins:    admins,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		log:       log,
	}
}

type AuthResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	Admin     model.Admin `json:"admin"`
}

// Principal is the signed-in admin a request was made by.
type Principal struct {
	Email     string
	TokenID   string
	ExpiresAt time.Time
}

// EnsureAdmin creates the bootstrap admin account when it does not exist yet.
// An existing account keeps its password.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	normalizedEmail := normalizeEmail(email)
	if normalizedEmail == "" || password == "" {
		return nil
	}
	if len(password) < 6 {
		return fmt.Errorf("admin password must be at least 6 characters")
	}

	_, err := s.admins.GetByEmail(ctx, normalizedEmail)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("look up admin: %w", err)
	}

	passwordHashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	admin := model.Admin{
		Email:        normalizedEmail,
		PasswordHash: string(passwordHashBytes),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.admins.Create(ctx, &admin); err != nil && !errors.Is(err, repository.ErrAlreadyExists) {
		return err
	}

	s.log.Info("admin account created", slog.String("email", normalizedEmail))
	return nil
}

func (s *AuthService) SignIn(ctx context.Context, email, password string) (*AuthResult, *apperrors.APIError) {
	normalizedEmail := normalizeEmail(email)
	if normalizedEmail == "" || password == "" {
		return nil, apperrors.BadRequest("invalid_credentials", "email and password are required")
	}

	admin, err := s.admins.GetByEmail(ctx, normalizedEmail)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Unauthorized("invalid email or password")
	}
	if err != nil {
		s.log.Error("failed to query admin", slog.String("op", "service.SignIn"), sl.Err(err))
		return nil, apperrors.Internal("failed to query admin")
	}

	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)) != nil {
		return nil, apperrors.Unauthorized("invalid email or password")
	}

	token, expiresAt, apiErr := s.issueToken(*admin)
	if apiErr != nil {
		return nil, apiErr
	}

	admin.PasswordHash = ""
	return &AuthResult{
		Token:     token,
		ExpiresAt: expiresAt,
		Admin:     *admin,
	}, nil
}

// SignOut revokes the token so later requests carrying it are rejected.
func (s *AuthService) SignOut(ctx context.Context, principal Principal) *apperrors.APIError {
	if err := s.admins.RevokeToken(ctx, principal.TokenID, principal.ExpiresAt); err != nil {
		s.log.Error("failed to revoke token", slog.String("op", "service.SignOut"), sl.Err(err))
		return apperrors.Internal("failed to sign out")
	}
	return nil
}

func (s *AuthService) CurrentAdmin(ctx context.Context, principal Principal) (*model.Admin, *apperrors.APIError) {
	admin, err := s.admins.GetByEmail(ctx, principal.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Unauthorized("admin no longer exists")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to query admin")
	}
	admin.PasswordHash = ""
	return admin, nil
}

func (s *AuthService) ParseToken(ctx context.Context, tokenString string) (*Principal, *apperrors.APIError) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, apperrors.Unauthorized("invalid token")
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return nil, apperrors.Unauthorized("invalid token")
	}

	if claims.Subject == "" || claims.ID == "" {
		return nil, apperrors.Unauthorized("invalid token subject")
	}

	revoked, err := s.admins.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, apperrors.Internal("failed to check token")
	}
	if revoked {
		return nil, apperrors.Unauthorized("token has been revoked")
	}

	principal := &Principal{Email: claims.Subject, TokenID: claims.ID}
	if claims.ExpiresAt != nil {
		principal.ExpiresAt = claims.ExpiresAt.Time
	}
	return principal, nil
}

func (s *AuthService) issueToken(admin model.Admin) (string, time.Time, *apperrors.APIError) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.tokenTTL)
	claims := jwt.RegisteredClaims{
		Subject:   admin.Email,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, apperrors.Internal("failed to sign token")
	}
	return signed, expiresAt, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
