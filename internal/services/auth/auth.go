// Package services содержит логику регистрации, входа и проверки JWT.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/magabrotheeeer/bill-reminder/internal/lib/jwt"
	"github.com/magabrotheeeer/bill-reminder/internal/lib/password"
	"github.com/magabrotheeeer/bill-reminder/internal/models"
)

const defaultRole = "user"

// UserRepository описывает контракт для работы с пользователями в базе данных.
type UserRepository interface {
	RegisterUser(ctx context.Context, user models.User) (string, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUser(ctx context.Context, userUID string) (*models.User, error)
}

// AuthService отвечает за регистрацию, авторизацию и валидацию JWT.
type AuthService struct {
	users    UserRepository
	jwtMaker jwt.Maker
}

// NewAuthService создает новый экземпляр AuthService.
func NewAuthService(users UserRepository, jwtMaker jwt.Maker) *AuthService {
	return &AuthService{
		users:    users,
		jwtMaker: jwtMaker,
	}
}

// Register создает пользователя с ролью "user" и возвращает его UID.
// Занятые email или username дают models.ErrAlreadyExists.
func (s *AuthService) Register(ctx context.Context, email, username, rawPassword string) (string, error) {
	const op = "services.auth.Register"
	hashed, err := password.GetHash(rawPassword)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	uid, err := s.users.RegisterUser(ctx, models.User{
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Username:     username,
		PasswordHash: hashed,
		Role:         defaultRole,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return uid, nil
}

// Login проверяет пароль и выпускает токен доступа.
// login может быть как username, так и email.
func (s *AuthService) Login(ctx context.Context, login, rawPassword string) (string, *models.User, error) {
	const op = "services.auth.Login"
	var (
		user *models.User
		err  error
	)
	if strings.Contains(login, "@") {
		user, err = s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(login)))
	} else {
		user, err = s.users.GetUserByUsername(ctx, login)
	}
	if errors.Is(err, models.ErrNotFound) {
		return "", nil, fmt.Errorf("%s: %w", op, models.ErrInvalidCredentials)
	}
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, models.ErrInvalidCredentials)
	}

	token, err := s.jwtMaker.GenerateToken(user.Username, user.Role, user.UUID)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	return token, user, nil
}

// ValidateToken проверяет JWT и возвращает пользователя из его claims.
func (s *AuthService) ValidateToken(_ context.Context, token string) (*models.User, error) {
	claims, err := s.jwtMaker.ParseToken(token)
	if err != nil {
		return nil, err
	}
	return &models.User{
		UUID:     claims.UserUID,
		Username: claims.Username,
		Role:     claims.Role,
	}, nil
}

// Me возвращает профиль пользователя по UID.
func (s *AuthService) Me(ctx context.Context, userUID string) (*models.User, error) {
	user, err := s.users.GetUser(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("services.auth.Me: %w", err)
	}
	return user, nil
}
