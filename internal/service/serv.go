package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/linemk/shop-orders/internal/domain/models"
	security "github.com/linemk/shop-orders/internal/jwt-new"
	"github.com/linemk/shop-orders/internal/session"
	"github.com/linemk/shop-orders/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

// SessionStore - серверные сессии (Redis)
type SessionStore interface {
	Create(ctx context.Context, rec session.Record) (string, error)
	Delete(ctx context.Context, id string) error
}

// LoginResult - токен и, если хранилище доступно, идентификатор сессии для cookie
type LoginResult struct {
	Token     string
	SessionID string
}

type AuthService struct {
	log       *slog.Logger
	userRepo  storage.UserStorage
	sessions  SessionStore
	jwtSecret string
	tokenTTL  time.Duration
}

func NewAuthService(log *slog.Logger, userRepo storage.UserStorage, sessions SessionStore, jwtSecret string, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		log:       log,
		userRepo:  userRepo,
		sessions:  sessions,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
	}
}

type AuthServiceInterface interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Logout(ctx context.Context, sessionID string) error
}

// Login осуществляет аутентификацию пользователя.
// Если пользователь не найден, он создаётся с ролью customer (пароль хэшируется через bcrypt).
// Если пользователь найден, введённый пароль сравнивается с сохранённым хэшем.
// После успешной проверки выдаётся JWT-токен и открывается сессия.
func (a *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	const op = "service.AuthService.Login"
	logger := a.log.With(
		slog.String("op", op),
		slog.String("email", email),
	)
	logger.Info("checking user")

	user, err := a.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, storage.ErrUserNotFound) {
			logger.Error("failed to get user", slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to get user: %w", op, err)
		}

		logger.Info("user not found, creating new user")
		passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			logger.Error("failed to hash password", slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to hash password: %w", op, err)
		}
		user, err = a.userRepo.CreateUser(ctx, &models.User{
			Email:    email,
			Role:     models.RoleCustomer,
			PassHash: passHash,
		})
		if err != nil {
			logger.Error("failed to create user", slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to create user: %w", op, err)
		}
	} else if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		logger.Warn("invalid password")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	token, err := security.NewToken(user, a.jwtSecret, a.tokenTTL)
	if err != nil {
		logger.Error("failed to generate token", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to generate token: %w", op, err)
	}
	result := &LoginResult{Token: token}

	// без сессии клиент всё равно работает по токену
	if a.sessions != nil {
		sid, err := a.sessions.Create(ctx, session.Record{
			UserID:  strconv.FormatInt(user.ID, 10),
			Email:   user.Email,
			Role:    user.Role,
			IsAdmin: user.Role == models.RoleAdmin,
		})
		if err != nil {
			logger.Warn("failed to open session", slog.Any("error", err))
		} else {
			result.SessionID = sid
		}
	}

	logger.Info("user logged in successfully", slog.Int64("userID", user.ID))
	return result, nil
}

func (a *AuthService) Logout(ctx context.Context, sessionID string) error {
	const op = "service.AuthService.Logout"

	if sessionID == "" || a.sessions == nil {
		return nil
	}
	if err := a.sessions.Delete(ctx, sessionID); err != nil {
		a.log.Error("failed to delete session", slog.String("op", op), slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
