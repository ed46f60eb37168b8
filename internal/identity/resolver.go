// Package identity сводит cookie-сессию и bearer-токен к одному пользователю запроса.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/linemk/shop-orders/internal/domain/models"
	security "github.com/linemk/shop-orders/internal/jwt-new"
	"github.com/linemk/shop-orders/internal/session"
)

var ErrUnauthenticated = errors.New("unauthenticated")

const DefaultCookieName = "session_id"

type SessionReader interface {
	Get(ctx context.Context, id string) (*session.Record, error)
}

type UserReader interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// credential - то, что принёс запрос, до сверки с БД
type credential struct {
	id      string
	email   string
	role    string
	isAdmin bool
	source  string
}

type Resolver struct {
	log        *slog.Logger
	sessions   SessionReader
	users      UserReader
	jwtSecret  string
	cookieName string
}

func NewResolver(log *slog.Logger, sessions SessionReader, users UserReader, jwtSecret, cookieName string) *Resolver {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &Resolver{
		log:        log,
		sessions:   sessions,
		users:      users,
		jwtSecret:  jwtSecret,
		cookieName: cookieName,
	}
}

// Resolve возвращает пользователя запроса. Сессия важнее токена.
// Роль всегда перепроверяется по БД; если это невозможно, используется роль из учётных данных.
func (r *Resolver) Resolve(req *http.Request) (*models.Principal, error) {
	const op = "identity.Resolver.Resolve"
	ctx := req.Context()
	logger := r.log.With(slog.String("op", op))

	cred := r.fromSession(ctx, req, logger)
	if cred == nil {
		cred = r.fromBearer(req, logger)
	}
	if cred == nil {
		return nil, ErrUnauthenticated
	}

	principal := &models.Principal{ID: cred.id, Email: cred.email, Role: cred.role}
	logger = logger.With(slog.String("userID", cred.id), slog.String("source", cred.source))

	user, err := r.lookupUser(ctx, cred.id)
	if err != nil {
		principal.IsAdmin = cred.role == models.RoleAdmin || cred.isAdmin
		principal.Degraded = true
		logger.Warn("role re-check failed, trusting credential",
			slog.String("authz_mode", "degraded"),
			slog.Bool("isAdmin", principal.IsAdmin),
			slog.Any("error", err),
		)
		return principal, nil
	}

	principal.Role = user.Role
	principal.IsAdmin = user.Role == models.RoleAdmin
	if principal.Email == "" {
		principal.Email = user.Email
	}
	return principal, nil
}

func (r *Resolver) lookupUser(ctx context.Context, id string) (*models.User, error) {
	numeric, err := strconv.ParseInt(id, 10, 64)
	if err != nil || numeric <= 0 {
		return nil, errors.New("user id is not numeric")
	}
	return r.users.GetUserByID(ctx, numeric)
}

func (r *Resolver) fromSession(ctx context.Context, req *http.Request, logger *slog.Logger) *credential {
	if r.sessions == nil {
		return nil
	}
	cookie, err := req.Cookie(r.cookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	rec, err := r.sessions.Get(ctx, cookie.Value)
	if err != nil {
		if !errors.Is(err, session.ErrSessionNotFound) {
			logger.Warn("failed to read session", slog.Any("error", err))
		}
		return nil
	}
	if rec.UserID == "" {
		return nil
	}
	return &credential{
		id:      rec.UserID,
		email:   rec.Email,
		role:    rec.Role,
		isAdmin: rec.IsAdmin,
		source:  "session",
	}
}

func (r *Resolver) fromBearer(req *http.Request, logger *slog.Logger) *credential {
	authHeader := req.Header.Get("Authorization")
	if authHeader == "" {
		return nil
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		logger.Debug("invalid authorization header format")
		return nil
	}
	claims, err := security.ParseToken(parts[1], r.jwtSecret)
	if err != nil {
		logger.Debug("invalid bearer token", slog.Any("error", err))
		return nil
	}
	return &credential{
		id:      claims.Subject,
		email:   claims.Email,
		role:    claims.Role,
		isAdmin: claims.IsAdmin || claims.Admin,
		source:  "bearer",
	}
}
