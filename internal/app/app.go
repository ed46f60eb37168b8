package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/linemk/shop-orders/internal/app/handlers"
	"github.com/linemk/shop-orders/internal/config"
	"github.com/linemk/shop-orders/internal/events"
	"github.com/linemk/shop-orders/internal/identity"
	"github.com/linemk/shop-orders/internal/service"
	"github.com/linemk/shop-orders/internal/session"
	"github.com/linemk/shop-orders/internal/storage"
	"github.com/redis/go-redis/v9"
)

type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	DB        *sql.DB
	Redis     *redis.Client
	Publisher events.Publisher
}

// NewApp создаёт новый экземпляр App: подключает Postgres, Redis и, если включено, Kafka
func NewApp(ctx context.Context, log *slog.Logger, cfg *config.Config) (*App, error) {
	// реализуем подключение к БД через DSN
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	// без Redis сервис работает на bearer-токенах, поэтому только предупреждаем
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis is unavailable, sessions will not resolve", slog.String("addr", cfg.Redis.Address), slog.Any("error", err))
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.Kafka.Enabled {
		publisher = events.NewKafkaPublisher(log, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.WriteTimeout, cfg.Kafka.QueueSize)
		log.Info("order events enabled", slog.String("topic", cfg.Kafka.Topic), slog.Any("brokers", cfg.Kafka.Brokers))
	}

	return &App{
		Config:    cfg,
		Logger:    log,
		DB:        db,
		Redis:     rdb,
		Publisher: publisher,
	}, nil
}

// Handler собирает репозитории, сервисы и роутер
func (a *App) Handler() http.Handler {
	// реализация слоев по работе с БД по каждому направлению
	userRepo := storage.NewUserRepository(a.DB)
	productRepo := storage.NewProductRepository(a.DB)
	orderRepo := storage.NewOrderRepository(a.DB)
	moveRepo := storage.NewStockMovementRepository(a.DB)

	sessions := session.NewRedisStore(a.Redis, a.Config.Session.TTL)

	ledger := service.NewStockLedger(a.Logger, productRepo, moveRepo)
	authService := service.NewAuthService(a.Logger, userRepo, sessions, a.Config.JWT.Secret, a.Config.JWT.TokenTTLDuration())
	orderService := service.NewOrderService(a.Logger, a.DB, orderRepo, userRepo, moveRepo, ledger, a.Publisher, a.Config.Orders.CancellationWindow)

	resolver := identity.NewResolver(a.Logger, sessions, userRepo, a.Config.JWT.Secret, a.Config.Session.CookieName)

	return NewRouter(a.Logger, RouterDeps{
		Auth:     authService,
		Orders:   orderService,
		Resolver: resolver,
		Cookie: handlers.SessionCookie{
			Name:   a.Config.Session.CookieName,
			TTL:    a.Config.Session.TTL,
			Secure: a.Config.Session.Secure,
		},
		Health: map[string]handlers.HealthCheck{
			"postgres": a.DB.PingContext,
			"redis":    func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() },
		},
		Timeout: a.Config.HTTPServer.Timeout,
	})
}

// Close освобождает соединения; ошибки логируются, первая возвращается
func (a *App) Close() error {
	var first error
	closers := []struct {
		name  string
		close func() error
	}{
		{"publisher", a.Publisher.Close},
		{"redis", a.Redis.Close},
		{"postgres", a.DB.Close},
	}
	for _, c := range closers {
		if err := c.close(); err != nil {
			a.Logger.Error("failed to close", slog.String("resource", c.name), slog.Any("error", err))
			if first == nil {
				first = fmt.Errorf("close %s: %w", c.name, err)
			}
		}
	}
	return first
}

// shutdownTimeout - сколько ждём завершения активных запросов
const shutdownTimeout = 5 * time.Second

// NewServer создаёт http.Server по конфигу
func NewServer(cfg config.HTTPServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Address,
		Handler:      handler,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout + time.Second,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// Shutdown останавливает сервер, дожидаясь активных запросов
func Shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
