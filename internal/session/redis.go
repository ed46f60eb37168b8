package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("session not found")

const keyPrefix = "session:"

// Record - то, что лежит в Redis по идентификатору из cookie
type Record struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
}

type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
	newID  func() string
	now    func() time.Time
}

func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		newID:  uuid.NewString,
		now:    time.Now,
	}
}

func key(id string) string {
	return keyPrefix + id
}

// TTL - время жизни сессии, совпадает с Max-Age cookie
func (s *RedisStore) TTL() time.Duration {
	return s.ttl
}

// Create сохраняет запись и возвращает идентификатор сессии
func (s *RedisStore) Create(ctx context.Context, rec Record) (string, error) {
	const op = "session.RedisStore.Create"

	id := s.newID()
	rec.CreatedAt = s.now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := s.client.Set(ctx, key(id), data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	const op = "session.RedisStore.Get"

	data, err := s.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%s: corrupted session: %w", op, err)
	}
	return &rec, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	const op = "session.RedisStore.Delete"

	if err := s.client.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
