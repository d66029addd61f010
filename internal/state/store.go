// Package state хранит короткоживущее состояние диалогов бота:
// отложенный реферальный код из /start и шаг ввода кошелька.
package state

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// PendingRefTTL - сколько живет код из /start до завершения регистрации
const PendingRefTTL = 24 * time.Hour

// ErrNoValue - ключ отсутствует или истек
var ErrNoValue = errors.New("state: no value")

// Store - key/value с TTL
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	// Take читает и удаляет значение
	Take(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

func PendingRefKey(tgID int64) string {
	return "xepbot:pending_ref:" + strconv.FormatInt(tgID, 10)
}

func AwaitWalletKey(tgID int64) string {
	return "xepbot:await_wallet:" + strconv.FormatInt(tgID, 10)
}

// RedisStore - Store поверх go-redis
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoValue
	}
	return v, err
}

func (s *RedisStore) Take(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoValue
	}
	return v, err
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

type memItem struct {
	value   string
	expires time.Time
}

// MemoryStore - Store в памяти процесса, для локального запуска без REDIS_ADDR и тестов
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memItem
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memItem), now: time.Now}
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := memItem{value: value}
	if ttl > 0 {
		it.expires = s.now().Add(ttl)
	}
	s.items[key] = it
	return nil
}

func (s *MemoryStore) get(key string) (string, bool) {
	it, ok := s.items[key]
	if !ok {
		return "", false
	}
	if !it.expires.IsZero() && !s.now().Before(it.expires) {
		delete(s.items, key)
		return "", false
	}
	return it.value, true
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.get(key)
	if !ok {
		return "", ErrNoValue
	}
	return v, nil
}

func (s *MemoryStore) Take(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.get(key)
	if !ok {
		return "", ErrNoValue
	}
	delete(s.items, key)
	return v, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}
