package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yourorg/together/internal/models"
)

// ============================================================================
// PRESENCE STORE
// ============================================================================
// Última posición conocida de cada usuario y si está compartiendo. En un solo
// servidor basta la caché en memoria; con varias réplicas se usa Redis.

// Presence es lo que la pareja puede ver de un usuario
type Presence struct {
	Position *models.Position `json:"position,omitempty"`
	Sharing  bool             `json:"sharing"`
	SeenAt   time.Time        `json:"seen_at"`
}

// Online indica si el usuario se reportó hace menos de window
func (p Presence) Online(now time.Time, window time.Duration) bool {
	return !p.SeenAt.IsZero() && now.Sub(p.SeenAt) <= window
}

// PresenceStore guarda la presencia por usuario
type PresenceStore interface {
	Set(ctx context.Context, userID int64, p Presence) error
	Get(ctx context.Context, userID int64) (Presence, bool, error)
	Delete(ctx context.Context, userID int64) error
}

func presenceKey(userID int64) string {
	return "presence:" + strconv.FormatInt(userID, 10)
}

// MemoryPresence es un PresenceStore sobre Cache
type MemoryPresence struct {
	cache *Cache[Presence]
}

// NewMemoryPresence crea un store en memoria; ttl es lo que dura una presencia sin refrescar
func NewMemoryPresence(ttl time.Duration) *MemoryPresence {
	return &MemoryPresence{cache: New[Presence](ttl, ttl)}
}

func (m *MemoryPresence) Set(_ context.Context, userID int64, p Presence) error {
	m.cache.Set(presenceKey(userID), p)
	return nil
}

func (m *MemoryPresence) Get(_ context.Context, userID int64) (Presence, bool, error) {
	p, ok := m.cache.Get(presenceKey(userID))
	return p, ok, nil
}

func (m *MemoryPresence) Delete(_ context.Context, userID int64) error {
	m.cache.Delete(presenceKey(userID))
	return nil
}

// Stats expone las estadísticas de la caché subyacente
func (m *MemoryPresence) Stats() Stats {
	return m.cache.GetStats()
}

// Close detiene la limpieza
func (m *MemoryPresence) Close() error {
	m.cache.Stop()
	return nil
}

// RedisPresence es un PresenceStore compartido entre réplicas
type RedisPresence struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPresence usa client; ttl es la expiración de cada key
func NewRedisPresence(client *redis.Client, ttl time.Duration) *RedisPresence {
	return &RedisPresence{client: client, ttl: ttl}
}

// DialRedis conecta y verifica Redis. addr puede ser host:port o una URL redis://
func DialRedis(ctx context.Context, addr, password string) (*redis.Client, error) {
	opts := &redis.Options{Addr: addr, DB: 0}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		opts = parsed
	}
	if password != "" {
		opts.Password = password
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (r *RedisPresence) Set(ctx context.Context, userID int64, p Presence) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode presence: %w", err)
	}
	return r.client.Set(ctx, presenceKey(userID), data, r.ttl).Err()
}

func (r *RedisPresence) Get(ctx context.Context, userID int64) (Presence, bool, error) {
	data, err := r.client.Get(ctx, presenceKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Presence{}, false, nil
	}
	if err != nil {
		return Presence{}, false, err
	}
	var p Presence
	if err := json.Unmarshal(data, &p); err != nil {
		return Presence{}, false, fmt.Errorf("decode presence: %w", err)
	}
	return p, true, nil
}

func (r *RedisPresence) Delete(ctx context.Context, userID int64) error {
	return r.client.Del(ctx, presenceKey(userID)).Err()
}

// Close cierra la conexión
func (r *RedisPresence) Close() error {
	return r.client.Close()
}
