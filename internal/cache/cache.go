package cache

import (
	"strings"
	"sync"
	"time"
)

// ============================================================================
// CACHE SERVICE - IN-MEMORY CACHING CON TTL
// ============================================================================
// Caché thread-safe con expiración automática. Guarda la presencia de cada
// usuario (última posición y si está compartiendo) para que status y
// partner/info no golpeen la base de datos en cada poll.
//
// Uso:
//   c := New[Presence](5*time.Minute, time.Minute)
//   c.Set("presence:42", p)
//   if p, found := c.Get("presence:42"); found {
//       return p
//   }

// Item representa un elemento en caché con timestamp de expiración
type Item[V any] struct {
	Value      V
	Expiration int64 // Unix nano, 0 = no expira
}

// Cache es un almacén thread-safe de key-value con TTL
type Cache[V any] struct {
	items             map[string]Item[V]
	mu                sync.RWMutex
	defaultExpiration time.Duration
	cleanupInterval   time.Duration
	stopCleanup       chan struct{}
	stopOnce          sync.Once
	now               func() time.Time
}

// New crea una caché con TTL por defecto.
// cleanupInterval ejecuta limpieza periódica de items expirados (0 = sin limpieza)
func New[V any](defaultExpiration, cleanupInterval time.Duration) *Cache[V] {
	c := &Cache[V]{
		items:             make(map[string]Item[V]),
		defaultExpiration: defaultExpiration,
		cleanupInterval:   cleanupInterval,
		stopCleanup:       make(chan struct{}),
		now:               time.Now,
	}
	if cleanupInterval > 0 {
		go c.startCleanupTimer()
	}
	return c
}

// Set almacena un valor con la expiración por defecto
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.defaultExpiration)
}

// SetWithTTL almacena un valor con una duración de expiración específica
func (c *Cache[V]) SetWithTTL(key string, value V, duration time.Duration) {
	var expiration int64
	if duration > 0 {
		expiration = c.now().Add(duration).UnixNano()
	}

	c.mu.Lock()
	c.items[key] = Item[V]{Value: value, Expiration: expiration}
	c.mu.Unlock()
}

// Get recupera un valor. Retorna (zero, false) si no existe o ya expiró
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	item, found := c.items[key]
	c.mu.RUnlock()

	var zero V
	if !found {
		return zero, false
	}
	if item.Expiration > 0 && c.now().UnixNano() > item.Expiration {
		c.Delete(key)
		return zero, false
	}
	return item.Value, true
}

// Delete elimina un key del caché
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// DeletePrefix elimina todas las keys que empiezan con el prefijo dado
func (c *Cache[V]) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
			count++
		}
	}
	return count
}

// Clear limpia completamente el caché
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.items = make(map[string]Item[V])
	c.mu.Unlock()
}

// Count retorna el número de items en caché (incluye expirados)
func (c *Cache[V]) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats resume el contenido del caché
type Stats struct {
	TotalItems   int `json:"total_items"`
	ExpiredItems int `json:"expired_items"`
	ValidItems   int `json:"valid_items"`
}

// GetStats retorna estadísticas actuales del caché
func (c *Cache[V]) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{TotalItems: len(c.items)}
	now := c.now().UnixNano()
	for _, item := range c.items {
		if item.Expiration > 0 && now > item.Expiration {
			stats.ExpiredItems++
		} else {
			stats.ValidItems++
		}
	}
	return stats
}

// startCleanupTimer ejecuta limpieza periódica de items expirados
func (c *Cache[V]) startCleanupTimer() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stopCleanup:
			return
		}
	}
}

// deleteExpired elimina todos los items expirados
func (c *Cache[V]) deleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	now := c.now().UnixNano()
	for key, item := range c.items {
		if item.Expiration > 0 && now > item.Expiration {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Stop detiene la limpieza automática. Se puede llamar más de una vez
func (c *Cache[V]) Stop() {
	c.stopOnce.Do(func() { close(c.stopCleanup) })
}
