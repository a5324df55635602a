package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Manager layers a bounded in-memory cache over the redis Service. Values
// are kept as JSON so readers never share memory with writers.
type Manager struct {
	redis  *Service
	logger *slog.Logger
	config *ManagerConfig

	inMemory    map[string]*inMemoryEntry
	memoryMutex sync.RWMutex

	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

type ManagerConfig struct {
	RedisConfig     *Config
	InMemoryMaxSize int
	CleanupInterval time.Duration
}

func DefaultManagerConfig() *ManagerConfig {
	return &ManagerConfig{
		RedisConfig:     DefaultConfig(),
		InMemoryMaxSize: 10000,
		CleanupInterval: time.Minute,
	}
}

type inMemoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e *inMemoryEntry) isExpired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

func NewManager(config *ManagerConfig, logger *slog.Logger) (*Manager, error) {
	if config == nil {
		config = DefaultManagerConfig()
	}
	if config.RedisConfig == nil {
		config.RedisConfig = DefaultConfig()
	}

	redisService, err := NewService(config.RedisConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis service: %w", err)
	}

	return newManager(redisService, config, logger), nil
}

func newManager(redisService *Service, config *ManagerConfig, logger *slog.Logger) *Manager {
	if config.InMemoryMaxSize <= 0 {
		config.InMemoryMaxSize = 10000
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}

	manager := &Manager{
		redis:    redisService,
		logger:   logger,
		config:   config,
		inMemory: make(map[string]*inMemoryEntry),
		now:      time.Now,
		stop:     make(chan struct{}),
	}

	go manager.startCleanup()

	logger.Info("Cache manager initialized",
		"redis_enabled", redisService.Enabled(),
		"in_memory_max_size", config.InMemoryMaxSize,
		"cleanup_interval", config.CleanupInterval)

	return manager
}

func (m *Manager) Redis() *Service {
	return m.redis
}

// Get looks in memory first, then in redis. A redis hit is copied into
// memory for the rest of the given ttl.
func (m *Manager) Get(ctx context.Context, key string, dest any, ttl time.Duration) error {
	if data, ok := m.getInMemory(key); ok {
		return json.Unmarshal(data, dest)
	}

	if err := m.redis.Get(ctx, key, dest); err != nil {
		return err
	}
	if data, err := json.Marshal(dest); err == nil {
		m.setInMemory(key, data, ttl)
	}
	return nil
}

// Set writes to memory and, when enabled, redis. A redis failure is logged
// and the value stays cached in memory.
func (m *Manager) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	m.setInMemory(key, data, ttl)

	if err := m.redis.Set(ctx, key, value, ttl); err != nil {
		m.logger.Warn("Falling back to in-memory cache", "key", key, "error", err)
	}
	return nil
}

// SetLocal caches a value in this process only. It never reaches redis.
func (m *Manager) SetLocal(key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	m.setInMemory(key, data, ttl)
	return nil
}

func (m *Manager) GetLocal(key string, dest any) error {
	data, ok := m.getInMemory(key)
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (m *Manager) DeleteLocal(key string) {
	m.memoryMutex.Lock()
	delete(m.inMemory, key)
	m.memoryMutex.Unlock()
}

func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	m.memoryMutex.Lock()
	for _, key := range keys {
		delete(m.inMemory, key)
	}
	m.memoryMutex.Unlock()

	return m.redis.Delete(ctx, keys...)
}

// DeletePrefix removes every key that starts with prefix.
func (m *Manager) DeletePrefix(ctx context.Context, prefix string) error {
	m.memoryMutex.Lock()
	for key := range m.inMemory {
		if strings.HasPrefix(key, prefix) {
			delete(m.inMemory, key)
		}
	}
	m.memoryMutex.Unlock()

	return m.redis.DeletePattern(ctx, prefix+"*")
}

func (m *Manager) setInMemory(key string, data []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	now := m.now()

	m.memoryMutex.Lock()
	defer m.memoryMutex.Unlock()

	if _, exists := m.inMemory[key]; !exists && len(m.inMemory) >= m.config.InMemoryMaxSize {
		m.evictLocked(now)
	}

	m.inMemory[key] = &inMemoryEntry{
		value:     data,
		expiresAt: now.Add(ttl),
	}
}

func (m *Manager) getInMemory(key string) ([]byte, bool) {
	now := m.now()

	m.memoryMutex.RLock()
	entry, exists := m.inMemory[key]
	m.memoryMutex.RUnlock()

	if !exists {
		return nil, false
	}
	if entry.isExpired(now) {
		m.memoryMutex.Lock()
		if current, ok := m.inMemory[key]; ok && current == entry {
			delete(m.inMemory, key)
		}
		m.memoryMutex.Unlock()
		return nil, false
	}
	return entry.value, true
}

// evictLocked drops expired entries and, if the cache is still full, the
// entry closest to expiry.
func (m *Manager) evictLocked(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for key, entry := range m.inMemory {
		if entry.isExpired(now) {
			delete(m.inMemory, key)
			continue
		}
		if oldestKey == "" || entry.expiresAt.Before(oldest) {
			oldestKey, oldest = key, entry.expiresAt
		}
	}
	if len(m.inMemory) >= m.config.InMemoryMaxSize && oldestKey != "" {
		delete(m.inMemory, oldestKey)
	}
}

func (m *Manager) Len() int {
	m.memoryMutex.RLock()
	defer m.memoryMutex.RUnlock()
	return len(m.inMemory)
}

func (m *Manager) Health(ctx context.Context) map[string]error {
	health := map[string]error{"in_memory": nil}
	if m.redis.Enabled() {
		health["redis"] = m.redis.Health(ctx)
	}
	if size := m.Len(); size > m.config.InMemoryMaxSize {
		health["in_memory"] = fmt.Errorf("in-memory cache size exceeded: %d > %d", size, m.config.InMemoryMaxSize)
	}
	return health
}

func (m *Manager) Stats() map[string]any {
	return map[string]any{
		"redis": m.redis.Stats(),
		"in_memory": map[string]any{
			"entries":  m.Len(),
			"max_size": m.config.InMemoryMaxSize,
		},
	}
}

func (m *Manager) Close() error {
	m.once.Do(func() { close(m.stop) })
	m.logger.Info("Closing cache manager")
	return m.redis.Close()
}

func (m *Manager) startCleanup() {
	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evictExpiredEntries()
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) evictExpiredEntries() {
	now := m.now()

	m.memoryMutex.Lock()
	defer m.memoryMutex.Unlock()

	for key, entry := range m.inMemory {
		if entry.isExpired(now) {
			delete(m.inMemory, key)
		}
	}
}

// IsMiss reports whether err means the key was not cached.
func IsMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
