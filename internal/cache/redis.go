package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopledger/internal/config"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix   = "sl"
	scanBatchSize   = 200
	defaultRedisTTL = 30 * time.Minute
)

// Store 带 TTL 的键值缓存
type Store interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// RedisStore 基于 go-redis 的缓存实现，所有键统一加前缀
type RedisStore struct {
	client *redis.Client
	prefix string
}

var defaultStore *RedisStore

// InitRedis 初始化全局 Redis 缓存
func InitRedis(cfg *config.RedisConfig) error {
	if cfg == nil || !cfg.Enabled {
		defaultStore = nil
		return nil
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	defaultStore = NewRedisStore(client, cfg.Prefix)
	return nil
}

// NewRedisStore 创建 Redis 缓存
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Default 返回全局缓存（未启用时为 nil）
func Default() *RedisStore {
	return defaultStore
}

// Enabled 判断缓存是否启用
func Enabled() bool {
	return defaultStore.Enabled()
}

// Close 关闭全局缓存连接
func Close() error {
	if !defaultStore.Enabled() {
		return nil
	}
	return defaultStore.client.Close()
}

// Enabled 判断当前实例是否可用
func (s *RedisStore) Enabled() bool {
	return s != nil && s.client != nil
}

// Client 获取底层 Redis 客户端
func (s *RedisStore) Client() *redis.Client {
	if !s.Enabled() {
		return nil
	}
	return s.client
}

// GetJSON 获取 JSON 缓存
func (s *RedisStore) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	val, err := s.client.Get(ctx, s.buildKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON 写入 JSON 缓存，ttl 非正数时使用默认值
func (s *RedisStore) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.buildKey(key), payload, ttl).Err()
}

// Del 删除缓存
func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if !s.Enabled() || len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, key := range keys {
		full = append(full, s.buildKey(key))
	}
	return s.client.Del(ctx, full...).Err()
}

// DelPattern 按通配模式删除缓存（SCAN 分批，避免阻塞 Redis）
func (s *RedisStore) DelPattern(ctx context.Context, pattern string) (int64, error) {
	if !s.Enabled() {
		return 0, nil
	}
	var (
		cursor  uint64
		deleted int64
	)
	match := s.buildKey(pattern)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, match, scanBatchSize).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

func (s *RedisStore) buildKey(key string) string {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return s.prefix
	}
	return s.prefix + ":" + trimmed
}
