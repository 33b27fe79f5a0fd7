package speech

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/codementor/backend/internal/model/speech"
)

// Store 合成结果缓存后端
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisStore 基于 Redis 的缓存实现
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 解析 REDIS_URL 并确认连接可用
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Close 关闭底层连接
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// CachedGenerator 在提供方前加一层缓存，缓存故障只记录日志并直接回源
type CachedGenerator struct {
	next   Generator
	store  Store
	prefix string
	ttl    time.Duration
}

// CacheKeyPrefix 区分提供方与音色，切换任一项都不会命中旧缓存
func CacheKeyPrefix(provider, voice string) string {
	return fmt.Sprintf("speech:%s:%s:", provider, voice)
}

// NewCachedGenerator 包装 next
func NewCachedGenerator(next Generator, store Store, prefix string, ttl time.Duration) *CachedGenerator {
	return &CachedGenerator{next: next, store: store, prefix: prefix, ttl: ttl}
}

// key 中的 voice 为调用方显式指定的音色，默认音色已包含在 prefix 里
func (g *CachedGenerator) key(text, voice string) string {
	sum := sha256.Sum256([]byte(g.prefix + voice + "\x00" + text))
	return g.prefix + hex.EncodeToString(sum[:])
}

func (g *CachedGenerator) Generate(ctx context.Context, text, voice string) (*speech.Synthesis, error) {
	key := g.key(text, voice)

	if raw, ok, err := g.store.Get(ctx, key); err != nil {
		log.Printf("[speech] cache get failed: %v", err)
	} else if ok {
		var cached speech.Synthesis
		if err := json.Unmarshal([]byte(raw), &cached); err != nil {
			log.Printf("[speech] cache entry corrupt, regenerating: %v", err)
		} else {
			cached.Cached = true
			return &cached, nil
		}
	}

	result, err := g.next.Generate(ctx, text, voice)
	if err != nil {
		return nil, err
	}

	if !result.Empty() {
		if raw, err := json.Marshal(result); err != nil {
			log.Printf("[speech] cache encode failed: %v", err)
		} else if err := g.store.Set(ctx, key, string(raw), g.ttl); err != nil {
			log.Printf("[speech] cache set failed: %v", err)
		}
	}

	return result, nil
}
