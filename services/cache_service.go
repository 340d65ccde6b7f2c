package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Константы для TTL кэша
const (
	CacheTTLShort  = 5 * time.Minute  // Для часто изменяемых данных
	CacheTTLMedium = 15 * time.Minute // Для умеренно изменяемых данных
	CacheTTLLong   = 1 * time.Hour    // Для редко изменяемых данных
)

// CacheService предоставляет тенант-скоупные методы кэширования поверх Redis.
// При недоступном Redis кэширование молча пропускается: приложение
// продолжает работать напрямую с БД.
type CacheService struct {
	redis  *redis.Client
	logger *log.Logger
}

// NewCacheService создает новый экземпляр CacheService
func NewCacheService(redisClient *redis.Client, logger *log.Logger) *CacheService {
	return &CacheService{
		redis:  redisClient,
		logger: logger,
	}
}

// Ключи кэша, сгруппированные по организации

func leadCacheKey(organizationID, leadID uuid.UUID) string {
	return fmt.Sprintf("org:%s:lead:%s", organizationID, leadID)
}

func analyticsCacheKey(organizationID uuid.UUID) string {
	return fmt.Sprintf("org:%s:lead_analytics", organizationID)
}

func sourcesCacheKey(organizationID uuid.UUID) string {
	return fmt.Sprintf("org:%s:lead_sources", organizationID)
}

// Get получает строковое значение из кэша
func (cs *CacheService) Get(ctx context.Context, key string) (string, error) {
	if cs.redis == nil {
		return "", redis.Nil
	}
	return cs.redis.Get(ctx, key).Result()
}

// Set сохраняет строковое значение в кэш
func (cs *CacheService) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if cs.redis == nil {
		if cs.logger != nil {
			cs.logger.Printf("Redis не подключен, пропускаем кэширование для ключа: %s", key)
		}
		return nil
	}
	return cs.redis.Set(ctx, key, value, ttl).Err()
}

// Del удаляет значение из кэша
func (cs *CacheService) Del(keys ...string) error {
	if cs.redis == nil || len(keys) == 0 {
		return nil
	}
	return cs.redis.Del(context.Background(), keys...).Err()
}

// SetJSON сериализует объект и сохраняет его в кэш с TTL
func (cs *CacheService) SetJSON(key string, value interface{}, ttl time.Duration) error {
	if cs.redis == nil {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("ошибка сериализации для кэша: %w", err)
	}
	return cs.redis.Set(context.Background(), key, string(data), ttl).Err()
}

// GetJSON получает объект из кэша и десериализует его в dest
func (cs *CacheService) GetJSON(key string, dest interface{}) error {
	if cs.redis == nil {
		return redis.Nil
	}

	data, err := cs.redis.Get(context.Background(), key).Result()
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("ошибка десериализации из кэша: %w", err)
	}
	return nil
}

// Exists проверяет существование ключа в кэше
func (cs *CacheService) Exists(ctx context.Context, key string) (bool, error) {
	if cs.redis == nil {
		return false, nil
	}
	count, err := cs.redis.Exists(ctx, key).Result()
	return count > 0, err
}
