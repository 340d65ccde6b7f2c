package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

var Redis *redis.Client
var Ctx = context.Background()

// ErrRedisUnavailable возвращается хелперами кэша, когда Redis не подключен
var ErrRedisUnavailable = errors.New("redis недоступен")

// InitRedis инициализирует подключение к Redis
func InitRedis() error {
	// Получаем настройки Redis из переменных окружения
	host := getEnv("REDIS_HOST", "localhost")
	port := getEnv("REDIS_PORT", "6379")
	password := getEnv("REDIS_PASSWORD", "")
	dbStr := getEnv("REDIS_DB", "0")

	// Конвертируем номер БД в int
	db, err := strconv.Atoi(dbStr)
	if err != nil {
		db = 0
	}

	// Создаем клиент Redis
	Redis = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", host, port),
		Password:     password,
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
		IdleTimeout:  300 * time.Second,
	})

	// Проверяем подключение
	if err := Redis.Ping(Ctx).Err(); err != nil {
		return fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}

	log.Println("✅ Успешно подключено к Redis")
	return nil
}

// GetRedis возвращает экземпляр Redis клиента
func GetRedis() *redis.Client {
	return Redis
}

// CacheSet сохраняет значение в кэш с TTL
func CacheSet(key string, value interface{}, ttl time.Duration) error {
	if Redis == nil {
		return ErrRedisUnavailable
	}
	return Redis.Set(Ctx, key, value, ttl).Err()
}

// CacheGet получает значение из кэша
func CacheGet(key string) (string, error) {
	if Redis == nil {
		return "", ErrRedisUnavailable
	}
	return Redis.Get(Ctx, key).Result()
}

// CacheDel удаляет значение из кэша
func CacheDel(key string) error {
	if Redis == nil {
		return ErrRedisUnavailable
	}
	return Redis.Del(Ctx, key).Err()
}

// CacheExists проверяет существование ключа в кэше
func CacheExists(key string) (bool, error) {
	if Redis == nil {
		return false, ErrRedisUnavailable
	}
	count, err := Redis.Exists(Ctx, key).Result()
	return count > 0, err
}

// CacheSetJSON сохраняет JSON объект в кэш
func CacheSetJSON(key string, value interface{}, ttl time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("ошибка сериализации JSON: %w", err)
	}
	return CacheSet(key, string(jsonData), ttl)
}

// CacheGetJSON получает JSON объект из кэша
func CacheGetJSON(key string, dest interface{}) error {
	jsonData, err := CacheGet(key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(jsonData), dest); err != nil {
		return fmt.Errorf("ошибка десериализации JSON: %w", err)
	}

	return nil
}

// CacheFlushDB очищает текущую БД Redis (для тестов)
func CacheFlushDB() error {
	if Redis == nil {
		return ErrRedisUnavailable
	}
	return Redis.FlushDB(Ctx).Err()
}

// SessionStore сохраняет данные сессии пользователя
func SessionStore(token string, data interface{}, ttl time.Duration) error {
	return CacheSetJSON("session:"+token, data, ttl)
}

// SessionGet получает данные сессии пользователя
func SessionGet(token string, dest interface{}) error {
	return CacheGetJSON("session:"+token, dest)
}

// SessionDelete удаляет сессию пользователя
func SessionDelete(token string) error {
	return CacheDel("session:" + token)
}
