package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"backend_crm/database"

	"github.com/gin-gonic/gin"
	redis "github.com/go-redis/redis/v8"
)

// RateLimitConfig конфигурация rate limiting
type RateLimitConfig struct {
	Requests     int                       // Количество запросов
	Window       time.Duration             // Временное окно
	KeyGenerator func(*gin.Context) string // Генератор ключей
}

// DefaultKeyGenerator генерирует ключ на основе IP адреса
func DefaultKeyGenerator(c *gin.Context) string {
	return c.ClientIP()
}

// UserKeyGenerator генерирует ключ на основе пользователя
func UserKeyGenerator(c *gin.Context) string {
	userID := c.GetString("user_id")
	if userID == "" {
		return c.ClientIP()
	}
	return "user:" + userID
}

// OrganizationKeyGenerator генерирует ключ на основе организации
func OrganizationKeyGenerator(c *gin.Context) string {
	orgID := c.GetString("organization_id")
	if orgID == "" {
		return c.ClientIP()
	}
	return "org:" + orgID
}

// RateLimit создает middleware для ограничения частоты запросов
func RateLimit(config RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		redisClient := database.GetRedis()
		if redisClient == nil {
			// Если Redis недоступен, пропускаем rate limiting
			c.Next()
			return
		}

		key := "rate_limit:" + config.KeyGenerator(c)

		// Получаем текущее количество запросов
		current, err := redisClient.Get(database.Ctx, key).Int()
		if err != nil && err != redis.Nil {
			// В случае ошибки Redis пропускаем запрос
			c.Next()
			return
		}

		// Проверяем превышение лимита
		if current >= config.Requests {
			c.Header("X-RateLimit-Limit", strconv.Itoa(config.Requests))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(config.Window).Unix(), 10))

			c.JSON(http.StatusTooManyRequests, gin.H{
				"status": "error",
				"error": fmt.Sprintf("Too many requests. Limit: %d requests per %v",
					config.Requests, config.Window),
				"retry_after": config.Window.Seconds(),
			})
			c.Abort()
			return
		}

		// Увеличиваем счетчик
		pipe := redisClient.Pipeline()
		pipe.Incr(database.Ctx, key)
		if current == 0 {
			// Устанавливаем TTL только для первого запроса
			pipe.Expire(database.Ctx, key, config.Window)
		}
		if _, err = pipe.Exec(database.Ctx); err != nil {
			// В случае ошибки пропускаем запрос
			c.Next()
			return
		}

		remaining := config.Requests - current - 1
		if remaining < 0 {
			remaining = 0
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(config.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(config.Window).Unix(), 10))

		c.Next()
	}
}

// AuthRateLimit строгое ограничение для авторизации
func AuthRateLimit() gin.HandlerFunc {
	return RateLimit(RateLimitConfig{
		Requests:     5,
		Window:       time.Minute,
		KeyGenerator: DefaultKeyGenerator,
	})
}

// APIRateLimit ограничение по умолчанию для API
func APIRateLimit(requests int, window time.Duration) gin.HandlerFunc {
	return RateLimit(RateLimitConfig{
		Requests:     requests,
		Window:       window,
		KeyGenerator: UserKeyGenerator,
	})
}

// ExportRateLimit ограничение для тяжелых операций экспорта
func ExportRateLimit() gin.HandlerFunc {
	return RateLimit(RateLimitConfig{
		Requests:     10,
		Window:       time.Minute,
		KeyGenerator: OrganizationKeyGenerator,
	})
}
