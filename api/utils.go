package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"backend_crm/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GetOrganizationID извлекает ID организации из контекста Gin
func GetOrganizationID(c *gin.Context) uuid.UUID {
	if orgID, exists := c.Get("organization_id"); exists {
		if id, ok := orgID.(uuid.UUID); ok {
			return id
		}
		if id, ok := orgID.(string); ok {
			if parsed, err := uuid.Parse(id); err == nil {
				return parsed
			}
		}
	}
	return uuid.Nil
}

// GetUserID извлекает ID текущего пользователя из контекста Gin
func GetUserID(c *gin.Context) uuid.UUID {
	if userID, exists := c.Get("user_id"); exists {
		if id, ok := userID.(uuid.UUID); ok {
			return id
		}
		if id, ok := userID.(string); ok {
			if parsed, err := uuid.Parse(id); err == nil {
				return parsed
			}
		}
	}
	return uuid.Nil
}

// ParsePagination читает параметры пагинации из query string
func ParsePagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	return services.NormalizePagination(page, limit)
}

// ParseUUIDParam читает и валидирует UUID из path-параметра
func ParseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Некорректный формат ID: " + c.Param(name),
		})
		return uuid.Nil, false
	}
	return id, true
}

// parseQueryList разбирает повторяющийся или разделенный запятыми query-параметр
func parseQueryList(c *gin.Context, name string) []string {
	values := c.QueryArray(name)
	if len(values) == 1 && strings.Contains(values[0], ",") {
		values = strings.Split(values[0], ",")
	}
	result := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			result = append(result, v)
		}
	}
	return result
}

// parseQueryUUIDList разбирает список UUID из query-параметра
func parseQueryUUIDList(c *gin.Context, name string) []uuid.UUID {
	var result []uuid.UUID
	for _, v := range parseQueryList(c, name) {
		if id, err := uuid.Parse(v); err == nil {
			result = append(result, id)
		}
	}
	return result
}

// parseQueryInt разбирает опциональный целочисленный query-параметр
func parseQueryInt(c *gin.Context, name string) *int {
	if v := c.Query(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return &n
		}
	}
	return nil
}

// parseQueryDate разбирает дату из query-параметра (RFC3339 или YYYY-MM-DD)
func parseQueryDate(c *gin.Context, name string) *time.Time {
	v := c.Query(name)
	if v == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return &t
	}
	return nil
}

// parseQueryBool разбирает опциональный булев query-параметр
func parseQueryBool(c *gin.Context, name string) *bool {
	if v := c.Query(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return &b
		}
	}
	return nil
}

// RespondServiceError преобразует ошибку сервисного слоя в HTTP-ответ
func RespondServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"status": "error",
			"error":  err.Error(),
		})
	case errors.Is(err, services.ErrDuplicateEmail),
		errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrInvalidState):
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  fallback + ": " + err.Error(),
		})
	}
}
