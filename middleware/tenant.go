package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"backend_crm/database"
	"backend_crm/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TenantMiddleware управляет мультитенантностью.
// Все данные лежат в общих таблицах и разграничиваются колонкой organization_id.
type TenantMiddleware struct {
	DB *gorm.DB
}

// NewTenantMiddleware создает новый экземпляр TenantMiddleware
func NewTenantMiddleware(db *gorm.DB) *TenantMiddleware {
	return &TenantMiddleware{DB: db}
}

// SetTenant определяет текущую организацию и сохраняет ее в контексте запроса
func (tm *TenantMiddleware) SetTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Пропускаем публичные маршруты
		if isPublicRoute(c.Request.URL.Path) {
			c.Next()
			return
		}

		organization, err := tm.extractOrganization(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status": "error",
				"error":  "Не удалось определить организацию: " + err.Error(),
			})
			c.Abort()
			return
		}

		if organization == nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status": "error",
				"error":  "Организация не найдена",
			})
			c.Abort()
			return
		}

		// Проверяем активность организации
		if !organization.IsActive {
			c.JSON(http.StatusForbidden, gin.H{
				"status": "error",
				"error":  "Организация деактивирована",
			})
			c.Abort()
			return
		}

		c.Set("organization", organization)
		c.Set("organization_id", organization.ID.String())

		c.Next()
	}
}

// extractOrganization извлекает информацию об организации из запроса
func (tm *TenantMiddleware) extractOrganization(c *gin.Context) (*models.Organization, error) {
	// 1. Организация из аутентифицированной сессии
	if session := GetCurrentSession(c); session != nil && session.OrganizationID != uuid.Nil {
		return tm.getOrganizationByID(session.OrganizationID.String())
	}

	// 2. Явный заголовок X-Organization-ID
	if orgID := c.GetHeader("X-Organization-ID"); orgID != "" {
		return tm.getOrganizationByID(orgID)
	}

	// 3. Определяем по домену запроса
	if host := c.Request.Host; host != "" {
		if organization := tm.getOrganizationByDomain(host); organization != nil {
			return organization, nil
		}
	}

	return nil, fmt.Errorf("организация не указана в запросе")
}

// getOrganizationByID получает организацию по ID с кэшированием
func (tm *TenantMiddleware) getOrganizationByID(orgID string) (*models.Organization, error) {
	orgUUID, err := uuid.Parse(orgID)
	if err != nil {
		return nil, fmt.Errorf("некорректный формат ID организации: %v", err)
	}

	// Пробуем получить из кэша
	cacheKey := fmt.Sprintf("organization:id:%s", orgID)
	var organization models.Organization
	if err := database.CacheGetJSON(cacheKey, &organization); err == nil {
		return &organization, nil
	}

	if err := tm.DB.Where("id = ?", orgUUID).First(&organization).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("организация с ID %s не найдена", orgID)
		}
		return nil, fmt.Errorf("ошибка поиска организации: %v", err)
	}

	// Кэшируем на 15 минут
	database.CacheSetJSON(cacheKey, &organization, 15*time.Minute)

	return &organization, nil
}

// getOrganizationByDomain получает организацию по домену
func (tm *TenantMiddleware) getOrganizationByDomain(host string) *models.Organization {
	// Убираем порт из host если есть
	if strings.Contains(host, ":") {
		host = strings.Split(host, ":")[0]
	}

	var organization models.Organization
	if err := tm.DB.Where("domain = ? AND is_active = ?", host, true).First(&organization).Error; err != nil {
		// Если точного совпадения нет, пробуем найти по поддомену
		if strings.Contains(host, ".") {
			subdomain := strings.Split(host, ".")[0]
			if err := tm.DB.Where("domain = ? AND is_active = ?", subdomain, true).First(&organization).Error; err == nil {
				return &organization
			}
		}
		return nil
	}
	return &organization
}

// InvalidateOrganizationCache сбрасывает кэш организации после изменения
func InvalidateOrganizationCache(orgID uuid.UUID) {
	database.CacheDel(fmt.Sprintf("organization:id:%s", orgID.String()))
}

// isPublicRoute проверяет, является ли маршрут публичным
func isPublicRoute(path string) bool {
	publicRoutes := []string{
		"/ping",
		"/api/auth/login",
		"/health",
	}

	for _, route := range publicRoutes {
		if strings.HasPrefix(path, route) {
			return true
		}
	}
	return false
}

// GetCurrentOrganization возвращает текущую организацию из контекста
func GetCurrentOrganization(c *gin.Context) *models.Organization {
	if organization, exists := c.Get("organization"); exists {
		if org, ok := organization.(*models.Organization); ok {
			return org
		}
	}
	return nil
}

// GetOrganizationIDString возвращает ID текущей организации из контекста
func GetOrganizationIDString(c *gin.Context) string {
	if orgID, exists := c.Get("organization_id"); exists {
		if id, ok := orgID.(string); ok {
			return id
		}
	}
	return ""
}
