package middleware

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"backend_crm/config"
	"backend_crm/database"
	"backend_crm/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionData данные сессии пользователя, хранящиеся в Redis
type SessionData struct {
	UserID         uuid.UUID `json:"user_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
}

// TokenClaims JWT claims выдаваемых нами токенов
type TokenClaims struct {
	OrganizationID string `json:"organization_id"`
	Username       string `json:"username"`
	Role           string `json:"role"`
	jwt.RegisteredClaims
}

// AuthMiddleware проверяет аутентификацию пользователя
type AuthMiddleware struct {
	DB  *gorm.DB
	Cfg *config.Config
}

// NewAuthMiddleware создает новый экземпляр AuthMiddleware
func NewAuthMiddleware(db *gorm.DB, cfg *config.Config) *AuthMiddleware {
	return &AuthMiddleware{DB: db, Cfg: cfg}
}

// RequireAuth middleware для проверки аутентификации
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status": "error",
				"error":  "Authorization header is required",
			})
			c.Abort()
			return
		}

		session, err := am.resolveSession(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status": "error",
				"error":  "Invalid or expired token: " + err.Error(),
			})
			c.Abort()
			return
		}

		// Сохраняем информацию о пользователе в контексте
		c.Set("session", session)
		c.Set("user_id", session.UserID.String())
		c.Set("organization_id", session.OrganizationID.String())
		c.Set("token", token)

		c.Next()
	}
}

// OptionalAuth middleware для опциональной аутентификации
func (am *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := extractToken(c); token != "" {
			if session, err := am.resolveSession(token); err == nil {
				c.Set("session", session)
				c.Set("user_id", session.UserID.String())
				c.Set("organization_id", session.OrganizationID.String())
				c.Set("token", token)
			}
		}
		c.Next()
	}
}

// resolveSession определяет сессию по токену: сначала Redis,
// затем подпись нашего JWT, в последнюю очередь - Keycloak
func (am *AuthMiddleware) resolveSession(token string) (*SessionData, error) {
	// 1. Быстрый путь: сессия в Redis
	var session SessionData
	if err := database.SessionGet(token, &session); err == nil {
		return &session, nil
	}

	// 2. Проверяем подпись нашего JWT
	if session, err := am.validateJWT(token); err == nil {
		return session, nil
	}

	// 3. Токен мог быть выдан Keycloak напрямую
	return am.validateKeycloakToken(token)
}

// validateJWT проверяет подпись и claims выданного нами токена
func (am *AuthMiddleware) validateJWT(tokenString string) (*SessionData, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("неожиданный метод подписи: %v", t.Header["alg"])
		}
		return []byte(am.Cfg.JWT.Secret), nil
	}, jwt.WithIssuer(am.Cfg.JWT.Issuer))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("токен недействителен")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("некорректный subject в токене: %v", err)
	}
	orgID, err := uuid.Parse(claims.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("некорректный organization_id в токене: %v", err)
	}

	return &SessionData{
		UserID:         userID,
		OrganizationID: orgID,
		Username:       claims.Username,
		Role:           claims.Role,
	}, nil
}

// validateKeycloakToken проверяет токен через userinfo endpoint Keycloak
// и сопоставляет subject с локальным пользователем
func (am *AuthMiddleware) validateKeycloakToken(token string) (*SessionData, error) {
	client := &http.Client{Timeout: am.Cfg.Keycloak.Timeout}

	url := am.Cfg.GetKeycloakRealmURL() + "/protocol/openid-connect/userinfo"
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to validate token: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token validation failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %v", err)
	}

	var userInfo struct {
		Sub               string `json:"sub"`
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
	}
	if err := json.Unmarshal(body, &userInfo); err != nil {
		return nil, fmt.Errorf("failed to parse response: %v", err)
	}

	// Сопоставляем subject Keycloak с локальным пользователем
	var user models.User
	if err := am.DB.Where("external_subject = ? AND is_active = ?", userInfo.Sub, true).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("пользователь %s не зарегистрирован", userInfo.PreferredUsername)
		}
		return nil, fmt.Errorf("ошибка поиска пользователя: %v", err)
	}

	return &SessionData{
		UserID:         user.ID,
		OrganizationID: user.OrganizationID,
		Username:       user.Username,
		Email:          user.Email,
		Role:           user.Role,
	}, nil
}

// extractToken извлекает токен из заголовка Authorization
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		authHeader = c.GetHeader("authorization")
	}
	if authHeader == "" {
		return ""
	}

	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if strings.HasPrefix(authHeader, "Token ") {
		return strings.TrimPrefix(authHeader, "Token ")
	}
	return authHeader
}

// GetCurrentSession возвращает текущую сессию из контекста
func GetCurrentSession(c *gin.Context) *SessionData {
	if session, exists := c.Get("session"); exists {
		if s, ok := session.(*SessionData); ok {
			return s
		}
	}
	return nil
}

// GetCurrentToken возвращает текущий токен из контекста
func GetCurrentToken(c *gin.Context) string {
	if token, exists := c.Get("token"); exists {
		if tokenStr, ok := token.(string); ok {
			return tokenStr
		}
	}
	return ""
}
