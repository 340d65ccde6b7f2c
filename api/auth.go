package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"backend_crm/config"
	"backend_crm/database"
	"backend_crm/middleware"
	"backend_crm/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

// AuthAPI управляет аутентификацией через Keycloak
type AuthAPI struct {
	DB  *gorm.DB
	Cfg *config.Config
}

// NewAuthAPI создает новый экземпляр AuthAPI
func NewAuthAPI(db *gorm.DB, cfg *config.Config) *AuthAPI {
	return &AuthAPI{DB: db, Cfg: cfg}
}

// RegisterAuthRoutes регистрирует маршруты аутентификации.
// Login публичный, остальные маршруты требуют токен.
func (api *AuthAPI) RegisterAuthRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	group := r.Group("/auth")
	{
		group.POST("/login", middleware.AuthRateLimit(), api.Login)
		group.POST("/logout", auth.RequireAuth(), api.Logout)
		group.GET("/me", auth.RequireAuth(), api.Me)
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=3,max=64"`
}

type keycloakTokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Структурированное логирование для авторизации
func logAuthOperation(operation, username, userID, organizationID string, details map[string]interface{}) {
	logData := map[string]interface{}{
		"timestamp":       time.Now().Format(time.RFC3339),
		"operation":       operation,
		"username":        username,
		"user_id":         userID,
		"organization_id": organizationID,
	}

	for key, value := range details {
		logData[key] = value
	}

	logJSON, _ := json.Marshal(logData)
	log.Printf("AUTH_LOG: %s", string(logJSON))
}

// Login выполняет аутентификацию через Keycloak и выдает токен сессии
func (api *AuthAPI) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logAuthOperation("login_validation_error", req.Username, "", "", map[string]interface{}{
			"error":      err.Error(),
			"status":     "failed",
			"ip_address": c.ClientIP(),
		})
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Invalid username or password"})
		return
	}

	logAuthOperation("login_attempt", req.Username, "", "", map[string]interface{}{
		"ip_address": c.ClientIP(),
		"user_agent": c.GetHeader("User-Agent"),
	})

	// Проверяем учетные данные через Keycloak (password grant)
	kcToken, err := api.keycloakPasswordGrant(req.Username, req.Password)
	if err != nil {
		logAuthOperation("keycloak_login_failed", req.Username, "", "", map[string]interface{}{
			"error":  err.Error(),
			"status": "failed",
		})
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "Invalid credentials"})
		return
	}

	// Ищем локального пользователя
	var user models.User
	if err := api.DB.Where("LOWER(username) = ? AND is_active = ?", strings.ToLower(req.Username), true).First(&user).Error; err != nil {
		logAuthOperation("local_user_not_found", req.Username, "", "", map[string]interface{}{
			"error":  err.Error(),
			"status": "failed",
		})
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "Пользователь не зарегистрирован в системе"})
		return
	}

	// Выдаем наш JWT
	token, err := api.issueToken(&user)
	if err != nil {
		logAuthOperation("token_issue_error", req.Username, user.ID.String(), user.OrganizationID.String(), map[string]interface{}{
			"error":  err.Error(),
			"status": "failed",
		})
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка создания токена"})
		return
	}

	// Сохраняем сессию в Redis для быстрой проверки
	session := middleware.SessionData{
		UserID:         user.ID,
		OrganizationID: user.OrganizationID,
		Username:       user.Username,
		Email:          user.Email,
		Role:           user.Role,
	}
	if err := database.SessionStore(token, session, api.Cfg.Security.SessionTTL); err != nil {
		// Redis необязателен: JWT проверяется и без сессии
		log.Printf("⚠️ Не удалось сохранить сессию в Redis: %v", err)
	}

	// Обновляем время последнего входа
	now := time.Now()
	api.DB.Model(&user).Update("last_login_at", now)

	logAuthOperation("login_success", req.Username, user.ID.String(), user.OrganizationID.String(), map[string]interface{}{
		"status":             "success",
		"role":               user.Role,
		"keycloak_expires_s": kcToken.ExpiresIn,
	})

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"token": token,
			"user": gin.H{
				"id":              user.ID,
				"username":        user.Username,
				"email":           user.Email,
				"first_name":      user.FirstName,
				"last_name":       user.LastName,
				"role":            user.Role,
				"organization_id": user.OrganizationID,
			},
		},
	})
}

// keycloakPasswordGrant обменивает логин и пароль на токен Keycloak
func (api *AuthAPI) keycloakPasswordGrant(username, password string) (*keycloakTokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", api.Cfg.Keycloak.ClientID)
	form.Set("client_secret", api.Cfg.Keycloak.ClientSecret)
	form.Set("username", username)
	form.Set("password", password)

	client := &http.Client{Timeout: api.Cfg.Keycloak.Timeout}
	tokenURL := api.Cfg.GetKeycloakRealmURL() + "/protocol/openid-connect/token"

	resp, err := client.Post(tokenURL, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var kcToken keycloakTokenResponse
	if err := json.Unmarshal(body, &kcToken); err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK || kcToken.AccessToken == "" {
		if kcToken.ErrorDescription != "" {
			return nil, &authError{kcToken.ErrorDescription}
		}
		return nil, &authError{"keycloak returned status " + resp.Status}
	}

	return &kcToken, nil
}

type authError struct{ msg string }

func (e *authError) Error() string { return e.msg }

// issueToken выдает подписанный JWT для локального пользователя
func (api *AuthAPI) issueToken(user *models.User) (string, error) {
	now := time.Now()
	claims := middleware.TokenClaims{
		OrganizationID: user.OrganizationID.String(),
		Username:       user.Username,
		Role:           user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    api.Cfg.JWT.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(api.Cfg.JWT.ExpiresIn)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(api.Cfg.JWT.Secret))
}

// Logout завершает сессию пользователя
func (api *AuthAPI) Logout(c *gin.Context) {
	token := middleware.GetCurrentToken(c)
	if token != "" {
		if err := database.SessionDelete(token); err != nil {
			log.Printf("⚠️ Не удалось удалить сессию из Redis: %v", err)
		}
	}

	session := middleware.GetCurrentSession(c)
	if session != nil {
		logAuthOperation("logout", session.Username, session.UserID.String(), session.OrganizationID.String(), map[string]interface{}{
			"status": "success",
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Сессия завершена",
	})
}

// Me возвращает данные текущего пользователя
func (api *AuthAPI) Me(c *gin.Context) {
	session := middleware.GetCurrentSession(c)
	if session == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "Не авторизован"})
		return
	}

	var user models.User
	if err := api.DB.Where("id = ?", session.UserID).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Пользователь не найден"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"id":              user.ID,
			"username":        user.Username,
			"email":           user.Email,
			"first_name":      user.FirstName,
			"last_name":       user.LastName,
			"role":            user.Role,
			"organization_id": user.OrganizationID,
			"last_login_at":   user.LastLoginAt,
		},
	})
}
