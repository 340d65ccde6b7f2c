package api

import (
	"net/http"

	"backend_crm/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AccountsAPI управляет API для работы с аккаунтами (компаниями-клиентами)
type AccountsAPI struct {
	DB *gorm.DB
}

// NewAccountsAPI создает новый экземпляр AccountsAPI
func NewAccountsAPI(db *gorm.DB) *AccountsAPI {
	return &AccountsAPI{DB: db}
}

// RegisterAccountsRoutes регистрирует маршруты для работы с аккаунтами
func (api *AccountsAPI) RegisterAccountsRoutes(r *gin.RouterGroup) {
	accounts := r.Group("/accounts")
	{
		accounts.GET("", api.GetAccounts)
		accounts.POST("", api.CreateAccount)
		accounts.GET("/:id", api.GetAccount)
		accounts.PUT("/:id", api.UpdateAccount)
		accounts.DELETE("/:id", api.DeleteAccount)
		accounts.GET("/:id/contacts", api.GetAccountContacts)
		accounts.GET("/:id/opportunities", api.GetAccountOpportunities)
	}
}

// AccountRequest структура для создания/обновления аккаунта
type AccountRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=100"`
	Type        string `json:"type,omitempty"`
	Industry    string `json:"industry,omitempty"`
	Website     string `json:"website,omitempty"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Description string `json:"description,omitempty"`

	AnnualRevenue     *decimal.Decimal `json:"annual_revenue,omitempty"`
	NumberOfEmployees int              `json:"number_of_employees,omitempty"`

	BillingAddress  string `json:"billing_address,omitempty"`
	BillingCity     string `json:"billing_city,omitempty"`
	BillingCountry  string `json:"billing_country,omitempty"`
	ShippingAddress string `json:"shipping_address,omitempty"`
	ShippingCity    string `json:"shipping_city,omitempty"`
	ShippingCountry string `json:"shipping_country,omitempty"`

	ParentAccountID *uuid.UUID `json:"parent_account_id,omitempty"`
	OwnerID         *uuid.UUID `json:"owner_id,omitempty"`

	Tags         models.StringArray `json:"tags,omitempty"`
	CustomFields models.JSONMap     `json:"custom_fields,omitempty"`
}

// GetAccounts получает список аккаунтов с фильтрацией и пагинацией
func (api *AccountsAPI) GetAccounts(c *gin.Context) {
	organizationID := GetOrganizationID(c)
	page, limit := ParsePagination(c)
	offset := (page - 1) * limit

	query := api.DB.Model(&models.Account{}).Where("organization_id = ?", organizationID)

	if search := c.Query("search"); search != "" {
		pattern := "%" + search + "%"
		query = query.Where("LOWER(name) LIKE LOWER(?) OR LOWER(email) LIKE LOWER(?) OR LOWER(industry) LIKE LOWER(?)",
			pattern, pattern, pattern)
	}
	if accountType := c.Query("type"); accountType != "" {
		query = query.Where("type = ?", accountType)
	}
	if ownerID := c.Query("owner_id"); ownerID != "" {
		query = query.Where("owner_id = ?", ownerID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка подсчета аккаунтов: " + err.Error(),
		})
		return
	}

	var accounts []models.Account
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&accounts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка получения аккаунтов: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"accounts": accounts,
			"pagination": gin.H{
				"current_page": page,
				"total_pages":  (total + int64(limit) - 1) / int64(limit),
				"total_items":  total,
				"per_page":     limit,
			},
		},
	})
}

// CreateAccount создает новый аккаунт
func (api *AccountsAPI) CreateAccount(c *gin.Context) {
	var req AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Некорректные данные: " + err.Error(),
		})
		return
	}

	userID := GetUserID(c)

	account := &models.Account{
		Name:        req.Name,
		Type:        req.Type,
		Industry:    req.Industry,
		Website:     req.Website,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Description: req.Description,

		NumberOfEmployees: req.NumberOfEmployees,

		BillingAddress:  req.BillingAddress,
		BillingCity:     req.BillingCity,
		BillingCountry:  req.BillingCountry,
		ShippingAddress: req.ShippingAddress,
		ShippingCity:    req.ShippingCity,
		ShippingCountry: req.ShippingCountry,

		ParentAccountID: req.ParentAccountID,
		OwnerID:         userID,
		CreatedByID:     userID,

		Tags:         req.Tags,
		CustomFields: req.CustomFields,

		OrganizationID: GetOrganizationID(c),
	}

	if req.AnnualRevenue != nil {
		account.AnnualRevenue = *req.AnnualRevenue
	}
	if req.OwnerID != nil {
		account.OwnerID = *req.OwnerID
	}
	if account.Type == "" {
		account.Type = models.AccountTypeProspect
	}

	if err := api.DB.Create(account).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка создания аккаунта: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status": "success",
		"data":   account,
	})
}

// GetAccount получает аккаунт по ID
func (api *AccountsAPI) GetAccount(c *gin.Context) {
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var account models.Account
	if err := api.DB.Where("id = ? AND organization_id = ?", id, GetOrganizationID(c)).First(&account).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"status": "error",
				"error":  "Аккаунт не найден",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка получения аккаунта: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   account,
	})
}

// UpdateAccount обновляет аккаунт
func (api *AccountsAPI) UpdateAccount(c *gin.Context) {
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var account models.Account
	if err := api.DB.Where("id = ? AND organization_id = ?", id, GetOrganizationID(c)).First(&account).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"status": "error",
				"error":  "Аккаунт не найден",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка получения аккаунта: " + err.Error(),
		})
		return
	}

	var req AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Некорректные данные: " + err.Error(),
		})
		return
	}

	account.Name = req.Name
	account.Type = req.Type
	account.Industry = req.Industry
	account.Website = req.Website
	account.Email = req.Email
	account.PhoneNumber = req.PhoneNumber
	account.Description = req.Description
	account.NumberOfEmployees = req.NumberOfEmployees
	account.BillingAddress = req.BillingAddress
	account.BillingCity = req.BillingCity
	account.BillingCountry = req.BillingCountry
	account.ShippingAddress = req.ShippingAddress
	account.ShippingCity = req.ShippingCity
	account.ShippingCountry = req.ShippingCountry
	account.ParentAccountID = req.ParentAccountID
	if req.AnnualRevenue != nil {
		account.AnnualRevenue = *req.AnnualRevenue
	}
	if req.OwnerID != nil {
		account.OwnerID = *req.OwnerID
	}
	if req.Tags != nil {
		account.Tags = req.Tags
	}
	if req.CustomFields != nil {
		account.CustomFields = req.CustomFields
	}

	if err := api.DB.Save(&account).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка обновления аккаунта: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   account,
	})
}

// DeleteAccount удаляет аккаунт (запрещено при наличии открытых сделок)
func (api *AccountsAPI) DeleteAccount(c *gin.Context) {
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	organizationID := GetOrganizationID(c)

	var openOpportunities int64
	api.DB.Model(&models.Opportunity{}).
		Where("account_id = ? AND organization_id = ? AND is_closed = ?", id, organizationID, false).
		Count(&openOpportunities)
	if openOpportunities > 0 {
		c.JSON(http.StatusConflict, gin.H{
			"status": "error",
			"error":  "Нельзя удалить аккаунт с открытыми сделками",
		})
		return
	}

	result := api.DB.Where("id = ? AND organization_id = ?", id, organizationID).Delete(&models.Account{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка удаления аккаунта: " + result.Error.Error(),
		})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{
			"status": "error",
			"error":  "Аккаунт не найден",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Аккаунт удален",
	})
}

// GetAccountContacts получает контакты аккаунта
func (api *AccountsAPI) GetAccountContacts(c *gin.Context) {
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var contacts []models.Contact
	if err := api.DB.Where("account_id = ? AND organization_id = ?", id, GetOrganizationID(c)).
		Order("is_primary DESC, created_at ASC").
		Find(&contacts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка получения контактов: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   contacts,
	})
}

// GetAccountOpportunities получает сделки аккаунта
func (api *AccountsAPI) GetAccountOpportunities(c *gin.Context) {
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var opportunities []models.Opportunity
	if err := api.DB.Where("account_id = ? AND organization_id = ?", id, GetOrganizationID(c)).
		Order("created_at DESC").
		Find(&opportunities).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка получения сделок: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   opportunities,
	})
}
