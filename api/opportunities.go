package api

import (
	"net/http"
	"time"

	"backend_crm/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OpportunitiesAPI управляет API для работы со сделками
type OpportunitiesAPI struct {
	DB *gorm.DB
}

// NewOpportunitiesAPI создает новый экземпляр OpportunitiesAPI
func NewOpportunitiesAPI(db *gorm.DB) *OpportunitiesAPI {
	return &OpportunitiesAPI{DB: db}
}

// RegisterOpportunitiesRoutes регистрирует маршруты для работы со сделками
func (api *OpportunitiesAPI) RegisterOpportunitiesRoutes(r *gin.RouterGroup) {
	opportunities := r.Group("/opportunities")
	{
		opportunities.GET("", api.GetOpportunities)
		opportunities.POST("", api.CreateOpportunity)
		opportunities.GET("/:id", api.GetOpportunity)
		opportunities.PUT("/:id", api.UpdateOpportunity)
		opportunities.DELETE("/:id", api.DeleteOpportunity)
		opportunities.PUT("/:id/stage", api.UpdateOpportunityStage)
	}
}

// OpportunityRequest структура для создания/обновления сделки
type OpportunityRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=100"`
	Description string `json:"description,omitempty"`
	Stage       string `json:"stage,omitempty"`
	Source      string `json:"source,omitempty"`

	AccountID uuid.UUID  `json:"account_id" binding:"required"`
	ContactID *uuid.UUID `json:"contact_id,omitempty"`

	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Currency    string           `json:"currency,omitempty"`
	Probability *int             `json:"probability,omitempty"`

	ExpectedCloseDate *time.Time `json:"expected_close_date,omitempty"`

	OwnerID *uuid.UUID `json:"owner_id,omitempty"`

	Tags         models.StringArray `json:"tags,omitempty"`
	CustomFields models.JSONMap     `json:"custom_fields,omitempty"`
}

// GetOpportunities получает список сделок с фильтрацией и пагинацией
func (api *OpportunitiesAPI) GetOpportunities(c *gin.Context) {
	organizationID := GetOrganizationID(c)
	page, limit := ParsePagination(c)
	offset := (page - 1) * limit

	query := api.DB.Model(&models.Opportunity{}).Where("organization_id = ?", organizationID)

	if search := c.Query("search"); search != "" {
		query = query.Where("LOWER(name) LIKE LOWER(?)", "%"+search+"%")
	}
	if stage := c.Query("stage"); stage != "" {
		query = query.Where("stage = ?", stage)
	}
	if accountID := c.Query("account_id"); accountID != "" {
		query = query.Where("account_id = ?", accountID)
	}
	if ownerID := c.Query("owner_id"); ownerID != "" {
		query = query.Where("owner_id = ?", ownerID)
	}
	if open := parseQueryBool(c, "open"); open != nil {
		query = query.Where("is_closed = ?", !*open)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка подсчета сделок: " + err.Error(),
		})
		return
	}

	var opportunities []models.Opportunity
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&opportunities).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка получения сделок: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"opportunities": opportunities,
			"pagination": gin.H{
				"current_page": page,
				"total_pages":  (total + int64(limit) - 1) / int64(limit),
				"total_items":  total,
				"per_page":     limit,
			},
		},
	})
}

// CreateOpportunity создает новую сделку. Сделка без аккаунта невозможна.
func (api *OpportunitiesAPI) CreateOpportunity(c *gin.Context) {
	var req OpportunityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Некорректные данные: " + err.Error(),
		})
		return
	}

	organizationID := GetOrganizationID(c)

	if req.Stage != "" && !models.IsValidOpportunityStage(req.Stage) {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Недопустимая стадия сделки: " + req.Stage,
		})
		return
	}

	// Аккаунт обязателен и должен принадлежать организации
	var accountCount int64
	api.DB.Model(&models.Account{}).
		Where("id = ? AND organization_id = ?", req.AccountID, organizationID).
		Count(&accountCount)
	if accountCount == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Аккаунт не найден",
		})
		return
	}

	userID := GetUserID(c)

	opportunity := &models.Opportunity{
		Name:        req.Name,
		Description: req.Description,
		Stage:       req.Stage,
		Source:      req.Source,

		AccountID: req.AccountID,
		ContactID: req.ContactID,

		Currency:    req.Currency,
		Probability: models.DefaultOpportunityProbability,

		ExpectedCloseDate: req.ExpectedCloseDate,

		OwnerID:     userID,
		CreatedByID: userID,

		Tags:         req.Tags,
		CustomFields: req.CustomFields,

		OrganizationID: organizationID,
	}

	if req.Amount != nil {
		opportunity.Amount = *req.Amount
	}
	if req.Probability != nil {
		opportunity.Probability = *req.Probability
	}
	if req.OwnerID != nil {
		opportunity.OwnerID = *req.OwnerID
	}

	if err := api.DB.Create(opportunity).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка создания сделки: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status": "success",
		"data":   opportunity,
	})
}

// GetOpportunity получает сделку по ID
func (api *OpportunitiesAPI) GetOpportunity(c *gin.Context) {
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var opportunity models.Opportunity
	if err := api.DB.Where("id = ? AND organization_id = ?", id, GetOrganizationID(c)).First(&opportunity).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"status": "error",
				"error":  "Сделка не найдена",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка получения сделки: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   opportunity,
	})
}

// UpdateOpportunity обновляет сделку
func (api *OpportunitiesAPI) UpdateOpportunity(c *gin.Context) {
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var opportunity models.Opportunity
	if err := api.DB.Where("id = ? AND organization_id = ?", id, GetOrganizationID(c)).First(&opportunity).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"status": "error",
				"error":  "Сделка не найдена",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка получения сделки: " + err.Error(),
		})
		return
	}

	var req OpportunityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Некорректные данные: " + err.Error(),
		})
		return
	}

	if req.Stage != "" && !models.IsValidOpportunityStage(req.Stage) {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Недопустимая стадия сделки: " + req.Stage,
		})
		return
	}

	opportunity.Name = req.Name
	opportunity.Description = req.Description
	opportunity.Source = req.Source
	opportunity.ContactID = req.ContactID
	opportunity.ExpectedCloseDate = req.ExpectedCloseDate
	if req.Stage != "" {
		opportunity.Stage = req.Stage
	}
	if req.Amount != nil {
		opportunity.Amount = *req.Amount
	}
	if req.Currency != "" {
		opportunity.Currency = req.Currency
	}
	if req.Probability != nil {
		opportunity.Probability = *req.Probability
	}
	if req.OwnerID != nil {
		opportunity.OwnerID = *req.OwnerID
	}
	if req.Tags != nil {
		opportunity.Tags = req.Tags
	}
	if req.CustomFields != nil {
		opportunity.CustomFields = req.CustomFields
	}

	if err := api.DB.Save(&opportunity).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка обновления сделки: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   opportunity,
	})
}

// DeleteOpportunity удаляет сделку
func (api *OpportunitiesAPI) DeleteOpportunity(c *gin.Context) {
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	result := api.DB.Where("id = ? AND organization_id = ?", id, GetOrganizationID(c)).Delete(&models.Opportunity{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка удаления сделки: " + result.Error.Error(),
		})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{
			"status": "error",
			"error":  "Сделка не найдена",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Сделка удалена",
	})
}

// UpdateStageRequest запрос на смену стадии сделки
type UpdateStageRequest struct {
	Stage       string `json:"stage" binding:"required"`
	Probability *int   `json:"probability,omitempty"`
}

// UpdateOpportunityStage переводит сделку на другую стадию.
// При закрытии фиксируется фактическая дата закрытия.
func (api *OpportunitiesAPI) UpdateOpportunityStage(c *gin.Context) {
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req UpdateStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Некорректные данные: " + err.Error(),
		})
		return
	}

	if !models.IsValidOpportunityStage(req.Stage) {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Недопустимая стадия сделки: " + req.Stage,
		})
		return
	}

	var opportunity models.Opportunity
	if err := api.DB.Where("id = ? AND organization_id = ?", id, GetOrganizationID(c)).First(&opportunity).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"status": "error",
				"error":  "Сделка не найдена",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка получения сделки: " + err.Error(),
		})
		return
	}

	opportunity.Stage = req.Stage
	if req.Probability != nil {
		opportunity.Probability = *req.Probability
	} else if req.Stage == models.OpportunityStageClosedWon {
		opportunity.Probability = 100
	} else if req.Stage == models.OpportunityStageClosedLost {
		opportunity.Probability = 0
	}

	if err := api.DB.Save(&opportunity).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка смены стадии: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   opportunity,
	})
}
