package api

import (
	"net/http"

	"backend_crm/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContactsAPI управляет API для работы с контактами
type ContactsAPI struct {
	DB *gorm.DB
}

// NewContactsAPI создает новый экземпляр ContactsAPI
func NewContactsAPI(db *gorm.DB) *ContactsAPI {
	return &ContactsAPI{DB: db}
}

// RegisterContactsRoutes регистрирует маршруты для работы с контактами
func (api *ContactsAPI) RegisterContactsRoutes(r *gin.RouterGroup) {
	contacts := r.Group("/contacts")
	{
		contacts.GET("", api.GetContacts)
		contacts.POST("", api.CreateContact)
		contacts.GET("/:id", api.GetContact)
		contacts.PUT("/:id", api.UpdateContact)
		contacts.DELETE("/:id", api.DeleteContact)
		contacts.PUT("/:id/primary", api.SetPrimaryContact)
	}
}

// ContactRequest структура для создания/обновления контакта
type ContactRequest struct {
	FirstName   string `json:"first_name" binding:"required,min=1,max=64"`
	LastName    string `json:"last_name" binding:"required,min=1,max=64"`
	Email       string `json:"email,omitempty" binding:"omitempty,email"`
	PhoneNumber string `json:"phone_number,omitempty"`
	JobTitle    string `json:"job_title,omitempty"`
	Department  string `json:"department,omitempty"`

	AccountID *uuid.UUID `json:"account_id,omitempty"`
	IsPrimary bool       `json:"is_primary,omitempty"`

	DoNotCall  bool `json:"do_not_call,omitempty"`
	DoNotEmail bool `json:"do_not_email,omitempty"`

	Tags         models.StringArray `json:"tags,omitempty"`
	Notes        string             `json:"notes,omitempty"`
	CustomFields models.JSONMap     `json:"custom_fields,omitempty"`
}

// GetContacts получает список контактов с фильтрацией и пагинацией
func (api *ContactsAPI) GetContacts(c *gin.Context) {
	organizationID := GetOrganizationID(c)
	page, limit := ParsePagination(c)
	offset := (page - 1) * limit

	query := api.DB.Model(&models.Contact{}).Where("organization_id = ?", organizationID)

	if search := c.Query("search"); search != "" {
		pattern := "%" + search + "%"
		query = query.Where("LOWER(first_name) LIKE LOWER(?) OR LOWER(last_name) LIKE LOWER(?) OR LOWER(email) LIKE LOWER(?)",
			pattern, pattern, pattern)
	}
	if accountID := c.Query("account_id"); accountID != "" {
		query = query.Where("account_id = ?", accountID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка подсчета контактов: " + err.Error(),
		})
		return
	}

	var contacts []models.Contact
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&contacts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка получения контактов: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"contacts": contacts,
			"pagination": gin.H{
				"current_page": page,
				"total_pages":  (total + int64(limit) - 1) / int64(limit),
				"total_items":  total,
				"per_page":     limit,
			},
		},
	})
}

// CreateContact создает новый контакт
func (api *ContactsAPI) CreateContact(c *gin.Context) {
	var req ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Некорректные данные: " + err.Error(),
		})
		return
	}

	organizationID := GetOrganizationID(c)

	// Привязка к чужому аккаунту запрещена
	if req.AccountID != nil {
		var count int64
		api.DB.Model(&models.Account{}).
			Where("id = ? AND organization_id = ?", *req.AccountID, organizationID).
			Count(&count)
		if count == 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"status": "error",
				"error":  "Аккаунт не найден",
			})
			return
		}
	}

	contact := &models.Contact{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		JobTitle:    req.JobTitle,
		Department:  req.Department,

		AccountID: req.AccountID,
		IsPrimary: req.IsPrimary,

		DoNotCall:  req.DoNotCall,
		DoNotEmail: req.DoNotEmail,

		Tags:         req.Tags,
		Notes:        req.Notes,
		CustomFields: req.CustomFields,

		CreatedByID:    GetUserID(c),
		OrganizationID: organizationID,
	}

	if err := api.DB.Create(contact).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка создания контакта: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status": "success",
		"data":   contact,
	})
}

// GetContact получает контакт по ID
func (api *ContactsAPI) GetContact(c *gin.Context) {
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var contact models.Contact
	if err := api.DB.Where("id = ? AND organization_id = ?", id, GetOrganizationID(c)).First(&contact).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"status": "error",
				"error":  "Контакт не найден",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка получения контакта: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   contact,
	})
}

// UpdateContact обновляет контакт
func (api *ContactsAPI) UpdateContact(c *gin.Context) {
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var contact models.Contact
	if err := api.DB.Where("id = ? AND organization_id = ?", id, GetOrganizationID(c)).First(&contact).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"status": "error",
				"error":  "Контакт не найден",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка получения контакта: " + err.Error(),
		})
		return
	}

	var req ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Некорректные данные: " + err.Error(),
		})
		return
	}

	contact.FirstName = req.FirstName
	contact.LastName = req.LastName
	contact.Email = req.Email
	contact.PhoneNumber = req.PhoneNumber
	contact.JobTitle = req.JobTitle
	contact.Department = req.Department
	contact.AccountID = req.AccountID
	contact.IsPrimary = req.IsPrimary
	contact.DoNotCall = req.DoNotCall
	contact.DoNotEmail = req.DoNotEmail
	contact.Notes = req.Notes
	if req.Tags != nil {
		contact.Tags = req.Tags
	}
	if req.CustomFields != nil {
		contact.CustomFields = req.CustomFields
	}

	if err := api.DB.Save(&contact).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка обновления контакта: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   contact,
	})
}

// DeleteContact удаляет контакт
func (api *ContactsAPI) DeleteContact(c *gin.Context) {
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	result := api.DB.Where("id = ? AND organization_id = ?", id, GetOrganizationID(c)).Delete(&models.Contact{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка удаления контакта: " + result.Error.Error(),
		})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{
			"status": "error",
			"error":  "Контакт не найден",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Контакт удален",
	})
}

// SetPrimaryContact делает контакт основным для его аккаунта
func (api *ContactsAPI) SetPrimaryContact(c *gin.Context) {
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	organizationID := GetOrganizationID(c)

	var contact models.Contact
	if err := api.DB.Where("id = ? AND organization_id = ?", id, organizationID).First(&contact).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"status": "error",
				"error":  "Контакт не найден",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка получения контакта: " + err.Error(),
		})
		return
	}

	if contact.AccountID == nil {
		c.JSON(http.StatusConflict, gin.H{
			"status": "error",
			"error":  "Контакт не привязан к аккаунту",
		})
		return
	}

	// Снимаем флаг с остальных контактов аккаунта и ставим на текущий
	err := api.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Contact{}).
			Where("account_id = ? AND organization_id = ?", *contact.AccountID, organizationID).
			Update("is_primary", false).Error; err != nil {
			return err
		}
		return tx.Model(&contact).Update("is_primary", true).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Ошибка смены основного контакта: " + err.Error(),
		})
		return
	}

	contact.IsPrimary = true
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   contact,
	})
}
