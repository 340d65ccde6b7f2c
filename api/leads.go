package api

import (
	"fmt"
	"net/http"
	"time"

	"backend_crm/middleware"
	"backend_crm/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// LeadsAPI управляет API для работы с лидами
type LeadsAPI struct {
	LeadService         *services.LeadService
	ExportService       *services.ExportService
	NotificationService *services.NotificationService
}

// NewLeadsAPI создает новый экземпляр LeadsAPI
func NewLeadsAPI(leadService *services.LeadService, exportService *services.ExportService, notificationService *services.NotificationService) *LeadsAPI {
	return &LeadsAPI{
		LeadService:         leadService,
		ExportService:       exportService,
		NotificationService: notificationService,
	}
}

// RegisterLeadsRoutes регистрирует маршруты для работы с лидами
func (api *LeadsAPI) RegisterLeadsRoutes(r *gin.RouterGroup) {
	leads := r.Group("/leads")
	{
		leads.GET("", api.GetLeads)
		leads.POST("", api.CreateLead)
		leads.GET("/analytics", api.GetLeadAnalytics)
		leads.GET("/sources", api.GetLeadSources)
		leads.GET("/recent", api.GetRecentLeads)
		leads.GET("/export", middleware.ExportRateLimit(), api.ExportLeads)
		leads.POST("/bulk-assign", api.BulkAssignLeads)
		leads.POST("/bulk-status", api.BulkUpdateLeadStatus)
		leads.GET("/assignee/:userId", api.GetLeadsByAssignee)
		leads.GET("/:id", api.GetLead)
		leads.PUT("/:id", api.UpdateLead)
		leads.DELETE("/:id", api.DeleteLead)
		leads.POST("/:id/convert", api.ConvertLead)
		leads.PUT("/:id/assign", api.AssignLead)
		leads.PUT("/:id/score", api.UpdateLeadScore)
	}
}

// buildSearchOptions собирает параметры поиска из query string
func (api *LeadsAPI) buildSearchOptions(c *gin.Context) services.LeadSearchOptions {
	page, limit := ParsePagination(c)

	return services.LeadSearchOptions{
		Search:         c.Query("search"),
		Page:           page,
		Limit:          limit,
		SortBy:         c.DefaultQuery("sort_by", "created_at"),
		SortOrder:      c.DefaultQuery("sort_order", "desc"),
		OrganizationID: GetOrganizationID(c),
		Filter: services.LeadFilter{
			Status:       parseQueryList(c, "status"),
			Source:       parseQueryList(c, "source"),
			AssignedToID: parseQueryUUIDList(c, "assigned_to_id"),
			ScoreMin:     parseQueryInt(c, "score_min"),
			ScoreMax:     parseQueryInt(c, "score_max"),
			DateStart:    parseQueryDate(c, "date_start"),
			DateEnd:      parseQueryDate(c, "date_end"),
			Tags:         parseQueryList(c, "tags"),
			CompanyName:  c.Query("company_name"),
			IsConverted:  parseQueryBool(c, "is_converted"),
		},
	}
}

// GetLeads получает список лидов с поиском, фильтрацией и пагинацией
func (api *LeadsAPI) GetLeads(c *gin.Context) {
	opts := api.buildSearchOptions(c)

	result, err := api.LeadService.SearchLeads(opts)
	if err != nil {
		RespondServiceError(c, err, "Ошибка получения лидов")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"leads": result.Items,
			"pagination": gin.H{
				"current_page": result.Page,
				"total_pages":  result.TotalPages,
				"total_items":  result.Total,
				"per_page":     result.Limit,
				"has_next":     result.HasNext,
				"has_prev":     result.HasPrev,
			},
		},
	})
}

// CreateLead создает нового лида
func (api *LeadsAPI) CreateLead(c *gin.Context) {
	var req services.CreateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Некорректные данные: " + err.Error(),
		})
		return
	}

	lead, err := api.LeadService.CreateLead(req, GetUserID(c), GetOrganizationID(c))
	if err != nil {
		RespondServiceError(c, err, "Ошибка создания лида")
		return
	}

	if lead.AssignedToID != nil {
		go api.NotificationService.NotifyLeadAssigned(lead)
	}

	c.JSON(http.StatusCreated, gin.H{
		"status": "success",
		"data":   lead,
	})
}

// GetLead получает лида по ID
func (api *LeadsAPI) GetLead(c *gin.Context) {
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	lead, err := api.LeadService.GetLeadByID(id, GetOrganizationID(c))
	if err != nil {
		RespondServiceError(c, err, "Ошибка получения лида")
		return
	}
	if lead == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"status": "error",
			"error":  "Лид не найден",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   lead,
	})
}

// UpdateLead частично обновляет лида
func (api *LeadsAPI) UpdateLead(c *gin.Context) {
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Некорректные данные: " + err.Error(),
		})
		return
	}

	lead, err := api.LeadService.UpdateLead(id, req, GetOrganizationID(c))
	if err != nil {
		RespondServiceError(c, err, "Ошибка обновления лида")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   lead,
	})
}

// DeleteLead удаляет лида (конвертированных удалять нельзя)
func (api *LeadsAPI) DeleteLead(c *gin.Context) {
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := api.LeadService.DeleteLead(id, GetOrganizationID(c)); err != nil {
		RespondServiceError(c, err, "Ошибка удаления лида")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Лид удален",
	})
}

// ConvertLead конвертирует квалифицированного лида в Account/Contact/Opportunity
func (api *LeadsAPI) ConvertLead(c *gin.Context) {
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.ConvertLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Некорректные данные: " + err.Error(),
		})
		return
	}

	result, err := api.LeadService.ConvertLead(id, req, GetUserID(c), GetOrganizationID(c))
	if err != nil {
		RespondServiceError(c, err, "Ошибка конверсии лида")
		return
	}

	go api.NotificationService.NotifyLeadConverted(result)

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   result,
	})
}

// AssignLeadRequest запрос на назначение лида менеджеру
type AssignLeadRequest struct {
	AssignedToID uuid.UUID `json:"assigned_to_id" binding:"required"`
}

// AssignLead назначает лида менеджеру
func (api *LeadsAPI) AssignLead(c *gin.Context) {
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req AssignLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Некорректные данные: " + err.Error(),
		})
		return
	}

	lead, err := api.LeadService.AssignLead(id, req.AssignedToID, GetOrganizationID(c))
	if err != nil {
		RespondServiceError(c, err, "Ошибка назначения лида")
		return
	}

	go api.NotificationService.NotifyLeadAssigned(lead)

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   lead,
	})
}

// UpdateScoreRequest запрос на изменение скоринга лида
type UpdateScoreRequest struct {
	Score int `json:"score"`
}

// UpdateLeadScore обновляет скоринг лида
func (api *LeadsAPI) UpdateLeadScore(c *gin.Context) {
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req UpdateScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Некорректные данные: " + err.Error(),
		})
		return
	}

	lead, err := api.LeadService.UpdateLeadScore(id, req.Score, GetOrganizationID(c))
	if err != nil {
		RespondServiceError(c, err, "Ошибка обновления скоринга")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   lead,
	})
}

// BulkAssignRequest запрос на массовое назначение лидов
type BulkAssignRequest struct {
	LeadIDs      []uuid.UUID `json:"lead_ids" binding:"required,min=1"`
	AssignedToID uuid.UUID   `json:"assigned_to_id" binding:"required"`
}

// BulkAssignLeads массово назначает лидов менеджеру.
// Несуществующие и чужие ID молча пропускаются.
func (api *LeadsAPI) BulkAssignLeads(c *gin.Context) {
	var req BulkAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Некорректные данные: " + err.Error(),
		})
		return
	}

	updated, err := api.LeadService.BulkAssignLeads(req.LeadIDs, req.AssignedToID, GetOrganizationID(c))
	if err != nil {
		RespondServiceError(c, err, "Ошибка массового назначения")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"requested": len(req.LeadIDs),
			"updated":   updated,
		},
	})
}

// BulkStatusRequest запрос на массовую смену статуса
type BulkStatusRequest struct {
	LeadIDs []uuid.UUID `json:"lead_ids" binding:"required,min=1"`
	Status  string      `json:"status" binding:"required"`
}

// BulkUpdateLeadStatus массово меняет статус лидов
func (api *LeadsAPI) BulkUpdateLeadStatus(c *gin.Context) {
	var req BulkStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Некорректные данные: " + err.Error(),
		})
		return
	}

	updated, err := api.LeadService.BulkUpdateLeadStatus(req.LeadIDs, req.Status, GetOrganizationID(c))
	if err != nil {
		RespondServiceError(c, err, "Ошибка массовой смены статуса")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"requested": len(req.LeadIDs),
			"updated":   updated,
		},
	})
}

// GetLeadAnalytics возвращает аналитику по воронке лидов
func (api *LeadsAPI) GetLeadAnalytics(c *gin.Context) {
	var dateRange *services.DateRange
	start := parseQueryDate(c, "date_start")
	end := parseQueryDate(c, "date_end")
	if start != nil && end != nil {
		dateRange = &services.DateRange{Start: *start, End: *end}
	}

	analytics, err := api.LeadService.GetLeadAnalytics(GetOrganizationID(c), dateRange)
	if err != nil {
		RespondServiceError(c, err, "Ошибка получения аналитики")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   analytics,
	})
}

// GetLeadSources возвращает список уникальных источников лидов
func (api *LeadsAPI) GetLeadSources(c *gin.Context) {
	sources, err := api.LeadService.GetLeadSources(GetOrganizationID(c))
	if err != nil {
		RespondServiceError(c, err, "Ошибка получения источников")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   sources,
	})
}

// GetRecentLeads возвращает последние созданные лиды
func (api *LeadsAPI) GetRecentLeads(c *gin.Context) {
	_, limit := ParsePagination(c)

	leads, err := api.LeadService.GetRecentLeads(GetOrganizationID(c), limit)
	if err != nil {
		RespondServiceError(c, err, "Ошибка получения лидов")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   leads,
	})
}

// GetLeadsByAssignee возвращает лидов, назначенных конкретному менеджеру
func (api *LeadsAPI) GetLeadsByAssignee(c *gin.Context) {
	userID, ok := ParseUUIDParam(c, "userId")
	if !ok {
		return
	}

	leads, err := api.LeadService.GetLeadsByAssignee(userID, GetOrganizationID(c))
	if err != nil {
		RespondServiceError(c, err, "Ошибка получения лидов")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   leads,
	})
}

// ExportLeads выгружает лидов в Excel или воронку в PDF (параметр format)
func (api *LeadsAPI) ExportLeads(c *gin.Context) {
	organizationID := GetOrganizationID(c)
	format := c.DefaultQuery("format", "xlsx")

	switch format {
	case "xlsx":
		filter := services.LeadFilter{
			Status:      parseQueryList(c, "status"),
			Source:      parseQueryList(c, "source"),
			DateStart:   parseQueryDate(c, "date_start"),
			DateEnd:     parseQueryDate(c, "date_end"),
			IsConverted: parseQueryBool(c, "is_converted"),
		}

		data, err := api.ExportService.ExportLeadsExcel(organizationID, filter)
		if err != nil {
			RespondServiceError(c, err, "Ошибка экспорта в Excel")
			return
		}

		filename := fmt.Sprintf("leads_%s.xlsx", time.Now().Format("2006-01-02"))
		c.Header("Content-Disposition", "attachment; filename="+filename)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)

	case "pdf":
		var dateRange *services.DateRange
		start := parseQueryDate(c, "date_start")
		end := parseQueryDate(c, "date_end")
		if start != nil && end != nil {
			dateRange = &services.DateRange{Start: *start, End: *end}
		}

		data, err := api.ExportService.ExportFunnelPDF(organizationID, dateRange)
		if err != nil {
			RespondServiceError(c, err, "Ошибка экспорта в PDF")
			return
		}

		filename := fmt.Sprintf("lead_funnel_%s.pdf", time.Now().Format("2006-01-02"))
		c.Header("Content-Disposition", "attachment; filename="+filename)
		c.Data(http.StatusOK, "application/pdf", data)

	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Неподдерживаемый формат экспорта: " + format,
		})
	}
}
