package api

import (
	"net/http"
	"strconv"
	"time"

	"backend_crm/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DashboardAPI отдает сводную статистику по воронке продаж
type DashboardAPI struct {
	DB *gorm.DB
}

// NewDashboardAPI создает новый экземпляр DashboardAPI
func NewDashboardAPI(db *gorm.DB) *DashboardAPI {
	return &DashboardAPI{DB: db}
}

// RegisterDashboardRoutes регистрирует маршруты dashboard
func (api *DashboardAPI) RegisterDashboardRoutes(r *gin.RouterGroup) {
	dashboard := r.Group("/dashboard")
	{
		dashboard.GET("/stats", api.GetDashboardStats)
		dashboard.GET("/activity", api.GetDashboardActivity)
	}
}

// DashboardStats структура для статистики dashboard
type DashboardStats struct {
	TotalLeads     int64 `json:"total_leads"`
	NewLeads       int64 `json:"new_leads"`
	QualifiedLeads int64 `json:"qualified_leads"`
	ConvertedLeads int64 `json:"converted_leads"`
	LostLeads      int64 `json:"lost_leads"`

	TotalAccounts      int64 `json:"total_accounts"`
	TotalContacts      int64 `json:"total_contacts"`
	TotalOpportunities int64 `json:"total_opportunities"`
	OpenOpportunities  int64 `json:"open_opportunities"`

	PipelineAmount   decimal.Decimal `json:"pipeline_amount"`
	WeightedPipeline decimal.Decimal `json:"weighted_pipeline"`
	ClosedWonAmount  decimal.Decimal `json:"closed_won_amount"`

	LastUpdated time.Time `json:"last_updated"`
}

// ActivityItem структура для элемента активности
type ActivityItem struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// GetDashboardStats получает общую статистику для dashboard
func (api *DashboardAPI) GetDashboardStats(c *gin.Context) {
	organizationID := GetOrganizationID(c)

	stats := DashboardStats{
		PipelineAmount:   decimal.Zero,
		WeightedPipeline: decimal.Zero,
		ClosedWonAmount:  decimal.Zero,
		LastUpdated:      time.Now(),
	}

	leads := func() *gorm.DB {
		return api.DB.Model(&models.Lead{}).Where("organization_id = ?", organizationID)
	}

	// Воронка лидов
	leads().Count(&stats.TotalLeads)
	leads().Where("status = ?", models.LeadStatusNew).Count(&stats.NewLeads)
	leads().Where("status = ?", models.LeadStatusQualified).Count(&stats.QualifiedLeads)
	leads().Where("is_converted = ?", true).Count(&stats.ConvertedLeads)
	leads().Where("status = ?", models.LeadStatusLost).Count(&stats.LostLeads)

	// Сущности после конверсии
	api.DB.Model(&models.Account{}).Where("organization_id = ?", organizationID).Count(&stats.TotalAccounts)
	api.DB.Model(&models.Contact{}).Where("organization_id = ?", organizationID).Count(&stats.TotalContacts)
	api.DB.Model(&models.Opportunity{}).Where("organization_id = ?", organizationID).Count(&stats.TotalOpportunities)
	api.DB.Model(&models.Opportunity{}).
		Where("organization_id = ? AND stage NOT IN ?", organizationID,
			[]string{models.OpportunityStageClosedWon, models.OpportunityStageClosedLost}).
		Count(&stats.OpenOpportunities)

	// Суммы пайплайна считаем через decimal, чтобы не терять точность
	var openOpps []models.Opportunity
	api.DB.Select("amount", "weighted_amount").
		Where("organization_id = ? AND stage NOT IN ?", organizationID,
			[]string{models.OpportunityStageClosedWon, models.OpportunityStageClosedLost}).
		Find(&openOpps)
	for _, opp := range openOpps {
		stats.PipelineAmount = stats.PipelineAmount.Add(opp.Amount)
		stats.WeightedPipeline = stats.WeightedPipeline.Add(opp.WeightedAmount)
	}

	var wonOpps []models.Opportunity
	api.DB.Select("amount").
		Where("organization_id = ? AND stage = ?", organizationID, models.OpportunityStageClosedWon).
		Find(&wonOpps)
	for _, opp := range wonOpps {
		stats.ClosedWonAmount = stats.ClosedWonAmount.Add(opp.Amount)
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   stats,
	})
}

// GetDashboardActivity получает последнюю активность по лидам
func (api *DashboardAPI) GetDashboardActivity(c *gin.Context) {
	organizationID := GetOrganizationID(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit < 1 || limit > 50 {
		limit = 10
	}

	var recentLeads []models.Lead
	api.DB.Where("organization_id = ?", organizationID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&recentLeads)

	activities := make([]ActivityItem, 0, len(recentLeads))
	for _, lead := range recentLeads {
		item := ActivityItem{
			ID:        lead.ID.String(),
			Timestamp: lead.UpdatedAt,
		}
		if lead.IsConverted {
			item.Type = "lead_converted"
			item.Title = "Конверсия лида"
			item.Description = "Лид " + lead.FullName() + " конвертирован"
		} else {
			item.Type = "lead_update"
			item.Title = "Обновление лида"
			item.Description = "Лид " + lead.FullName() + " в статусе " + lead.Status
		}
		activities = append(activities, item)
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   activities,
	})
}
