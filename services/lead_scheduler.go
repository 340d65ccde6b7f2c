package services

import (
	"fmt"
	"log"
	"time"

	"backend_crm/models"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Лид считается зависшим, если остается в статусе "new" дольше этого срока
const staleLeadAgeDays = 7

// LeadScheduler выполняет фоновые задачи CRM по расписанию:
// прогрев кэша аналитики и уведомления о зависших лидах
type LeadScheduler struct {
	db           *gorm.DB
	leadService  *LeadService
	cache        *CacheService
	notification *NotificationService
	cron         *cron.Cron
}

// NewLeadScheduler создает новый экземпляр LeadScheduler
func NewLeadScheduler(db *gorm.DB, leadService *LeadService, cache *CacheService, notification *NotificationService) *LeadScheduler {
	return &LeadScheduler{
		db:           db,
		leadService:  leadService,
		cache:        cache,
		notification: notification,
		cron:         cron.New(),
	}
}

// Start регистрирует задачи и запускает планировщик
func (ls *LeadScheduler) Start() error {
	// Прогрев кэша аналитики каждый час
	if _, err := ls.cron.AddFunc("@hourly", ls.WarmAnalyticsCache); err != nil {
		return fmt.Errorf("ошибка регистрации задачи прогрева кэша: %w", err)
	}

	// Проверка зависших лидов каждый день в 9 утра
	if _, err := ls.cron.AddFunc("0 9 * * *", ls.CheckStaleLeads); err != nil {
		return fmt.Errorf("ошибка регистрации задачи проверки лидов: %w", err)
	}

	ls.cron.Start()
	log.Println("✅ Планировщик CRM-задач запущен")
	return nil
}

// Stop останавливает планировщик
func (ls *LeadScheduler) Stop() {
	ls.cron.Stop()
	log.Println("Планировщик CRM-задач остановлен")
}

// WarmAnalyticsCache пересчитывает аналитику воронки для всех активных
// организаций и кладет ее в Redis
func (ls *LeadScheduler) WarmAnalyticsCache() {
	orgs, err := ls.activeOrganizations()
	if err != nil {
		log.Printf("Ошибка загрузки организаций для прогрева кэша: %v", err)
		return
	}

	for _, org := range orgs {
		analytics, err := ls.leadService.GetLeadAnalytics(org.ID, nil)
		if err != nil {
			log.Printf("Ошибка расчета аналитики для организации %s: %v", org.ID, err)
			continue
		}
		if err := ls.cache.SetJSON(analyticsCacheKey(org.ID), analytics, CacheTTLLong); err != nil {
			log.Printf("Ошибка записи аналитики в кэш для организации %s: %v", org.ID, err)
		}
	}

	log.Printf("Кэш аналитики обновлен для %d организаций", len(orgs))
}

// CheckStaleLeads находит лидов, зависших в статусе "new",
// и уведомляет организации
func (ls *LeadScheduler) CheckStaleLeads() {
	orgs, err := ls.activeOrganizations()
	if err != nil {
		log.Printf("Ошибка загрузки организаций для проверки лидов: %v", err)
		return
	}

	cutoff := time.Now().AddDate(0, 0, -staleLeadAgeDays)
	for _, org := range orgs {
		var count int64
		err := ls.db.Model(&models.Lead{}).
			Where("organization_id = ? AND status = ? AND created_at < ?", org.ID, models.LeadStatusNew, cutoff).
			Count(&count).Error
		if err != nil {
			log.Printf("Ошибка подсчета зависших лидов для организации %s: %v", org.ID, err)
			continue
		}

		if count > 0 && ls.notification != nil {
			ls.notification.NotifyStaleLeads(&org, count, staleLeadAgeDays)
		}
	}
}

// activeOrganizations возвращает все активные организации
func (ls *LeadScheduler) activeOrganizations() ([]models.Organization, error) {
	var orgs []models.Organization
	if err := ls.db.Where("is_active = ?", true).Find(&orgs).Error; err != nil {
		return nil, err
	}
	return orgs, nil
}
