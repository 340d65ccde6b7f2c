package services

import (
	"database/sql"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"backend_crm/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Параметры пагинации по умолчанию
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// LeadService реализует хранилище лидов, проверку переходов статусов,
// транзакционную конверсию и аналитику воронки. Все запросы фильтруются
// по organization_id.
type LeadService struct {
	db    *gorm.DB
	cache *CacheService
}

// NewLeadService создает новый экземпляр LeadService.
// Зависимости передаются явно при старте приложения.
func NewLeadService(db *gorm.DB, cache *CacheService) *LeadService {
	return &LeadService{db: db, cache: cache}
}

// CreateLeadRequest содержит данные для создания лида
type CreateLeadRequest struct {
	FirstName    string             `json:"first_name" binding:"required"`
	LastName     string             `json:"last_name" binding:"required"`
	Email        string             `json:"email" binding:"required,email"`
	PhoneNumber  string             `json:"phone_number"`
	Company      string             `json:"company"`
	JobTitle     string             `json:"job_title"`
	Source       string             `json:"source" binding:"required"`
	AssignedToID *uuid.UUID         `json:"assigned_to_id"`
	Tags         models.StringArray `json:"tags"`
	Notes        string             `json:"notes"`
	CustomFields models.JSONMap     `json:"custom_fields"`
}

// UpdateLeadRequest содержит частичное обновление лида.
// Нулевые указатели означают "поле не меняется".
type UpdateLeadRequest struct {
	FirstName    *string             `json:"first_name"`
	LastName     *string             `json:"last_name"`
	Email        *string             `json:"email"`
	PhoneNumber  *string             `json:"phone_number"`
	Company      *string             `json:"company"`
	JobTitle     *string             `json:"job_title"`
	Status       *string             `json:"status"`
	Source       *string             `json:"source"`
	Score        *int                `json:"score"`
	AssignedToID *uuid.UUID          `json:"assigned_to_id"`
	Tags         *models.StringArray `json:"tags"`
	Notes        *string             `json:"notes"`
	CustomFields *models.JSONMap     `json:"custom_fields"`
}

// LeadFilter содержит структурированные фильтры поиска
type LeadFilter struct {
	Status       []string    `json:"status" form:"status"`
	AssignedToID []uuid.UUID `json:"assigned_to_id" form:"assigned_to_id"`
	Source       []string    `json:"source" form:"source"`
	ScoreMin     *int        `json:"score_min" form:"score_min"`
	ScoreMax     *int        `json:"score_max" form:"score_max"`
	DateStart    *time.Time  `json:"date_start" form:"date_start"`
	DateEnd      *time.Time  `json:"date_end" form:"date_end"`
	Tags         []string    `json:"tags" form:"tags"`
	CompanyName  string      `json:"company_name" form:"company_name"`
	IsConverted  *bool       `json:"is_converted" form:"is_converted"`
}

// LeadSearchOptions — полный набор параметров поиска лидов
type LeadSearchOptions struct {
	Search         string
	Page           int
	Limit          int
	SortBy         string
	SortOrder      string
	Filter         LeadFilter
	OrganizationID uuid.UUID
}

// PaginatedLeads — страница результатов поиска с метаданными пагинации
type PaginatedLeads struct {
	Items      []models.Lead `json:"items"`
	Total      int64         `json:"total"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	TotalPages int           `json:"total_pages"`
	HasNext    bool          `json:"has_next"`
	HasPrev    bool          `json:"has_prev"`
}

// NormalizePagination приводит параметры пагинации к допустимым границам:
// page >= 1, limit в диапазоне [1, MaxPageLimit]
func NormalizePagination(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

// NewPaginatedLeads собирает страницу результатов с метаданными
func NewPaginatedLeads(items []models.Lead, total int64, page, limit int) *PaginatedLeads {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &PaginatedLeads{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// Разрешенные поля сортировки -> имена колонок
var leadSortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"first_name": "first_name",
	"last_name":  "last_name",
	"email":      "email",
	"company":    "company",
	"status":     "status",
	"score":      "score",
}

// CreateLead создает нового лида в статусе "new".
// Email должен быть уникален внутри организации.
func (s *LeadService) CreateLead(req CreateLeadRequest, createdByID, organizationID uuid.UUID) (*models.Lead, error) {
	var existing int64
	if err := s.db.Model(&models.Lead{}).
		Where("email = ? AND organization_id = ?", req.Email, organizationID).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("ошибка проверки уникальности email: %w", err)
	}
	if existing > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateEmail, req.Email)
	}

	lead := models.Lead{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		PhoneNumber:    req.PhoneNumber,
		Company:        req.Company,
		JobTitle:       req.JobTitle,
		Source:         req.Source,
		Status:         models.LeadStatusNew,
		AssignedToID:   req.AssignedToID,
		Tags:           req.Tags,
		Notes:          req.Notes,
		CustomFields:   req.CustomFields,
		CreatedByID:    createdByID,
		OrganizationID: organizationID,
	}

	if err := s.db.Create(&lead).Error; err != nil {
		return nil, fmt.Errorf("ошибка создания лида: %w", err)
	}

	s.invalidateLeadCaches(organizationID, lead.ID)
	log.Printf("Создан лид %s (%s)", lead.ID, lead.Email)
	return &lead, nil
}

// UpdateLead применяет частичное обновление полей лида
func (s *LeadService) UpdateLead(id uuid.UUID, req UpdateLeadRequest, organizationID uuid.UUID) (*models.Lead, error) {
	lead, err := s.findLead(id, organizationID)
	if err != nil {
		return nil, err
	}

	// Проверка уникальности только при смене email
	if req.Email != nil && *req.Email != lead.Email {
		var existing int64
		if err := s.db.Model(&models.Lead{}).
			Where("email = ? AND organization_id = ? AND id <> ?", *req.Email, organizationID, id).
			Count(&existing).Error; err != nil {
			return nil, fmt.Errorf("ошибка проверки уникальности email: %w", err)
		}
		if existing > 0 {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEmail, *req.Email)
		}
		lead.Email = *req.Email
	}

	if req.Status != nil {
		if !models.IsValidLeadStatus(*req.Status) {
			return nil, fmt.Errorf("%w: неизвестный статус %q", ErrValidation, *req.Status)
		}
		lead.Status = *req.Status
	}
	if req.Score != nil {
		if *req.Score < 0 || *req.Score > 100 {
			return nil, fmt.Errorf("%w: оценка должна быть в диапазоне 0-100", ErrValidation)
		}
		lead.Score = req.Score
	}
	if req.FirstName != nil {
		lead.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		lead.LastName = *req.LastName
	}
	if req.PhoneNumber != nil {
		lead.PhoneNumber = *req.PhoneNumber
	}
	if req.Company != nil {
		lead.Company = *req.Company
	}
	if req.JobTitle != nil {
		lead.JobTitle = *req.JobTitle
	}
	if req.Source != nil {
		lead.Source = *req.Source
	}
	if req.AssignedToID != nil {
		lead.AssignedToID = req.AssignedToID
	}
	if req.Tags != nil {
		lead.Tags = *req.Tags
	}
	if req.Notes != nil {
		lead.Notes = *req.Notes
	}
	if req.CustomFields != nil {
		lead.CustomFields = *req.CustomFields
	}

	if err := s.db.Save(lead).Error; err != nil {
		return nil, fmt.Errorf("ошибка обновления лида: %w", err)
	}

	s.invalidateLeadCaches(organizationID, lead.ID)
	return lead, nil
}

// GetLeadByID возвращает лида организации или nil, если он не найден
func (s *LeadService) GetLeadByID(id uuid.UUID, organizationID uuid.UUID) (*models.Lead, error) {
	if s.cache != nil {
		var cached models.Lead
		if err := s.cache.GetJSON(leadCacheKey(organizationID, id), &cached); err == nil {
			return &cached, nil
		}
	}

	var lead models.Lead
	err := s.db.Where("id = ? AND organization_id = ?", id, organizationID).First(&lead).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения лида: %w", err)
	}

	if s.cache != nil {
		// Короткий TTL: данные лида часто меняются
		s.cache.SetJSON(leadCacheKey(organizationID, id), &lead, 30*time.Second)
	}
	return &lead, nil
}

// GetLeadsByIDs возвращает лидов организации по списку идентификаторов.
// Пустой вход дает пустой результат без обращения к БД.
func (s *LeadService) GetLeadsByIDs(ids []uuid.UUID, organizationID uuid.UUID) ([]models.Lead, error) {
	if len(ids) == 0 {
		return []models.Lead{}, nil
	}

	var leads []models.Lead
	if err := s.db.Where("id IN ? AND organization_id = ?", ids, organizationID).Find(&leads).Error; err != nil {
		return nil, fmt.Errorf("ошибка получения лидов: %w", err)
	}
	return leads, nil
}

// SearchLeads выполняет поиск лидов с фильтрацией, сортировкой и пагинацией
func (s *LeadService) SearchLeads(opts LeadSearchOptions) (*PaginatedLeads, error) {
	page, limit := NormalizePagination(opts.Page, opts.Limit)

	query := s.db.Model(&models.Lead{}).Where("organization_id = ?", opts.OrganizationID)

	// Полнотекстовый поиск без учета регистра
	if opts.Search != "" {
		pattern := "%" + strings.ToLower(opts.Search) + "%"
		query = query.Where(
			"LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(company) LIKE ?",
			pattern, pattern, pattern, pattern)
	}

	f := opts.Filter
	if len(f.Status) > 0 {
		query = query.Where("status IN ?", f.Status)
	}
	if len(f.AssignedToID) > 0 {
		query = query.Where("assigned_to_id IN ?", f.AssignedToID)
	}
	if len(f.Source) > 0 {
		query = query.Where("source IN ?", f.Source)
	}
	if f.ScoreMin != nil && f.ScoreMax != nil {
		query = query.Where("score BETWEEN ? AND ?", *f.ScoreMin, *f.ScoreMax)
	} else if f.ScoreMin != nil {
		query = query.Where("score >= ?", *f.ScoreMin)
	} else if f.ScoreMax != nil {
		query = query.Where("score <= ?", *f.ScoreMax)
	}
	if f.DateStart != nil && f.DateEnd != nil {
		query = query.Where("created_at BETWEEN ? AND ?", *f.DateStart, *f.DateEnd)
	} else if f.DateStart != nil {
		query = query.Where("created_at >= ?", *f.DateStart)
	} else if f.DateEnd != nil {
		query = query.Where("created_at <= ?", *f.DateEnd)
	}
	if len(f.Tags) > 0 {
		// Непустое пересечение тегов: хотя бы один тег присутствует
		// в сериализованной JSON-колонке
		conditions := make([]string, 0, len(f.Tags))
		args := make([]interface{}, 0, len(f.Tags))
		for _, tag := range f.Tags {
			conditions = append(conditions, "tags LIKE ?")
			args = append(args, `%"`+tag+`"%`)
		}
		query = query.Where(strings.Join(conditions, " OR "), args...)
	}
	if f.CompanyName != "" {
		query = query.Where("LOWER(company) LIKE ?", "%"+strings.ToLower(f.CompanyName)+"%")
	}
	if f.IsConverted != nil {
		query = query.Where("is_converted = ?", *f.IsConverted)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("ошибка подсчета лидов: %w", err)
	}

	// Сортировка только по разрешенным колонкам
	column, ok := leadSortColumns[opts.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(opts.SortOrder, "asc") {
		direction = "ASC"
	}

	var leads []models.Lead
	if err := query.Order(column + " " + direction).
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&leads).Error; err != nil {
		return nil, fmt.Errorf("ошибка поиска лидов: %w", err)
	}

	return NewPaginatedLeads(leads, total, page, limit), nil
}

// DeleteLead удаляет лида. Конвертированный лид удалить нельзя.
// Запись удаляется физически: email удаленного лида снова доступен
// для создания нового.
func (s *LeadService) DeleteLead(id uuid.UUID, organizationID uuid.UUID) error {
	lead, err := s.findLead(id, organizationID)
	if err != nil {
		return err
	}

	if lead.IsConverted {
		return fmt.Errorf("%w: нельзя удалить конвертированного лида", ErrInvalidState)
	}

	if err := s.db.Unscoped().Delete(lead).Error; err != nil {
		return fmt.Errorf("ошибка удаления лида: %w", err)
	}

	s.invalidateLeadCaches(organizationID, id)
	log.Printf("Удален лид %s", id)
	return nil
}

// AssignLead назначает ответственного за лида
func (s *LeadService) AssignLead(id uuid.UUID, assignedToID uuid.UUID, organizationID uuid.UUID) (*models.Lead, error) {
	lead, err := s.findLead(id, organizationID)
	if err != nil {
		return nil, err
	}

	lead.AssignedToID = &assignedToID
	if err := s.db.Save(lead).Error; err != nil {
		return nil, fmt.Errorf("ошибка назначения лида: %w", err)
	}

	s.invalidateLeadCaches(organizationID, id)
	return lead, nil
}

// BulkAssignLeads назначает ответственного для набора лидов одним запросом.
// Идентификаторы, не найденные в организации, молча пропускаются.
func (s *LeadService) BulkAssignLeads(ids []uuid.UUID, assignedToID uuid.UUID, organizationID uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result := s.db.Model(&models.Lead{}).
		Where("id IN ? AND organization_id = ?", ids, organizationID).
		Update("assigned_to_id", assignedToID)
	if result.Error != nil {
		return 0, fmt.Errorf("ошибка массового назначения лидов: %w", result.Error)
	}

	s.invalidateLeadCaches(organizationID, ids...)
	log.Printf("Массовое назначение: %d из %d лидов", result.RowsAffected, len(ids))
	return result.RowsAffected, nil
}

// BulkUpdateLeadStatus обновляет статус набора лидов одним запросом.
// Идентификаторы, не найденные в организации, молча пропускаются.
func (s *LeadService) BulkUpdateLeadStatus(ids []uuid.UUID, status string, organizationID uuid.UUID) (int64, error) {
	if !models.IsValidLeadStatus(status) {
		return 0, fmt.Errorf("%w: неизвестный статус %q", ErrValidation, status)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	result := s.db.Model(&models.Lead{}).
		Where("id IN ? AND organization_id = ?", ids, organizationID).
		Update("status", status)
	if result.Error != nil {
		return 0, fmt.Errorf("ошибка массового обновления статуса: %w", result.Error)
	}

	s.invalidateLeadCaches(organizationID, ids...)
	return result.RowsAffected, nil
}

// UpdateLeadScore устанавливает оценку лида (0-100)
func (s *LeadService) UpdateLeadScore(id uuid.UUID, score int, organizationID uuid.UUID) (*models.Lead, error) {
	if score < 0 || score > 100 {
		return nil, fmt.Errorf("%w: оценка должна быть в диапазоне 0-100", ErrValidation)
	}

	lead, err := s.findLead(id, organizationID)
	if err != nil {
		return nil, err
	}

	lead.Score = &score
	if err := s.db.Save(lead).Error; err != nil {
		return nil, fmt.Errorf("ошибка обновления оценки лида: %w", err)
	}

	s.invalidateLeadCaches(organizationID, id)
	return lead, nil
}

// GetLeadsByAssignee возвращает лидов, назначенных пользователю
func (s *LeadService) GetLeadsByAssignee(assignedToID uuid.UUID, organizationID uuid.UUID) ([]models.Lead, error) {
	var leads []models.Lead
	if err := s.db.Where("assigned_to_id = ? AND organization_id = ?", assignedToID, organizationID).
		Order("created_at DESC").
		Find(&leads).Error; err != nil {
		return nil, fmt.Errorf("ошибка получения лидов по назначению: %w", err)
	}
	return leads, nil
}

// GetRecentLeads возвращает последних созданных лидов организации
func (s *LeadService) GetRecentLeads(organizationID uuid.UUID, limit int) ([]models.Lead, error) {
	if limit < 1 {
		limit = 10
	}

	var leads []models.Lead
	if err := s.db.Where("organization_id = ?", organizationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&leads).Error; err != nil {
		return nil, fmt.Errorf("ошибка получения последних лидов: %w", err)
	}
	return leads, nil
}

// GetLeadSources возвращает список различных непустых источников лидов
func (s *LeadService) GetLeadSources(organizationID uuid.UUID) ([]string, error) {
	var sources []string
	if err := s.db.Model(&models.Lead{}).
		Where("organization_id = ? AND source <> ''", organizationID).
		Distinct("source").
		Order("source").
		Pluck("source", &sources).Error; err != nil {
		return nil, fmt.Errorf("ошибка получения источников лидов: %w", err)
	}
	return sources, nil
}

// findLead загружает лида организации, возвращая ErrNotFound при отсутствии
func (s *LeadService) findLead(id uuid.UUID, organizationID uuid.UUID) (*models.Lead, error) {
	var lead models.Lead
	err := s.db.Where("id = ? AND organization_id = ?", id, organizationID).First(&lead).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("%w: лид %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения лида: %w", err)
	}
	return &lead, nil
}

// invalidateLeadCaches сбрасывает кэши, затронутые мутацией лидов
func (s *LeadService) invalidateLeadCaches(organizationID uuid.UUID, ids ...uuid.UUID) {
	if s.cache == nil {
		return
	}
	for _, id := range ids {
		s.cache.Del(leadCacheKey(organizationID, id))
	}
	s.cache.Del(analyticsCacheKey(organizationID))
	s.cache.Del(sourcesCacheKey(organizationID))
}

// ----------------------------------------------------------------------------
// Конверсия лида
// ----------------------------------------------------------------------------

// ConvertLeadRequest содержит опции конверсии квалифицированного лида
type ConvertLeadRequest struct {
	CreateAccount     bool       `json:"create_account"`
	AccountName       string     `json:"account_name"`
	CreateContact     bool       `json:"create_contact"`
	CreateOpportunity bool       `json:"create_opportunity"`
	OpportunityName   string     `json:"opportunity_name"`
	OpportunityAmount *float64   `json:"opportunity_amount"`
	OpportunityStage  string     `json:"opportunity_stage"`
	ExpectedCloseDate *time.Time `json:"expected_close_date"`
}

// ConversionResult содержит результат конверсии: обновленного лида
// и созданные сущности (отсутствующие равны nil)
type ConversionResult struct {
	Lead        *models.Lead        `json:"lead"`
	Account     *models.Account     `json:"account,omitempty"`
	Contact     *models.Contact     `json:"contact,omitempty"`
	Opportunity *models.Opportunity `json:"opportunity,omitempty"`
}

// ConvertLead атомарно конвертирует квалифицированного лида в Account,
// Contact и Opportunity (каждая сущность опциональна) и помечает лида
// конвертированным. Все записи выполняются в одной транзакции: при любой
// ошибке ни одно изменение не сохраняется.
func (s *LeadService) ConvertLead(id uuid.UUID, req ConvertLeadRequest, convertedByID, organizationID uuid.UUID) (*ConversionResult, error) {
	tx := s.db.Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("ошибка открытия транзакции: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	var lead models.Lead
	err := tx.Where("id = ? AND organization_id = ?", id, organizationID).First(&lead).Error
	if err == gorm.ErrRecordNotFound {
		tx.Rollback()
		return nil, fmt.Errorf("%w: лид %s", ErrNotFound, id)
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("ошибка получения лида: %w", err)
	}

	if lead.IsConverted {
		tx.Rollback()
		return nil, fmt.Errorf("%w: лид уже конвертирован", ErrInvalidState)
	}
	if lead.Status != models.LeadStatusQualified {
		tx.Rollback()
		return nil, fmt.Errorf("%w: лид должен быть квалифицирован перед конверсией", ErrInvalidState)
	}

	// Ответственный за созданные сущности: текущий назначенный или конвертирующий
	ownerID := convertedByID
	if lead.AssignedToID != nil {
		ownerID = *lead.AssignedToID
	}

	var account *models.Account
	var contact *models.Contact
	var opportunity *models.Opportunity

	// Шаг 1: аккаунт
	if req.CreateAccount && req.AccountName != "" {
		account = &models.Account{
			Name:           req.AccountName,
			Type:           models.AccountTypeProspect,
			Email:          lead.Email,
			PhoneNumber:    lead.PhoneNumber,
			Description:    fmt.Sprintf("Создан при конверсии лида: %s", lead.FullName()),
			OwnerID:        ownerID,
			CreatedByID:    convertedByID,
			OrganizationID: organizationID,
		}
		if err := tx.Create(account).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("ошибка создания аккаунта: %w", err)
		}
	}

	// Шаг 2: контакт
	if req.CreateContact {
		contact = &models.Contact{
			FirstName:      lead.FirstName,
			LastName:       lead.LastName,
			Email:          lead.Email,
			PhoneNumber:    lead.PhoneNumber,
			JobTitle:       lead.JobTitle,
			IsPrimary:      true,
			Notes:          lead.Notes,
			Tags:           lead.Tags,
			CustomFields:   lead.CustomFields,
			CreatedByID:    convertedByID,
			OrganizationID: organizationID,
		}
		if account != nil {
			contact.AccountID = &account.ID
		}
		if err := tx.Create(contact).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("ошибка создания контакта: %w", err)
		}
	}

	// Шаг 3: сделка. Сделка без аккаунта запрещена.
	if req.CreateOpportunity && req.OpportunityName != "" {
		if account == nil {
			tx.Rollback()
			return nil, fmt.Errorf("%w: нельзя создать сделку без аккаунта", ErrInvalidState)
		}

		stage := req.OpportunityStage
		if stage == "" {
			stage = models.OpportunityStageProspecting
		}
		if !models.IsValidOpportunityStage(stage) {
			tx.Rollback()
			return nil, fmt.Errorf("%w: неизвестная стадия сделки %q", ErrValidation, stage)
		}

		amount := decimal.Zero
		if req.OpportunityAmount != nil {
			amount = decimal.NewFromFloat(*req.OpportunityAmount)
		}

		closeDate := req.ExpectedCloseDate
		if closeDate == nil {
			d := time.Now().AddDate(0, 0, 90)
			closeDate = &d
		}

		opportunity = &models.Opportunity{
			Name:              req.OpportunityName,
			Description:       fmt.Sprintf("Создана при конверсии лида: %s", lead.FullName()),
			AccountID:         account.ID,
			OwnerID:           ownerID,
			Stage:             stage,
			Amount:            amount,
			Probability:       models.DefaultOpportunityProbability,
			ExpectedCloseDate: closeDate,
			Source:            lead.Source,
			Tags:              lead.Tags,
			CustomFields:      lead.CustomFields,
			CreatedByID:       convertedByID,
			OrganizationID:    organizationID,
		}
		if contact != nil {
			opportunity.ContactID = &contact.ID
		}
		if err := tx.Create(opportunity).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("ошибка создания сделки: %w", err)
		}
	}

	// Шаг 4: помечаем лида конвертированным
	now := time.Now()
	lead.Status = models.LeadStatusConverted
	lead.ConvertedAt = &now
	if account != nil {
		lead.ConvertedAccountID = &account.ID
	}
	if contact != nil {
		lead.ConvertedContactID = &contact.ID
	}
	if opportunity != nil {
		lead.ConvertedOpportunityID = &opportunity.ID
	}

	if err := tx.Save(&lead).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("ошибка обновления лида: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	s.invalidateLeadCaches(organizationID, id)
	log.Printf("Лид %s конвертирован (account=%v contact=%v opportunity=%v)",
		id, account != nil, contact != nil, opportunity != nil)

	return &ConversionResult{
		Lead:        &lead,
		Account:     account,
		Contact:     contact,
		Opportunity: opportunity,
	}, nil
}

// ----------------------------------------------------------------------------
// Аналитика воронки
// ----------------------------------------------------------------------------

// SourcePerformance — показатели конверсии одного источника
type SourcePerformance struct {
	Source         string  `json:"source"`
	Count          int64   `json:"count"`
	ConversionRate float64 `json:"conversion_rate"`
}

// LeadAnalytics — сводная статистика воронки лидов организации
type LeadAnalytics struct {
	TotalLeads           int64               `json:"total_leads"`
	NewLeads             int64               `json:"new_leads"`
	ConvertedLeads       int64               `json:"converted_leads"`
	ConversionRate       float64             `json:"conversion_rate"`
	LeadsByStatus        map[string]int64    `json:"leads_by_status"`
	LeadsBySource        map[string]int64    `json:"leads_by_source"`
	AverageScore         float64             `json:"average_score"`
	TopPerformingSources []SourcePerformance `json:"top_performing_sources"`
}

// DateRange ограничивает аналитику периодом создания лидов
type DateRange struct {
	Start time.Time
	End   time.Time
}

// GetLeadAnalytics вычисляет статистику воронки лидов организации,
// опционально ограниченную периодом создания.
// Конверсия по каждому источнику считается отдельным запросом —
// приемлемо на объемах CRM.
func (s *LeadService) GetLeadAnalytics(organizationID uuid.UUID, dateRange *DateRange) (*LeadAnalytics, error) {
	scope := func() *gorm.DB {
		q := s.db.Model(&models.Lead{}).Where("organization_id = ?", organizationID)
		if dateRange != nil {
			q = q.Where("created_at BETWEEN ? AND ?", dateRange.Start, dateRange.End)
		}
		return q
	}

	analytics := &LeadAnalytics{
		LeadsByStatus: make(map[string]int64),
		LeadsBySource: make(map[string]int64),
	}

	if err := scope().Count(&analytics.TotalLeads).Error; err != nil {
		return nil, fmt.Errorf("ошибка подсчета лидов: %w", err)
	}

	// Новые лиды: фиксированное окно 7 дней
	weekAgo := time.Now().AddDate(0, 0, -7)
	if err := scope().Where("created_at >= ?", weekAgo).Count(&analytics.NewLeads).Error; err != nil {
		return nil, fmt.Errorf("ошибка подсчета новых лидов: %w", err)
	}

	if err := scope().Where("is_converted = ?", true).Count(&analytics.ConvertedLeads).Error; err != nil {
		return nil, fmt.Errorf("ошибка подсчета конвертированных лидов: %w", err)
	}

	if analytics.TotalLeads > 0 {
		analytics.ConversionRate = float64(analytics.ConvertedLeads) / float64(analytics.TotalLeads) * 100
	}

	// Группировка по статусам: статусы без лидов не включаются
	var statusRows []struct {
		Status string
		Count  int64
	}
	if err := scope().Select("status, COUNT(*) as count").Group("status").Scan(&statusRows).Error; err != nil {
		return nil, fmt.Errorf("ошибка группировки по статусам: %w", err)
	}
	for _, row := range statusRows {
		analytics.LeadsByStatus[row.Status] = row.Count
	}

	// Группировка по источникам
	var sourceRows []struct {
		Source string
		Count  int64
	}
	if err := scope().Select("source, COUNT(*) as count").Group("source").Scan(&sourceRows).Error; err != nil {
		return nil, fmt.Errorf("ошибка группировки по источникам: %w", err)
	}
	for _, row := range sourceRows {
		analytics.LeadsBySource[row.Source] = row.Count
	}

	// Средняя оценка: NULL-значения игнорируются, при отсутствии данных 0
	var avgScore sql.NullFloat64
	if err := scope().Select("AVG(score)").Scan(&avgScore).Error; err != nil {
		return nil, fmt.Errorf("ошибка вычисления средней оценки: %w", err)
	}
	if avgScore.Valid {
		analytics.AverageScore = avgScore.Float64
	}

	// Конверсия по источникам, отсортированная по убыванию
	analytics.TopPerformingSources = make([]SourcePerformance, 0, len(analytics.LeadsBySource))
	for source, count := range analytics.LeadsBySource {
		var converted int64
		if err := scope().Where("source = ? AND is_converted = ?", source, true).Count(&converted).Error; err != nil {
			return nil, fmt.Errorf("ошибка подсчета конверсии источника %q: %w", source, err)
		}

		rate := 0.0
		if count > 0 {
			rate = float64(converted) / float64(count) * 100
		}
		analytics.TopPerformingSources = append(analytics.TopPerformingSources, SourcePerformance{
			Source:         source,
			Count:          count,
			ConversionRate: rate,
		})
	}
	sort.Slice(analytics.TopPerformingSources, func(i, j int) bool {
		return analytics.TopPerformingSources[i].ConversionRate > analytics.TopPerformingSources[j].ConversionRate
	})

	return analytics, nil
}
