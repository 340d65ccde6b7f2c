package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Статусы лида. Воронка: new -> qualified -> contacted -> converted | lost.
// Строгая таблица переходов не применяется: обновление статуса допускается
// в любом направлении, жестко проверяется только предусловие конверсии.
const (
	LeadStatusNew       = "new"
	LeadStatusQualified = "qualified"
	LeadStatusContacted = "contacted"
	LeadStatusConverted = "converted"
	LeadStatusLost      = "lost"
)

// LeadStatuses перечисляет все допустимые статусы лида
var LeadStatuses = []string{
	LeadStatusNew,
	LeadStatusQualified,
	LeadStatusContacted,
	LeadStatusConverted,
	LeadStatusLost,
}

// IsValidLeadStatus проверяет, что статус входит в список допустимых
func IsValidLeadStatus(status string) bool {
	for _, s := range LeadStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Lead представляет потенциального клиента — входную точку воронки продаж.
// Email уникален в пределах организации. После конверсии лид хранит
// обратные ссылки на созданные Account/Contact/Opportunity и не может
// быть удален.
type Lead struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primarykey"`
	CreatedAt time.Time      `json:"created_at" gorm:"index"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Контактные данные
	FirstName   string `json:"first_name" gorm:"not null;type:varchar(64)"`
	LastName    string `json:"last_name" gorm:"not null;type:varchar(64)"`
	Email       string `json:"email" gorm:"not null;type:varchar(100);index:idx_leads_org_email,unique"`
	PhoneNumber string `json:"phone_number" gorm:"type:varchar(32)"`
	Company     string `json:"company" gorm:"type:varchar(100);index"`
	JobTitle    string `json:"job_title" gorm:"type:varchar(100)"`

	// Воронка
	Status string `json:"status" gorm:"default:'new';type:varchar(20);index"`
	Source string `json:"source" gorm:"type:varchar(100);index"` // Канал происхождения (web, referral, ...)
	Score  *int   `json:"score"`                                 // Оценка лида 0-100, может отсутствовать

	// Назначение
	AssignedToID *uuid.UUID `json:"assigned_to_id" gorm:"type:uuid;index"`

	// Результат конверсии. Поля заполняются совместно в одной транзакции
	ConvertedAccountID     *uuid.UUID `json:"converted_account_id" gorm:"type:uuid"`
	ConvertedContactID     *uuid.UUID `json:"converted_contact_id" gorm:"type:uuid"`
	ConvertedOpportunityID *uuid.UUID `json:"converted_opportunity_id" gorm:"type:uuid"`
	ConvertedAt            *time.Time `json:"converted_at"`
	IsConverted            bool       `json:"is_converted" gorm:"default:false;index"`

	// Произвольные данные
	Tags         StringArray `json:"tags" gorm:"type:text"`
	Notes        string      `json:"notes" gorm:"type:text"`
	CustomFields JSONMap     `json:"custom_fields" gorm:"type:text"`

	// Аудит и тенант
	CreatedByID    uuid.UUID `json:"created_by_id" gorm:"type:uuid"`
	OrganizationID uuid.UUID `json:"organization_id" gorm:"type:uuid;not null;index;index:idx_leads_org_email,unique"`
}

// TableName задает имя таблицы для модели Lead
func (Lead) TableName() string {
	return "leads"
}

// BeforeCreate вызывается перед созданием записи
func (l *Lead) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Status == "" {
		l.Status = LeadStatusNew
	}
	return nil
}

// BeforeSave поддерживает консистентность признака конверсии:
// is_converted истинен только если задан converted_at и хотя бы одна
// обратная ссылка на созданную сущность
func (l *Lead) BeforeSave(tx *gorm.DB) error {
	l.IsConverted = l.ConvertedAt != nil &&
		(l.ConvertedAccountID != nil || l.ConvertedContactID != nil || l.ConvertedOpportunityID != nil)
	return nil
}

// FullName возвращает полное имя лида
func (l *Lead) FullName() string {
	return l.FirstName + " " + l.LastName
}

// IsTerminal проверяет, находится ли лид в терминальном статусе
func (l *Lead) IsTerminal() bool {
	return l.Status == LeadStatusConverted || l.Status == LeadStatusLost
}
