package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Contact представляет персону в CRM, опционально привязанную к аккаунту
type Contact struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Контактные данные
	FirstName   string `json:"first_name" gorm:"not null;type:varchar(64)"`
	LastName    string `json:"last_name" gorm:"not null;type:varchar(64)"`
	Email       string `json:"email" gorm:"type:varchar(100);index"`
	PhoneNumber string `json:"phone_number" gorm:"type:varchar(32)"`
	JobTitle    string `json:"job_title" gorm:"type:varchar(100)"`
	Department  string `json:"department" gorm:"type:varchar(100)"`

	// Привязка к аккаунту
	AccountID *uuid.UUID `json:"account_id" gorm:"type:uuid;index"`
	IsPrimary bool       `json:"is_primary" gorm:"default:false"` // Основной контакт аккаунта

	// Ограничения на коммуникацию
	DoNotCall  bool `json:"do_not_call" gorm:"default:false"`
	DoNotEmail bool `json:"do_not_email" gorm:"default:false"`

	// Произвольные данные
	Tags         StringArray `json:"tags" gorm:"type:text"`
	Notes        string      `json:"notes" gorm:"type:text"`
	CustomFields JSONMap     `json:"custom_fields" gorm:"type:text"`

	// Аудит и тенант
	CreatedByID    uuid.UUID `json:"created_by_id" gorm:"type:uuid"`
	OrganizationID uuid.UUID `json:"organization_id" gorm:"type:uuid;not null;index"`
}

// TableName задает имя таблицы для модели Contact
func (Contact) TableName() string {
	return "contacts"
}

// BeforeCreate вызывается перед созданием записи
func (c *Contact) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// FullName возвращает полное имя контакта
func (c *Contact) FullName() string {
	return c.FirstName + " " + c.LastName
}

// IsContactable проверяет, доступен ли контакт хотя бы по одному каналу
func (c *Contact) IsContactable() bool {
	return !c.DoNotCall || !c.DoNotEmail
}
