package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Organization представляет организацию (tenant) в мультитенантной системе.
// Все сущности CRM принадлежат ровно одной организации, и каждый запрос
// к данным фильтруется по organization_id на уровне репозитория.
type Organization struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Основные поля организации
	Name   string `json:"name" gorm:"not null;type:varchar(100)"`
	Domain string `json:"domain" gorm:"uniqueIndex;type:varchar(100)"` // Поддомен или домен

	// Контактная информация
	ContactEmail  string `json:"contact_email" gorm:"type:varchar(100)"`
	ContactPhone  string `json:"contact_phone" gorm:"type:varchar(20)"`
	ContactPerson string `json:"contact_person" gorm:"type:varchar(100)"`

	// Адрес
	Address string `json:"address" gorm:"type:text"`
	City    string `json:"city" gorm:"type:varchar(100)"`
	Country string `json:"country" gorm:"type:varchar(100)"`

	// Настройки и статус
	IsActive bool   `json:"is_active" gorm:"default:true"`
	MaxUsers int    `json:"max_users" gorm:"default:10"`   // Лимит пользователей
	MaxLeads int    `json:"max_leads" gorm:"default:1000"` // Лимит лидов
	Plan     string `json:"plan" gorm:"default:'free';type:varchar(20)"`

	// Интеграция с Telegram для уведомлений (скрыто в JSON)
	TelegramBotToken string `json:"-" gorm:"type:varchar(100)"`
	TelegramChatID   string `json:"-" gorm:"type:varchar(50)"`

	// Настройки локализации
	Language string `json:"language" gorm:"default:'en';type:varchar(5)"`
	Timezone string `json:"timezone" gorm:"default:'UTC';type:varchar(50)"`
	Currency string `json:"currency" gorm:"default:'USD';type:varchar(3)"`
}

// TableName задает имя таблицы для модели Organization
func (Organization) TableName() string {
	return "organizations"
}

// BeforeCreate вызывается перед созданием записи
func (o *Organization) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
