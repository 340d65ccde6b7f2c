package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Типы аккаунтов
const (
	AccountTypeProspect = "prospect"
	AccountTypeCustomer = "customer"
	AccountTypePartner  = "partner"
	AccountTypeVendor   = "vendor"
)

// Account представляет компанию/организацию клиента в CRM.
// Создается напрямую через CRUD или как результат конверсии лида.
type Account struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Основные поля
	Name        string `json:"name" gorm:"not null;type:varchar(100);index"`
	Type        string `json:"type" gorm:"default:'prospect';type:varchar(20)"`
	Industry    string `json:"industry" gorm:"type:varchar(100)"`
	Website     string `json:"website" gorm:"type:varchar(200)"`
	Email       string `json:"email" gorm:"type:varchar(100)"`
	PhoneNumber string `json:"phone_number" gorm:"type:varchar(32)"`
	Description string `json:"description" gorm:"type:text"`

	// Классификация по размеру
	AnnualRevenue     decimal.Decimal `json:"annual_revenue" gorm:"type:decimal(15,2);default:0"`
	NumberOfEmployees int             `json:"number_of_employees" gorm:"default:0"`

	// Адреса
	BillingAddress  string `json:"billing_address" gorm:"type:text"`
	BillingCity     string `json:"billing_city" gorm:"type:varchar(100)"`
	BillingCountry  string `json:"billing_country" gorm:"type:varchar(100)"`
	ShippingAddress string `json:"shipping_address" gorm:"type:text"`
	ShippingCity    string `json:"shipping_city" gorm:"type:varchar(100)"`
	ShippingCountry string `json:"shipping_country" gorm:"type:varchar(100)"`

	// Иерархия аккаунтов
	ParentAccountID *uuid.UUID `json:"parent_account_id" gorm:"type:uuid"`
	ParentAccount   *Account   `json:"parent_account,omitempty" gorm:"foreignKey:ParentAccountID"`

	// Ответственный и аудит
	OwnerID     uuid.UUID `json:"owner_id" gorm:"type:uuid;index"`
	CreatedByID uuid.UUID `json:"created_by_id" gorm:"type:uuid"`

	// Произвольные данные
	Tags         StringArray `json:"tags" gorm:"type:text"`
	CustomFields JSONMap     `json:"custom_fields" gorm:"type:text"`

	// Тенант
	OrganizationID uuid.UUID `json:"organization_id" gorm:"type:uuid;not null;index"`
}

// TableName задает имя таблицы для модели Account
func (Account) TableName() string {
	return "accounts"
}

// BeforeCreate вызывается перед созданием записи
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Type == "" {
		a.Type = AccountTypeProspect
	}
	return nil
}
