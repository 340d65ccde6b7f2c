package models

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// User представляет пользователя CRM внутри организации
type User struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Основные поля
	Username string `json:"username" gorm:"not null;type:varchar(64);index:idx_users_org_username,unique"`
	Email    string `json:"email" gorm:"not null;type:varchar(100);index:idx_users_org_email,unique"`
	Password string `json:"-" gorm:"not null"` // Хэш пароля, не возвращается в JSON

	// Дополнительные поля
	FirstName string `json:"first_name" gorm:"type:varchar(64)"`
	LastName  string `json:"last_name" gorm:"type:varchar(64)"`
	Role      string `json:"role" gorm:"default:'sales_rep';type:varchar(30)"`
	IsActive  bool   `json:"is_active" gorm:"default:true"`

	LastLoginAt *time.Time `json:"last_login_at"`

	// Идентификатор субъекта во внешнем identity provider (Keycloak)
	ExternalSubject string `json:"-" gorm:"type:varchar(100);index"`

	// Организация пользователя
	OrganizationID uuid.UUID `json:"organization_id" gorm:"type:uuid;not null;index:idx_users_org_username,unique;index:idx_users_org_email,unique"`
}

// TableName задает имя таблицы для модели User
func (User) TableName() string {
	return "users"
}

// BeforeCreate вызывается перед созданием записи
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// SetPassword хэширует и устанавливает пароль пользователя
func (u *User) SetPassword(password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashed)
	return nil
}

// CheckPassword проверяет пароль пользователя
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) == nil
}

// FullName возвращает полное имя пользователя
func (u *User) FullName() string {
	if u.FirstName == "" && u.LastName == "" {
		return u.Username
	}
	return u.FirstName + " " + u.LastName
}
