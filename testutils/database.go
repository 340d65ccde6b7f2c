package testutils

import (
	"fmt"
	"log"

	"backend_crm/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB создает и настраивает тестовую базу данных в памяти
// Эта функция должна использоваться во всех тестах для обеспечения консистентности
func SetupTestDB() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// Выполняем миграции в правильном порядке:
	// сначала тенант, затем сущности с привязкой к нему
	err = db.AutoMigrate(
		&models.Organization{},
		&models.User{},
		&models.Lead{},
		&models.Account{},
		&models.Contact{},
		&models.Opportunity{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}

// CleanupTestDB очищает тестовую базу данных
func CleanupTestDB(db *gorm.DB) {
	if db != nil {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	}
}

// CreateTestOrganization создает тестовую организацию
func CreateTestOrganization(db *gorm.DB) *models.Organization {
	organization := &models.Organization{
		Name:     "Test Organization",
		Domain:   fmt.Sprintf("test-%s.example.com", uuid.New().String()[:8]),
		IsActive: true,
	}

	if err := db.Create(organization).Error; err != nil {
		log.Printf("Failed to create test organization: %v", err)
		return nil
	}

	return organization
}

// CreateTestUser создает тестового пользователя в организации
func CreateTestUser(db *gorm.DB, organizationID uuid.UUID) *models.User {
	user := &models.User{
		Username:       fmt.Sprintf("testuser-%s", uuid.New().String()[:8]),
		Email:          fmt.Sprintf("test-%s@example.com", uuid.New().String()[:8]),
		FirstName:      "Test",
		LastName:       "User",
		Role:           "sales_rep",
		IsActive:       true,
		OrganizationID: organizationID,
	}
	if err := user.SetPassword("test_password"); err != nil {
		log.Printf("Failed to hash test password: %v", err)
		return nil
	}

	if err := db.Create(user).Error; err != nil {
		log.Printf("Failed to create test user: %v", err)
		return nil
	}

	return user
}

// CreateTestLead создает тестового лида в организации
func CreateTestLead(db *gorm.DB, organizationID uuid.UUID) *models.Lead {
	suffix := uuid.New().String()[:8]
	lead := &models.Lead{
		FirstName:      "John",
		LastName:       "Doe",
		Email:          fmt.Sprintf("john.doe-%s@example.com", suffix),
		Company:        "Test Corp",
		Source:         "website",
		Status:         models.LeadStatusNew,
		OrganizationID: organizationID,
	}

	if err := db.Create(lead).Error; err != nil {
		log.Printf("Failed to create test lead: %v", err)
		return nil
	}

	return lead
}

// CreateTestAccount создает тестовый аккаунт в организации
func CreateTestAccount(db *gorm.DB, organizationID uuid.UUID) *models.Account {
	account := &models.Account{
		Name:           "Test Account",
		Type:           models.AccountTypeProspect,
		OrganizationID: organizationID,
	}

	if err := db.Create(account).Error; err != nil {
		log.Printf("Failed to create test account: %v", err)
		return nil
	}

	return account
}
