package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupModelTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&Organization{}, &Lead{}, &Account{}, &Contact{}, &Opportunity{}))
	return db
}

func TestIsValidLeadStatus(t *testing.T) {
	for _, status := range LeadStatuses {
		assert.True(t, IsValidLeadStatus(status), status)
	}
	assert.False(t, IsValidLeadStatus("in_progress"))
	assert.False(t, IsValidLeadStatus(""))
}

func TestLead_BeforeCreateDefaults(t *testing.T) {
	db := setupModelTestDB(t)

	lead := Lead{
		FirstName:      "Jane",
		LastName:       "Smith",
		Email:          "jane@acme.com",
		OrganizationID: uuid.New(),
	}
	require.NoError(t, db.Create(&lead).Error)

	assert.NotEqual(t, uuid.Nil, lead.ID)
	assert.Equal(t, LeadStatusNew, lead.Status)
}

func TestLead_ConversionFlagConsistency(t *testing.T) {
	db := setupModelTestDB(t)

	now := time.Now()
	accountID := uuid.New()

	// Отметка времени без обратных ссылок не делает лида конвертированным
	lead := Lead{
		FirstName:      "Jane",
		LastName:       "Smith",
		Email:          "jane@acme.com",
		ConvertedAt:    &now,
		OrganizationID: uuid.New(),
	}
	require.NoError(t, db.Create(&lead).Error)
	assert.False(t, lead.IsConverted)

	// Отметка и ссылка вместе включают признак
	lead.ConvertedAccountID = &accountID
	require.NoError(t, db.Save(&lead).Error)
	assert.True(t, lead.IsConverted)

	// Сброс отметки снимает признак даже при наличии ссылки
	lead.ConvertedAt = nil
	require.NoError(t, db.Save(&lead).Error)
	assert.False(t, lead.IsConverted)
}

func TestLead_UniqueEmailPerOrganization(t *testing.T) {
	db := setupModelTestDB(t)

	orgA := uuid.New()
	orgB := uuid.New()

	first := Lead{FirstName: "A", LastName: "B", Email: "dup@x.com", OrganizationID: orgA}
	require.NoError(t, db.Create(&first).Error)

	// Дубликат внутри организации отклоняется индексом
	dup := Lead{FirstName: "C", LastName: "D", Email: "dup@x.com", OrganizationID: orgA}
	assert.Error(t, db.Create(&dup).Error)

	// Тот же email в другой организации допустим
	other := Lead{FirstName: "E", LastName: "F", Email: "dup@x.com", OrganizationID: orgB}
	assert.NoError(t, db.Create(&other).Error)
}

func TestLead_FullNameAndTerminal(t *testing.T) {
	lead := Lead{FirstName: "Jane", LastName: "Smith", Status: LeadStatusNew}
	assert.Equal(t, "Jane Smith", lead.FullName())
	assert.False(t, lead.IsTerminal())

	lead.Status = LeadStatusConverted
	assert.True(t, lead.IsTerminal())

	lead.Status = LeadStatusLost
	assert.True(t, lead.IsTerminal())
}
