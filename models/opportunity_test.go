package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpportunity_WeightedAmount(t *testing.T) {
	db := setupModelTestDB(t)

	opp := Opportunity{
		Name:           "Deal",
		AccountID:      uuid.New(),
		Amount:         decimal.NewFromInt(5000),
		Probability:    25,
		OrganizationID: uuid.New(),
	}
	require.NoError(t, db.Create(&opp).Error)

	// 5000 * 25% = 1250
	assert.True(t, opp.WeightedAmount.Equal(decimal.NewFromInt(1250)),
		"got %s", opp.WeightedAmount)

	// Пересчет при изменении вероятности
	opp.Probability = 50
	require.NoError(t, db.Save(&opp).Error)
	assert.True(t, opp.WeightedAmount.Equal(decimal.NewFromInt(2500)))
}

func TestOpportunity_ClosedFlags(t *testing.T) {
	db := setupModelTestDB(t)

	opp := Opportunity{
		Name:           "Deal",
		AccountID:      uuid.New(),
		Stage:          OpportunityStageNegotiation,
		OrganizationID: uuid.New(),
	}
	require.NoError(t, db.Create(&opp).Error)
	assert.False(t, opp.IsClosed)
	assert.Nil(t, opp.ActualCloseDate)

	opp.Stage = OpportunityStageClosedWon
	require.NoError(t, db.Save(&opp).Error)
	assert.True(t, opp.IsClosed)
	assert.True(t, opp.IsWon)
	require.NotNil(t, opp.ActualCloseDate)

	lost := Opportunity{
		Name:           "Lost deal",
		AccountID:      uuid.New(),
		Stage:          OpportunityStageClosedLost,
		OrganizationID: uuid.New(),
	}
	require.NoError(t, db.Create(&lost).Error)
	assert.True(t, lost.IsClosed)
	assert.False(t, lost.IsWon)
	assert.True(t, lost.IsLost())
}

func TestIsValidOpportunityStage(t *testing.T) {
	for _, stage := range OpportunityStages {
		assert.True(t, IsValidOpportunityStage(stage), stage)
	}
	assert.False(t, IsValidOpportunityStage("discovery"))
}

func TestOpportunity_DefaultStage(t *testing.T) {
	db := setupModelTestDB(t)

	opp := Opportunity{
		Name:           "Deal",
		AccountID:      uuid.New(),
		OrganizationID: uuid.New(),
	}
	require.NoError(t, db.Create(&opp).Error)
	assert.Equal(t, OpportunityStageProspecting, opp.Stage)
}
