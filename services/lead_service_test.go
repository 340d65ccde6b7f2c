package services

import (
	"fmt"
	"testing"
	"time"

	"backend_crm/models"
	"backend_crm/testutils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupLeadTest(t *testing.T) (*gorm.DB, *LeadService, *models.Organization, *models.User) {
	t.Helper()

	db, err := testutils.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { testutils.CleanupTestDB(db) })

	org := testutils.CreateTestOrganization(db)
	require.NotNil(t, org)
	user := testutils.CreateTestUser(db, org.ID)
	require.NotNil(t, user)

	// Кэш в юнит-тестах не используется
	service := NewLeadService(db, nil)
	return db, service, org, user
}

func TestCreateLead_Success(t *testing.T) {
	_, service, org, user := setupLeadTest(t)

	lead, err := service.CreateLead(CreateLeadRequest{
		FirstName: "Jane",
		LastName:  "Smith",
		Email:     "jane.smith@acme.com",
		Company:   "Acme",
		Source:    "website",
		Tags:      models.StringArray{"hot", "enterprise"},
	}, user.ID, org.ID)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, lead.ID)
	assert.Equal(t, models.LeadStatusNew, lead.Status)
	assert.Equal(t, user.ID, lead.CreatedByID)
	assert.Equal(t, org.ID, lead.OrganizationID)
	assert.False(t, lead.IsConverted)
	assert.True(t, lead.Tags.Contains("hot"))
}

func TestCreateLead_DuplicateEmailWithinOrganization(t *testing.T) {
	_, service, org, user := setupLeadTest(t)

	req := CreateLeadRequest{
		FirstName: "Jane",
		LastName:  "Smith",
		Email:     "jane@acme.com",
		Source:    "website",
	}
	_, err := service.CreateLead(req, user.ID, org.ID)
	require.NoError(t, err)

	_, err = service.CreateLead(req, user.ID, org.ID)
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestCreateLead_SameEmailInDifferentOrganizations(t *testing.T) {
	db, service, org, user := setupLeadTest(t)

	otherOrg := testutils.CreateTestOrganization(db)
	require.NotNil(t, otherOrg)
	otherUser := testutils.CreateTestUser(db, otherOrg.ID)
	require.NotNil(t, otherUser)

	req := CreateLeadRequest{
		FirstName: "Jane",
		LastName:  "Smith",
		Email:     "jane@acme.com",
		Source:    "website",
	}

	// Email уникален только внутри организации
	_, err := service.CreateLead(req, user.ID, org.ID)
	require.NoError(t, err)
	_, err = service.CreateLead(req, otherUser.ID, otherOrg.ID)
	assert.NoError(t, err)
}

func TestUpdateLead_PartialUpdate(t *testing.T) {
	db, service, org, _ := setupLeadTest(t)

	lead := testutils.CreateTestLead(db, org.ID)
	require.NotNil(t, lead)

	newStatus := models.LeadStatusQualified
	newCompany := "New Corp"
	updated, err := service.UpdateLead(lead.ID, UpdateLeadRequest{
		Status:  &newStatus,
		Company: &newCompany,
	}, org.ID)

	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusQualified, updated.Status)
	assert.Equal(t, "New Corp", updated.Company)
	// Остальные поля не тронуты
	assert.Equal(t, lead.Email, updated.Email)
	assert.Equal(t, lead.FirstName, updated.FirstName)
}

func TestUpdateLead_InvalidStatus(t *testing.T) {
	db, service, org, _ := setupLeadTest(t)

	lead := testutils.CreateTestLead(db, org.ID)
	require.NotNil(t, lead)

	bad := "in_progress"
	_, err := service.UpdateLead(lead.ID, UpdateLeadRequest{Status: &bad}, org.ID)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateLead_StatusBackwards(t *testing.T) {
	db, service, org, _ := setupLeadTest(t)

	lead := testutils.CreateTestLead(db, org.ID)
	require.NotNil(t, lead)

	// Переходы не ограничены таблицей: откат из qualified в new разрешен
	qualified := models.LeadStatusQualified
	_, err := service.UpdateLead(lead.ID, UpdateLeadRequest{Status: &qualified}, org.ID)
	require.NoError(t, err)

	back := models.LeadStatusNew
	updated, err := service.UpdateLead(lead.ID, UpdateLeadRequest{Status: &back}, org.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusNew, updated.Status)
}

func TestUpdateLead_ScoreOutOfRange(t *testing.T) {
	db, service, org, _ := setupLeadTest(t)

	lead := testutils.CreateTestLead(db, org.ID)
	require.NotNil(t, lead)

	tooBig := 101
	_, err := service.UpdateLead(lead.ID, UpdateLeadRequest{Score: &tooBig}, org.ID)
	assert.ErrorIs(t, err, ErrValidation)

	negative := -1
	_, err = service.UpdateLead(lead.ID, UpdateLeadRequest{Score: &negative}, org.ID)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateLead_DuplicateEmailOnChange(t *testing.T) {
	db, service, org, user := setupLeadTest(t)

	existing, err := service.CreateLead(CreateLeadRequest{
		FirstName: "A", LastName: "B", Email: "taken@acme.com", Source: "web",
	}, user.ID, org.ID)
	require.NoError(t, err)

	lead := testutils.CreateTestLead(db, org.ID)
	require.NotNil(t, lead)

	taken := existing.Email
	_, err = service.UpdateLead(lead.ID, UpdateLeadRequest{Email: &taken}, org.ID)
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	// Сохранение без смены email проходит
	same := lead.Email
	_, err = service.UpdateLead(lead.ID, UpdateLeadRequest{Email: &same}, org.ID)
	assert.NoError(t, err)
}

func TestGetLeadByID_NotFoundReturnsNil(t *testing.T) {
	_, service, org, _ := setupLeadTest(t)

	lead, err := service.GetLeadByID(uuid.New(), org.ID)
	require.NoError(t, err)
	assert.Nil(t, lead)
}

func TestGetLeadByID_OtherOrganizationIsInvisible(t *testing.T) {
	db, service, org, _ := setupLeadTest(t)

	otherOrg := testutils.CreateTestOrganization(db)
	require.NotNil(t, otherOrg)
	foreign := testutils.CreateTestLead(db, otherOrg.ID)
	require.NotNil(t, foreign)

	lead, err := service.GetLeadByID(foreign.ID, org.ID)
	require.NoError(t, err)
	assert.Nil(t, lead)
}

func TestGetLeadsByIDs_EmptyInput(t *testing.T) {
	_, service, org, _ := setupLeadTest(t)

	leads, err := service.GetLeadsByIDs(nil, org.ID)
	require.NoError(t, err)
	assert.Empty(t, leads)
}

func TestSearchLeads_Pagination(t *testing.T) {
	_, service, org, user := setupLeadTest(t)

	for i := 0; i < 47; i++ {
		_, err := service.CreateLead(CreateLeadRequest{
			FirstName: "Lead",
			LastName:  fmt.Sprintf("Number%02d", i),
			Email:     fmt.Sprintf("lead%02d@acme.com", i),
			Source:    "website",
		}, user.ID, org.ID)
		require.NoError(t, err)
	}

	page1, err := service.SearchLeads(LeadSearchOptions{Page: 1, Limit: 20, OrganizationID: org.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(47), page1.Total)
	assert.Equal(t, 3, page1.TotalPages)
	assert.Len(t, page1.Items, 20)
	assert.True(t, page1.HasNext)
	assert.False(t, page1.HasPrev)

	page3, err := service.SearchLeads(LeadSearchOptions{Page: 3, Limit: 20, OrganizationID: org.ID})
	require.NoError(t, err)
	assert.Len(t, page3.Items, 7)
	assert.False(t, page3.HasNext)
	assert.True(t, page3.HasPrev)
}

func TestSearchLeads_Filters(t *testing.T) {
	_, service, org, user := setupLeadTest(t)

	mk := func(email, source, status string, score *int) {
		lead, err := service.CreateLead(CreateLeadRequest{
			FirstName: "F", LastName: "L", Email: email, Source: source,
		}, user.ID, org.ID)
		require.NoError(t, err)
		if status != models.LeadStatusNew || score != nil {
			_, err = service.UpdateLead(lead.ID, UpdateLeadRequest{Status: &status, Score: score}, org.ID)
			require.NoError(t, err)
		}
	}

	hot := 80
	cold := 20
	mk("a@x.com", "website", models.LeadStatusQualified, &hot)
	mk("b@x.com", "website", models.LeadStatusNew, &cold)
	mk("c@x.com", "referral", models.LeadStatusLost, nil)

	byStatus, err := service.SearchLeads(LeadSearchOptions{
		OrganizationID: org.ID,
		Filter:         LeadFilter{Status: []string{models.LeadStatusQualified}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), byStatus.Total)

	bySource, err := service.SearchLeads(LeadSearchOptions{
		OrganizationID: org.ID,
		Filter:         LeadFilter{Source: []string{"referral"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), bySource.Total)

	min := 50
	byScore, err := service.SearchLeads(LeadSearchOptions{
		OrganizationID: org.ID,
		Filter:         LeadFilter{ScoreMin: &min},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), byScore.Total)
}

func TestSearchLeads_OneSidedDateRange(t *testing.T) {
	db, service, org, user := setupLeadTest(t)

	old, err := service.CreateLead(CreateLeadRequest{
		FirstName: "Old", LastName: "Lead", Email: "old@r.com", Source: "web",
	}, user.ID, org.ID)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Lead{}).Where("id = ?", old.ID).
		Update("created_at", time.Now().AddDate(0, -2, 0)).Error)

	_, err = service.CreateLead(CreateLeadRequest{
		FirstName: "Fresh", LastName: "Lead", Email: "fresh@r.com", Source: "web",
	}, user.ID, org.ID)
	require.NoError(t, err)

	weekAgo := time.Now().AddDate(0, 0, -7)
	after, err := service.SearchLeads(LeadSearchOptions{
		OrganizationID: org.ID,
		Filter:         LeadFilter{DateStart: &weekAgo},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), after.Total)
	assert.Equal(t, "fresh@r.com", after.Items[0].Email)

	before, err := service.SearchLeads(LeadSearchOptions{
		OrganizationID: org.ID,
		Filter:         LeadFilter{DateEnd: &weekAgo},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), before.Total)
	assert.Equal(t, "old@r.com", before.Items[0].Email)
}

func TestSearchLeads_CaseInsensitiveSearch(t *testing.T) {
	_, service, org, user := setupLeadTest(t)

	_, err := service.CreateLead(CreateLeadRequest{
		FirstName: "Maria", LastName: "Ivanova", Email: "maria@globex.com",
		Company: "Globex", Source: "web",
	}, user.ID, org.ID)
	require.NoError(t, err)

	result, err := service.SearchLeads(LeadSearchOptions{
		Search:         "GLOBEX",
		OrganizationID: org.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Total)
}

func TestDeleteLead_ConvertedGuard(t *testing.T) {
	db, service, org, user := setupLeadTest(t)

	lead := testutils.CreateTestLead(db, org.ID)
	require.NotNil(t, lead)
	qualified := models.LeadStatusQualified
	_, err := service.UpdateLead(lead.ID, UpdateLeadRequest{Status: &qualified}, org.ID)
	require.NoError(t, err)

	_, err = service.ConvertLead(lead.ID, ConvertLeadRequest{
		CreateAccount: true,
		AccountName:   "Acme Inc",
	}, user.ID, org.ID)
	require.NoError(t, err)

	err = service.DeleteLead(lead.ID, org.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestDeleteLead_Success(t *testing.T) {
	db, service, org, _ := setupLeadTest(t)

	lead := testutils.CreateTestLead(db, org.ID)
	require.NotNil(t, lead)

	require.NoError(t, service.DeleteLead(lead.ID, org.ID))

	got, err := service.GetLeadByID(lead.ID, org.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteLead_EmailReusableAfterDelete(t *testing.T) {
	_, service, org, user := setupLeadTest(t)

	req := CreateLeadRequest{
		FirstName: "Ivan", LastName: "Petrov", Email: "ivan@x.com", Source: "web",
	}
	lead, err := service.CreateLead(req, user.ID, org.ID)
	require.NoError(t, err)

	require.NoError(t, service.DeleteLead(lead.ID, org.ID))

	// После удаления email снова свободен
	recreated, err := service.CreateLead(req, user.ID, org.ID)
	require.NoError(t, err)
	assert.NotEqual(t, lead.ID, recreated.ID)
	assert.Equal(t, "ivan@x.com", recreated.Email)
}

func TestBulkOperations_SilentSkip(t *testing.T) {
	db, service, org, user := setupLeadTest(t)

	first := testutils.CreateTestLead(db, org.ID)
	second := testutils.CreateTestLead(db, org.ID)
	require.NotNil(t, first)
	require.NotNil(t, second)

	otherOrg := testutils.CreateTestOrganization(db)
	foreign := testutils.CreateTestLead(db, otherOrg.ID)
	require.NotNil(t, foreign)

	// Несуществующий и чужой ID не вызывают ошибку и не учитываются
	ids := []uuid.UUID{first.ID, second.ID, foreign.ID, uuid.New()}

	updated, err := service.BulkAssignLeads(ids, user.ID, org.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	// Чужой лид не изменился
	var check models.Lead
	require.NoError(t, db.First(&check, "id = ?", foreign.ID).Error)
	assert.Nil(t, check.AssignedToID)

	updated, err = service.BulkUpdateLeadStatus(ids, models.LeadStatusContacted, org.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)
}

func TestBulkUpdateLeadStatus_InvalidStatus(t *testing.T) {
	_, service, org, _ := setupLeadTest(t)

	_, err := service.BulkUpdateLeadStatus([]uuid.UUID{uuid.New()}, "bogus", org.ID)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestConvertLead_RequiresQualifiedStatus(t *testing.T) {
	db, service, org, user := setupLeadTest(t)

	lead := testutils.CreateTestLead(db, org.ID)
	require.NotNil(t, lead)

	_, err := service.ConvertLead(lead.ID, ConvertLeadRequest{
		CreateAccount: true,
		AccountName:   "Acme Inc",
	}, user.ID, org.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestConvertLead_FullConversion(t *testing.T) {
	db, service, org, user := setupLeadTest(t)

	lead, err := service.CreateLead(CreateLeadRequest{
		FirstName:   "Alice",
		LastName:    "Brown",
		Email:       "alice@acme.com",
		PhoneNumber: "+1-555-0100",
		JobTitle:    "CTO",
		Company:     "Acme",
		Source:      "referral",
		Tags:        models.StringArray{"enterprise"},
	}, user.ID, org.ID)
	require.NoError(t, err)

	qualified := models.LeadStatusQualified
	_, err = service.UpdateLead(lead.ID, UpdateLeadRequest{Status: &qualified}, org.ID)
	require.NoError(t, err)

	amount := 5000.0
	result, err := service.ConvertLead(lead.ID, ConvertLeadRequest{
		CreateAccount:     true,
		AccountName:       "Acme Inc",
		CreateContact:     true,
		CreateOpportunity: true,
		OpportunityName:   "Acme Initial Deal",
		OpportunityAmount: &amount,
	}, user.ID, org.ID)
	require.NoError(t, err)

	// Аккаунт: prospect, контактные данные перенесены с лида
	require.NotNil(t, result.Account)
	assert.Equal(t, models.AccountTypeProspect, result.Account.Type)
	assert.Equal(t, "alice@acme.com", result.Account.Email)

	// Контакт: основной, привязан к аккаунту
	require.NotNil(t, result.Contact)
	assert.True(t, result.Contact.IsPrimary)
	require.NotNil(t, result.Contact.AccountID)
	assert.Equal(t, result.Account.ID, *result.Contact.AccountID)
	assert.Equal(t, "CTO", result.Contact.JobTitle)

	// Сделка: prospecting, probability 25, weighted = 5000 * 25% = 1250
	require.NotNil(t, result.Opportunity)
	assert.Equal(t, models.OpportunityStageProspecting, result.Opportunity.Stage)
	assert.Equal(t, models.DefaultOpportunityProbability, result.Opportunity.Probability)
	assert.True(t, result.Opportunity.Amount.Equal(decimal.NewFromInt(5000)))
	assert.True(t, result.Opportunity.WeightedAmount.Equal(decimal.NewFromInt(1250)))
	assert.Equal(t, "referral", result.Opportunity.Source)
	require.NotNil(t, result.Opportunity.ExpectedCloseDate)
	expected := time.Now().AddDate(0, 0, 90)
	assert.WithinDuration(t, expected, *result.Opportunity.ExpectedCloseDate, time.Hour)

	// Лид: статус converted, обратные ссылки и отметка времени
	converted := result.Lead
	assert.Equal(t, models.LeadStatusConverted, converted.Status)
	assert.True(t, converted.IsConverted)
	require.NotNil(t, converted.ConvertedAt)
	require.NotNil(t, converted.ConvertedAccountID)
	assert.Equal(t, result.Account.ID, *converted.ConvertedAccountID)
	require.NotNil(t, converted.ConvertedContactID)
	require.NotNil(t, converted.ConvertedOpportunityID)

	// Все сущности сохранены в БД
	var accounts, contacts, opportunities int64
	db.Model(&models.Account{}).Where("organization_id = ?", org.ID).Count(&accounts)
	db.Model(&models.Contact{}).Where("organization_id = ?", org.ID).Count(&contacts)
	db.Model(&models.Opportunity{}).Where("organization_id = ?", org.ID).Count(&opportunities)
	assert.Equal(t, int64(1), accounts)
	assert.Equal(t, int64(1), contacts)
	assert.Equal(t, int64(1), opportunities)
}

func TestConvertLead_DoubleConversion(t *testing.T) {
	db, service, org, user := setupLeadTest(t)

	lead := testutils.CreateTestLead(db, org.ID)
	require.NotNil(t, lead)
	qualified := models.LeadStatusQualified
	_, err := service.UpdateLead(lead.ID, UpdateLeadRequest{Status: &qualified}, org.ID)
	require.NoError(t, err)

	req := ConvertLeadRequest{CreateAccount: true, AccountName: "Acme Inc"}
	_, err = service.ConvertLead(lead.ID, req, user.ID, org.ID)
	require.NoError(t, err)

	_, err = service.ConvertLead(lead.ID, req, user.ID, org.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestConvertLead_OpportunityWithoutAccountIsAtomic(t *testing.T) {
	db, service, org, user := setupLeadTest(t)

	lead := testutils.CreateTestLead(db, org.ID)
	require.NotNil(t, lead)
	qualified := models.LeadStatusQualified
	_, err := service.UpdateLead(lead.ID, UpdateLeadRequest{Status: &qualified}, org.ID)
	require.NoError(t, err)

	// Сделка запрошена без аккаунта: вся конверсия отклоняется
	_, err = service.ConvertLead(lead.ID, ConvertLeadRequest{
		CreateContact:     true,
		CreateOpportunity: true,
		OpportunityName:   "Doomed Deal",
	}, user.ID, org.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	// Контакт из шага 2 не должен сохраниться
	var contacts int64
	db.Model(&models.Contact{}).Where("organization_id = ?", org.ID).Count(&contacts)
	assert.Equal(t, int64(0), contacts)

	// Лид остался неконвертированным
	var fresh models.Lead
	require.NoError(t, db.First(&fresh, "id = ?", lead.ID).Error)
	assert.False(t, fresh.IsConverted)
	assert.Equal(t, models.LeadStatusQualified, fresh.Status)
}

func TestConvertLead_WithoutEntities(t *testing.T) {
	db, service, org, user := setupLeadTest(t)

	lead := testutils.CreateTestLead(db, org.ID)
	require.NotNil(t, lead)
	qualified := models.LeadStatusQualified
	_, err := service.UpdateLead(lead.ID, UpdateLeadRequest{Status: &qualified}, org.ID)
	require.NoError(t, err)

	// Конверсия без создания сущностей: статус меняется, но признак
	// is_converted остается ложным, пока нет ни одной обратной ссылки
	result, err := service.ConvertLead(lead.ID, ConvertLeadRequest{}, user.ID, org.ID)
	require.NoError(t, err)
	assert.Nil(t, result.Account)
	assert.Nil(t, result.Contact)
	assert.Nil(t, result.Opportunity)

	got, err := service.GetLeadByID(lead.ID, org.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusConverted, got.Status)
	assert.NotNil(t, got.ConvertedAt)
	assert.False(t, got.IsConverted)

	var accounts, contacts, opportunities int64
	db.Model(&models.Account{}).Count(&accounts)
	db.Model(&models.Contact{}).Count(&contacts)
	db.Model(&models.Opportunity{}).Count(&opportunities)
	assert.Zero(t, accounts)
	assert.Zero(t, contacts)
	assert.Zero(t, opportunities)

	// Такой лид не считается конвертированным и его можно удалить
	assert.NoError(t, service.DeleteLead(lead.ID, org.ID))
}

func TestConvertLead_OwnerPrefersAssignee(t *testing.T) {
	db, service, org, user := setupLeadTest(t)

	assignee := testutils.CreateTestUser(db, org.ID)
	require.NotNil(t, assignee)

	lead := testutils.CreateTestLead(db, org.ID)
	require.NotNil(t, lead)
	_, err := service.AssignLead(lead.ID, assignee.ID, org.ID)
	require.NoError(t, err)
	qualified := models.LeadStatusQualified
	_, err = service.UpdateLead(lead.ID, UpdateLeadRequest{Status: &qualified}, org.ID)
	require.NoError(t, err)

	result, err := service.ConvertLead(lead.ID, ConvertLeadRequest{
		CreateAccount: true,
		AccountName:   "Acme Inc",
	}, user.ID, org.ID)
	require.NoError(t, err)

	// Владельцем становится назначенный менеджер, а не конвертирующий
	assert.Equal(t, assignee.ID, result.Account.OwnerID)
	assert.Equal(t, user.ID, result.Account.CreatedByID)
}

func TestGetLeadAnalytics_ConversionRate(t *testing.T) {
	_, service, org, user := setupLeadTest(t)

	qualified := models.LeadStatusQualified
	for i := 0; i < 10; i++ {
		lead, err := service.CreateLead(CreateLeadRequest{
			FirstName: "L", LastName: fmt.Sprintf("N%d", i),
			Email:  fmt.Sprintf("l%d@x.com", i),
			Source: "website",
		}, user.ID, org.ID)
		require.NoError(t, err)

		if i < 3 {
			_, err = service.UpdateLead(lead.ID, UpdateLeadRequest{Status: &qualified}, org.ID)
			require.NoError(t, err)
			_, err = service.ConvertLead(lead.ID, ConvertLeadRequest{
				CreateAccount: true,
				AccountName:   fmt.Sprintf("Account %d", i),
			}, user.ID, org.ID)
			require.NoError(t, err)
		}
	}

	analytics, err := service.GetLeadAnalytics(org.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(10), analytics.TotalLeads)
	assert.Equal(t, int64(3), analytics.ConvertedLeads)
	assert.InDelta(t, 30.0, analytics.ConversionRate, 0.001)
	assert.Equal(t, int64(10), analytics.NewLeads) // все созданы за последние 7 дней
	assert.Equal(t, int64(3), analytics.LeadsByStatus[models.LeadStatusConverted])
	assert.Equal(t, int64(7), analytics.LeadsByStatus[models.LeadStatusNew])
	assert.Equal(t, int64(10), analytics.LeadsBySource["website"])

	require.Len(t, analytics.TopPerformingSources, 1)
	assert.Equal(t, "website", analytics.TopPerformingSources[0].Source)
	assert.InDelta(t, 30.0, analytics.TopPerformingSources[0].ConversionRate, 0.001)
}

func TestGetLeadAnalytics_EmptyOrganization(t *testing.T) {
	_, service, org, _ := setupLeadTest(t)

	analytics, err := service.GetLeadAnalytics(org.ID, nil)
	require.NoError(t, err)

	// Деление на ноль не происходит: все показатели нулевые
	assert.Equal(t, int64(0), analytics.TotalLeads)
	assert.Equal(t, 0.0, analytics.ConversionRate)
	assert.Equal(t, 0.0, analytics.AverageScore)
	assert.Empty(t, analytics.TopPerformingSources)
}

func TestGetLeadAnalytics_DateRange(t *testing.T) {
	db, service, org, user := setupLeadTest(t)

	lead, err := service.CreateLead(CreateLeadRequest{
		FirstName: "Old", LastName: "Lead", Email: "old@x.com", Source: "web",
	}, user.ID, org.ID)
	require.NoError(t, err)

	// Сдвигаем дату создания за пределы периода
	old := time.Now().AddDate(0, -2, 0)
	require.NoError(t, db.Model(&models.Lead{}).Where("id = ?", lead.ID).
		Update("created_at", old).Error)

	_, err = service.CreateLead(CreateLeadRequest{
		FirstName: "Fresh", LastName: "Lead", Email: "fresh@x.com", Source: "web",
	}, user.ID, org.ID)
	require.NoError(t, err)

	analytics, err := service.GetLeadAnalytics(org.ID, &DateRange{
		Start: time.Now().AddDate(0, 0, -7),
		End:   time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), analytics.TotalLeads)
}

func TestGetLeadSources(t *testing.T) {
	_, service, org, user := setupLeadTest(t)

	for i, source := range []string{"website", "referral", "website"} {
		_, err := service.CreateLead(CreateLeadRequest{
			FirstName: "S", LastName: fmt.Sprintf("N%d", i),
			Email:  fmt.Sprintf("s%d@x.com", i),
			Source: source,
		}, user.ID, org.ID)
		require.NoError(t, err)
	}

	sources, err := service.GetLeadSources(org.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"referral", "website"}, sources)
}

func TestUpdateLeadScore(t *testing.T) {
	db, service, org, _ := setupLeadTest(t)

	lead := testutils.CreateTestLead(db, org.ID)
	require.NotNil(t, lead)

	updated, err := service.UpdateLeadScore(lead.ID, 85, org.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.Score)
	assert.Equal(t, 85, *updated.Score)

	_, err = service.UpdateLeadScore(lead.ID, 150, org.ID)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGetRecentLeads_Limit(t *testing.T) {
	_, service, org, user := setupLeadTest(t)

	for i := 0; i < 5; i++ {
		_, err := service.CreateLead(CreateLeadRequest{
			FirstName: "R", LastName: fmt.Sprintf("N%d", i),
			Email:  fmt.Sprintf("r%d@x.com", i),
			Source: "web",
		}, user.ID, org.ID)
		require.NoError(t, err)
	}

	leads, err := service.GetRecentLeads(org.ID, 3)
	require.NoError(t, err)
	assert.Len(t, leads, 3)
}
