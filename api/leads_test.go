package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"backend_crm/models"
	"backend_crm/services"
	"backend_crm/testutils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type LeadsTestSuite struct {
	suite.Suite
	db     *gorm.DB
	router *gin.Engine
	org    *models.Organization
	user   *models.User
}

func (suite *LeadsTestSuite) SetupTest() {
	var err error
	suite.db, err = testutils.SetupTestDB()
	suite.Require().NoError(err)

	suite.org = testutils.CreateTestOrganization(suite.db)
	suite.Require().NotNil(suite.org)
	suite.user = testutils.CreateTestUser(suite.db, suite.org.ID)
	suite.Require().NotNil(suite.user)

	leadService := services.NewLeadService(suite.db, nil)
	exportService := services.NewExportService(suite.db, leadService)
	notificationService := services.NewNotificationService(suite.db)
	leadsAPI := NewLeadsAPI(leadService, exportService, notificationService)

	gin.SetMode(gin.TestMode)
	suite.router = gin.New()

	// Подменяем аутентификацию: организация и пользователь из фикстур
	suite.router.Use(func(c *gin.Context) {
		c.Set("user_id", suite.user.ID.String())
		c.Set("organization_id", suite.org.ID.String())
		c.Next()
	})

	api := suite.router.Group("/api")
	leadsAPI.RegisterLeadsRoutes(api)
}

func (suite *LeadsTestSuite) TearDownTest() {
	testutils.CleanupTestDB(suite.db)
}

func (suite *LeadsTestSuite) request(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		suite.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *LeadsTestSuite) decodeData(w *httptest.ResponseRecorder) map[string]interface{} {
	var resp struct {
		Status string                 `json:"status"`
		Data   map[string]interface{} `json:"data"`
	}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	suite.Equal("success", resp.Status)
	return resp.Data
}

// TestCreateLead тестирует создание лида через API
func (suite *LeadsTestSuite) TestCreateLead() {
	w := suite.request(http.MethodPost, "/api/leads", services.CreateLeadRequest{
		FirstName: "Jane",
		LastName:  "Smith",
		Email:     "jane@acme.com",
		Source:    "website",
	})

	suite.Equal(http.StatusCreated, w.Code)
	data := suite.decodeData(w)
	suite.Equal("jane@acme.com", data["email"])
	suite.Equal("new", data["status"])
}

// TestCreateLeadValidation тестирует валидацию обязательных полей
func (suite *LeadsTestSuite) TestCreateLeadValidation() {
	w := suite.request(http.MethodPost, "/api/leads", map[string]string{
		"first_name": "Jane",
	})
	suite.Equal(http.StatusBadRequest, w.Code)
}

// TestDuplicateEmail тестирует конфликт email внутри организации
func (suite *LeadsTestSuite) TestDuplicateEmail() {
	req := services.CreateLeadRequest{
		FirstName: "Jane", LastName: "Smith",
		Email: "jane@acme.com", Source: "website",
	}
	suite.Equal(http.StatusCreated, suite.request(http.MethodPost, "/api/leads", req).Code)
	suite.Equal(http.StatusBadRequest, suite.request(http.MethodPost, "/api/leads", req).Code)
}

// TestGetLeadNotFound тестирует 404 для несуществующего лида
func (suite *LeadsTestSuite) TestGetLeadNotFound() {
	w := suite.request(http.MethodGet, "/api/leads/00000000-0000-0000-0000-000000000001", nil)
	suite.Equal(http.StatusNotFound, w.Code)
}

// TestGetLeadBadID тестирует 400 для некорректного UUID
func (suite *LeadsTestSuite) TestGetLeadBadID() {
	w := suite.request(http.MethodGet, "/api/leads/not-a-uuid", nil)
	suite.Equal(http.StatusBadRequest, w.Code)
}

// TestListLeadsPagination тестирует пагинацию списка
func (suite *LeadsTestSuite) TestListLeadsPagination() {
	for i := 0; i < 25; i++ {
		w := suite.request(http.MethodPost, "/api/leads", services.CreateLeadRequest{
			FirstName: "Lead",
			LastName:  fmt.Sprintf("N%02d", i),
			Email:     fmt.Sprintf("lead%02d@acme.com", i),
			Source:    "website",
		})
		suite.Require().Equal(http.StatusCreated, w.Code)
	}

	w := suite.request(http.MethodGet, "/api/leads?page=2&limit=20", nil)
	suite.Equal(http.StatusOK, w.Code)

	data := suite.decodeData(w)
	pagination := data["pagination"].(map[string]interface{})
	suite.Equal(float64(2), pagination["current_page"])
	suite.Equal(float64(2), pagination["total_pages"])
	suite.Equal(float64(25), pagination["total_items"])
	suite.Len(data["leads"], 5)
}

// TestConvertLeadFlow тестирует полный цикл конверсии через API
func (suite *LeadsTestSuite) TestConvertLeadFlow() {
	w := suite.request(http.MethodPost, "/api/leads", services.CreateLeadRequest{
		FirstName: "Alice", LastName: "Brown",
		Email: "alice@acme.com", Source: "referral",
	})
	suite.Require().Equal(http.StatusCreated, w.Code)
	leadID := suite.decodeData(w)["id"].(string)

	// Конверсия до квалификации отклоняется
	convReq := map[string]interface{}{
		"create_account": true,
		"account_name":   "Acme Inc",
		"create_contact": true,
	}
	w = suite.request(http.MethodPost, "/api/leads/"+leadID+"/convert", convReq)
	suite.Equal(http.StatusBadRequest, w.Code)

	// Квалифицируем лида
	status := models.LeadStatusQualified
	w = suite.request(http.MethodPut, "/api/leads/"+leadID, services.UpdateLeadRequest{Status: &status})
	suite.Require().Equal(http.StatusOK, w.Code)

	// Теперь конверсия проходит
	w = suite.request(http.MethodPost, "/api/leads/"+leadID+"/convert", convReq)
	suite.Require().Equal(http.StatusOK, w.Code)
	data := suite.decodeData(w)
	suite.NotNil(data["account"])
	suite.NotNil(data["contact"])

	// Повторная конверсия отклоняется
	w = suite.request(http.MethodPost, "/api/leads/"+leadID+"/convert", convReq)
	suite.Equal(http.StatusBadRequest, w.Code)

	// Конвертированного лида нельзя удалить
	w = suite.request(http.MethodDelete, "/api/leads/"+leadID, nil)
	suite.Equal(http.StatusBadRequest, w.Code)
}

// TestBulkStatus тестирует массовую смену статуса
func (suite *LeadsTestSuite) TestBulkStatus() {
	var ids []string
	for i := 0; i < 3; i++ {
		w := suite.request(http.MethodPost, "/api/leads", services.CreateLeadRequest{
			FirstName: "B", LastName: fmt.Sprintf("N%d", i),
			Email:  fmt.Sprintf("b%d@acme.com", i),
			Source: "web",
		})
		suite.Require().Equal(http.StatusCreated, w.Code)
		ids = append(ids, suite.decodeData(w)["id"].(string))
	}

	// Добавляем несуществующий ID: он молча пропускается
	ids = append(ids, "00000000-0000-0000-0000-000000000001")

	w := suite.request(http.MethodPost, "/api/leads/bulk-status", map[string]interface{}{
		"lead_ids": ids,
		"status":   models.LeadStatusContacted,
	})
	suite.Equal(http.StatusOK, w.Code)
	data := suite.decodeData(w)
	suite.Equal(float64(4), data["requested"])
	suite.Equal(float64(3), data["updated"])
}

// TestAnalytics тестирует endpoint аналитики
func (suite *LeadsTestSuite) TestAnalytics() {
	w := suite.request(http.MethodGet, "/api/leads/analytics", nil)
	suite.Equal(http.StatusOK, w.Code)

	data := suite.decodeData(w)
	suite.Equal(float64(0), data["total_leads"])
	suite.Equal(float64(0), data["conversion_rate"])
}

// TestExportExcel тестирует выгрузку в Excel
func (suite *LeadsTestSuite) TestExportExcel() {
	w := suite.request(http.MethodPost, "/api/leads", services.CreateLeadRequest{
		FirstName: "E", LastName: "X",
		Email: "export@acme.com", Source: "web",
	})
	suite.Require().Equal(http.StatusCreated, w.Code)

	w = suite.request(http.MethodGet, "/api/leads/export?format=xlsx", nil)
	suite.Equal(http.StatusOK, w.Code)
	suite.Contains(w.Header().Get("Content-Disposition"), "attachment")
	suite.NotZero(w.Body.Len())
}

// TestExportUnknownFormat тестирует отказ для неизвестного формата
func (suite *LeadsTestSuite) TestExportUnknownFormat() {
	w := suite.request(http.MethodGet, "/api/leads/export?format=csv", nil)
	suite.Equal(http.StatusBadRequest, w.Code)
}

func TestLeadsTestSuite(t *testing.T) {
	suite.Run(t, new(LeadsTestSuite))
}
