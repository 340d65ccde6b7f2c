package services

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"backend_crm/models"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// ExportService формирует выгрузки лидов: таблицу XLSX и сводку воронки PDF
type ExportService struct {
	db          *gorm.DB
	leadService *LeadService
}

// NewExportService создает новый экземпляр ExportService
func NewExportService(db *gorm.DB, leadService *LeadService) *ExportService {
	return &ExportService{db: db, leadService: leadService}
}

// Заголовки колонок выгрузки лидов
var leadExportHeaders = []string{
	"ID", "Имя", "Фамилия", "Email", "Телефон", "Компания", "Должность",
	"Статус", "Источник", "Оценка", "Теги", "Конвертирован", "Создан",
}

// leadExportRow собирает строку выгрузки для одного лида
func leadExportRow(lead *models.Lead) []interface{} {
	score := ""
	if lead.Score != nil {
		score = fmt.Sprintf("%d", *lead.Score)
	}
	converted := "нет"
	if lead.IsConverted {
		converted = "да"
	}
	return []interface{}{
		lead.ID.String(),
		lead.FirstName,
		lead.LastName,
		lead.Email,
		lead.PhoneNumber,
		lead.Company,
		lead.JobTitle,
		lead.Status,
		lead.Source,
		score,
		strings.Join(lead.Tags, ", "),
		converted,
		lead.CreatedAt.Format("02.01.2006 15:04"),
	}
}

// ExportLeadsExcel выгружает лидов организации в файл XLSX
func (es *ExportService) ExportLeadsExcel(organizationID uuid.UUID, filter LeadFilter) ([]byte, error) {
	leads, err := es.loadLeads(organizationID, filter)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Лиды"
	f.SetSheetName("Sheet1", sheetName)

	// Заголовки
	for i, header := range leadExportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
	}

	// Данные
	for rowIdx, lead := range leads {
		row := leadExportRow(&lead)
		for colIdx, value := range row {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, value)
		}
	}

	// Автофильтр по всем колонкам
	endCell, _ := excelize.CoordinatesToCellName(len(leadExportHeaders), len(leads)+1)
	f.AutoFilter(sheetName, "A1:"+endCell, []excelize.AutoFilterOptions{})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("ошибка формирования XLSX: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportFunnelPDF формирует PDF-сводку воронки лидов организации
func (es *ExportService) ExportFunnelPDF(organizationID uuid.UUID, dateRange *DateRange) ([]byte, error) {
	analytics, err := es.leadService.GetLeadAnalytics(organizationID, dateRange)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, "Lead Funnel Report")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().Format("02.01.2006 15:04")))
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	summary := []string{
		fmt.Sprintf("Total leads: %d", analytics.TotalLeads),
		fmt.Sprintf("New leads (7 days): %d", analytics.NewLeads),
		fmt.Sprintf("Converted leads: %d", analytics.ConvertedLeads),
		fmt.Sprintf("Conversion rate: %.1f%%", analytics.ConversionRate),
		fmt.Sprintf("Average score: %.1f", analytics.AverageScore),
	}
	for _, line := range summary {
		pdf.Cell(0, 6, line)
		pdf.Ln(6)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Leads by status")
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 10)
	for _, status := range models.LeadStatuses {
		if count, ok := analytics.LeadsByStatus[status]; ok {
			pdf.Cell(0, 6, fmt.Sprintf("%s: %d", status, count))
			pdf.Ln(6)
		}
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Top performing sources")
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 10)
	for _, src := range analytics.TopPerformingSources {
		pdf.Cell(0, 6, fmt.Sprintf("%s: %d leads, %.1f%% converted", src.Source, src.Count, src.ConversionRate))
		pdf.Ln(6)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("ошибка формирования PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// loadLeads загружает лидов организации с учетом фильтров выгрузки
func (es *ExportService) loadLeads(organizationID uuid.UUID, filter LeadFilter) ([]models.Lead, error) {
	query := es.db.Where("organization_id = ?", organizationID)

	if len(filter.Status) > 0 {
		query = query.Where("status IN ?", filter.Status)
	}
	if len(filter.Source) > 0 {
		query = query.Where("source IN ?", filter.Source)
	}
	if filter.DateStart != nil && filter.DateEnd != nil {
		query = query.Where("created_at BETWEEN ? AND ?", *filter.DateStart, *filter.DateEnd)
	} else if filter.DateStart != nil {
		query = query.Where("created_at >= ?", *filter.DateStart)
	} else if filter.DateEnd != nil {
		query = query.Where("created_at <= ?", *filter.DateEnd)
	}
	if filter.IsConverted != nil {
		query = query.Where("is_converted = ?", *filter.IsConverted)
	}

	var leads []models.Lead
	if err := query.Order("created_at DESC").Find(&leads).Error; err != nil {
		return nil, fmt.Errorf("ошибка загрузки лидов для выгрузки: %w", err)
	}
	return leads, nil
}
