package database

import (
	"fmt"
	"log"

	"gorm.io/gorm"
)

// DatabaseIndex представляет индекс базы данных
type DatabaseIndex struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
	Type    string // btree, gin
}

// PerformanceIndexes индексы для оптимизации запросов CRM.
// Все выборки фильтруются по organization_id, поэтому составные индексы
// начинаются с него.
var PerformanceIndexes = []DatabaseIndex{
	// Индексы для таблицы leads
	{
		Name:    "idx_leads_org_status",
		Table:   "leads",
		Columns: []string{"organization_id", "status"},
		Type:    "btree",
	},
	{
		Name:    "idx_leads_org_source",
		Table:   "leads",
		Columns: []string{"organization_id", "source"},
		Type:    "btree",
	},
	{
		Name:    "idx_leads_org_assigned",
		Table:   "leads",
		Columns: []string{"organization_id", "assigned_to_id"},
		Type:    "btree",
	},
	{
		Name:    "idx_leads_org_created",
		Table:   "leads",
		Columns: []string{"organization_id", "created_at"},
		Type:    "btree",
	},
	{
		Name:    "idx_leads_org_converted",
		Table:   "leads",
		Columns: []string{"organization_id", "is_converted"},
		Type:    "btree",
	},
	{
		Name:    "idx_leads_search",
		Table:   "leads",
		Columns: []string{"first_name", "last_name"},
		Type:    "gin",
	},

	// Индексы для таблицы accounts
	{
		Name:    "idx_accounts_org_name",
		Table:   "accounts",
		Columns: []string{"organization_id", "name"},
		Type:    "btree",
	},
	{
		Name:    "idx_accounts_org_owner",
		Table:   "accounts",
		Columns: []string{"organization_id", "owner_id"},
		Type:    "btree",
	},

	// Индексы для таблицы contacts
	{
		Name:    "idx_contacts_org_account",
		Table:   "contacts",
		Columns: []string{"organization_id", "account_id"},
		Type:    "btree",
	},
	{
		Name:    "idx_contacts_org_email",
		Table:   "contacts",
		Columns: []string{"organization_id", "email"},
		Type:    "btree",
	},

	// Индексы для таблицы opportunities
	{
		Name:    "idx_opportunities_org_stage",
		Table:   "opportunities",
		Columns: []string{"organization_id", "stage"},
		Type:    "btree",
	},
	{
		Name:    "idx_opportunities_org_account",
		Table:   "opportunities",
		Columns: []string{"organization_id", "account_id"},
		Type:    "btree",
	},
	{
		Name:    "idx_opportunities_org_close_date",
		Table:   "opportunities",
		Columns: []string{"organization_id", "expected_close_date"},
		Type:    "btree",
	},

	// Индексы для таблицы users
	{
		Name:    "idx_users_org_active",
		Table:   "users",
		Columns: []string{"organization_id", "is_active"},
		Type:    "btree",
	},
}

// CreatePerformanceIndexes создает все индексы производительности
func CreatePerformanceIndexes(db *gorm.DB) error {
	log.Printf("Создание индексов производительности...")

	for _, index := range PerformanceIndexes {
		if err := CreateIndex(db, index); err != nil {
			log.Printf("Ошибка создания индекса %s: %v", index.Name, err)
			continue
		}
	}

	log.Printf("Создание индексов завершено")
	return nil
}

// CreateIndex создает отдельный индекс
func CreateIndex(db *gorm.DB, index DatabaseIndex) error {
	var sql string

	switch index.Type {
	case "gin":
		// Для полнотекстового поиска по имени
		if len(index.Columns) == 2 {
			sql = fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (to_tsvector('english', COALESCE(%s, '') || ' ' || COALESCE(%s, '')))",
				index.Name, index.Table, index.Columns[0], index.Columns[1],
			)
		} else {
			sql = fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (to_tsvector('english', %s))",
				index.Name, index.Table, index.Columns[0],
			)
		}
	default:
		// Обычные B-tree индексы
		uniqueStr := ""
		if index.Unique {
			uniqueStr = "UNIQUE "
		}

		columns := ""
		for i, col := range index.Columns {
			if i > 0 {
				columns += ", "
			}
			columns += col
		}

		sql = fmt.Sprintf(
			"CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
			uniqueStr, index.Name, index.Table, columns,
		)
	}

	return db.Exec(sql).Error
}

// DropIndex удаляет индекс
func DropIndex(db *gorm.DB, indexName string) error {
	sql := fmt.Sprintf("DROP INDEX IF EXISTS %s", indexName)
	return db.Exec(sql).Error
}
