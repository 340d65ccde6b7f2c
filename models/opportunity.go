package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Стадии сделки. Прогрессия: prospecting -> qualification -> needs_analysis ->
// proposal -> negotiation -> closed_won | closed_lost.
const (
	OpportunityStageProspecting   = "prospecting"
	OpportunityStageQualification = "qualification"
	OpportunityStageNeedsAnalysis = "needs_analysis"
	OpportunityStageProposal      = "proposal"
	OpportunityStageNegotiation   = "negotiation"
	OpportunityStageClosedWon     = "closed_won"
	OpportunityStageClosedLost    = "closed_lost"
)

// OpportunityStages перечисляет все допустимые стадии сделки
var OpportunityStages = []string{
	OpportunityStageProspecting,
	OpportunityStageQualification,
	OpportunityStageNeedsAnalysis,
	OpportunityStageProposal,
	OpportunityStageNegotiation,
	OpportunityStageClosedWon,
	OpportunityStageClosedLost,
}

// IsValidOpportunityStage проверяет, что стадия входит в список допустимых
func IsValidOpportunityStage(stage string) bool {
	for _, s := range OpportunityStages {
		if s == stage {
			return true
		}
	}
	return false
}

// DefaultOpportunityProbability — вероятность по умолчанию для новых сделок (%)
const DefaultOpportunityProbability = 25

// Opportunity представляет сделку. Сделка всегда привязана к аккаунту:
// создание сделки без аккаунта запрещено. Производные поля
// (weighted_amount, is_closed, is_won) пересчитываются при каждом сохранении.
type Opportunity struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Основные поля
	Name        string `json:"name" gorm:"not null;type:varchar(100);index"`
	Description string `json:"description" gorm:"type:text"`
	Stage       string `json:"stage" gorm:"default:'prospecting';type:varchar(20);index"`
	Source      string `json:"source" gorm:"type:varchar(100)"`

	// Привязки: аккаунт обязателен, контакт опционален
	AccountID uuid.UUID  `json:"account_id" gorm:"type:uuid;not null;index"`
	ContactID *uuid.UUID `json:"contact_id" gorm:"type:uuid"`

	// Финансовые показатели
	Amount         decimal.Decimal `json:"amount" gorm:"type:decimal(15,2);default:0"`
	Currency       string          `json:"currency" gorm:"default:'USD';type:varchar(3)"`
	Probability    int             `json:"probability" gorm:"default:25"` // Вероятность выигрыша 0-100
	WeightedAmount decimal.Decimal `json:"weighted_amount" gorm:"type:decimal(15,2);default:0"`

	// Сроки закрытия
	ExpectedCloseDate *time.Time `json:"expected_close_date"`
	ActualCloseDate   *time.Time `json:"actual_close_date"`

	// Производные флаги
	IsClosed bool `json:"is_closed" gorm:"default:false"`
	IsWon    bool `json:"is_won" gorm:"default:false"`

	// Ответственный и аудит
	OwnerID     uuid.UUID `json:"owner_id" gorm:"type:uuid;index"`
	CreatedByID uuid.UUID `json:"created_by_id" gorm:"type:uuid"`

	// Произвольные данные
	Tags         StringArray `json:"tags" gorm:"type:text"`
	CustomFields JSONMap     `json:"custom_fields" gorm:"type:text"`

	// Тенант
	OrganizationID uuid.UUID `json:"organization_id" gorm:"type:uuid;not null;index"`
}

// TableName задает имя таблицы для модели Opportunity
func (Opportunity) TableName() string {
	return "opportunities"
}

// BeforeCreate вызывается перед созданием записи
func (o *Opportunity) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Stage == "" {
		o.Stage = OpportunityStageProspecting
	}
	return nil
}

// BeforeSave пересчитывает производные поля при каждой мутации
func (o *Opportunity) BeforeSave(tx *gorm.DB) error {
	o.WeightedAmount = o.Amount.Mul(decimal.NewFromInt(int64(o.Probability))).Div(decimal.NewFromInt(100))
	o.IsClosed = o.Stage == OpportunityStageClosedWon || o.Stage == OpportunityStageClosedLost
	o.IsWon = o.Stage == OpportunityStageClosedWon
	if o.IsClosed && o.ActualCloseDate == nil {
		now := time.Now()
		o.ActualCloseDate = &now
	}
	return nil
}

// IsLost проверяет, проиграна ли сделка
func (o *Opportunity) IsLost() bool {
	return o.Stage == OpportunityStageClosedLost
}

// IsOverdue проверяет, просрочена ли незакрытая сделка
func (o *Opportunity) IsOverdue() bool {
	return !o.IsClosed && o.ExpectedCloseDate != nil && o.ExpectedCloseDate.Before(time.Now())
}
