package services

import (
	"fmt"
	"log"
	"strconv"
	"sync"

	"backend_crm/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"
)

// NotificationService отправляет Telegram-уведомления о событиях CRM.
// Вызывается из слоя API после фиксации изменений — никогда изнутри
// транзакции конверсии. Ошибки отправки логируются и не прерывают
// основную операцию.
type NotificationService struct {
	db   *gorm.DB
	mu   sync.Mutex
	bots map[string]*tgbotapi.BotAPI // Клиенты по organization_id
}

// NewNotificationService создает новый экземпляр NotificationService
func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{
		db:   db,
		bots: make(map[string]*tgbotapi.BotAPI),
	}
}

// getBot получает или создает Telegram клиент для организации
func (ns *NotificationService) getBot(org *models.Organization) (*tgbotapi.BotAPI, error) {
	if org.TelegramBotToken == "" || org.TelegramChatID == "" {
		return nil, fmt.Errorf("Telegram не настроен для организации %s", org.ID)
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()

	if bot, ok := ns.bots[org.ID.String()]; ok {
		return bot, nil
	}

	bot, err := tgbotapi.NewBotAPI(org.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram клиента: %w", err)
	}

	ns.bots[org.ID.String()] = bot
	return bot, nil
}

// send отправляет HTML-сообщение в чат организации
func (ns *NotificationService) send(org *models.Organization, message string) error {
	bot, err := ns.getBot(org)
	if err != nil {
		return err
	}

	chatID, err := strconv.ParseInt(org.TelegramChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("некорректный chat_id: %w", err)
	}

	msg := tgbotapi.NewMessage(chatID, message)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("ошибка отправки сообщения: %w", err)
	}
	return nil
}

// notify загружает организацию и отправляет уведомление, логируя сбои
func (ns *NotificationService) notify(organizationID interface{}, message string) {
	var org models.Organization
	if err := ns.db.First(&org, "id = ?", organizationID).Error; err != nil {
		log.Printf("Уведомление пропущено: организация не найдена: %v", err)
		return
	}

	if err := ns.send(&org, message); err != nil {
		log.Printf("Ошибка отправки уведомления для организации %v: %v", organizationID, err)
	}
}

// NotifyLeadAssigned уведомляет о назначении лида
func (ns *NotificationService) NotifyLeadAssigned(lead *models.Lead) {
	message := fmt.Sprintf("👤 Лид <b>%s</b> (%s) назначен новому ответственному",
		lead.FullName(), lead.Email)
	ns.notify(lead.OrganizationID, message)
}

// NotifyLeadConverted уведомляет об успешной конверсии лида
func (ns *NotificationService) NotifyLeadConverted(result *ConversionResult) {
	lead := result.Lead
	message := fmt.Sprintf("🎉 Лид <b>%s</b> (%s) конвертирован", lead.FullName(), lead.Email)
	if result.Account != nil {
		message += fmt.Sprintf("\nАккаунт: %s", result.Account.Name)
	}
	if result.Opportunity != nil {
		message += fmt.Sprintf("\nСделка: %s на сумму %s", result.Opportunity.Name, result.Opportunity.Amount)
	}
	ns.notify(lead.OrganizationID, message)
}

// NotifyStaleLeads уведомляет о лидах, зависших в статусе "new"
func (ns *NotificationService) NotifyStaleLeads(org *models.Organization, count int64, days int) {
	message := fmt.Sprintf("⏰ %d лидов в статусе \"new\" больше %d дней — требуется квалификация", count, days)
	if err := ns.send(org, message); err != nil {
		log.Printf("Ошибка отправки уведомления о зависших лидах: %v", err)
	}
}
