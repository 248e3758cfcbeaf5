package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kokossimo/backend/internal/models"
)

const telegramAPIURL = "https://api.telegram.org"

// TelegramService talks to the Telegram Bot API: admin notifications and
// the long-polling feed of the feedback bot.
type TelegramService struct {
	botToken    string
	adminChatID string
	baseURL     string
	client      *http.Client
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		baseURL:     telegramAPIURL,
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

// WithBaseURL points the service at another API host.
func (s *TelegramService) WithBaseURL(url string) *TelegramService {
	s.baseURL = strings.TrimRight(url, "/")
	return s
}

// ReplyKeyboard is a persistent keyboard shown under the input field.
type ReplyKeyboard struct {
	Keyboard              [][]KeyboardButton `json:"keyboard"`
	ResizeKeyboard        bool               `json:"resize_keyboard"`
	OneTimeKeyboard       bool               `json:"one_time_keyboard"`
	IsPersistent          bool               `json:"is_persistent"`
	InputFieldPlaceholder string             `json:"input_field_placeholder,omitempty"`
}

// KeyboardButton is one button of a ReplyKeyboard.
type KeyboardButton struct {
	Text string `json:"text"`
}

// Update is the subset of a Telegram update the bot reads.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message is an incoming chat message.
type Message struct {
	MessageID int64         `json:"message_id"`
	From      *TelegramUser `json:"from"`
	Chat      Chat          `json:"chat"`
	Text      string        `json:"text"`
}

// TelegramUser is the sender of a message.
type TelegramUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Chat identifies where a message was sent.
type Chat struct {
	ID int64 `json:"id"`
}

type telegramMessage struct {
	ChatID      string         `json:"chat_id"`
	Text        string         `json:"text"`
	ParseMode   string         `json:"parse_mode,omitempty"`
	ReplyMarkup *ReplyKeyboard `json:"reply_markup,omitempty"`
}

type telegramResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// SendMessage sends an HTML message to the admin chat or any other chat.
func (s *TelegramService) SendMessage(chatID, text string) error {
	return s.send(context.Background(), telegramMessage{ChatID: chatID, Text: text, ParseMode: "HTML"})
}

// Reply sends plain text with a reply keyboard to a user chat.
func (s *TelegramService) Reply(ctx context.Context, chatID int64, text string, keyboard *ReplyKeyboard) error {
	return s.send(ctx, telegramMessage{
		ChatID:      fmt.Sprintf("%d", chatID),
		Text:        text,
		ReplyMarkup: keyboard,
	})
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(text string) error {
	if s.adminChatID == "" {
		log.Println("[Telegram] Admin chat ID not configured")
		return nil
	}
	return s.SendMessage(s.adminChatID, text)
}

// GetUpdates long-polls for updates after offset.
func (s *TelegramService) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	if s.botToken == "" {
		return nil, fmt.Errorf("telegram bot token not configured")
	}

	payload := map[string]any{
		"offset":          offset,
		"timeout":         timeout,
		"allowed_updates": []string{"message"},
	}
	client := &http.Client{Timeout: s.client.Timeout + time.Duration(timeout)*time.Second}

	var updates []Update
	if err := s.call(ctx, client, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (s *TelegramService) send(ctx context.Context, msg telegramMessage) error {
	if s.botToken == "" {
		log.Println("[Telegram] Bot token not configured")
		return nil
	}
	if err := s.call(ctx, s.client, "sendMessage", msg, nil); err != nil {
		log.Printf("[Telegram] Failed to send message: %v", err)
		return err
	}
	return nil
}

func (s *TelegramService) call(ctx context.Context, client *http.Client, method string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/%s", s.baseURL, s.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var decoded telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("telegram %s: status %d: %w", method, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !decoded.OK {
		return fmt.Errorf("telegram %s returned status %d: %s", method, resp.StatusCode, decoded.Description)
	}
	if result != nil {
		return json.Unmarshal(decoded.Result, result)
	}
	return nil
}

// OrderNotification contains order data for Telegram notification.
type OrderNotification struct {
	OrderID        string
	Items          []OrderItemNotification
	TotalPrice     decimal.Decimal
	CustomerName   string
	CustomerPhone  string
	DeliveryMethod string
	PaymentMethod  string
	Address        string
}

// OrderItemNotification contains order item data.
type OrderItemNotification struct {
	Name     string
	Quantity int
	Price    decimal.Decimal
}

// FormatPrice renders an amount in rubles with space-separated thousands.
func FormatPrice(amount decimal.Decimal) string {
	fixed := amount.StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")

	var result strings.Builder
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			result.WriteString(" ")
		}
		result.WriteRune(digit)
	}
	if frac != "00" {
		result.WriteString("," + frac)
	}
	return sign + result.String() + " ₽"
}

// NotifyNewOrder sends a summary of a placed order to the admin chat.
func (s *TelegramService) NotifyNewOrder(order OrderNotification) error {
	if s.adminChatID == "" {
		return nil
	}

	var itemsList strings.Builder
	for i, item := range order.Items {
		lineTotal := item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		itemsList.WriteString(fmt.Sprintf("%d. <b>%s</b>\n   %d x %s = %s\n",
			i+1,
			html.EscapeString(item.Name),
			item.Quantity,
			FormatPrice(item.Price),
			FormatPrice(lineTotal),
		))
	}

	deliveryText := "Курьер"
	if order.DeliveryMethod == models.DeliveryPickup {
		deliveryText = "Самовывоз"
	}
	paymentText := "Наличными курьеру"
	if order.PaymentMethod == models.PaymentCashPickup {
		paymentText = "Наличными при самовывозе"
	}

	message := fmt.Sprintf(`<b>🛒 НОВЫЙ ЗАКАЗ!</b>
<b>📋 Заказ:</b> %s
<b>👤 Покупатель:</b> %s
<b>📞 Телефон:</b> %s
<b>📍 Адрес:</b> %s
<b>📦 Товары:</b>
%s
<b>💰 Итого:</b> %s
<b>🚚 Доставка:</b> %s
<b>💳 Оплата:</b> %s
━━━━━━━━━━━━━━━━━━`,
		order.OrderID,
		html.EscapeString(order.CustomerName),
		html.EscapeString(order.CustomerPhone),
		html.EscapeString(order.Address),
		itemsList.String(),
		FormatPrice(order.TotalPrice),
		deliveryText,
		paymentText,
	)

	return s.SendToAdmin(strings.TrimSpace(message))
}
