// Package bot runs the Telegram conversation that collects customer feedback.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/kokossimo/backend/internal/models"
	"github.com/kokossimo/backend/internal/services"
)

// Conversation states.
const (
	StateChooseType = iota + 1
	StateEnterText
	StateEnterContact
)

// Keyboard buttons, matched against incoming text.
const (
	ButtonReview     = "✍️ Оставить отзыв"
	ButtonSuggestion = "💡 Предложение"
	ButtonContact    = "📞 Просьба о связи"
	ButtonCancel     = "↩️ Отмена"
)

var buttonTypes = map[string]string{
	ButtonReview:     models.FeedbackReview,
	ButtonSuggestion: models.FeedbackSuggestion,
	ButtonContact:    models.FeedbackContactRequest,
}

var typeLabels = map[string]string{
	models.FeedbackReview:         "✍️ отзыв",
	models.FeedbackSuggestion:     "💡 предложение",
	models.FeedbackContactRequest: "📞 просьбу о связи",
}

const (
	msgWelcome = "👋 Здравствуйте!\n\n" +
		"Нам важно ваше мнение. Здесь вы можете:\n" +
		"• оставить отзыв\n" +
		"• поделиться предложением\n" +
		"• попросить связаться с вами\n\n" +
		"Выберите действие кнопкой ниже — это займёт пару минут."
	msgChooseAgain   = "Выберите, пожалуйста, одно из действий кнопкой ниже 👇"
	msgEnterText     = "Отлично, вы выбрали %s.\n\nНапишите ваше сообщение — мы обязательно прочитаем:"
	msgEmptyText     = "Напишите, пожалуйста, текст сообщения — пустое мы не отправим 😊"
	msgEnterContact  = "📱 Осталось оставить контакт для связи.\n\nНапишите телефон и/или email одним сообщением.\nНапример: +7 999 123-45-67 или example@mail.ru"
	msgContactAgain  = "📱 Напишите телефон и/или email одним сообщением.\nНапример: +7 999 123-45-67 или example@mail.ru"
	msgBadContact    = "Не получилось распознать контакт:\n\n%s\n\nПопробуйте ещё раз 👇"
	msgBadPhone      = "📞 Телефон: укажите в формате +7 999 123-45-67 или 89991234567"
	msgBadEmail      = "✉️ Email: укажите в формате example@mail.ru"
	msgCancelled     = "↩️ Отменили. Выберите действие кнопкой ниже:"
	msgCancelledText = "↩️ Отменили. Выберите действие кнопкой ниже, когда будете готовы:"
	msgSaved         = "✅ Готово! Спасибо, что нашли время — мы обязательно ознакомимся с вашим сообщением.\n\nМожете отправить ещё одно обращение или выбрать другое действие:"
	msgSaveFailed    = "😔 Что-то пошло не так — сообщение не сохранилось. Попробуйте позже или напишите нам другим способом."
)

// Sender delivers replies to a chat.
type Sender interface {
	Reply(ctx context.Context, chatID int64, text string, keyboard *services.ReplyKeyboard) error
}

// Store persists a finished conversation.
type Store interface {
	Submit(ctx context.Context, in services.FeedbackInput) (*models.Feedback, error)
}

// Updates is the long-polling source of incoming messages.
type Updates interface {
	GetUpdates(ctx context.Context, offset int64, timeout int) ([]services.Update, error)
}

type conversation struct {
	state        int
	feedbackType string
	text         string
}

// Bot holds per-chat conversation state in memory.
type Bot struct {
	sender Sender
	store  Store

	mu    sync.Mutex
	chats map[int64]*conversation
}

// New constructs a Bot.
func New(sender Sender, store Store) *Bot {
	return &Bot{sender: sender, store: store, chats: make(map[int64]*conversation)}
}

// State returns the conversation state of a chat, or 0 when none is active.
func (b *Bot) State(chatID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if conv, ok := b.chats[chatID]; ok {
		return conv.state
	}
	return 0
}

// Run long-polls updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context, updates Updates, timeout int) error {
	var offset int64
	for {
		batch, err := updates.GetUpdates(ctx, offset, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[Bot] getUpdates failed: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for _, update := range batch {
			offset = update.UpdateID + 1
			if update.Message == nil {
				continue
			}
			if err := b.HandleMessage(ctx, *update.Message); err != nil {
				log.Printf("[Bot] chat %d: %v", update.Message.Chat.ID, err)
			}
		}
	}
}

// HandleMessage advances the conversation of the message's chat.
func (b *Bot) HandleMessage(ctx context.Context, msg services.Message) error {
	text := strings.TrimSpace(msg.Text)
	chatID := msg.Chat.ID

	switch command(text) {
	case "start":
		b.setState(chatID, &conversation{state: StateChooseType})
		return b.reply(ctx, chatID, msgWelcome, welcomeKeyboard())
	case "cancel":
		return b.cancel(ctx, chatID, msgCancelled)
	case "":
	default:
		return nil
	}

	b.mu.Lock()
	conv, ok := b.chats[chatID]
	var current conversation
	if ok {
		current = *conv
	}
	b.mu.Unlock()

	if !ok {
		// Only a button press may resume a conversation lost on restart.
		if _, isButton := buttonTypes[text]; !isButton {
			return nil
		}
		current.state = StateChooseType
	}

	switch current.state {
	case StateEnterText:
		return b.receiveText(ctx, msg, current, text)
	case StateEnterContact:
		return b.receiveContact(ctx, msg, current, text)
	default:
		return b.chooseType(ctx, chatID, text)
	}
}

func (b *Bot) chooseType(ctx context.Context, chatID int64, text string) error {
	feedbackType, ok := buttonTypes[text]
	if !ok {
		b.setState(chatID, &conversation{state: StateChooseType})
		return b.reply(ctx, chatID, msgChooseAgain, welcomeKeyboard())
	}

	b.setState(chatID, &conversation{state: StateEnterText, feedbackType: feedbackType})
	return b.reply(ctx, chatID, fmt.Sprintf(msgEnterText, typeLabels[feedbackType]), actionKeyboard())
}

func (b *Bot) receiveText(ctx context.Context, msg services.Message, conv conversation, text string) error {
	chatID := msg.Chat.ID
	if text == ButtonCancel {
		return b.cancel(ctx, chatID, msgCancelledText)
	}
	if text == "" {
		return b.reply(ctx, chatID, msgEmptyText, actionKeyboard())
	}

	conv.text = text
	if conv.feedbackType == models.FeedbackContactRequest {
		conv.state = StateEnterContact
		b.setState(chatID, &conv)
		return b.reply(ctx, chatID, msgEnterContact, actionKeyboard())
	}
	return b.save(ctx, chatID, msg.From, conv, "", "")
}

func (b *Bot) receiveContact(ctx context.Context, msg services.Message, conv conversation, text string) error {
	chatID := msg.Chat.ID
	if text == ButtonCancel {
		return b.cancel(ctx, chatID, msgCancelled)
	}

	phone, email := services.ParseContactLine(text)
	if phone == "" && email == "" {
		return b.reply(ctx, chatID, msgContactAgain, actionKeyboard())
	}

	var problems []string
	if phone != "" && !services.IsValidPhone(phone) {
		problems = append(problems, msgBadPhone)
	}
	if email != "" && !services.IsValidEmail(email) {
		problems = append(problems, msgBadEmail)
	}
	if len(problems) > 0 {
		return b.reply(ctx, chatID, fmt.Sprintf(msgBadContact, strings.Join(problems, "\n")), actionKeyboard())
	}

	return b.save(ctx, chatID, msg.From, conv, phone, email)
}

func (b *Bot) save(ctx context.Context, chatID int64, from *services.TelegramUser, conv conversation, phone, email string) error {
	in := services.FeedbackInput{
		FeedbackType: conv.feedbackType,
		Text:         conv.text,
		ContactPhone: phone,
		ContactEmail: email,
	}
	if from != nil {
		id := from.ID
		in.TelegramUserID = &id
		if from.Username != "" {
			in.TelegramUsername = "@" + from.Username
		}
	}

	_, err := b.store.Submit(ctx, in)
	b.setState(chatID, &conversation{state: StateChooseType})

	if err != nil {
		log.Printf("[Bot] failed to save feedback from chat %d: %v", chatID, err)
		var validationErr *services.ValidationError
		if errors.As(err, &validationErr) {
			log.Printf("[Bot] rejected fields: %v", validationErr.Fields)
		}
		return b.reply(ctx, chatID, msgSaveFailed, welcomeKeyboard())
	}

	log.Printf("[Bot] %s saved from chat %d", conv.feedbackType, chatID)
	return b.reply(ctx, chatID, msgSaved, welcomeKeyboard())
}

func (b *Bot) cancel(ctx context.Context, chatID int64, text string) error {
	b.setState(chatID, &conversation{state: StateChooseType})
	return b.reply(ctx, chatID, text, welcomeKeyboard())
}

func (b *Bot) setState(chatID int64, conv *conversation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chats[chatID] = conv
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string, keyboard *services.ReplyKeyboard) error {
	return b.sender.Reply(ctx, chatID, text, keyboard)
}

// command returns the bot command in text without the slash and any
// @botname suffix, or "" for plain text.
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	name := strings.Fields(text)[0][1:]
	if at := strings.Index(name, "@"); at >= 0 {
		name = name[:at]
	}
	return strings.ToLower(name)
}

func welcomeKeyboard() *services.ReplyKeyboard {
	return &services.ReplyKeyboard{
		Keyboard: [][]services.KeyboardButton{
			{{Text: ButtonReview}},
			{{Text: ButtonSuggestion}},
			{{Text: ButtonContact}},
		},
		ResizeKeyboard:        true,
		IsPersistent:          true,
		InputFieldPlaceholder: "Выберите действие...",
	}
}

func actionKeyboard() *services.ReplyKeyboard {
	return &services.ReplyKeyboard{
		Keyboard:              [][]services.KeyboardButton{{{Text: ButtonCancel}}},
		ResizeKeyboard:        true,
		IsPersistent:          true,
		InputFieldPlaceholder: "Введите текст или нажмите отмена...",
	}
}
