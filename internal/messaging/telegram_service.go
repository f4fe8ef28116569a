package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/BTreeMap/HandCoach/internal/models"
	"github.com/BTreeMap/HandCoach/internal/telegram"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramService implements Service on top of the Telegram Bot API.
// Only private chats are served, so a user ID is the decimal chat ID, which
// Telegram sets equal to the sender's user ID.
type TelegramService struct {
	client  telegram.Sender
	events  chan models.Event
	done    chan struct{}
	mu      sync.RWMutex
	stopped bool
}

// NewTelegramService creates a new TelegramService wrapping the given Sender.
func NewTelegramService(client telegram.Sender) *TelegramService {
	slog.Debug("TelegramService created")
	return &TelegramService{
		client: client,
		events: make(chan models.Event, DefaultChannelBufferSize),
		done:   make(chan struct{}),
	}
}

// Start begins long polling for updates.
func (s *TelegramService) Start(ctx context.Context) error {
	slog.Debug("TelegramService Start invoked")
	updates := s.client.Updates()
	go s.handleUpdates(ctx, updates)
	return nil
}

// Stop stops long polling and closes the events channel.
func (s *TelegramService) Stop() error {
	slog.Info("TelegramService Stop invoked")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	s.client.Stop()
	close(s.done)
	close(s.events)
	slog.Info("TelegramService stopped and channels closed")
	return nil
}

// Events returns the channel of inbound events.
func (s *TelegramService) Events() <-chan models.Event {
	return s.events
}

// SendText sends text with inline choices or a reply keyboard.
func (s *TelegramService) SendText(ctx context.Context, to, text string, opts *models.SendOptions) error {
	chatID, err := parseChatID(to)
	if err != nil {
		return err
	}

	var markup interface{}
	if opts != nil {
		switch {
		case len(opts.Choices) > 0:
			labels := make([]string, len(opts.Choices))
			codes := make([]string, len(opts.Choices))
			for i, c := range opts.Choices {
				labels[i], codes[i] = c.Label, c.Code
			}
			markup = telegram.InlineChoices(labels, codes)
		case len(opts.ReplyKeyboard) > 0:
			markup = telegram.ReplyKeyboard(opts.ReplyKeyboard)
		}
	}

	slog.Debug("TelegramService SendText invoked", "to", to, "text_length", len(text), "markup", markup != nil)
	if _, err := s.client.SendText(ctx, chatID, text, markup); err != nil {
		slog.Error("TelegramService SendText error", "error", err, "to", to)
		return err
	}
	return nil
}

// SendMedia uploads a local video with caption.
func (s *TelegramService) SendMedia(ctx context.Context, to string, media models.MediaRef, caption string) error {
	chatID, err := parseChatID(to)
	if err != nil {
		return err
	}
	if err := CheckMedia(media); err != nil {
		return err
	}
	return s.client.SendVideo(ctx, chatID, string(media), caption)
}

// AcknowledgeChoice replaces the pressed question message with text, which
// also removes its buttons. Without a message ID a new message is sent.
func (s *TelegramService) AcknowledgeChoice(ctx context.Context, evt models.Event, text string) error {
	chatID, err := parseChatID(evt.UserID)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(evt.MessageID)
	if err != nil || msgID == 0 {
		_, err := s.client.SendText(ctx, chatID, text, nil)
		return err
	}
	return s.client.EditText(ctx, chatID, msgID, text)
}

func (s *TelegramService) handleUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	slog.Debug("TelegramService handleUpdates starting")
	for {
		select {
		case <-ctx.Done():
			slog.Debug("TelegramService handleUpdates stopping due to context cancellation")
			return
		case <-s.done:
			return
		case u, ok := <-updates:
			if !ok {
				slog.Debug("TelegramService updates channel closed")
				return
			}
			if evt, ok := s.translate(ctx, u); ok {
				s.safeEmitEvent(evt)
			}
		}
	}
}

// safeEmitEvent pushes evt unless the service has stopped.
func (s *TelegramService) safeEmitEvent(evt models.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		slog.Warn("TelegramService dropping inbound event (service stopped)", "userID", evt.UserID)
		return
	}
	emitEvent(s.events, evt, "TelegramService")
}

// translate turns a private-chat update into an event. Group updates are
// dropped since every member would share the chat's session.
func (s *TelegramService) translate(ctx context.Context, u tgbotapi.Update) (models.Event, bool) {
	switch {
	case u.CallbackQuery != nil:
		cb := u.CallbackQuery
		if err := s.client.AnswerCallback(ctx, cb.ID); err != nil {
			slog.Warn("TelegramService failed to answer callback", "error", err, "callbackID", cb.ID)
		}
		if cb.Message == nil || cb.Message.Chat == nil {
			slog.Debug("TelegramService ignoring callback without message", "callbackID", cb.ID)
			return models.Event{}, false
		}
		if !cb.Message.Chat.IsPrivate() {
			slog.Debug("TelegramService ignoring callback from group chat", "chatID", cb.Message.Chat.ID, "chatType", cb.Message.Chat.Type)
			return models.Event{}, false
		}
		return models.Event{
			Kind:      models.EventButton,
			UserID:    strconv.FormatInt(cb.Message.Chat.ID, 10),
			Text:      cb.Data,
			MessageID: strconv.Itoa(cb.Message.MessageID),
			Time:      time.Now().Unix(),
		}, true

	case u.Message != nil && u.Message.Chat != nil:
		msg := u.Message
		if !msg.Chat.IsPrivate() {
			slog.Debug("TelegramService ignoring message from group chat", "chatID", msg.Chat.ID, "chatType", msg.Chat.Type)
			return models.Event{}, false
		}
		userID := strconv.FormatInt(msg.Chat.ID, 10)
		if msg.IsCommand() {
			return models.Event{Kind: models.EventCommand, UserID: userID, Text: msg.Command(), MessageID: strconv.Itoa(msg.MessageID), Time: int64(msg.Date)}, true
		}
		if msg.Text == "" {
			slog.Debug("TelegramService ignoring non-text message", "userID", userID)
			return models.Event{}, false
		}
		return models.Event{Kind: models.EventText, UserID: userID, Text: msg.Text, MessageID: strconv.Itoa(msg.MessageID), Time: int64(msg.Date)}, true
	}

	slog.Debug("TelegramService ignoring update", "updateID", u.UpdateID)
	return models.Event{}, false
}

func parseChatID(userID string) (int64, error) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}
	return id, nil
}
