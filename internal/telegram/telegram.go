// Package telegram wraps the Telegram Bot API client for HandCoach.
//
// It provides methods for sending texts, keyboards and videos, answering
// callback queries and receiving updates through long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// DefaultPollTimeout is the long-polling timeout in seconds.
const DefaultPollTimeout = 30

// ErrMissingToken is returned when no bot token is configured.
var ErrMissingToken = errors.New("telegram bot token not set")

// BotAPI is the subset of *tgbotapi.BotAPI used by Client.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Sender is the interface used by the messaging layer (for production and testing).
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string, markup interface{}) (int, error)
	SendVideo(ctx context.Context, chatID int64, path, caption string) error
	AnswerCallback(ctx context.Context, callbackID string) error
	EditText(ctx context.Context, chatID int64, messageID int, text string) error
	Updates() tgbotapi.UpdatesChannel
	Stop()
}

// Opts holds configuration options for the Telegram client.
type Opts struct {
	Token       string // bot token from BotFather
	PollTimeout int    // long-polling timeout in seconds
	Debug       bool   // log raw API traffic
}

// Option defines a configuration option for the Telegram client.
type Option func(*Opts)

// WithToken sets the bot token.
func WithToken(token string) Option {
	return func(o *Opts) {
		o.Token = token
	}
}

// WithPollTimeout sets the long-polling timeout in seconds.
func WithPollTimeout(seconds int) Option {
	return func(o *Opts) {
		o.PollTimeout = seconds
	}
}

// WithDebug enables tgbotapi debug output.
func WithDebug(debug bool) Option {
	return func(o *Opts) {
		o.Debug = debug
	}
}

// Client wraps a BotAPI for modular use.
type Client struct {
	api         BotAPI
	pollTimeout int
}

// NewClient connects to Telegram with the configured token. The token falls
// back to the TELEGRAM_BOT_TOKEN environment variable.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{PollTimeout: DefaultPollTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	if cfg.Token == "" {
		slog.Error("Telegram NewClient missing bot token")
		return nil, ErrMissingToken
	}

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		slog.Error("Failed to initialize Telegram bot", "error", err)
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	api.Debug = cfg.Debug
	slog.Info("Telegram client authorized", "username", api.Self.UserName)

	return NewClientWithAPI(api, cfg.PollTimeout), nil
}

// NewClientWithAPI wraps an existing BotAPI.
func NewClientWithAPI(api BotAPI, pollTimeout int) *Client {
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	return &Client{api: api, pollTimeout: pollTimeout}
}

// SendText sends text to chatID with optional reply markup and returns the new message ID.
func (c *Client) SendText(ctx context.Context, chatID int64, text string, markup interface{}) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if text == "" {
		return 0, fmt.Errorf("message text cannot be empty")
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	slog.Debug("Sending Telegram message", "chatID", chatID, "text_length", len(text), "markup", markup != nil)
	sent, err := c.api.Send(msg)
	if err != nil {
		slog.Error("Failed to send Telegram message", "error", err, "chatID", chatID)
		return 0, fmt.Errorf("failed to send message to %d: %w", chatID, err)
	}
	return sent.MessageID, nil
}

// SendVideo uploads the local file at path as a video.
func (c *Client) SendVideo(ctx context.Context, chatID int64, path, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	video := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(path))
	video.Caption = caption
	slog.Debug("Sending Telegram video", "chatID", chatID, "path", path)
	if _, err := c.api.Send(video); err != nil {
		slog.Error("Failed to send Telegram video", "error", err, "chatID", chatID, "path", path)
		return fmt.Errorf("failed to send video to %d: %w", chatID, err)
	}
	return nil
}

// AnswerCallback stops the client-side spinner of a pressed inline button.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		return fmt.Errorf("failed to answer callback %s: %w", callbackID, err)
	}
	return nil
}

// EditText replaces the text of a sent message, dropping its inline keyboard.
func (c *Client) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := c.api.Request(edit); err != nil {
		return fmt.Errorf("failed to edit message %d in %d: %w", messageID, chatID, err)
	}
	return nil
}

// Updates starts long polling and returns the update channel.
func (c *Client) Updates() tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = c.pollTimeout
	slog.Debug("Telegram long polling started", "timeout", c.pollTimeout)
	return c.api.GetUpdatesChan(u)
}

// Stop ends long polling.
func (c *Client) Stop() {
	c.api.StopReceivingUpdates()
	slog.Debug("Telegram long polling stopped")
}

// InlineChoices builds an inline keyboard with one button per row.
func InlineChoices(labels, codes []string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(labels))
	for i, label := range labels {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, codes[i])))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// ReplyKeyboard builds a resizable reply keyboard from rows of labels.
func ReplyKeyboard(rows [][]string) tgbotapi.ReplyKeyboardMarkup {
	kbRows := make([][]tgbotapi.KeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
		}
		kbRows = append(kbRows, tgbotapi.NewKeyboardButtonRow(buttons...))
	}
	kb := tgbotapi.NewReplyKeyboard(kbRows...)
	kb.ResizeKeyboard = true
	return kb
}

// MockClient implements Sender without contacting Telegram (for tests).
type MockClient struct {
	Texts     []MockText
	Videos    []string
	Answered  []string
	Edits     []string
	SendErr   error
	VideoErr  error
	updates   chan tgbotapi.Update
	nextMsgID int
}

// MockText records a text sent through MockClient.
type MockText struct {
	ChatID int64
	Text   string
	Markup interface{}
}

func NewMockClient() *MockClient {
	return &MockClient{updates: make(chan tgbotapi.Update, 16)}
}

func (m *MockClient) SendText(ctx context.Context, chatID int64, text string, markup interface{}) (int, error) {
	if m.SendErr != nil {
		return 0, m.SendErr
	}
	m.nextMsgID++
	m.Texts = append(m.Texts, MockText{ChatID: chatID, Text: text, Markup: markup})
	return m.nextMsgID, nil
}

func (m *MockClient) SendVideo(ctx context.Context, chatID int64, path, caption string) error {
	if m.VideoErr != nil {
		return m.VideoErr
	}
	m.Videos = append(m.Videos, path)
	return nil
}

func (m *MockClient) AnswerCallback(ctx context.Context, callbackID string) error {
	m.Answered = append(m.Answered, callbackID)
	return nil
}

func (m *MockClient) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	m.Edits = append(m.Edits, fmt.Sprintf("%d:%d:%s", chatID, messageID, text))
	return nil
}

func (m *MockClient) Updates() tgbotapi.UpdatesChannel { return m.updates }

// Push queues an update as if it came from Telegram.
func (m *MockClient) Push(u tgbotapi.Update) { m.updates <- u }

func (m *MockClient) Stop() {}
