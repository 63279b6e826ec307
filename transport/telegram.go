package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/sync/errgroup"

	"github.com/martinemde/chatagent/agentloop"
)

// DefaultTelegramAPIURL is the Bot API endpoint.
const DefaultTelegramAPIURL = "https://api.telegram.org"

// TelegramConfig configures a TelegramBot.
type TelegramConfig struct {
	Token         string
	APIURL        string        // DefaultTelegramAPIURL when empty
	PollTimeout   time.Duration // long-poll wait; 30s when zero
	MaxConcurrent int           // updates handled at once; 8 when zero
	HTTPClient    *http.Client
}

// TelegramBot long-polls the Bot API and answers text messages.
type TelegramBot struct {
	agent    Agent
	commands *Commands
	config   TelegramConfig
	api      *bot.Bot
	logger   *slog.Logger
	inflight *errgroup.Group
}

// NewTelegramBot creates a bot. No request is made until Run or a send
// method is called. logger may be nil.
func NewTelegramBot(agent Agent, commands *Commands, cfg TelegramConfig, logger *slog.Logger) (*TelegramBot, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram bot token is required")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultTelegramAPIURL
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.PollTimeout + 10*time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if commands == nil {
		commands = NewCommands(agent, nil)
	}

	b := &TelegramBot{
		agent:    agent,
		commands: commands,
		config:   cfg,
		logger:   logger,
		inflight: new(errgroup.Group),
	}
	b.inflight.SetLimit(cfg.MaxConcurrent)

	api, err := bot.New(cfg.Token,
		bot.WithServerURL(strings.TrimRight(cfg.APIURL, "/")),
		bot.WithHTTPClient(cfg.PollTimeout, client),
		bot.WithSkipGetMe(),
		bot.WithNotAsyncHandlers(),
		bot.WithDefaultHandler(b.handleUpdate),
		bot.WithErrorsHandler(func(err error) {
			logger.Error("telegram polling failed", "error", b.redact(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("telegram: %s", b.redact(err))
	}
	b.api = api
	return b, nil
}

// Run checks the token, then polls for updates until ctx is cancelled.
// In-flight messages finish before Run returns.
func (b *TelegramBot) Run(ctx context.Context) error {
	me, err := b.api.GetMe(ctx)
	if err != nil {
		return b.wrap("getMe", err)
	}
	b.logger.Info("Telegram bot polling for updates", "username", me.Username)

	b.api.Start(ctx)
	_ = b.inflight.Wait()
	return nil
}

// handleUpdate runs on the polling goroutine. Go blocks once MaxConcurrent
// messages are being answered, which pauses polling.
func (b *TelegramBot) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	msg := update.Message
	b.inflight.Go(func() error {
		b.HandleMessage(ctx, msg)
		return nil
	})
}

// HandleMessage answers one incoming message.
func (b *TelegramBot) HandleMessage(ctx context.Context, msg *models.Message) {
	userID := strconv.FormatInt(msg.Chat.ID, 10)
	name := ""
	if msg.From != nil {
		userID = strconv.FormatInt(msg.From.ID, 10)
		name = msg.From.FirstName
	}

	if _, isCommand := ParseCommand(msg.Text); isCommand {
		reply, ok := b.commands.Handle(userID, name, msg.Text)
		if !ok {
			b.logger.Debug("ignoring unknown command", "user_id", userID, "text", msg.Text)
			return
		}
		b.reply(ctx, msg.Chat.ID, reply)
		return
	}

	b.logger.Info("received message", "user_id", userID, "name", name, "preview", agentloop.Preview(msg.Text, 50))
	if err := b.SendChatAction(ctx, msg.Chat.ID, models.ChatActionTyping); err != nil {
		b.logger.Warn("failed to send typing indicator", "error", err)
	}
	b.reply(ctx, msg.Chat.ID, b.agent.ProcessMessage(ctx, userID, msg.Text))
}

func (b *TelegramBot) reply(ctx context.Context, chatID int64, text string) {
	for _, chunk := range SplitMessage(text, MaxMessageLength) {
		if err := b.SendMessage(ctx, chatID, chunk); err != nil {
			b.logger.Error("failed to send message", "chat_id", chatID, "error", err)
			return
		}
	}
}

// SendMessage posts text to a chat.
func (b *TelegramBot) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := b.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	return b.wrap("sendMessage", err)
}

// SendChatAction shows an activity indicator such as typing.
func (b *TelegramBot) SendChatAction(ctx context.Context, chatID int64, action models.ChatAction) error {
	_, err := b.api.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: chatID,
		Action: action,
	})
	return b.wrap("sendChatAction", err)
}

// wrap names the method and strips the token, which the client library
// embeds in request URLs.
func (b *TelegramBot) wrap(method string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("telegram %s: %s", method, b.redact(err))
}

func (b *TelegramBot) redact(err error) string {
	if b.config.Token == "" {
		return err.Error()
	}
	return strings.ReplaceAll(err.Error(), b.config.Token, "<token>")
}
