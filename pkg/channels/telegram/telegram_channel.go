package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"ebpro/pkg/api"
	"ebpro/pkg/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// DefaultMessageLimit is the Telegram maximum message length in characters.
const DefaultMessageLimit = 4096

// usage is the reply to /start and /help.
const usage = `EBPro Mini-MCP

Надішліть інструкцію українською або англійською, наприклад:
• відкрий проект "C:/Projects/demo.emtp"
• зібрати проект
• запусти офлайн симуляцію
• зроби скріншот "D:/shots/sim.png"
• запакуй у ecmp "D:/out/demo.ecmp"`

// TelegramConfig encapsulates the credentials and access list of the bot.
type TelegramConfig struct {
	Token string `json:"token"` // The secret BOT API string provided by @BotFather
	// AllowedUsers lists the numeric user IDs or usernames permitted to
	// send instructions. The bot ignores everyone else.
	AllowedUsers []string `json:"allowed_users"`
	// MessageLimit splits long replies. Default: 4096.
	MessageLimit int `json:"message_limit"`
}

// sender is the subset of *tgbotapi.BotAPI used to reply.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramChannel is the implementation of gateway.Channel for the
// Telegram platform. Each allowed text message becomes one instruction.
type TelegramChannel struct {
	config     TelegramConfig     // Auth credentials
	bot        *tgbotapi.BotAPI   // Underlying Telegram SDK client
	out        sender             // Reply path, the bot itself outside tests
	allowed    map[string]bool    // Normalized AllowedUsers
	stopCtx    context.Context    // Context used to forcibly abort the long-polling HTTP request
	stopCancel context.CancelFunc // Function to trigger the abort
}

// stopAwareDial aborts in-flight dials once stopCtx is done. The link to
// stopCtx is released as soon as the dial returns.
func stopAwareDial(stopCtx context.Context, dialer *net.Dialer) func(context.Context, string, string) (net.Conn, error) {
	return func(dialCtx context.Context, network, addr string) (net.Conn, error) {
		mergedCtx, mergedCancel := context.WithCancel(dialCtx)
		defer mergedCancel()
		stop := context.AfterFunc(stopCtx, mergedCancel)
		defer stop()
		return dialer.DialContext(mergedCtx, network, addr)
	}
}

func NewTelegramChannel(cfg TelegramConfig) (*TelegramChannel, error) {
	ctx, cancel := context.WithCancel(context.Background())

	// By tying the DialContext to stopCtx, active long-polling requests are
	// aborted when Stop() is called, preventing the 409 Conflict on restart.
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	botHttpClient := &http.Client{
		Timeout: 90 * time.Second,
		Transport: &http.Transport{
			DialContext:           stopAwareDial(ctx, dialer),
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, botHttpClient)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	slog.Info("Telegram bot authorized", "username", bot.Self.UserName)

	t := newChannel(ctx, cancel, cfg, bot)
	t.bot = bot
	return t, nil
}

func newChannel(ctx context.Context, cancel context.CancelFunc, cfg TelegramConfig, out sender) *TelegramChannel {
	if cfg.MessageLimit <= 0 {
		cfg.MessageLimit = DefaultMessageLimit
	}
	allowed := make(map[string]bool, len(cfg.AllowedUsers))
	for _, u := range cfg.AllowedUsers {
		if n := normalizeUser(u); n != "" {
			allowed[n] = true
		}
	}
	return &TelegramChannel{
		config:     cfg,
		out:        out,
		allowed:    allowed,
		stopCtx:    ctx,
		stopCancel: cancel,
	}
}

// ID returns the unique platform identifier "telegram".
func (t *TelegramChannel) ID() string {
	return "telegram"
}

// Start initiates the long-polling update loop in a background goroutine.
func (t *TelegramChannel) Start(ctx api.ChannelContext) error {
	if t.bot == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	offset := 0

	go func() {
		for {
			select {
			case <-t.stopCtx.Done():
				return // Gracefully exit on shutdown
			default:
			}

			// GetUpdates instead of GetUpdatesChan keeps the offset under our control
			reqConfig := tgbotapi.NewUpdate(offset)
			reqConfig.Timeout = 60

			updates, err := t.bot.GetUpdates(reqConfig)
			if err != nil {
				select {
				case <-t.stopCtx.Done():
					return // Ignore error if we are shutting down
				default:
					slog.Debug("Failed to get telegram updates", "error", err)
					time.Sleep(3 * time.Second)
					continue
				}
			}

			for _, update := range updates {
				if update.UpdateID < offset {
					continue
				}
				offset = update.UpdateID + 1
				if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
					continue
				}
				// Actions are serialized by the dispatcher; do not block polling on them
				go t.handleMessage(ctx, update.Message)
			}
		}
	}()

	return nil
}

func (t *TelegramChannel) Stop() error {
	t.stopCancel() // Cancel our custom long-polling loop immediately

	// Forcefully close lingering HTTP connections
	if t.bot != nil {
		if httpClient, ok := t.bot.Client.(*http.Client); ok && httpClient != nil {
			if transport, ok := httpClient.Transport.(*http.Transport); ok {
				transport.CloseIdleConnections()
			}
		}
	}

	return nil
}

// handleMessage runs one incoming message through the pipeline and replies.
func (t *TelegramChannel) handleMessage(ctx api.ChannelContext, m *tgbotapi.Message) {
	chatID := m.Chat.ID
	userID := strconv.FormatInt(m.From.ID, 10)

	if !t.isAllowed(userID, m.From.UserName) {
		slog.Warn("Telegram message from a user outside allowed_users", "user_id", userID, "username", m.From.UserName)
		t.reply(chatID, "⛔ Доступ заборонено. Попросіть адміністратора додати вас до allowed_users.")
		return
	}

	if m.IsCommand() {
		switch m.Command() {
		case "start", "help":
			t.reply(chatID, usage)
			return
		}
	}

	text := strings.TrimSpace(m.Text)
	if text == "" {
		text = strings.TrimSpace(m.Caption)
	}

	if _, err := t.out.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		slog.Debug("Failed to send chat action", "error", err)
	}

	in := &api.Instruction{
		Session: api.SessionContext{
			ChannelID: t.ID(),
			UserID:    userID,
			Username:  m.From.UserName,
		},
		Text:          text,
		Preauthorized: true,
	}
	res, err := ctx.Handle(t.stopCtx, in)
	t.reply(chatID, formatReply(res, err))
	if err == nil && res.File != "" {
		t.sendFile(chatID, res.File)
	}
}

func (t *TelegramChannel) isAllowed(userID, username string) bool {
	return t.allowed[userID] || (username != "" && t.allowed[normalizeUser(username)])
}

// reply sends text, split to the configured message limit.
func (t *TelegramChannel) reply(chatID int64, text string) {
	for i, chunk := range splitMessage(text, t.config.MessageLimit) {
		if _, err := t.out.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			slog.Error("Telegram send failed", "chunk", i, "error", err)
			return
		}
	}
}

// sendFile uploads a produced file, as a photo when it is an image.
func (t *TelegramChannel) sendFile(chatID int64, path string) {
	if _, err := os.Stat(path); err != nil {
		slog.Warn("Produced file is not readable, skipping upload", "path", path, "error", err)
		return
	}

	mimeType, _ := utils.DetectFileMimeAndExt(path)
	var msg tgbotapi.Chattable
	if strings.HasPrefix(mimeType, "image/") {
		msg = tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(path))
	} else {
		msg = tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	}
	if _, err := t.out.Send(msg); err != nil {
		slog.Error("Failed to upload file", "path", path, "mime", mimeType, "error", err)
	}
}

// formatReply renders a result or failure for a chat bubble.
func formatReply(res *api.Result, err error) string {
	if err != nil {
		info := api.Describe(err)
		return fmt.Sprintf("❌ %s\n💡 %s", info.Message, info.Hint)
	}
	var b strings.Builder
	b.WriteString("✅ ")
	b.WriteString(res.Notes)
	if res.File != "" {
		b.WriteString("\n📄 ")
		b.WriteString(res.File)
	}
	return b.String()
}

// normalizeUser lower-cases a username and strips a leading "@".
func normalizeUser(u string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(u), "@"))
}

// splitMessage cuts text into chunks of at most limit runes.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}
	var chunks []string
	for i := 0; i < len(runes); i += limit {
		end := i + limit
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}
