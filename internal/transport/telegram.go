package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/stewardhq/steward/internal/session"
)

// Telegram implements Transport over
// github.com/go-telegram-bot-api/telegram-bot-api/v5. Grounded on
// channels/telegram.go's bot lifecycle and reconnect-with-backoff poll
// loop, generalized from task-router dispatch to the synchronous
// MessageHandler/CommandHandler seam.
type Telegram struct {
	token      string
	allowedIDs map[int64]struct{}
	logger     *slog.Logger

	onMessage MessageHandler
	onCommand CommandHandler

	mu     sync.Mutex
	bot    *tgbotapi.BotAPI
	cancel context.CancelFunc
}

// NewTelegram builds a Telegram transport. An empty allowedIDs allows
// every user, matching the teacher's original all-open default when no
// allowlist is configured.
func NewTelegram(token string, allowedIDs []int64, logger *slog.Logger) *Telegram {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[int64]struct{}, len(allowedIDs))
	for _, id := range allowedIDs {
		allowed[id] = struct{}{}
	}
	return &Telegram{token: token, allowedIDs: allowed, logger: logger}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) OnMessage(handler MessageHandler) { t.onMessage = handler }
func (t *Telegram) OnCommand(handler CommandHandler) { t.onCommand = handler }

// Start connects and long-polls for updates until ctx is canceled.
// Reconnects with exponential backoff on transient poll failures, mirroring
// channels/telegram.go's Start.
func (t *Telegram) Start(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram: init failed: %w", err)
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.bot = bot
	t.cancel = cancel
	t.mu.Unlock()

	t.logger.Info("telegram transport started", "user", bot.Self.UserName)

	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		if runCtx.Err() != nil {
			return nil
		}

		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := bot.GetUpdatesChan(u)

		pollErr := t.pollUpdates(runCtx, updates)
		bot.StopReceivingUpdates()

		if pollErr == nil {
			return nil
		}
		t.logger.Warn("telegram poll disconnected, reconnecting", "error", pollErr, "backoff", backoff)
		select {
		case <-runCtx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Stop cancels the poll loop started by Start.
func (t *Telegram) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
}

const stallTimeout = 150 * time.Second

// pollUpdates reads from updates until ctx is done, the channel closes, or
// no update arrives within stallTimeout (the library blocks rather than
// closing the channel on a dead connection).
func (t *Telegram) pollUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	timer := time.NewTimer(stallTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("update channel closed")
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(stallTimeout)

			if update.Message != nil {
				t.handleMessage(ctx, update.Message)
			}
		case <-timer.C:
			return fmt.Errorf("no updates received for %v", stallTimeout)
		}
	}
}

func (t *Telegram) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if len(t.allowedIDs) > 0 {
		if _, ok := t.allowedIDs[msg.From.ID]; !ok {
			t.logger.Warn("telegram access denied", "user_id", msg.From.ID, "user_name", msg.From.UserName)
			return
		}
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	in := session.InboundMessage{
		SessionKey: session.Key("telegram:" + strconv.FormatInt(msg.Chat.ID, 10) + ":" + strconv.FormatInt(msg.From.ID, 10)),
		Text:       text,
		ChannelID:  strconv.FormatInt(msg.Chat.ID, 10),
		UserID:     strconv.FormatInt(msg.From.ID, 10),
		UserName:   msg.From.UserName,
		IsGroup:    msg.Chat.IsGroup() || msg.Chat.IsSuperGroup(),
	}

	var (
		out *session.OutboundMessage
		err error
	)
	if cmd, ok := ParseCommand(text); ok && t.onCommand != nil {
		out, err = t.onCommand(ctx, cmd, in)
	} else if t.onMessage != nil {
		out, err = t.onMessage(ctx, in)
	}
	if err != nil {
		t.logger.Error("telegram: handler failed", "error", err)
		t.reply(msg.Chat.ID, fmt.Sprintf("Error: %v", err))
		return
	}
	if out == nil || out.Text == "" || out.Text == session.NoReply {
		return
	}
	t.reply(msg.Chat.ID, out.Text)
}

func (t *Telegram) reply(chatID int64, text string) {
	t.mu.Lock()
	bot := t.bot
	t.mu.Unlock()
	if bot == nil {
		return
	}
	if _, err := bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		t.logger.Error("telegram: send failed", "error", err)
	}
}

// SendToChannel implements Transport for scheduler/subagent delivery.
// channelID is the Telegram chat ID as a decimal string.
func (t *Telegram) SendToChannel(ctx context.Context, channelID string, text string, images []session.Block) error {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid channel id %q: %w", channelID, err)
	}
	t.mu.Lock()
	bot := t.bot
	t.mu.Unlock()
	if bot == nil {
		return fmt.Errorf("telegram: transport not started")
	}
	if _, err := bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}
