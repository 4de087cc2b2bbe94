package telegram

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/captioncast/captioncast/internal/config"
	"github.com/captioncast/captioncast/internal/logging"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	sendTimeout = 10 * time.Second
	dedupWindow = 5 * time.Minute
)

// Sender delivers a text message to a chat.
type Sender interface {
	SendMessage(chatID int64, text string) error
}

// botSender adapts tgbotapi.BotAPI to Sender.
type botSender struct {
	bot *tgbotapi.BotAPI
}

func (s *botSender) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := s.bot.Send(msg)
	return err
}

// Notifier sends one-off operator notices in the background. The bot is
// created on first use so a Telegram outage never blocks startup.
type Notifier struct {
	token  string
	chatID int64
	logger *logging.Logger

	mu       sync.Mutex
	sender   Sender
	sent     map[string]time.Time
	inflight map[string]struct{}
	now      func() time.Time
	wg       sync.WaitGroup
}

// NewNotifier returns nil when notifications are disabled.
func NewNotifier(cfg config.TelegramConfig, logger *logging.Logger) *Notifier {
	if !cfg.Enabled || strings.TrimSpace(cfg.BotToken) == "" || cfg.ChatID == 0 {
		return nil
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Notifier{
		token:    strings.TrimSpace(cfg.BotToken),
		chatID:   cfg.ChatID,
		logger:   logger,
		sent:     make(map[string]time.Time),
		inflight: make(map[string]struct{}),
		now:      time.Now,
	}
}

// Notify queues text for the configured chat and returns immediately. The
// same text is delivered at most once per dedup window; a failed send does
// not count. A nil Notifier is a no-op.
func (n *Notifier) Notify(ctx context.Context, text string) error {
	if n == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	if !n.reserve(text) {
		n.logger.DebugWithContext(ctx, "duplicate notice suppressed")
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		err := n.send(text)
		n.settle(text, err == nil)
		if err != nil {
			n.logger.WarnWithContext(ctx, "telegram notice failed", "error", err)
		}
	}()
	return nil
}

// Wait blocks until every queued notice has been attempted.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}

func (n *Notifier) send(text string) error {
	sender, err := n.getSender()
	if err != nil {
		return err
	}
	return sender.SendMessage(n.chatID, text)
}

// reserve reports whether text may be sent now and marks it in flight.
func (n *Notifier) reserve(text string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	for k, at := range n.sent {
		if now.Sub(at) >= dedupWindow {
			delete(n.sent, k)
		}
	}
	if _, dup := n.sent[text]; dup {
		return false
	}
	if _, busy := n.inflight[text]; busy {
		return false
	}
	n.inflight[text] = struct{}{}
	return true
}

func (n *Notifier) settle(text string, delivered bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.inflight, text)
	if delivered {
		n.sent[text] = n.now()
	}
}

func (n *Notifier) getSender() (Sender, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sender != nil {
		return n.sender, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(n.token, tgbotapi.APIEndpoint, &http.Client{Timeout: sendTimeout})
	if err != nil {
		return nil, err
	}
	n.sender = &botSender{bot: bot}
	return n.sender, nil
}
