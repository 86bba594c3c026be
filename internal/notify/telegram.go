package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/alanyoungcy/predictionledger/internal/domain"
	"github.com/alanyoungcy/predictionledger/internal/ratelimit"
)

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramSender posts to a chat through the Bot API sendMessage method.
// Sends wait on the limiter under a per-chat key; both limiter
// implementations pace Wait to one call per second, the Bot API's per-chat
// limit.
type TelegramSender struct {
	apiBase string
	token   string
	chatID  string
	limiter domain.RateLimiter
}

// TelegramOption customises a TelegramSender.
type TelegramOption func(*TelegramSender)

// WithTelegramAPI overrides the Bot API base URL.
func WithTelegramAPI(base string) TelegramOption {
	return func(t *TelegramSender) { t.apiBase = strings.TrimRight(base, "/") }
}

// WithTelegramLimiter paces sends through limiter. With the Redis limiter
// every replica shares one budget per chat.
func WithTelegramLimiter(limiter domain.RateLimiter) TelegramOption {
	return func(t *TelegramSender) {
		if limiter != nil {
			t.limiter = limiter
		}
	}
}

// NewTelegramSender creates a TelegramSender for one bot and chat.
func NewTelegramSender(token, chatID string, opts ...TelegramOption) *TelegramSender {
	t := &TelegramSender{
		apiBase: defaultTelegramAPI,
		token:   token,
		chatID:  chatID,
		limiter: ratelimit.New(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	if err := t.limiter.Wait(ctx, "notify:telegram:"+t.chatID); err != nil {
		return fmt.Errorf("telegram: wait: %w", err)
	}
	payload := map[string]string{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n%s", title, message),
		"parse_mode": "Markdown",
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	if err := postJSON(ctx, newHTTPClient(), url, payload); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

func (t *TelegramSender) Name() string { return "telegram" }
