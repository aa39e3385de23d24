package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrDeliveryFailed reports that the sink rejected or could not take a message.
var ErrDeliveryFailed = errors.New("delivery failed")

// Notifier delivers one rendered Markdown message. A nil error means the
// destination accepted it.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// TelegramOptions parameterise the Telegram sink.
type TelegramOptions struct {
	BotToken          string
	ChatID            string
	BaseURL           string
	Timeout           time.Duration
	MessagesPerMinute int
}

// TelegramNotifier posts messages through the Bot API sendMessage method.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

// NewTelegramNotifier builds the Telegram sink.
func NewTelegramNotifier(opts TelegramOptions, logger zerolog.Logger) *TelegramNotifier {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.MessagesPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.MessagesPerMinute)), 1)
	}

	return &TelegramNotifier{
		botToken: opts.BotToken,
		chatID:   opts.ChatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		limiter:  limiter,
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send implements Notifier. One attempt, no retry.
func (n *TelegramNotifier) Send(ctx context.Context, text string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: wait for rate limit: %v", ErrDeliveryFailed, err)
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:                n.chatID,
		Text:                  text,
		ParseMode:             "Markdown",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: create telegram request: %v", ErrDeliveryFailed, scrub(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: send telegram request: %v", ErrDeliveryFailed, scrub(err))
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var result sendMessageResponse
	_ = json.Unmarshal(payload, &result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: telegram status %d: %s", ErrDeliveryFailed, resp.StatusCode, result.Description)
	}
	if !result.OK {
		return fmt.Errorf("%w: telegram returned ok=false: %s", ErrDeliveryFailed, result.Description)
	}

	n.logger.Debug().Int("length", len(text)).Msg("message delivered")
	return nil
}

// scrub removes the request URL, which embeds the bot token, from transport errors.
func scrub(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}

// ConsoleNotifier logs messages instead of delivering them. Used for dry runs
// and when no chat destination is configured.
type ConsoleNotifier struct {
	logger zerolog.Logger
}

// NewConsoleNotifier builds a log-only sink.
func NewConsoleNotifier(logger zerolog.Logger) *ConsoleNotifier {
	return &ConsoleNotifier{logger: logger.With().Str("component", "alert_console").Logger()}
}

// Send implements Notifier.
func (c *ConsoleNotifier) Send(_ context.Context, text string) error {
	c.logger.Info().Msg("message (not delivered):\n" + text)
	return nil
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*ConsoleNotifier)(nil)
)
