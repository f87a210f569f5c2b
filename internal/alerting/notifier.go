package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// CropInsight is one crop line of a digest.
type CropInsight struct {
	CropName  string
	Direction string
	Text      string
}

// Notification is a price-insight digest for one county.
type Notification struct {
	GeneratedAt   time.Time
	County        string
	Insights      []CropInsight
	Insufficient  []string
	AdditionalMsg string
}

// Empty reports whether the digest carries nothing worth sending.
func (n Notification) Empty() bool {
	return len(n.Insights) == 0 && len(n.Insufficient) == 0 && n.AdditionalMsg == ""
}

// Notifier delivers insight digests.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes digests through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls sendMessage with the rendered digest.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Str("county", note.County).
		Int("insights", len(note.Insights)).
		Int("insufficient", len(note.Insufficient)).
		Msg("insight digest sent (telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Sprout Price Insights]\n")
	if !note.GeneratedAt.IsZero() {
		builder.WriteString(fmt.Sprintf("Generated: %s UTC\n", note.GeneratedAt.UTC().Format(time.RFC3339)))
	}
	if note.County != "" {
		builder.WriteString(fmt.Sprintf("County: %s\n", note.County))
	}
	for _, insight := range note.Insights {
		builder.WriteString(fmt.Sprintf("\n%s (%s)\n%s\n", insight.CropName, insight.Direction, insight.Text))
	}
	if len(note.Insufficient) > 0 {
		builder.WriteString(fmt.Sprintf("\nInsufficient history: %s\n", strings.Join(note.Insufficient, ", ")))
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
