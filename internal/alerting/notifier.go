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
	"github.com/shopspring/decimal"
)

// Notification summarises one update cycle.
type Notification struct {
	StationID  string
	Mode       string
	Window     string
	Readings   int
	Days       int
	Added      int
	Updated    int
	SeriesRows int
	LatestDay  time.Time
	LatestMM   decimal.Decimal
	WindowMM   decimal.Decimal
	Failure    string
}

// Notifier delivers update summaries.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier posts summaries through the Telegram Bot API.
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

// Notify calls sendMessage with the rendered summary.
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
		return fmt.Errorf("telegram responded with status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Str("station", note.StationID).
		Str("mode", note.Mode).
		Bool("failed", note.Failure != "").
		Msg("update summary sent")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	if note.Failure != "" {
		builder.WriteString("[Rainfall update FAILED]\n")
	} else {
		builder.WriteString("[Rainfall update]\n")
	}
	builder.WriteString(fmt.Sprintf("Station: %s (%s)\n", note.StationID, note.Mode))
	builder.WriteString(fmt.Sprintf("Window: %s\n", note.Window))
	if note.Failure != "" {
		builder.WriteString(fmt.Sprintf("Error: %s\n", note.Failure))
		return builder.String()
	}
	builder.WriteString(fmt.Sprintf("Readings: %d -> %d day(s)\n", note.Readings, note.Days))
	builder.WriteString(fmt.Sprintf("Added: %d, updated: %d, series rows: %d\n", note.Added, note.Updated, note.SeriesRows))
	builder.WriteString(fmt.Sprintf("Window total: %s mm\n", note.WindowMM.StringFixed(1)))
	if !note.LatestDay.IsZero() {
		builder.WriteString(fmt.Sprintf("Latest: %s %s mm\n", note.LatestDay.Format("2006-01-02"), note.LatestMM.StringFixed(1)))
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
