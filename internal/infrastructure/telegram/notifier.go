package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"CourtWatch/internal/domain"
	"CourtWatch/internal/normalize"
	"CourtWatch/internal/ports"
)

const messageChars = 500

// Notifier posts publication alerts to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (n *Notifier) Channel() domain.Channel {
	return domain.ChannelTelegram
}

// Notify posts one publication message to the configured chat.
func (n *Notifier) Notify(ctx context.Context, entity domain.Entity, rec domain.Record) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", buildMessage(entity, rec))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

func buildMessage(entity domain.Entity, rec domain.Record) string {
	var b strings.Builder
	b.WriteString("⚖️ Nova publicação\n\n")
	fmt.Fprintf(&b, "Monitorado: %s\n", entity.Name)
	if rec.Court != "" {
		fmt.Fprintf(&b, "Tribunal: %s\n", rec.Court)
	}
	if rec.Process != "" {
		fmt.Fprintf(&b, "Processo: %s\n", rec.Process)
	}
	if rec.Venue != "" {
		fmt.Fprintf(&b, "Órgão: %s\n", rec.Venue)
	}
	if rec.Kind != "" {
		fmt.Fprintf(&b, "Tipo: %s\n", rec.Kind)
	}
	if rec.Date != "" {
		fmt.Fprintf(&b, "Data: %s\n", rec.Date)
	}
	if text := normalize.Excerpt(rec.FullText, messageChars); text != "" {
		b.WriteString("\n")
		b.WriteString(text)
		b.WriteString("\n")
	}
	if rec.Link != "" {
		b.WriteString("\n")
		b.WriteString(rec.Link)
	}
	return b.String()
}
