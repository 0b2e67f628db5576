package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/simvoyage/esim-backend/pkg/config"
	"github.com/simvoyage/esim-backend/pkg/logger"
)

const telegramAPIBase = "https://api.telegram.org"

// Notifier pushes operational alerts to the storefront's Telegram channel.
// Every send is fire-and-forget: failures are logged and never surface to
// the request that triggered them.
type Notifier interface {
	NotifyPurchase(ctx context.Context, n PurchaseNotification)
	NotifyTopup(ctx context.Context, n TopupNotification)
}

// PurchaseNotification summarizes a completed or pending purchase.
type PurchaseNotification struct {
	OrderID     string
	Email       string
	CountryName string
	PlanName    string
	TotalCents  int64
	Status      string
}

// TopupNotification summarizes a reconciled wallet top-up.
type TopupNotification struct {
	Email       string
	AmountCents int64
	Provider    string
	Reference   string
	Outcome     string
}

type telegramNotifier struct {
	httpClient *http.Client
	baseURL    string
	botToken   string
	chatID     string
	logg       *logger.Logger
}

// Option overrides notifier internals, used by tests.
type Option func(*telegramNotifier)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(n *telegramNotifier) {
		if client != nil {
			n.httpClient = client
		}
	}
}

// WithBaseURL overrides the Telegram API base URL.
func WithBaseURL(baseURL string) Option {
	return func(n *telegramNotifier) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			n.baseURL = trimmed
		}
	}
}

// NewTelegramNotifier builds the notifier. A blank bot token yields a
// disabled notifier rather than an error so local setups need no secrets.
func NewTelegramNotifier(cfg config.TelegramConfig, logg *logger.Logger, opts ...Option) Notifier {
	n := &telegramNotifier{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    telegramAPIBase,
		botToken:   strings.TrimSpace(cfg.BotToken),
		chatID:     strings.TrimSpace(cfg.ChatID),
		logg:       logg,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

func (n *telegramNotifier) NotifyPurchase(ctx context.Context, p PurchaseNotification) {
	text := fmt.Sprintf("🛒 <b>eSIM purchase</b>\nOrder: %s\nCustomer: %s\nPlan: %s — %s\nTotal: %s\nStatus: %s",
		p.OrderID, p.Email, p.CountryName, p.PlanName, formatCents(p.TotalCents), p.Status)
	n.send(ctx, text)
}

func (n *telegramNotifier) NotifyTopup(ctx context.Context, t TopupNotification) {
	text := fmt.Sprintf("💰 <b>Wallet top-up %s</b>\nCustomer: %s\nAmount: %s\nProvider: %s\nReference: %s",
		t.Outcome, t.Email, formatCents(t.AmountCents), t.Provider, t.Reference)
	n.send(ctx, text)
}

func (n *telegramNotifier) send(ctx context.Context, text string) {
	if n.botToken == "" || n.chatID == "" {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"chat_id":                  n.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
	if err != nil {
		return
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(n.baseURL, "/"), n.botToken)

	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.httpClient.Do(req)
		if err != nil {
			if n.logg != nil {
				n.logg.Warn(sendCtx, fmt.Sprintf("telegram notification failed: %v", err))
			}
			return
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK && n.logg != nil {
			n.logg.Warn(sendCtx, fmt.Sprintf("telegram notification returned status %d", resp.StatusCode))
		}
	}()
}

func formatCents(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}
