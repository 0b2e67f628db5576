package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/simvoyage/esim-backend/pkg/config"
	"github.com/simvoyage/esim-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client wraps Stripe's API client plus env-specific metadata.
type Client struct {
	api           *stripe.Client
	environment   string
	signingSecret string
	successURL    string
	cancelURL     string
}

// TopupSessionInput describes the hosted checkout session for a wallet top-up.
type TopupSessionInput struct {
	AmountCents int64
	Reference   string
	EntryID     string
	AccountID   string
}

// NewClient initializes Stripe once with the configured secrets and env.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	signingSecret := strings.TrimSpace(cfg.Secret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}

	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	api := stripe.NewClient(apiKey)
	stripe.Key = apiKey

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	}

	return &Client{
		api:           api,
		environment:   env,
		signingSecret: signingSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
	}, nil
}

// CreateTopupSession opens a hosted checkout session and returns its id and redirect URL.
func (c *Client) CreateTopupSession(ctx context.Context, input TopupSessionInput) (string, string, error) {
	if c == nil || c.api == nil {
		return "", "", errors.New("stripe client not initialized")
	}
	if input.AmountCents <= 0 {
		return "", "", fmt.Errorf("amount must be positive, got %d", input.AmountCents)
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency: stripe.String("usd"),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripe.String("Wallet top-up"),
					},
					UnitAmount: stripe.Int64(input.AmountCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"entry_id":   input.EntryID,
			"account_id": input.AccountID,
			"reference":  input.Reference,
			"type":       "WALLET_TOPUP",
		},
		SuccessURL: stripe.String(c.successURL + "?entryId=" + input.EntryID + "&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(c.cancelURL),
	}

	session, err := c.api.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return "", "", fmt.Errorf("create checkout session: %w", err)
	}
	if session.URL == "" {
		return "", "", errors.New("checkout session has no redirect url")
	}
	return session.ID, session.URL, nil
}

// SessionPaid queries the session back from Stripe and reports whether it is
// paid. Redirect callbacks must never trust query parameters alone.
func (c *Client) SessionPaid(ctx context.Context, sessionID string) (bool, error) {
	if c == nil || c.api == nil {
		return false, errors.New("stripe client not initialized")
	}
	if strings.TrimSpace(sessionID) == "" {
		return false, errors.New("session id is required")
	}
	session, err := c.api.V1CheckoutSessions.Retrieve(ctx, sessionID, nil)
	if err != nil {
		return false, fmt.Errorf("retrieve checkout session: %w", err)
	}
	return session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid, nil
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
