package paylane

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/simvoyage/esim-backend/pkg/config"
)

// SignatureHeader carries the hex HMAC digest on inbound webhook requests.
const SignatureHeader = "Signature"

var errSigningKeyRequired = errors.New("paylane signing key is required")

// Client verifies webhook payloads signed by the PayLane gateway.
type Client struct {
	signingKey string
}

// NewClient validates the configured signing key.
func NewClient(cfg config.PayLaneConfig) (*Client, error) {
	key := strings.TrimSpace(cfg.SigningKey)
	if key == "" {
		return nil, errSigningKeyRequired
	}
	return &Client{signingKey: key}, nil
}

// SigningKey returns the shared webhook signing key.
func (c *Client) SigningKey() string {
	if c == nil {
		return ""
	}
	return c.signingKey
}

// VerifySignature checks the hex HMAC-SHA256 digest of the raw payload
// against the received header using a constant-time compare.
func VerifySignature(payload []byte, key, header string) bool {
	if key == "" || header == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(header))))
}

// Sign computes the hex digest for a payload. Used by tests and outbound calls.
func Sign(payload []byte, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
