package reference

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

const randomAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// New builds a payment reference "<prefix>-<unix millis>-<6 random chars>".
// References key ledger entries and double as provider idempotency keys, so
// they must stay unique across the fleet without coordination.
func New(prefix string) string {
	return fmt.Sprintf("%s-%d-%s", sanitizePrefix(prefix), time.Now().UnixMilli(), randomSuffix(6))
}

func sanitizePrefix(prefix string) string {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		return "REF"
	}
	return trimmed
}

func randomSuffix(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%06d", time.Now().Nanosecond()%1000000)
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = randomAlphabet[int(b)%len(randomAlphabet)]
	}
	return string(out)
}
