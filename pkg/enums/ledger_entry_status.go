package enums

import "fmt"

// LedgerEntryStatus is the lifecycle of a ledger entry. Entries are created
// PENDING (top-ups) or COMPLETED (synchronous debits) and transition exactly
// once into a terminal status.
type LedgerEntryStatus string

const (
	LedgerEntryStatusPending   LedgerEntryStatus = "PENDING"
	LedgerEntryStatusCompleted LedgerEntryStatus = "COMPLETED"
	LedgerEntryStatusFailed    LedgerEntryStatus = "FAILED"
)

var validLedgerEntryStatuses = []LedgerEntryStatus{
	LedgerEntryStatusPending,
	LedgerEntryStatusCompleted,
	LedgerEntryStatusFailed,
}

// IsValid reports whether the value is a known LedgerEntryStatus.
func (s LedgerEntryStatus) IsValid() bool {
	for _, candidate := range validLedgerEntryStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseLedgerEntryStatus converts raw input into a LedgerEntryStatus.
func ParseLedgerEntryStatus(value string) (LedgerEntryStatus, error) {
	for _, candidate := range validLedgerEntryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry status %q", value)
}
