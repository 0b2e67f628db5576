package enums

import "fmt"

// LedgerEntryType categorizes a balance-affecting event.
type LedgerEntryType string

const (
	LedgerEntryTypePurchase LedgerEntryType = "PURCHASE"
	LedgerEntryTypeTopup    LedgerEntryType = "TOPUP"
	LedgerEntryTypeRefund   LedgerEntryType = "REFUND"
	LedgerEntryTypeBonus    LedgerEntryType = "BONUS"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntryTypePurchase,
	LedgerEntryTypeTopup,
	LedgerEntryTypeRefund,
	LedgerEntryTypeBonus,
}

// IsValid reports whether the value matches the canonical ledger entry enum.
func (t LedgerEntryType) IsValid() bool {
	for _, candidate := range validLedgerEntryTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLedgerEntryType converts raw input into a LedgerEntryType.
func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	for _, candidate := range validLedgerEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry type %q", value)
}
