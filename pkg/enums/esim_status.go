package enums

// EsimStatus mirrors the activation state reported for a provisioned profile.
type EsimStatus string

const (
	EsimStatusInactive EsimStatus = "INACTIVE"
	EsimStatusActive   EsimStatus = "ACTIVE"
	EsimStatusExpired  EsimStatus = "EXPIRED"
)

// IsValid reports whether the value is a known EsimStatus.
func (s EsimStatus) IsValid() bool {
	switch s {
	case EsimStatusInactive, EsimStatusActive, EsimStatusExpired:
		return true
	}
	return false
}
