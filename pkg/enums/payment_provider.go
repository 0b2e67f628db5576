package enums

// PaymentProvider tags which integration produced a payment notification.
type PaymentProvider string

const (
	PaymentProviderStripe  PaymentProvider = "stripe"
	PaymentProviderPayLane PaymentProvider = "paylane"
	PaymentProviderWallet  PaymentProvider = "wallet"
	PaymentProviderManual  PaymentProvider = "manual"
)

// IsValid reports whether the value is a known PaymentProvider.
func (p PaymentProvider) IsValid() bool {
	switch p {
	case PaymentProviderStripe, PaymentProviderPayLane, PaymentProviderWallet, PaymentProviderManual:
		return true
	}
	return false
}
