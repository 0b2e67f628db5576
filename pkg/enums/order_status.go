package enums

import "fmt"

// OrderStatus tracks a purchase from creation through payment and fulfillment.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusFailed    OrderStatus = "FAILED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusCompleted,
	OrderStatusFailed,
	OrderStatusRefunded,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition can leave the status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFailed || s == OrderStatusRefunded
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
