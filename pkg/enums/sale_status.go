package enums

import "fmt"

// SaleStatus tracks the lifecycle of a point-of-sale checkout.
type SaleStatus string

const (
	SaleStatusPaid      SaleStatus = "PAID"
	SaleStatusCancelled SaleStatus = "CANCELLED"
	SaleStatusRefunded  SaleStatus = "REFUNDED"
)

var validSaleStatuses = []SaleStatus{
	SaleStatusPaid,
	SaleStatusCancelled,
	SaleStatusRefunded,
}

// String implements fmt.Stringer.
func (s SaleStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SaleStatus.
func (s SaleStatus) IsValid() bool {
	for _, candidate := range validSaleStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSaleStatus converts raw input into a SaleStatus.
func ParseSaleStatus(value string) (SaleStatus, error) {
	for _, candidate := range validSaleStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sale status %q", value)
}

// CountsTowardDrawer reports whether sales in this status contribute tendered cash to expected drawer cash.
func (s SaleStatus) CountsTowardDrawer() bool {
	return s == SaleStatusPaid || s == SaleStatusRefunded
}
