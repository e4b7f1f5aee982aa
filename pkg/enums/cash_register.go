package enums

import (
	"fmt"
	"strings"
)

// CashRegisterStatus is the drawer session state.
type CashRegisterStatus string

const (
	CashRegisterStatusOpen   CashRegisterStatus = "OPEN"
	CashRegisterStatusClosed CashRegisterStatus = "CLOSED"
)

// IsValid reports whether the value is a known CashRegisterStatus.
func (s CashRegisterStatus) IsValid() bool {
	return s == CashRegisterStatusOpen || s == CashRegisterStatusClosed
}

// CashMovementType distinguishes manual cash put into or taken out of a drawer.
type CashMovementType string

const (
	CashMovementIn  CashMovementType = "IN"
	CashMovementOut CashMovementType = "OUT"
)

// String implements fmt.Stringer.
func (c CashMovementType) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CashMovementType.
func (c CashMovementType) IsValid() bool {
	return c == CashMovementIn || c == CashMovementOut
}

// ParseCashMovementType converts raw input into a CashMovementType.
func ParseCashMovementType(value string) (CashMovementType, error) {
	switch CashMovementType(strings.ToUpper(strings.TrimSpace(value))) {
	case CashMovementIn:
		return CashMovementIn, nil
	case CashMovementOut:
		return CashMovementOut, nil
	}
	return "", fmt.Errorf("invalid cash movement type %q", value)
}

// DrawerVarianceStatus classifies a closed drawer's difference against the configured tolerance.
type DrawerVarianceStatus string

const (
	DrawerVarianceBalanced DrawerVarianceStatus = "BALANCED"
	DrawerVarianceOver     DrawerVarianceStatus = "OVER"
	DrawerVarianceShort    DrawerVarianceStatus = "SHORT"
)
