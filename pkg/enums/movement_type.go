package enums

import (
	"fmt"
	"strings"
)

// MovementType identifies the kind of stock movement recorded in the ledger.
type MovementType string

const (
	MovementTypeReceipt    MovementType = "receipt"
	MovementTypeIssue      MovementType = "issue"
	MovementTypeAdjustment MovementType = "adjustment"
	MovementTypeTransfer   MovementType = "transfer"
)

var validMovementTypes = []MovementType{
	MovementTypeReceipt,
	MovementTypeIssue,
	MovementTypeAdjustment,
	MovementTypeTransfer,
}

// String implements fmt.Stringer.
func (m MovementType) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MovementType.
func (m MovementType) IsValid() bool {
	for _, candidate := range validMovementTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMovementType converts raw input into a MovementType.
func ParseMovementType(value string) (MovementType, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validMovementTypes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement type %q", value)
}

// MovementDirection is the sign of a movement item relative to its warehouse.
type MovementDirection string

const (
	MovementDirectionIn  MovementDirection = "in"
	MovementDirectionOut MovementDirection = "out"
)

// IsValid reports whether the value is a known MovementDirection.
func (d MovementDirection) IsValid() bool {
	return d == MovementDirectionIn || d == MovementDirectionOut
}
