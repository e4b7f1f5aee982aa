package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateStockMovement OutboxAggregateType = "stock_movement"
	AggregateSale          OutboxAggregateType = "sale"
	AggregateCashRegister  OutboxAggregateType = "cash_register"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateStockMovement,
	AggregateSale,
	AggregateCashRegister,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventStockMovementRecorded OutboxEventType = "stock_movement_recorded"
	EventSaleCompleted         OutboxEventType = "sale_completed"
	EventCashRegisterOpened    OutboxEventType = "cash_register_opened"
	EventCashRegisterClosed    OutboxEventType = "cash_register_closed"
)

var validEventTypes = []OutboxEventType{
	EventStockMovementRecorded,
	EventSaleCompleted,
	EventCashRegisterOpened,
	EventCashRegisterClosed,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
