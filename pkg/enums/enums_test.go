package enums

import "testing"

func TestParsePaymentMethodIsCaseInsensitive(t *testing.T) {
	got, err := ParsePaymentMethod(" cash ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != PaymentMethodCash {
		t.Fatalf("expected CASH, got %s", got)
	}
	if _, err := ParsePaymentMethod("cheque"); err == nil {
		t.Fatalf("expected unknown method to fail")
	}
}

func TestParseMovementType(t *testing.T) {
	for _, raw := range []string{"receipt", "ISSUE", " adjustment", "transfer"} {
		got, err := ParseMovementType(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if !got.IsValid() {
			t.Fatalf("parsed %q into invalid value %q", raw, got)
		}
	}
	if _, err := ParseMovementType("sale"); err == nil {
		t.Fatalf("expected sale to be rejected as a movement type")
	}
}

func TestSaleStatusCountsTowardDrawer(t *testing.T) {
	cases := map[SaleStatus]bool{
		SaleStatusPaid:      true,
		SaleStatusRefunded:  true,
		SaleStatusCancelled: false,
	}
	for status, want := range cases {
		if got := status.CountsTowardDrawer(); got != want {
			t.Fatalf("status %s: expected %v got %v", status, want, got)
		}
	}
}

func TestParseCashMovementType(t *testing.T) {
	if got, err := ParseCashMovementType("in"); err != nil || got != CashMovementIn {
		t.Fatalf("expected IN, got %q err=%v", got, err)
	}
	if got, err := ParseCashMovementType("OUT"); err != nil || got != CashMovementOut {
		t.Fatalf("expected OUT, got %q err=%v", got, err)
	}
	if _, err := ParseCashMovementType("SIDEWAYS"); err == nil {
		t.Fatalf("expected invalid type to fail")
	}
}

func TestMemberRoleCanActForOthers(t *testing.T) {
	if !MemberRoleManager.CanActForOthers() {
		t.Fatalf("manager should be able to act for others")
	}
	if MemberRoleCashier.CanActForOthers() {
		t.Fatalf("cashier should not act for others")
	}
}

func TestOutboxEventTypesRoundTrip(t *testing.T) {
	for _, evt := range validEventTypes {
		parsed, err := ParseOutboxEventType(string(evt))
		if err != nil || parsed != evt {
			t.Fatalf("expected %s to parse, got %s err=%v", evt, parsed, err)
		}
	}
	if _, err := ParseOutboxAggregateType("vendor_order"); err == nil {
		t.Fatalf("expected unknown aggregate to fail")
	}
}
