package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/tillstock/tillstock-backend/pkg/errors"
)

type lineRequest struct {
	ProductID string          `json:"product_id" validate:"required,uuid"`
	Quantity  decimal.Decimal `json:"quantity" validate:"dec_gt0"`
}

type bodyRequest struct {
	Items []lineRequest `json:"items" validate:"required,min=1,dive"`
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"items":[],"extra":1}`))
	var dest bodyRequest
	err := DecodeJSONBody(r, &dest)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeJSONBodyReportsNestedDecimalField(t *testing.T) {
	body := `{"items":[{"product_id":"7f1b7c38-2f44-4a53-9d1a-0d1f9a8d2c11","quantity":"0"}]}`
	r := httptest.NewRequest("POST", "/", strings.NewReader(body))
	var dest bodyRequest
	err := DecodeJSONBody(r, &dest)
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected typed error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("unexpected details %#v", typed.Details())
	}
	if details["items[0].quantity"] != "must be greater than zero" {
		t.Fatalf("unexpected details %#v", details)
	}
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	body := `{"items":[{"product_id":"7f1b7c38-2f44-4a53-9d1a-0d1f9a8d2c11","quantity":"2.5"}]}`
	r := httptest.NewRequest("POST", "/", strings.NewReader(body))
	var dest bodyRequest
	if err := DecodeJSONBody(r, &dest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dest.Items[0].Quantity.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("unexpected quantity %s", dest.Items[0].Quantity)
	}
}

func TestParseQueryUUID(t *testing.T) {
	r := httptest.NewRequest("GET", "/?branch_id=nope", nil)
	if _, err := ParseQueryUUID(r, "branch_id"); err == nil {
		t.Fatalf("expected invalid uuid to fail")
	}
	r = httptest.NewRequest("GET", "/", nil)
	got, err := ParseQueryUUID(r, "branch_id")
	if err != nil || got != nil {
		t.Fatalf("expected absent param to be nil, got %v err=%v", got, err)
	}
}
