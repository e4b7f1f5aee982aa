package routes

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/tillstock/tillstock-backend/internal/drawers"
	"github.com/tillstock/tillstock-backend/internal/inventory"
	"github.com/tillstock/tillstock-backend/internal/sales"
	pkgAuth "github.com/tillstock/tillstock-backend/pkg/auth"
	"github.com/tillstock/tillstock-backend/pkg/config"
	"github.com/tillstock/tillstock-backend/pkg/enums"
	pkgerrors "github.com/tillstock/tillstock-backend/pkg/errors"
	"github.com/tillstock/tillstock-backend/pkg/logger"
	"github.com/tillstock/tillstock-backend/pkg/metrics"
	"github.com/tillstock/tillstock-backend/pkg/outbox"
	"github.com/tillstock/tillstock-backend/pkg/pagination"
	"github.com/tillstock/tillstock-backend/pkg/types"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubSessions struct{}

func (stubSessions) HasSession(context.Context, string) (bool, error) { return true, nil }

type stubInventory struct {
	lastActor outbox.ActorRef
	lastInput inventory.RecordMovementInput
	balances  func(uuid.UUID, []uuid.UUID) ([]inventory.BalanceDTO, error)
}

func (s *stubInventory) RecordMovement(_ context.Context, actor outbox.ActorRef, input inventory.RecordMovementInput) (*inventory.RecordMovementResult, error) {
	s.lastActor = actor
	s.lastInput = input
	return &inventory.RecordMovementResult{MovementID: uuid.New(), Applied: true}, nil
}

func (s *stubInventory) GetBalances(_ context.Context, warehouseID uuid.UUID, productIDs []uuid.UUID) ([]inventory.BalanceDTO, error) {
	if s.balances != nil {
		return s.balances(warehouseID, productIDs)
	}
	return []inventory.BalanceDTO{}, nil
}

func (s *stubInventory) ListMovements(context.Context, inventory.MovementFilter, pagination.Params) (*pagination.Page[inventory.MovementDTO], error) {
	return &pagination.Page[inventory.MovementDTO]{Items: []inventory.MovementDTO{}}, nil
}

type stubSales struct {
	lastInput sales.CreateSaleInput
	replayed  bool
	err       error
}

func (s *stubSales) CreateSale(_ context.Context, input sales.CreateSaleInput) (*sales.CreateSaleResult, error) {
	s.lastInput = input
	if s.err != nil {
		return nil, s.err
	}
	return &sales.CreateSaleResult{Sale: &sales.SaleDTO{ID: uuid.New(), BranchID: input.BranchID, UserID: input.UserID}, Replayed: s.replayed}, nil
}

func (s *stubSales) GetSale(_ context.Context, id uuid.UUID) (*sales.SaleDTO, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sale not found")
}

type stubDrawers struct {
	lastOpen     drawers.OpenInput
	lastMovement drawers.MovementInput
	openBranch   uuid.UUID
}

func (s *stubDrawers) Open(_ context.Context, input drawers.OpenInput) (*drawers.RegisterDTO, error) {
	s.lastOpen = input
	return &drawers.RegisterDTO{ID: uuid.New(), BranchID: input.BranchID}, nil
}

func (s *stubDrawers) Close(context.Context, drawers.CloseInput) (*drawers.RegisterDTO, error) {
	return nil, pkgerrors.New(pkgerrors.CodeCashRegisterNotOpen, "cash register is not open")
}

func (s *stubDrawers) CreateMovement(_ context.Context, input drawers.MovementInput) (*drawers.CashMovementDTO, error) {
	s.lastMovement = input
	return &drawers.CashMovementDTO{ID: uuid.New()}, nil
}

func (s *stubDrawers) GetOpen(_ context.Context, branchID uuid.UUID) (*drawers.RegisterDTO, error) {
	s.openBranch = branchID
	return &drawers.RegisterDTO{ID: uuid.New(), BranchID: branchID}, nil
}

func (s *stubDrawers) Summary(context.Context, uuid.UUID) (*drawers.SummaryDTO, error) {
	return &drawers.SummaryDTO{}, nil
}

type harness struct {
	cfg       *config.Config
	router    http.Handler
	inventory *stubInventory
	sales     *stubSales
	drawers   *stubDrawers
	registry  *prometheus.Registry
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "tillstock-test", ExpirationMinutes: 30},
	}
}

func newHarness(t *testing.T, dbP stubPinger) *harness {
	t.Helper()
	h := &harness{
		cfg:       testConfig(),
		inventory: &stubInventory{},
		sales:     &stubSales{},
		drawers:   &stubDrawers{},
		registry:  prometheus.NewRegistry(),
	}
	metrics.NewLedgerMetrics(h.registry).MovementRecorded("receipt")
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	h.router = NewRouter(h.cfg, logg, dbP, nil, stubSessions{}, h.registry, h.inventory, h.sales, h.drawers)
	return h
}

func (h *harness) token(t *testing.T, role enums.MemberRole, userID uuid.UUID, branchID *uuid.UUID) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(h.cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID:         userID,
		ActiveBranchID: branchID,
		Role:           role,
		JTI:            uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func (h *harness) do(method, path, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)
	return resp
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var env types.ErrorEnvelope
	if err := json.Unmarshal(resp.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, resp.Body.String())
	}
	return env.Error.Code
}

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t, stubPinger{})
	if resp := h.do(http.MethodGet, "/health/live", "", ""); resp.Code != http.StatusOK {
		t.Fatalf("expected live 200 got %d", resp.Code)
	}
	resp := h.do(http.MethodGet, "/health/ready", "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected ready 200 got %d", resp.Code)
	}
	if got := resp.Header().Get("X-Tillstock-Env"); got != "test" {
		t.Fatalf("expected env header, got %q", got)
	}
}

func TestReadyReportsDependencyFailure(t *testing.T) {
	h := newHarness(t, stubPinger{err: errors.New("connection refused")})
	resp := h.do(http.MethodGet, "/health/ready", "", "")
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != string(pkgerrors.CodeDependency) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestMetricsEndpointExposesLedgerCounters(t *testing.T) {
	h := newHarness(t, stubPinger{})
	resp := h.do(http.MethodGet, "/metrics", "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "tillstock_") {
		t.Fatalf("expected tillstock metrics in scrape output")
	}
}

func TestLedgerRoutesRequireJWT(t *testing.T) {
	h := newHarness(t, stubPinger{})
	for _, path := range []string{"/api/v1/stock/balances", "/api/v1/drawer/open", "/api/v1/sales/" + uuid.NewString()} {
		if resp := h.do(http.MethodGet, path, "", ""); resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 got %d", path, resp.Code)
		}
	}
}

func TestRecordMovementDefaultsActorFromToken(t *testing.T) {
	h := newHarness(t, stubPinger{})
	userID, branchID, warehouseID := uuid.New(), uuid.New(), uuid.New()
	body := `{"type":"receipt","warehouse_id":"` + warehouseID.String() + `","items":[{"product_id":"` + uuid.NewString() + `","qty":"5"}]}`

	resp := h.do(http.MethodPost, "/api/v1/stock/movements", h.token(t, enums.MemberRoleStocker, userID, &branchID), body)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if h.inventory.lastActor.UserID != userID {
		t.Fatalf("expected actor user from token")
	}
	if h.inventory.lastActor.BranchID == nil || *h.inventory.lastActor.BranchID != branchID {
		t.Fatalf("expected actor branch from token")
	}
	if h.inventory.lastInput.Type != enums.MovementTypeReceipt || !h.inventory.lastInput.Items[0].Qty.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("unexpected input %+v", h.inventory.lastInput)
	}
}

func TestRecordMovementRejectsUnknownType(t *testing.T) {
	h := newHarness(t, stubPinger{})
	branchID := uuid.New()
	body := `{"type":"shrinkage","items":[{"product_id":"` + uuid.NewString() + `","qty":"1"}]}`
	resp := h.do(http.MethodPost, "/api/v1/stock/movements", h.token(t, enums.MemberRoleStocker, uuid.New(), &branchID), body)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestBalancesRequireWarehouse(t *testing.T) {
	h := newHarness(t, stubPinger{})
	token := h.token(t, enums.MemberRoleCashier, uuid.New(), nil)

	resp := h.do(http.MethodGet, "/api/v1/stock/balances", token, "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}

	a, b := uuid.New(), uuid.New()
	var seen []uuid.UUID
	h.inventory.balances = func(_ uuid.UUID, ids []uuid.UUID) ([]inventory.BalanceDTO, error) {
		seen = ids
		return nil, nil
	}
	resp = h.do(http.MethodGet, "/api/v1/stock/balances?warehouse_id="+uuid.NewString()+"&product_id="+a.String()+","+b.String(), token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if len(seen) != 2 || seen[0] != a || seen[1] != b {
		t.Fatalf("expected both product ids, got %v", seen)
	}
}

func TestCreateSaleStatusReflectsReplay(t *testing.T) {
	h := newHarness(t, stubPinger{})
	branchID := uuid.New()
	token := h.token(t, enums.MemberRoleCashier, uuid.New(), &branchID)
	body := `{"idempotency_key":"till-1","items":[{"product_id":"` + uuid.NewString() + `","quantity":"1","unit_price":"9.99"}],"payments":[{"method":"CASH","amount":"10"}]}`

	resp := h.do(http.MethodPost, "/api/v1/sales", token, body)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if h.sales.lastInput.BranchID != branchID || h.sales.lastInput.Payments[0].Method != enums.PaymentMethodCash {
		t.Fatalf("unexpected sale input %+v", h.sales.lastInput)
	}

	h.sales.replayed = true
	if resp = h.do(http.MethodPost, "/api/v1/sales", token, body); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay got %d", resp.Code)
	}
}

func TestCreateSaleRejectsUnknownPaymentMethod(t *testing.T) {
	h := newHarness(t, stubPinger{})
	branchID := uuid.New()
	body := `{"items":[{"product_id":"` + uuid.NewString() + `","quantity":"1","unit_price":"1"}],"payments":[{"method":"BARTER","amount":"1"}]}`
	resp := h.do(http.MethodPost, "/api/v1/sales", h.token(t, enums.MemberRoleCashier, uuid.New(), &branchID), body)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCreateSaleForAnotherUserNeedsPrivilege(t *testing.T) {
	h := newHarness(t, stubPinger{})
	branchID, other := uuid.New(), uuid.New()
	body := `{"user_id":"` + other.String() + `","items":[{"product_id":"` + uuid.NewString() + `","quantity":"1","unit_price":"1"}]}`

	resp := h.do(http.MethodPost, "/api/v1/sales", h.token(t, enums.MemberRoleCashier, uuid.New(), &branchID), body)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier got %d", resp.Code)
	}

	resp = h.do(http.MethodPost, "/api/v1/sales", h.token(t, enums.MemberRoleManager, uuid.New(), &branchID), body)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 for manager got %d", resp.Code)
	}
	if h.sales.lastInput.UserID != other {
		t.Fatalf("expected sale recorded for named user")
	}
}

func TestGetSaleNotFound(t *testing.T) {
	h := newHarness(t, stubPinger{})
	resp := h.do(http.MethodGet, "/api/v1/sales/"+uuid.NewString(), h.token(t, enums.MemberRoleCashier, uuid.New(), nil), "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
	if resp = h.do(http.MethodGet, "/api/v1/sales/not-a-uuid", h.token(t, enums.MemberRoleCashier, uuid.New(), nil), ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id got %d", resp.Code)
	}
}

func TestDrawerRoutes(t *testing.T) {
	h := newHarness(t, stubPinger{})
	branchID := uuid.New()
	token := h.token(t, enums.MemberRoleCashier, uuid.New(), &branchID)

	resp := h.do(http.MethodPost, "/api/v1/drawer/open", token, `{"opening_cash":"100"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("open: expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if h.drawers.lastOpen.BranchID != branchID || !h.drawers.lastOpen.OpeningCash.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected open input %+v", h.drawers.lastOpen)
	}

	if resp = h.do(http.MethodGet, "/api/v1/drawer/open", token, ""); resp.Code != http.StatusOK {
		t.Fatalf("get open: expected 200 got %d", resp.Code)
	}
	if h.drawers.openBranch != branchID {
		t.Fatalf("expected branch to default from token")
	}

	resp = h.do(http.MethodPost, "/api/v1/drawer/movement", token, `{"register_id":"`+uuid.NewString()+`","type":"out","amount":"20","reason":"supplier"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("movement: expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if h.drawers.lastMovement.Type != enums.CashMovementOut {
		t.Fatalf("expected OUT movement, got %s", h.drawers.lastMovement.Type)
	}

	resp = h.do(http.MethodPost, "/api/v1/drawer/close", token, `{"register_id":"`+uuid.NewString()+`","counted_cash":"80"}`)
	if resp.Code != http.StatusConflict {
		t.Fatalf("close: expected 409 got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != string(pkgerrors.CodeCashRegisterNotOpen) {
		t.Fatalf("unexpected close code %s", code)
	}

	if resp = h.do(http.MethodGet, "/api/v1/drawer/"+uuid.NewString()+"/summary", token, ""); resp.Code != http.StatusOK {
		t.Fatalf("summary: expected 200 got %d", resp.Code)
	}
}
