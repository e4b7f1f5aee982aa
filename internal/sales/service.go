package sales

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tillstock/tillstock-backend/internal/drawers"
	"github.com/tillstock/tillstock-backend/internal/inventory"
	"github.com/tillstock/tillstock-backend/internal/products"
	"github.com/tillstock/tillstock-backend/internal/warehouses"
	"github.com/tillstock/tillstock-backend/pkg/db"
	"github.com/tillstock/tillstock-backend/pkg/db/models"
	"github.com/tillstock/tillstock-backend/pkg/enums"
	pkgerrors "github.com/tillstock/tillstock-backend/pkg/errors"
	"github.com/tillstock/tillstock-backend/pkg/logger"
	"github.com/tillstock/tillstock-backend/pkg/metrics"
	"github.com/tillstock/tillstock-backend/pkg/outbox"
	"github.com/tillstock/tillstock-backend/pkg/outbox/payloads"
)

// Validation reasons surfaced in VALIDATION_ERROR details.
const (
	ReasonBranchRequired       = "BRANCH_REQUIRED"
	ReasonUserRequired         = "USER_REQUIRED"
	ReasonItemsRequired        = "ITEMS_REQUIRED"
	ReasonItemProductRequired  = "ITEM_PRODUCT_REQUIRED"
	ReasonItemWarehouseMissing = "ITEM_WAREHOUSE_REQUIRED"
	ReasonItemWarehouseInvalid = "ITEM_WAREHOUSE_INVALID"
	ReasonItemQuantityInvalid  = "ITEM_QUANTITY_INVALID"
	ReasonItemPriceInvalid     = "ITEM_UNIT_PRICE_INVALID"
	ReasonItemDiscountInvalid  = "ITEM_DISCOUNT_INVALID"
	ReasonItemTaxInvalid       = "ITEM_TAX_INVALID"
	ReasonTotalNegative        = "TOTAL_NEGATIVE"
	ReasonPaymentMethodInvalid = "PAYMENT_METHOD_INVALID"
	ReasonPaymentAmountInvalid = "PAYMENT_AMOUNT_INVALID"
	ReasonPaymentInsufficient  = "PAYMENT_INSUFFICIENT"
	ReasonIdempotencyKeyLength = "IDEMPOTENCY_KEY_TOO_LONG"
)

const (
	refTypeSale          = "sale"
	qtyPlaces            = 4
	maxIdempotencyKeyLen = 128
	uniqueIdempotencyIdx = "ux_sales_branch_idempotency"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service rings up sales against the branch's open drawer.
type Service interface {
	CreateSale(ctx context.Context, input CreateSaleInput) (*CreateSaleResult, error)
	GetSale(ctx context.Context, id uuid.UUID) (*SaleDTO, error)
}

type CreateSaleInput struct {
	BranchID       uuid.UUID
	UserID         uuid.UUID
	Role           string
	IdempotencyKey *string
	Items          []ItemInput
	Payments       []PaymentInput
}

type ItemInput struct {
	ProductID   uuid.UUID
	WarehouseID *uuid.UUID
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Discount    decimal.Decimal
	Tax         decimal.Decimal
}

type PaymentInput struct {
	Method    enums.PaymentMethod
	Amount    decimal.Decimal
	Reference *string
}

// CreateSaleResult carries the sale and whether it was replayed from an
// earlier request with the same idempotency key.
type CreateSaleResult struct {
	Sale     *SaleDTO
	Replayed bool
}

type Deps struct {
	Tx         txRunner
	Sales      *Repository
	Registers  drawers.Registers
	Products   products.Lookup
	Warehouses warehouses.Lookup
	Resolvers  []WarehouseResolver
	Outbox     outbox.Emitter
	Metrics    *metrics.LedgerMetrics
	Logger     *logger.Logger
}

type service struct {
	deps Deps
}

func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case deps.Sales == nil:
		return nil, fmt.Errorf("sales repository required")
	case deps.Registers == nil:
		return nil, fmt.Errorf("register lookup required")
	case deps.Products == nil:
		return nil, fmt.Errorf("product lookup required")
	case deps.Warehouses == nil:
		return nil, fmt.Errorf("warehouse lookup required")
	case len(deps.Resolvers) == 0:
		return nil, fmt.Errorf("warehouse resolvers required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &service{deps: deps}, nil
}

// line is a validated sale line after warehouse resolution.
type line struct {
	input       ItemInput
	warehouseID uuid.UUID
	product     models.Product
}

func (s *service) CreateSale(ctx context.Context, input CreateSaleInput) (result *CreateSaleResult, err error) {
	started := time.Now()
	defer func() { s.deps.Metrics.ObserveOperation("create_sale", started, err) }()

	key, err := validateInput(input)
	if err != nil {
		return nil, err
	}

	var (
		sale     *models.Sale
		replayed bool
	)
	err = s.deps.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		if key != nil {
			existing, err := s.deps.Sales.FindByIdempotencyKey(ctx, tx, input.BranchID, *key)
			if err != nil {
				return err
			}
			if existing != nil {
				sale, replayed = existing, true
				return nil
			}
		}

		register, err := s.deps.Registers.FindOpenForBranch(ctx, tx, input.BranchID, drawers.LockShare)
		if err != nil {
			return err
		}
		if register == nil {
			return pkgerrors.New(pkgerrors.CodeCashRegisterRequired, "no open cash register for branch").
				WithDetails(map[string]any{"branch_id": input.BranchID.String()})
		}

		lines, err := s.resolveLines(ctx, tx, input)
		if err != nil {
			return err
		}

		issues, err := buildIssues(lines, input.UserID)
		if err != nil {
			return err
		}
		var keys []inventory.BalanceKey
		var deltas []inventory.Delta
		for _, m := range issues {
			keys = append(keys, m.Keys()...)
			deltas = append(deltas, m.Deltas()...)
		}

		var locked *inventory.LockedBalances
		if len(keys) > 0 {
			locked, err = inventory.Lock(ctx, tx, keys)
			if err != nil {
				return err
			}
			if err := locked.Validate(deltas); err != nil {
				s.observeRejection(err)
				return err
			}
		}

		built, err := buildSale(input, register.ID, lines, key)
		if err != nil {
			return err
		}
		if err := s.deps.Sales.Create(ctx, tx, built); err != nil {
			if db.IsUniqueViolation(err, uniqueIdempotencyIdx, "sales.idempotency_key") {
				return pkgerrors.Wrap(pkgerrors.CodeIdempotency, err, "a sale with this idempotency key is already being processed")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert sale")
		}

		for _, m := range issues {
			if _, err := locked.Apply(ctx, m.WithRef(refTypeSale, built.ID)); err != nil {
				s.observeRejection(err)
				return err
			}
		}

		sale = built
		branchID := input.BranchID
		return s.deps.Outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSaleCompleted,
			AggregateType: enums.AggregateSale,
			AggregateID:   built.ID,
			Actor:         &outbox.ActorRef{UserID: input.UserID, BranchID: &branchID, Role: input.Role},
			Data:          saleEvent(built),
			OccurredAt:    built.SoldAt,
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.deps.Logger.WithFields(ctx, map[string]any{
		"sale_id":          sale.ID.String(),
		"branch_id":        sale.BranchID.String(),
		"cash_register_id": sale.CashRegisterID.String(),
		"total":            sale.Total.StringFixed(2),
		"replayed":         replayed,
	})
	if replayed {
		s.deps.Logger.Info(logCtx, "sale.replayed")
	} else {
		total, _ := sale.Total.Float64()
		s.deps.Metrics.SaleCompleted(string(sale.Status), total)
		s.deps.Logger.Info(logCtx, "sale.created")
	}

	dto := saleDTO(*sale)
	return &CreateSaleResult{Sale: &dto, Replayed: replayed}, nil
}

func (s *service) GetSale(ctx context.Context, id uuid.UUID) (*SaleDTO, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.Validation("sale_id", "SALE_ID_REQUIRED", "sale id is required")
	}
	sale, err := s.deps.Sales.FindByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if sale == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sale not found")
	}
	dto := saleDTO(*sale)
	return &dto, nil
}

func (s *service) observeRejection(err error) {
	if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
		s.deps.Metrics.InsufficientStock()
	}
}

func validateInput(input CreateSaleInput) (*string, error) {
	if input.BranchID == uuid.Nil {
		return nil, pkgerrors.Validation("branch_id", ReasonBranchRequired, "branch_id is required")
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.Validation("user_id", ReasonUserRequired, "user_id is required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.Validation("items", ReasonItemsRequired, "at least one item is required")
	}
	for i, item := range input.Items {
		prefix := fmt.Sprintf("items[%d]", i)
		switch {
		case item.ProductID == uuid.Nil:
			return nil, pkgerrors.Validation(prefix+".product_id", ReasonItemProductRequired, "product_id is required")
		case !item.Quantity.Round(qtyPlaces).IsPositive():
			return nil, pkgerrors.Validation(prefix+".quantity", ReasonItemQuantityInvalid, "quantity must be positive")
		case item.UnitPrice.IsNegative():
			return nil, pkgerrors.Validation(prefix+".unit_price", ReasonItemPriceInvalid, "unit_price must not be negative")
		case item.Discount.IsNegative():
			return nil, pkgerrors.Validation(prefix+".discount", ReasonItemDiscountInvalid, "discount must not be negative")
		case item.Tax.IsNegative():
			return nil, pkgerrors.Validation(prefix+".tax", ReasonItemTaxInvalid, "tax must not be negative")
		}
	}
	for i, p := range input.Payments {
		prefix := fmt.Sprintf("payments[%d]", i)
		if !p.Method.IsValid() {
			return nil, pkgerrors.Validation(prefix+".method", ReasonPaymentMethodInvalid, "payment method is invalid")
		}
		if !p.Amount.Round(2).IsPositive() {
			return nil, pkgerrors.Validation(prefix+".amount", ReasonPaymentAmountInvalid, "payment amount must be positive")
		}
	}

	if input.IdempotencyKey == nil {
		return nil, nil
	}
	key := strings.TrimSpace(*input.IdempotencyKey)
	if key == "" {
		return nil, nil
	}
	if len(key) > maxIdempotencyKeyLen {
		return nil, pkgerrors.Validation("idempotency_key", ReasonIdempotencyKeyLength, "idempotency_key is too long")
	}
	return &key, nil
}

// resolveLines assigns a warehouse to every line and checks the products and
// warehouses it references.
func (s *service) resolveLines(ctx context.Context, tx *gorm.DB, input CreateSaleInput) ([]line, error) {
	lines := make([]line, len(input.Items))
	productIDs := make([]uuid.UUID, len(input.Items))
	var warehouseIDs []uuid.UUID
	for i, item := range input.Items {
		whID, ok, err := resolveWarehouse(ctx, tx, s.deps.Resolvers, input.BranchID, item)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, pkgerrors.Validation(fmt.Sprintf("items[%d].warehouse_id", i), ReasonItemWarehouseMissing, "no warehouse could be resolved for item")
		}
		item.Quantity = item.Quantity.Round(qtyPlaces)
		lines[i] = line{input: item, warehouseID: whID}
		productIDs[i] = item.ProductID
		warehouseIDs = append(warehouseIDs, whID)
	}

	found, err := s.deps.Products.FindByIDs(ctx, tx, productIDs)
	if err != nil {
		return nil, err
	}
	for i := range lines {
		field := fmt.Sprintf("items[%d].product_id", i)
		p, ok := found[lines[i].input.ProductID]
		if !ok {
			return nil, pkgerrors.Validation(field, products.ReasonProductNotFound, "product not found")
		}
		if !p.IsActive {
			return nil, pkgerrors.Validation(field, products.ReasonProductInactive, "product is inactive")
		}
		lines[i].product = p
	}

	active, err := s.deps.Warehouses.FindActive(ctx, tx, warehouseIDs)
	if err != nil {
		return nil, err
	}
	for i, l := range lines {
		wh, ok := active[l.warehouseID]
		if !ok || wh.BranchID != input.BranchID {
			return nil, pkgerrors.Validation(fmt.Sprintf("items[%d].warehouse_id", i), ReasonItemWarehouseInvalid, "warehouse is inactive or belongs to another branch")
		}
	}
	return lines, nil
}

// buildIssues groups stock-tracked lines into one issue per warehouse, in
// warehouse order. Lines for untracked products never touch stock.
func buildIssues(lines []line, userID uuid.UUID) ([]inventory.Movement, error) {
	byWarehouse := map[uuid.UUID][]inventory.Item{}
	for _, l := range lines {
		if !l.product.TrackStock {
			continue
		}
		byWarehouse[l.warehouseID] = append(byWarehouse[l.warehouseID], inventory.Item{ProductID: l.product.ID, Qty: l.input.Quantity})
	}
	ids := make([]uuid.UUID, 0, len(byWarehouse))
	for id := range byWarehouse {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	out := make([]inventory.Movement, 0, len(ids))
	for _, id := range ids {
		m, err := inventory.NewIssue(id, byWarehouse[id])
		if err != nil {
			return nil, err
		}
		out = append(out, m.RecordedBy(userID))
	}
	return out, nil
}

func buildSale(input CreateSaleInput, registerID uuid.UUID, lines []line, key *string) (*models.Sale, error) {
	subtotal, discountTotal, taxTotal := decimal.Zero, decimal.Zero, decimal.Zero
	items := make([]models.SaleItem, len(lines))
	for i, l := range lines {
		gross := l.input.Quantity.Mul(l.input.UnitPrice)
		subtotal = subtotal.Add(gross)
		discountTotal = discountTotal.Add(l.input.Discount)
		taxTotal = taxTotal.Add(l.input.Tax)
		items[i] = models.SaleItem{
			LineNo:      i + 1,
			ProductID:   l.product.ID,
			WarehouseID: l.warehouseID,
			Quantity:    l.input.Quantity,
			UnitPrice:   l.input.UnitPrice.Round(2),
			Discount:    l.input.Discount.Round(2),
			Tax:         l.input.Tax.Round(2),
			LineTotal:   gross.Sub(l.input.Discount).Add(l.input.Tax).Round(2),
			ProductName: l.product.Name,
			ProductSKU:  l.product.SKU,
		}
	}
	subtotal = subtotal.Round(2)
	discountTotal = discountTotal.Round(2)
	taxTotal = taxTotal.Round(2)
	total := subtotal.Sub(discountTotal).Add(taxTotal).Round(2)
	if total.IsNegative() {
		return nil, pkgerrors.Validation("items", ReasonTotalNegative, "discounts exceed the sale amount")
	}

	payments := make([]models.SalePayment, 0, len(input.Payments))
	for i, p := range input.Payments {
		payments = append(payments, models.SalePayment{LineNo: i + 1, Method: p.Method, Amount: p.Amount.Round(2), Reference: p.Reference})
	}
	// A sale that totals zero takes no tender.
	if len(payments) == 0 && total.IsPositive() {
		payments = append(payments, models.SalePayment{LineNo: 1, Method: enums.PaymentMethodCash, Amount: total})
	}

	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}
	paid = paid.Round(2)
	if paid.LessThan(total) {
		return nil, pkgerrors.Validation("payments", ReasonPaymentInsufficient, "payments do not cover the sale total").
			WithDetails(map[string]any{
				"field":  "payments",
				"reason": ReasonPaymentInsufficient,
				"total":  total.StringFixed(2),
				"paid":   paid.StringFixed(2),
			})
	}
	change := decimal.Max(decimal.Zero, paid.Sub(total))

	return &models.Sale{
		BranchID:       input.BranchID,
		CashRegisterID: registerID,
		UserID:         input.UserID,
		Status:         enums.SaleStatusPaid,
		Subtotal:       subtotal,
		DiscountTotal:  discountTotal,
		TaxTotal:       taxTotal,
		Total:          total,
		PaidTotal:      paid,
		ChangeTotal:    change,
		IdempotencyKey: key,
		SoldAt:         time.Now().UTC(),
		Items:          items,
		Payments:       payments,
	}, nil
}

func saleEvent(sale *models.Sale) payloads.SaleCompletedEvent {
	event := payloads.SaleCompletedEvent{
		SaleID:         sale.ID,
		BranchID:       sale.BranchID,
		CashRegisterID: sale.CashRegisterID,
		UserID:         sale.UserID,
		Status:         string(sale.Status),
		Subtotal:       sale.Subtotal,
		DiscountTotal:  sale.DiscountTotal,
		TaxTotal:       sale.TaxTotal,
		Total:          sale.Total,
		PaidTotal:      sale.PaidTotal,
		ChangeTotal:    sale.ChangeTotal,
		SoldAt:         sale.SoldAt,
	}
	for _, item := range sale.Items {
		event.Items = append(event.Items, payloads.SaleItem{
			ProductID:   item.ProductID,
			WarehouseID: item.WarehouseID,
			ProductName: item.ProductName,
			ProductSKU:  item.ProductSKU,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Discount:    item.Discount,
			Tax:         item.Tax,
			LineTotal:   item.LineTotal,
		})
	}
	for _, p := range sale.Payments {
		event.Payments = append(event.Payments, payloads.SalePayment{Method: string(p.Method), Amount: p.Amount})
	}
	return event
}
