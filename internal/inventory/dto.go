package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tillstock/tillstock-backend/pkg/db/models"
)

type BalanceDTO struct {
	WarehouseID uuid.UUID       `json:"warehouse_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	Qty         decimal.Decimal `json:"qty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type MovementItemDTO struct {
	ID        uuid.UUID           `json:"id"`
	ProductID uuid.UUID           `json:"product_id"`
	Qty       decimal.Decimal     `json:"qty"`
	Direction string              `json:"direction"`
	UnitCost  decimal.NullDecimal `json:"unit_cost"`
}

type MovementDTO struct {
	ID              uuid.UUID         `json:"id"`
	Type            string            `json:"type"`
	WarehouseID     *uuid.UUID        `json:"warehouse_id,omitempty"`
	FromWarehouseID *uuid.UUID        `json:"from_warehouse_id,omitempty"`
	ToWarehouseID   *uuid.UUID        `json:"to_warehouse_id,omitempty"`
	RefType         *string           `json:"ref_type,omitempty"`
	RefID           *uuid.UUID        `json:"ref_id,omitempty"`
	Note            *string           `json:"note,omitempty"`
	CreatedBy       uuid.UUID         `json:"created_by"`
	CreatedAt       time.Time         `json:"created_at"`
	Items           []MovementItemDTO `json:"items"`
}

func balanceDTO(row models.StockBalance) BalanceDTO {
	return BalanceDTO{
		WarehouseID: row.WarehouseID,
		ProductID:   row.ProductID,
		Qty:         row.Qty,
		UpdatedAt:   row.UpdatedAt,
	}
}

func movementDTO(row models.StockMovement) MovementDTO {
	dto := MovementDTO{
		ID:              row.ID,
		Type:            string(row.Type),
		WarehouseID:     row.WarehouseID,
		FromWarehouseID: row.FromWarehouseID,
		ToWarehouseID:   row.ToWarehouseID,
		RefType:         row.RefType,
		RefID:           row.RefID,
		Note:            row.Note,
		CreatedBy:       row.CreatedBy,
		CreatedAt:       row.CreatedAt,
		Items:           make([]MovementItemDTO, 0, len(row.Items)),
	}
	for _, item := range row.Items {
		dto.Items = append(dto.Items, MovementItemDTO{
			ID:        item.ID,
			ProductID: item.ProductID,
			Qty:       item.Qty,
			Direction: string(item.Direction),
			UnitCost:  item.UnitCost,
		})
	}
	return dto
}
