package products

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillstock/tillstock-backend/pkg/db/dbtest"
	"github.com/tillstock/tillstock-backend/pkg/db/models"
	pkgerrors "github.com/tillstock/tillstock-backend/pkg/errors"
)

func TestFindByIDsSkipsMissing(t *testing.T) {
	conn := dbtest.Open(t)
	soap := dbtest.SeedProduct(t, conn, "soap")
	repo := NewRepository(conn)

	got, err := repo.FindByIDs(context.Background(), nil, []uuid.UUID{soap.ID, uuid.New(), soap.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "soap", got[soap.ID].Name)
}

func TestRequireStockable(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()
	repo := NewRepository(conn)

	ok := dbtest.SeedProduct(t, conn, "ok")
	inactive := dbtest.SeedProduct(t, conn, "inactive")
	require.NoError(t, conn.Model(&models.Product{}).Where("id = ?", inactive.ID).Update("is_active", false).Error)
	service := dbtest.SeedProduct(t, conn, "service")
	require.NoError(t, conn.Model(&models.Product{}).Where("id = ?", service.ID).Update("track_stock", false).Error)

	found, err := RequireStockable(ctx, repo, nil, "items", []uuid.UUID{ok.ID})
	require.NoError(t, err)
	assert.Contains(t, found, ok.ID)

	cases := []struct {
		ids    []uuid.UUID
		field  string
		reason string
	}{
		{[]uuid.UUID{ok.ID, uuid.New()}, "items[1].product_id", ReasonProductNotFound},
		{[]uuid.UUID{inactive.ID}, "items[0].product_id", ReasonProductInactive},
		{[]uuid.UUID{ok.ID, service.ID}, "items[1].product_id", ReasonProductNotTracked},
	}
	for _, tc := range cases {
		_, err := RequireStockable(ctx, repo, nil, "items", tc.ids)
		require.Error(t, err)
		typed := pkgerrors.As(err)
		require.NotNil(t, typed)
		assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
		details := typed.Details().(map[string]any)
		assert.Equal(t, tc.field, details["field"])
		assert.Equal(t, tc.reason, details["reason"])
	}
}
