package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servivent/backend/internal/domain"
	"servivent/backend/internal/store"
)

func TestListProductsSearchAndPagination(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	all, err := s.ListProducts(ctx, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)

	byName, err := s.ListProducts(ctx, "teclado", 0, 0)
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "Teclado Mecanico", byName[0].Nombre)

	bySKU, err := s.ListProducts(ctx, "sku-mon", 0, 0)
	require.NoError(t, err)
	require.Len(t, bySKU, 1)

	page, err := s.ListProducts(ctx, "", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, all[2].ID, page[0].ID)

	empty, err := s.ListProducts(ctx, "", 10, 99)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCreateProductRejectsDuplicateSKU(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	_, err := s.CreateProduct(ctx, domain.Product{SKU: "sku-tec-01", Nombre: "Otro Teclado"})
	require.Error(t, err)

	created, err := s.CreateProduct(ctx, domain.Product{SKU: "SKU-NEW-01", Nombre: "Nuevo", PrecioBase: 10})
	require.NoError(t, err)
	assert.Positive(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
}

func TestUpdateProductKeepsIdentity(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	updated, err := s.UpdateProduct(ctx, domain.Product{
		ID: 1, SKU: "HACK-01", Nombre: "Teclado Mecanico RGB", PrecioBase: 399,
	})
	require.NoError(t, err)
	assert.Equal(t, "SKU-TEC-01", updated.SKU, "el sku no es editable")
	assert.Equal(t, "Teclado Mecanico RGB", updated.Nombre)

	_, err = s.UpdateProduct(ctx, domain.Product{ID: 999, Nombre: "Fantasma"})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetBranchInventoryJoinsProductData(t *testing.T) {
	s := NewSeeded()

	rows, err := s.GetBranchInventory(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// Ordenado por nombre de producto.
	assert.Equal(t, `Monitor 24"`, rows[0].ProductName)
	assert.Equal(t, "Teclado Mecanico", rows[1].ProductName)
	assert.NotEmpty(t, rows[0].SKU)
}

func TestGetUserByEmailNormalizes(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	u, err := s.GetUserByEmail(ctx, "  ADMIN@servivent.bo ")
	require.NoError(t, err)
	assert.Equal(t, "admin@servivent.bo", u.Correo)

	_, err = s.GetUserByEmail(ctx, "nadie@servivent.bo")
	require.ErrorIs(t, err, store.ErrNotFound)
}
