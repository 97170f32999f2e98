package postgres

import (
	"context"
	"fmt"

	"servivent/backend/internal/domain"
)

func (s *Store) GetBranchPrices(ctx context.Context, productID int64) ([]domain.BranchPrice, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id_producto, id_sucursal, precio_venta::double precision
		FROM precios_sucursal
		WHERE id_producto = $1
		ORDER BY id_sucursal ASC
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("branch prices for product %d: %w", productID, err)
	}
	defer rows.Close()

	prices := make([]domain.BranchPrice, 0)
	for rows.Next() {
		var price domain.BranchPrice
		if err := rows.Scan(&price.ProductID, &price.BranchID, &price.PrecioVenta); err != nil {
			return nil, fmt.Errorf("scan branch price: %w", err)
		}
		prices = append(prices, price)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate branch prices: %w", err)
	}
	return prices, nil
}

func (s *Store) UpdateBranchPrices(ctx context.Context, req domain.UpdateBranchPricesRequest) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update-prices tx: %w", err)
	}
	defer s.rollback(ctx, tx, "update-branch-prices")

	if len(req.BranchIDsToDelete) > 0 {
		if _, err := tx.Exec(ctx, `
			DELETE FROM precios_sucursal
			WHERE id_producto = $1 AND id_sucursal = ANY($2)
		`, req.ProductID, req.BranchIDsToDelete); err != nil {
			return fmt.Errorf("delete branch prices for product %d: %w", req.ProductID, err)
		}
	}

	for _, record := range req.RecordsToUpsert {
		if _, err := tx.Exec(ctx, `
			INSERT INTO precios_sucursal (id_producto, id_sucursal, precio_venta)
			VALUES ($1, $2, $3)
			ON CONFLICT (id_producto, id_sucursal)
			DO UPDATE SET precio_venta = EXCLUDED.precio_venta
		`, req.ProductID, record.BranchID, record.PrecioVenta); err != nil {
			return fmt.Errorf("upsert price for product %d branch %d: %w",
				req.ProductID, record.BranchID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update-prices tx: %w", err)
	}
	return nil
}
