package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"servivent/backend/internal/domain"
	"servivent/backend/internal/store"
)

func (s *Store) CreateSale(ctx context.Context, req domain.CreateSaleRequest) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin create-sale tx: %w", err)
	}
	defer s.rollback(ctx, tx, "create-sale")

	var saleID int64
	if err := tx.QueryRow(ctx, `
		INSERT INTO ventas (folio, id_sucursal, id_usuario, monto_total, metodo_pago, estado)
		VALUES ('', $1, $2, $3, $4, $5)
		RETURNING id
	`, req.BranchID, req.UserID, req.MontoTotal, req.MetodoPago, domain.VentaCompletada,
	).Scan(&saleID); err != nil {
		return 0, fmt.Errorf("insert sale: %w", err)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE ventas SET folio = $2 WHERE id = $1",
		saleID, fmt.Sprintf("V-%06d", saleID),
	); err != nil {
		return 0, fmt.Errorf("assign sale folio: %w", err)
	}

	for _, item := range req.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO detalles_venta (id_venta, id_producto, cantidad, precio_unitario)
			VALUES ($1, $2, $3, $4)
		`, saleID, item.ProductID, item.Cantidad, item.PrecioUnitario); err != nil {
			return 0, fmt.Errorf("insert sale line for product %d: %w", item.ProductID, err)
		}

		// The stock check and the decrement are one statement: either the
		// row still holds enough units at the instant of the write and the
		// update lands, or nothing matches and the sale aborts. No quantity
		// read earlier participates in the decision.
		cmd, err := tx.Exec(ctx, `
			UPDATE inventarios
			SET cantidad = cantidad - $3, updated_at = NOW()
			WHERE id_producto = $1 AND id_sucursal = $2 AND cantidad >= $3
		`, item.ProductID, req.BranchID, item.Cantidad)
		if err != nil {
			return 0, fmt.Errorf("decrement stock for product %d: %w", item.ProductID, err)
		}
		if cmd.RowsAffected() == 0 {
			// Transaction is about to roll back; this read only feeds the
			// error message.
			var (
				nombre    string
				available int
			)
			lookupErr := tx.QueryRow(ctx, `
				SELECT p.nombre, COALESCE(i.cantidad, 0)
				FROM productos p
				LEFT JOIN inventarios i
					ON i.id_producto = p.id AND i.id_sucursal = $2
				WHERE p.id = $1
			`, item.ProductID, req.BranchID).Scan(&nombre, &available)
			if lookupErr != nil {
				if errors.Is(lookupErr, pgx.ErrNoRows) {
					return 0, fmt.Errorf("producto %d: %w", item.ProductID, store.ErrNotFound)
				}
				return 0, fmt.Errorf("inspect stock for product %d: %w", item.ProductID, lookupErr)
			}
			return 0, &store.InsufficientStockError{
				Product:   nombre,
				Available: available,
				Requested: item.Cantidad,
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit create-sale tx: %w", err)
	}
	return saleID, nil
}

func (s *Store) ListSales(ctx context.Context, limit, offset int) ([]domain.Sale, error) {
	limit = normalizeLimit(limit)
	offset = normalizeOffset(offset)

	rows, err := s.pool.Query(ctx, `
		SELECT id, folio, id_sucursal, id_usuario,
			monto_total::double precision, metodo_pago, estado, created_at
		FROM ventas
		ORDER BY id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(
			&sale.ID, &sale.Folio, &sale.BranchID, &sale.UserID,
			&sale.MontoTotal, &sale.MetodoPago, &sale.Estado, &sale.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sales: %w", err)
	}
	return sales, nil
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.SaleDetail, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, folio, id_sucursal, id_usuario,
			monto_total::double precision, metodo_pago, estado, created_at
		FROM ventas
		WHERE id = $1
	`, id)
	var sale domain.Sale
	if err := row.Scan(
		&sale.ID, &sale.Folio, &sale.BranchID, &sale.UserID,
		&sale.MontoTotal, &sale.MetodoPago, &sale.Estado, &sale.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get sale %d: %w", id, err)
	}

	itemRows, err := s.pool.Query(ctx, `
		SELECT id, id_venta, id_producto, cantidad, precio_unitario::double precision
		FROM detalles_venta
		WHERE id_venta = $1
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get sale %d lines: %w", id, err)
	}
	defer itemRows.Close()

	items := make([]domain.SaleItem, 0)
	for itemRows.Next() {
		var item domain.SaleItem
		if err := itemRows.Scan(
			&item.ID, &item.SaleID, &item.ProductID, &item.Cantidad, &item.PrecioUnitario,
		); err != nil {
			return nil, fmt.Errorf("scan sale line: %w", err)
		}
		items = append(items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale lines: %w", err)
	}

	return &domain.SaleDetail{Sale: sale, Items: items}, nil
}
