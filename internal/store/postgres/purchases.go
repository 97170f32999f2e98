package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"servivent/backend/internal/domain"
	"servivent/backend/internal/store"
)

// upsertInventorySQL folds a batch into the (product, branch) position using
// the weighted-average formula in a single atomic statement. The CASE guards
// the zero-quantity edge by resetting the cost to zero.
const upsertInventorySQL = `
	INSERT INTO inventarios (id_producto, id_sucursal, cantidad, costo_promedio)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id_producto, id_sucursal) DO UPDATE SET
		cantidad = inventarios.cantidad + EXCLUDED.cantidad,
		costo_promedio = CASE
			WHEN inventarios.cantidad + EXCLUDED.cantidad > 0 THEN
				(inventarios.cantidad * inventarios.costo_promedio
					+ EXCLUDED.cantidad * EXCLUDED.costo_promedio)
				/ (inventarios.cantidad + EXCLUDED.cantidad)
			ELSE 0
		END,
		updated_at = NOW()
`

func (s *Store) CreatePurchase(ctx context.Context, req domain.CreatePurchaseRequest) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin create-purchase tx: %w", err)
	}
	defer s.rollback(ctx, tx, "create-purchase")

	estado := req.Estado
	if estado == "" {
		estado = domain.CompraPendiente
	}
	condicion := req.CondicionPago
	if condicion == "" {
		condicion = domain.CondicionContado
	}
	tipoCambio := req.TipoCambio
	if tipoCambio <= 0 {
		tipoCambio = 1.0
	}

	var purchaseID int64
	if err := tx.QueryRow(ctx, `
		INSERT INTO compras (
			folio, id_proveedor, id_sucursal, id_usuario, monto_total,
			estado, condicion_pago, fecha_vencimiento, tipo_cambio, estado_pago
		)
		VALUES ('', $1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`,
		req.ProviderID, req.BranchID, req.UserID, req.MontoTotal,
		estado, condicion, req.FechaVencimiento, tipoCambio, domain.PagoPendiente,
	).Scan(&purchaseID); err != nil {
		return 0, fmt.Errorf("insert purchase: %w", err)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE compras SET folio = $2 WHERE id = $1",
		purchaseID, fmt.Sprintf("C-%06d", purchaseID),
	); err != nil {
		return 0, fmt.Errorf("assign purchase folio: %w", err)
	}

	for _, item := range req.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO detalles_compra (id_compra, id_producto, cantidad, costo_unitario, moneda)
			VALUES ($1, $2, $3, $4, $5)
		`, purchaseID, item.ProductID, item.Cantidad, item.CostoUnitario, domain.MonedaLocal); err != nil {
			return 0, fmt.Errorf("insert purchase line for product %d: %w", item.ProductID, err)
		}

		if _, err := tx.Exec(ctx, upsertInventorySQL,
			item.ProductID, req.BranchID, item.Cantidad, item.CostoUnitario,
		); err != nil {
			return 0, fmt.Errorf("credit inventory for product %d: %w", item.ProductID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit create-purchase tx: %w", err)
	}
	return purchaseID, nil
}

func (s *Store) ReceivePurchaseStock(ctx context.Context, purchaseID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin receive-stock tx: %w", err)
	}
	defer s.rollback(ctx, tx, "receive-purchase-stock")

	// The row lock serializes concurrent receipt attempts: the second caller
	// blocks here and then sees the already-updated state.
	var (
		branchID   int64
		estado     string
		tipoCambio float64
	)
	if err := tx.QueryRow(ctx, `
		SELECT id_sucursal, estado, tipo_cambio::double precision
		FROM compras
		WHERE id = $1
		FOR UPDATE
	`, purchaseID).Scan(&branchID, &estado, &tipoCambio); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		return fmt.Errorf("lock purchase %d: %w", purchaseID, err)
	}

	if estado != domain.CompraPendiente {
		return &store.InvalidStateError{
			Msg: fmt.Sprintf("La compra %d ya fue procesada (estado actual: %s).", purchaseID, estado),
		}
	}

	rows, err := tx.Query(ctx, `
		SELECT id_producto, cantidad, costo_unitario::double precision, moneda
		FROM detalles_compra
		WHERE id_compra = $1
		ORDER BY id ASC
	`, purchaseID)
	if err != nil {
		return fmt.Errorf("load purchase %d lines: %w", purchaseID, err)
	}
	items := make([]domain.PurchaseItem, 0)
	for rows.Next() {
		var item domain.PurchaseItem
		if err := rows.Scan(&item.ProductID, &item.Cantidad, &item.CostoUnitario, &item.Moneda); err != nil {
			rows.Close()
			return fmt.Errorf("scan purchase line: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate purchase lines: %w", err)
	}
	rows.Close()

	if len(items) == 0 {
		return &store.InvalidStateError{
			Msg: fmt.Sprintf("La compra %d no tiene detalles que recibir.", purchaseID),
		}
	}

	for _, item := range items {
		if item.Cantidad <= 0 {
			continue
		}
		costoLocal := domain.LineCostInLocal(item.CostoUnitario, item.Moneda, tipoCambio)
		if _, err := tx.Exec(ctx, upsertInventorySQL,
			item.ProductID, branchID, item.Cantidad, costoLocal,
		); err != nil {
			return fmt.Errorf("credit inventory for product %d: %w", item.ProductID, err)
		}
	}

	if _, err := tx.Exec(ctx,
		"UPDATE compras SET estado = $2 WHERE id = $1",
		purchaseID, domain.CompraRecibida,
	); err != nil {
		return fmt.Errorf("confirm purchase %d: %w", purchaseID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit receive-stock tx: %w", err)
	}
	return nil
}

func (s *Store) RegisterPurchasePayment(ctx context.Context, purchaseID int64, payment domain.PurchasePayment) (domain.PaymentResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.PaymentResult{}, fmt.Errorf("begin register-payment tx: %w", err)
	}
	defer s.rollback(ctx, tx, "registrar-pago-compra")

	// Lock the purchase first: an unknown id must surface as not-found, not
	// as a foreign key violation, and concurrent payments serialize here.
	var lockedID int64
	if err := tx.QueryRow(ctx,
		"SELECT id FROM compras WHERE id = $1 FOR UPDATE", purchaseID,
	).Scan(&lockedID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PaymentResult{}, store.ErrNotFound
		}
		return domain.PaymentResult{}, fmt.Errorf("lock purchase %d: %w", purchaseID, err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO pagos_compras (id_compra, monto, fecha_pago, metodo_pago, notas)
		VALUES ($1, $2, $3, $4, $5)
	`, purchaseID, payment.Monto, payment.FechaPago, payment.MetodoPago, payment.Notas); err != nil {
		return domain.PaymentResult{}, fmt.Errorf("insert payment for purchase %d: %w", purchaseID, err)
	}

	// The canonical total is always rederived from the line items at the
	// current exchange rate; a client-supplied or previously stored total is
	// never trusted.
	var total float64
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(
			dc.cantidad * dc.costo_unitario *
			CASE WHEN dc.moneda = $2 THEN c.tipo_cambio ELSE 1 END
		), 0)::double precision
		FROM compras c
		LEFT JOIN detalles_compra dc ON dc.id_compra = c.id
		WHERE c.id = $1
		GROUP BY c.id
	`, purchaseID, domain.MonedaExtranjera).Scan(&total); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PaymentResult{}, store.ErrNotFound
		}
		return domain.PaymentResult{}, fmt.Errorf("recompute purchase %d total: %w", purchaseID, err)
	}

	var paid float64
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(monto), 0)::double precision
		FROM pagos_compras
		WHERE id_compra = $1
	`, purchaseID).Scan(&paid); err != nil {
		return domain.PaymentResult{}, fmt.Errorf("sum purchase %d payments: %w", purchaseID, err)
	}

	estadoPago := domain.DerivePaymentStatus(total, paid)
	if _, err := tx.Exec(ctx,
		"UPDATE compras SET estado_pago = $2, monto_total = $3 WHERE id = $1",
		purchaseID, estadoPago, total,
	); err != nil {
		return domain.PaymentResult{}, fmt.Errorf("update purchase %d payment state: %w", purchaseID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.PaymentResult{}, fmt.Errorf("commit register-payment tx: %w", err)
	}
	return domain.PaymentResult{
		PurchaseID:  purchaseID,
		MontoTotal:  total,
		TotalPagado: paid,
		EstadoPago:  estadoPago,
	}, nil
}

func (s *Store) ListPurchases(ctx context.Context, limit, offset int) ([]domain.Purchase, error) {
	limit = normalizeLimit(limit)
	offset = normalizeOffset(offset)

	rows, err := s.pool.Query(ctx, `
		SELECT
			id, folio, id_proveedor, id_sucursal, id_usuario,
			monto_total::double precision, estado, condicion_pago,
			fecha_vencimiento, tipo_cambio::double precision, estado_pago, created_at
		FROM compras
		ORDER BY id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0, limit)
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchases: %w", err)
	}
	return purchases, nil
}

func (s *Store) GetPurchase(ctx context.Context, id int64) (*domain.PurchaseDetail, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT
			id, folio, id_proveedor, id_sucursal, id_usuario,
			monto_total::double precision, estado, condicion_pago,
			fecha_vencimiento, tipo_cambio::double precision, estado_pago, created_at
		FROM compras
		WHERE id = $1
	`, id)
	purchase, err := scanPurchase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get purchase %d: %w", id, err)
	}

	itemRows, err := s.pool.Query(ctx, `
		SELECT id, id_compra, id_producto, cantidad, costo_unitario::double precision, moneda
		FROM detalles_compra
		WHERE id_compra = $1
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get purchase %d lines: %w", id, err)
	}
	defer itemRows.Close()

	items := make([]domain.PurchaseItem, 0)
	for itemRows.Next() {
		var item domain.PurchaseItem
		if err := itemRows.Scan(
			&item.ID, &item.PurchaseID, &item.ProductID,
			&item.Cantidad, &item.CostoUnitario, &item.Moneda,
		); err != nil {
			return nil, fmt.Errorf("scan purchase line: %w", err)
		}
		items = append(items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchase lines: %w", err)
	}

	paymentRows, err := s.pool.Query(ctx, `
		SELECT id, id_compra, monto::double precision, fecha_pago, metodo_pago, notas, created_at
		FROM pagos_compras
		WHERE id_compra = $1
		ORDER BY fecha_pago ASC, id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get purchase %d payments: %w", id, err)
	}
	defer paymentRows.Close()

	payments := make([]domain.PurchasePayment, 0)
	for paymentRows.Next() {
		var p domain.PurchasePayment
		if err := paymentRows.Scan(
			&p.ID, &p.PurchaseID, &p.Monto, &p.FechaPago, &p.MetodoPago, &p.Notas, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan purchase payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := paymentRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchase payments: %w", err)
	}

	return &domain.PurchaseDetail{Purchase: purchase, Items: items, Payments: payments}, nil
}

func scanPurchase(row pgx.Row) (domain.Purchase, error) {
	var p domain.Purchase
	err := row.Scan(
		&p.ID, &p.Folio, &p.ProviderID, &p.BranchID, &p.UserID,
		&p.MontoTotal, &p.Estado, &p.CondicionPago,
		&p.FechaVencimiento, &p.TipoCambio, &p.EstadoPago, &p.CreatedAt,
	)
	return p, err
}
