// Package postgres implements the ServiVENT ledger on PostgreSQL. Every
// mutating core operation runs in a single transaction on a pooled
// connection and either commits completely or rolls back completely.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"servivent/backend/internal/domain"
	"servivent/backend/internal/store"
)

type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func New(pool *pgxpool.Pool, log zerolog.Logger) *Store {
	return &Store{pool: pool, log: log.With().Str("component", "store").Logger()}
}

// rollback releases tx and logs a rollback that itself failed. The original
// error always wins; a broken rollback is never surfaced to the caller.
func (s *Store) rollback(ctx context.Context, tx pgx.Tx, op string) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		s.log.Error().Err(err).Str("op", op).Msg("transaction rollback failed")
	}
}

func (s *Store) ListProducts(ctx context.Context, search string, limit, offset int) ([]domain.Product, error) {
	limit = normalizeLimit(limit)
	offset = normalizeOffset(offset)
	search = strings.TrimSpace(search)

	rows, err := s.pool.Query(ctx, `
		SELECT
			id, sku, nombre, marca, modelo, categoria,
			precio_base::double precision, imagen_url, created_at, updated_at
		FROM productos
		WHERE ($1 = '' OR nombre ILIKE '%' || $1 || '%' OR sku ILIKE '%' || $1 || '%')
		ORDER BY id ASC
		LIMIT $2 OFFSET $3
	`, search, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT
			id, sku, nombre, marca, modelo, categoria,
			precio_base::double precision, imagen_url, created_at, updated_at
		FROM productos
		WHERE id = $1
	`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO productos (sku, nombre, marca, modelo, categoria, precio_base, imagen_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING
			id, sku, nombre, marca, modelo, categoria,
			precio_base::double precision, imagen_url, created_at, updated_at
	`, p.SKU, p.Nombre, p.Marca, p.Modelo, p.Categoria, p.PrecioBase, p.ImagenURL)
	created, err := scanProduct(row)
	if err != nil {
		return domain.Product{}, fmt.Errorf("create product: %w", err)
	}
	return created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE productos
		SET nombre = $2, marca = $3, modelo = $4, categoria = $5,
			precio_base = $6, imagen_url = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING
			id, sku, nombre, marca, modelo, categoria,
			precio_base::double precision, imagen_url, created_at, updated_at
	`, p.ID, p.Nombre, p.Marca, p.Modelo, p.Categoria, p.PrecioBase, p.ImagenURL)
	updated, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("update product %d: %w", p.ID, err)
	}
	return &updated, nil
}

func (s *Store) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, nombre, direccion, telefono
		FROM sucursales
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer rows.Close()

	branches := make([]domain.Branch, 0)
	for rows.Next() {
		var b domain.Branch
		if err := rows.Scan(&b.ID, &b.Nombre, &b.Direccion, &b.Telefono); err != nil {
			return nil, fmt.Errorf("scan branch: %w", err)
		}
		branches = append(branches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate branches: %w", err)
	}
	return branches, nil
}

func (s *Store) CreateBranch(ctx context.Context, b domain.Branch) (domain.Branch, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sucursales (nombre, direccion, telefono)
		VALUES ($1, $2, $3)
		RETURNING id, nombre, direccion, telefono
	`, b.Nombre, b.Direccion, b.Telefono)
	var created domain.Branch
	if err := row.Scan(&created.ID, &created.Nombre, &created.Direccion, &created.Telefono); err != nil {
		return domain.Branch{}, fmt.Errorf("create branch: %w", err)
	}
	return created, nil
}

func (s *Store) GetBranchInventory(ctx context.Context, branchID int64) ([]domain.InventoryRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT
			i.id_producto, i.id_sucursal, p.nombre, p.sku,
			i.cantidad, i.costo_promedio::double precision, i.updated_at
		FROM inventarios i
		JOIN productos p ON p.id = i.id_producto
		WHERE i.id_sucursal = $1
		ORDER BY p.nombre ASC
	`, branchID)
	if err != nil {
		return nil, fmt.Errorf("branch %d inventory: %w", branchID, err)
	}
	defer rows.Close()

	inventory := make([]domain.InventoryRow, 0)
	for rows.Next() {
		var row domain.InventoryRow
		if err := rows.Scan(
			&row.ProductID, &row.BranchID, &row.ProductName, &row.SKU,
			&row.Cantidad, &row.CostoPromedio, &row.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan inventory row: %w", err)
		}
		inventory = append(inventory, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory: %w", err)
	}
	return inventory, nil
}

func (s *Store) GetInventoryPosition(ctx context.Context, productID, branchID int64) (*domain.InventoryRow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT
			i.id_producto, i.id_sucursal, p.nombre, p.sku,
			i.cantidad, i.costo_promedio::double precision, i.updated_at
		FROM inventarios i
		JOIN productos p ON p.id = i.id_producto
		WHERE i.id_producto = $1 AND i.id_sucursal = $2
	`, productID, branchID)
	var position domain.InventoryRow
	if err := row.Scan(
		&position.ProductID, &position.BranchID, &position.ProductName, &position.SKU,
		&position.Cantidad, &position.CostoPromedio, &position.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("inventory position (%d, %d): %w", productID, branchID, err)
	}
	return &position, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, correo string) (*domain.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, correo, nombre, rol, avatar_url, password_hash
		FROM usuarios
		WHERE LOWER(correo) = LOWER($1)
	`, strings.TrimSpace(correo))
	var u domain.User
	if err := row.Scan(&u.ID, &u.Correo, &u.Nombre, &u.Rol, &u.AvatarURL, &u.PasswordHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get user %q: %w", correo, err)
	}
	return &u, nil
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(
		&p.ID, &p.SKU, &p.Nombre, &p.Marca, &p.Modelo, &p.Categoria,
		&p.PrecioBase, &p.ImagenURL, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 200
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
