// Package memory is an in-process implementation of store.Store with the
// same observable semantics as the postgres store: every core operation is
// atomic, stock can never go below zero, and the Pendiente->Recibida
// transition happens at most once. It backs the service and handler tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"servivent/backend/internal/domain"
	"servivent/backend/internal/store"
)

type invKey struct {
	productID int64
	branchID  int64
}

type Store struct {
	mu sync.Mutex

	products     map[int64]domain.Product
	branches     map[int64]domain.Branch
	users        map[string]domain.User
	inventory    map[invKey]*domain.InventoryRow
	branchPrices map[invKey]float64

	purchases     map[int64]*domain.Purchase
	purchaseItems map[int64][]domain.PurchaseItem
	payments      map[int64][]domain.PurchasePayment

	sales     map[int64]*domain.Sale
	saleItems map[int64][]domain.SaleItem

	nextProductID  int64
	nextBranchID   int64
	nextPurchaseID int64
	nextPaymentID  int64
	nextSaleID     int64
	nextLineID     int64
}

func New() *Store {
	return &Store{
		products:      make(map[int64]domain.Product),
		branches:      make(map[int64]domain.Branch),
		users:         make(map[string]domain.User),
		inventory:     make(map[invKey]*domain.InventoryRow),
		branchPrices:  make(map[invKey]float64),
		purchases:     make(map[int64]*domain.Purchase),
		purchaseItems: make(map[int64][]domain.PurchaseItem),
		payments:      make(map[int64][]domain.PurchasePayment),
		sales:         make(map[int64]*domain.Sale),
		saleItems:     make(map[int64][]domain.SaleItem),
	}
}

// NewSeeded returns a store preloaded with the fixture catalog the tests
// share: two branches, a small product set, stock in branch 2 and one
// active user (admin@servivent.bo / admin123).
func NewSeeded() *Store {
	s := New()
	s.seedBranch("Casa Matriz")
	s.seedBranch("Sucursal Norte")
	s.seedProduct("SKU-TEC-01", "Teclado Mecanico", 350)
	s.seedProduct("SKU-MON-01", "Monitor 24\"", 1200)
	s.seedProduct("SKU-MOU-01", "Mouse Inalambrico", 120)
	s.SetInventory(1, 2, 5, 200)
	s.SetInventory(2, 2, 10, 800)

	hash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("seed user hash: %v", err))
	}
	s.users["admin@servivent.bo"] = domain.User{
		ID:           1,
		Correo:       "admin@servivent.bo",
		Nombre:       "Administrador",
		Rol:          "admin",
		PasswordHash: string(hash),
	}
	return s
}

func (s *Store) seedBranch(nombre string) {
	s.nextBranchID++
	s.branches[s.nextBranchID] = domain.Branch{ID: s.nextBranchID, Nombre: nombre}
}

func (s *Store) seedProduct(sku, nombre string, precio float64) {
	s.nextProductID++
	now := time.Now().UTC()
	s.products[s.nextProductID] = domain.Product{
		ID: s.nextProductID, SKU: sku, Nombre: nombre,
		PrecioBase: precio, CreatedAt: now, UpdatedAt: now,
	}
}

// SetInventory pins a (product, branch) position to an exact quantity and
// cost. Test setup only; production code always merges.
func (s *Store) SetInventory(productID, branchID int64, cantidad int, costo float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := invKey{productID, branchID}
	s.inventory[key] = &domain.InventoryRow{
		ProductID:     productID,
		BranchID:      branchID,
		Cantidad:      cantidad,
		CostoPromedio: costo,
		UpdatedAt:     time.Now().UTC(),
	}
}

func (s *Store) ListProducts(_ context.Context, search string, limit, offset int) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	search = strings.ToLower(strings.TrimSpace(search))
	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Nombre), search) &&
			!strings.Contains(strings.ToLower(p.SKU), search) {
			continue
		}
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return paginate(products, limit, offset), nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) CreateProduct(_ context.Context, p domain.Product) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.products {
		if strings.EqualFold(existing.SKU, p.SKU) {
			return domain.Product{}, fmt.Errorf("sku %q ya existe", p.SKU)
		}
	}
	s.nextProductID++
	p.ID = s.nextProductID
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) UpdateProduct(_ context.Context, p domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.products[p.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	// Identity (id, sku) is immutable once referenced.
	p.SKU = existing.SKU
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.products[p.ID] = p
	return &p, nil
}

func (s *Store) ListBranches(_ context.Context) ([]domain.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	branches := make([]domain.Branch, 0, len(s.branches))
	for _, b := range s.branches {
		branches = append(branches, b)
	}
	sort.Slice(branches, func(i, j int) bool { return branches[i].ID < branches[j].ID })
	return branches, nil
}

func (s *Store) CreateBranch(_ context.Context, b domain.Branch) (domain.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextBranchID++
	b.ID = s.nextBranchID
	s.branches[b.ID] = b
	return b, nil
}

func (s *Store) GetBranchInventory(_ context.Context, branchID int64) ([]domain.InventoryRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]domain.InventoryRow, 0)
	for key, pos := range s.inventory {
		if key.branchID != branchID {
			continue
		}
		row := *pos
		if p, ok := s.products[key.productID]; ok {
			row.ProductName = p.Nombre
			row.SKU = p.SKU
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ProductName < rows[j].ProductName })
	return rows, nil
}

func (s *Store) GetInventoryPosition(_ context.Context, productID, branchID int64) (*domain.InventoryRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.inventory[invKey{productID, branchID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	row := *pos
	if p, ok := s.products[productID]; ok {
		row.ProductName = p.Nombre
		row.SKU = p.SKU
	}
	return &row, nil
}

func (s *Store) GetBranchPrices(_ context.Context, productID int64) ([]domain.BranchPrice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prices := make([]domain.BranchPrice, 0)
	for key, precio := range s.branchPrices {
		if key.productID != productID {
			continue
		}
		prices = append(prices, domain.BranchPrice{
			ProductID:   key.productID,
			BranchID:    key.branchID,
			PrecioVenta: precio,
		})
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].BranchID < prices[j].BranchID })
	return prices, nil
}

func (s *Store) CreatePurchase(_ context.Context, req domain.CreatePurchaseRequest) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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

	s.nextPurchaseID++
	id := s.nextPurchaseID
	s.purchases[id] = &domain.Purchase{
		ID:               id,
		Folio:            fmt.Sprintf("C-%06d", id),
		ProviderID:       req.ProviderID,
		BranchID:         req.BranchID,
		UserID:           req.UserID,
		MontoTotal:       req.MontoTotal,
		Estado:           estado,
		CondicionPago:    condicion,
		FechaVencimiento: req.FechaVencimiento,
		TipoCambio:       tipoCambio,
		EstadoPago:       domain.PagoPendiente,
		CreatedAt:        time.Now().UTC(),
	}

	for _, item := range req.Items {
		s.nextLineID++
		s.purchaseItems[id] = append(s.purchaseItems[id], domain.PurchaseItem{
			ID:            s.nextLineID,
			PurchaseID:    id,
			ProductID:     item.ProductID,
			Cantidad:      item.Cantidad,
			CostoUnitario: item.CostoUnitario,
			Moneda:        domain.MonedaLocal,
		})
		s.mergeInventory(item.ProductID, req.BranchID, item.Cantidad, item.CostoUnitario)
	}
	return id, nil
}

func (s *Store) ReceivePurchaseStock(_ context.Context, purchaseID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	purchase, ok := s.purchases[purchaseID]
	if !ok {
		return store.ErrNotFound
	}
	if purchase.Estado != domain.CompraPendiente {
		return &store.InvalidStateError{
			Msg: fmt.Sprintf("La compra %d ya fue procesada (estado actual: %s).", purchaseID, purchase.Estado),
		}
	}
	items := s.purchaseItems[purchaseID]
	if len(items) == 0 {
		return &store.InvalidStateError{
			Msg: fmt.Sprintf("La compra %d no tiene detalles que recibir.", purchaseID),
		}
	}

	for _, item := range items {
		if item.Cantidad <= 0 {
			continue
		}
		costoLocal := domain.LineCostInLocal(item.CostoUnitario, item.Moneda, purchase.TipoCambio)
		s.mergeInventory(item.ProductID, purchase.BranchID, item.Cantidad, costoLocal)
	}
	purchase.Estado = domain.CompraRecibida
	return nil
}

func (s *Store) RegisterPurchasePayment(_ context.Context, purchaseID int64, payment domain.PurchasePayment) (domain.PaymentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purchase, ok := s.purchases[purchaseID]
	if !ok {
		return domain.PaymentResult{}, store.ErrNotFound
	}

	s.nextPaymentID++
	payment.ID = s.nextPaymentID
	payment.PurchaseID = purchaseID
	payment.CreatedAt = time.Now().UTC()
	s.payments[purchaseID] = append(s.payments[purchaseID], payment)

	var total float64
	for _, item := range s.purchaseItems[purchaseID] {
		total += float64(item.Cantidad) *
			domain.LineCostInLocal(item.CostoUnitario, item.Moneda, purchase.TipoCambio)
	}
	var paid float64
	for _, p := range s.payments[purchaseID] {
		paid += p.Monto
	}

	purchase.EstadoPago = domain.DerivePaymentStatus(total, paid)
	purchase.MontoTotal = total
	return domain.PaymentResult{
		PurchaseID:  purchaseID,
		MontoTotal:  total,
		TotalPagado: paid,
		EstadoPago:  purchase.EstadoPago,
	}, nil
}

func (s *Store) CreateSale(_ context.Context, req domain.CreateSaleRequest) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Stage the decrements first so a failing line leaves nothing behind,
	// matching the all-or-nothing transaction of the postgres store.
	staged := make(map[invKey]int, len(req.Items))
	for _, item := range req.Items {
		key := invKey{item.ProductID, req.BranchID}
		pos, ok := s.inventory[key]
		available := 0
		if ok {
			available = pos.Cantidad - staged[key]
		}
		if available < item.Cantidad {
			product, exists := s.products[item.ProductID]
			if !exists {
				return 0, fmt.Errorf("producto %d: %w", item.ProductID, store.ErrNotFound)
			}
			return 0, &store.InsufficientStockError{
				Product:   product.Nombre,
				Available: available,
				Requested: item.Cantidad,
			}
		}
		staged[key] += item.Cantidad
	}

	s.nextSaleID++
	id := s.nextSaleID
	s.sales[id] = &domain.Sale{
		ID:         id,
		Folio:      fmt.Sprintf("V-%06d", id),
		BranchID:   req.BranchID,
		UserID:     req.UserID,
		MontoTotal: req.MontoTotal,
		MetodoPago: req.MetodoPago,
		Estado:     domain.VentaCompletada,
		CreatedAt:  time.Now().UTC(),
	}
	for _, item := range req.Items {
		s.nextLineID++
		s.saleItems[id] = append(s.saleItems[id], domain.SaleItem{
			ID:             s.nextLineID,
			SaleID:         id,
			ProductID:      item.ProductID,
			Cantidad:       item.Cantidad,
			PrecioUnitario: item.PrecioUnitario,
		})
		pos := s.inventory[invKey{item.ProductID, req.BranchID}]
		pos.Cantidad -= item.Cantidad
		pos.UpdatedAt = time.Now().UTC()
	}
	return id, nil
}

func (s *Store) UpdateBranchPrices(_ context.Context, req domain.UpdateBranchPricesRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, branchID := range req.BranchIDsToDelete {
		delete(s.branchPrices, invKey{req.ProductID, branchID})
	}
	for _, record := range req.RecordsToUpsert {
		s.branchPrices[invKey{req.ProductID, record.BranchID}] = record.PrecioVenta
	}
	return nil
}

func (s *Store) ListPurchases(_ context.Context, limit, offset int) ([]domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purchases := make([]domain.Purchase, 0, len(s.purchases))
	for _, p := range s.purchases {
		purchases = append(purchases, *p)
	}
	sort.Slice(purchases, func(i, j int) bool { return purchases[i].ID > purchases[j].ID })
	return paginate(purchases, limit, offset), nil
}

func (s *Store) GetPurchase(_ context.Context, id int64) (*domain.PurchaseDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purchase, ok := s.purchases[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	detail := &domain.PurchaseDetail{
		Purchase: *purchase,
		Items:    append([]domain.PurchaseItem(nil), s.purchaseItems[id]...),
		Payments: append([]domain.PurchasePayment(nil), s.payments[id]...),
	}
	return detail, nil
}

func (s *Store) ListSales(_ context.Context, limit, offset int) ([]domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		sales = append(sales, *sale)
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].ID > sales[j].ID })
	return paginate(sales, limit, offset), nil
}

func (s *Store) GetSale(_ context.Context, id int64) (*domain.SaleDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &domain.SaleDetail{
		Sale:  *sale,
		Items: append([]domain.SaleItem(nil), s.saleItems[id]...),
	}, nil
}

func (s *Store) GetUserByEmail(_ context.Context, correo string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.ToLower(strings.TrimSpace(correo))]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

// mergeInventory applies the weighted-average merge. Callers hold s.mu.
func (s *Store) mergeInventory(productID, branchID int64, cantidad int, costoUnitario float64) {
	key := invKey{productID, branchID}
	pos, ok := s.inventory[key]
	if !ok {
		pos = &domain.InventoryRow{ProductID: productID, BranchID: branchID}
		s.inventory[key] = pos
	}
	pos.Cantidad, pos.CostoPromedio = domain.MergeWeightedAverage(
		pos.Cantidad, pos.CostoPromedio, cantidad, costoUnitario)
	pos.UpdatedAt = time.Now().UTC()
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
