package store

import (
	"context"
	"errors"
	"fmt"

	"servivent/backend/internal/domain"
)

var ErrNotFound = errors.New("not found")

// InvalidStateError reports an operation attempted against an entity whose
// lifecycle state forbids it, naming the current state.
type InvalidStateError struct {
	Msg string
}

func (e *InvalidStateError) Error() string { return e.Msg }

// InsufficientStockError is raised when the conditional stock decrement
// matched zero rows. The message is part of the external contract.
type InsufficientStockError struct {
	Product   string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Stock insuficiente para %q. Disponible: %d, Solicitado: %d.",
		e.Product, e.Available, e.Requested)
}

// Store is the shared relational ledger behind every handler. The five
// mutation methods of the transactional core (CreatePurchase,
// ReceivePurchaseStock, RegisterPurchasePayment, CreateSale,
// UpdateBranchPrices) each run as a single all-or-nothing transaction.
type Store interface {
	// Catalog.
	ListProducts(ctx context.Context, search string, limit, offset int) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error)
	UpdateProduct(ctx context.Context, p domain.Product) (*domain.Product, error)

	// Branches and ledger reads.
	ListBranches(ctx context.Context) ([]domain.Branch, error)
	CreateBranch(ctx context.Context, b domain.Branch) (domain.Branch, error)
	GetBranchInventory(ctx context.Context, branchID int64) ([]domain.InventoryRow, error)
	GetInventoryPosition(ctx context.Context, productID, branchID int64) (*domain.InventoryRow, error)
	GetBranchPrices(ctx context.Context, productID int64) ([]domain.BranchPrice, error)

	// Transactional core.
	CreatePurchase(ctx context.Context, req domain.CreatePurchaseRequest) (int64, error)
	ReceivePurchaseStock(ctx context.Context, purchaseID int64) error
	RegisterPurchasePayment(ctx context.Context, purchaseID int64, payment domain.PurchasePayment) (domain.PaymentResult, error)
	CreateSale(ctx context.Context, req domain.CreateSaleRequest) (int64, error)
	UpdateBranchPrices(ctx context.Context, req domain.UpdateBranchPricesRequest) error

	// Document reads.
	ListPurchases(ctx context.Context, limit, offset int) ([]domain.Purchase, error)
	GetPurchase(ctx context.Context, id int64) (*domain.PurchaseDetail, error)
	ListSales(ctx context.Context, limit, offset int) ([]domain.Sale, error)
	GetSale(ctx context.Context, id int64) (*domain.SaleDetail, error)

	// Users (login only; account management lives elsewhere).
	GetUserByEmail(ctx context.Context, correo string) (*domain.User, error)
}
