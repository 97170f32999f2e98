package domain

import "time"

// Purchase lifecycle states. A purchase is created Pendiente, transitions to
// Recibida exactly once when its stock is received, and Anulada is reserved
// for cancellations performed outside the transactional core.
const (
	CompraPendiente = "Pendiente"
	CompraRecibida  = "Recibida"
	CompraAnulada   = "Anulada"
)

// Payment progress states derived from the cumulative payments of a purchase.
const (
	PagoPendiente = "Pendiente"
	PagoParcial   = "Parcialmente Pagado"
	PagoPagado    = "Pagado"
)

const (
	CondicionContado = "Contado"
	CondicionCredito = "Credito"
)

// Line item currencies. Costs in the foreign currency are converted into the
// local accounting currency at the purchase's exchange rate.
const (
	MonedaLocal      = "BOB"
	MonedaExtranjera = "USD"
)

const VentaCompletada = "Completada"

// PaymentEpsilon is the floating-point tolerance used when deciding whether a
// purchase is fully paid. Inherited from the production system as-is.
const PaymentEpsilon = 0.001

type Product struct {
	ID         int64     `json:"id"`
	SKU        string    `json:"sku"`
	Nombre     string    `json:"nombre"`
	Marca      *string   `json:"marca,omitempty"`
	Modelo     *string   `json:"modelo,omitempty"`
	Categoria  *string   `json:"categoria,omitempty"`
	PrecioBase float64   `json:"precio_base"`
	ImagenURL  *string   `json:"imagen_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Branch struct {
	ID        int64   `json:"id"`
	Nombre    string  `json:"nombre"`
	Direccion *string `json:"direccion,omitempty"`
	Telefono  *string `json:"telefono,omitempty"`
}

type Provider struct {
	ID     int64   `json:"id"`
	Nombre string  `json:"nombre"`
	NIT    *string `json:"nit,omitempty"`
}

type User struct {
	ID           int64   `json:"id"`
	Correo       string  `json:"correo"`
	Nombre       string  `json:"nombre"`
	Rol          string  `json:"rol"`
	AvatarURL    *string `json:"avatar_url,omitempty"`
	PasswordHash string  `json:"-"`
}

// InventoryRow is the per-(product, branch) stock ledger entry. Quantity is
// guarded against going negative by the conditional decrement in the sale
// path; cost is the running weighted average.
type InventoryRow struct {
	ProductID     int64     `json:"id_producto"`
	BranchID      int64     `json:"id_sucursal"`
	ProductName   string    `json:"producto"`
	SKU           string    `json:"sku"`
	Cantidad      int       `json:"cantidad"`
	CostoPromedio float64   `json:"costo_promedio"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type BranchPrice struct {
	ProductID   int64   `json:"id_producto"`
	BranchID    int64   `json:"id_sucursal"`
	PrecioVenta float64 `json:"precio_venta"`
}

type Purchase struct {
	ID               int64      `json:"id"`
	Folio            string     `json:"folio"`
	ProviderID       int64      `json:"id_proveedor"`
	BranchID         int64      `json:"id_sucursal"`
	UserID           *int64     `json:"id_usuario,omitempty"`
	MontoTotal       float64    `json:"monto_total"`
	Estado           string     `json:"estado"`
	CondicionPago    string     `json:"condicion_pago"`
	FechaVencimiento *time.Time `json:"fecha_vencimiento,omitempty"`
	TipoCambio       float64    `json:"tipo_cambio"`
	EstadoPago       string     `json:"estado_pago"`
	CreatedAt        time.Time  `json:"created_at"`
}

type PurchaseItem struct {
	ID            int64   `json:"id"`
	PurchaseID    int64   `json:"id_compra"`
	ProductID     int64   `json:"id_producto"`
	Cantidad      int     `json:"cantidad"`
	CostoUnitario float64 `json:"costo_unitario"`
	Moneda        string  `json:"moneda"`
}

type PurchasePayment struct {
	ID         int64     `json:"id"`
	PurchaseID int64     `json:"id_compra"`
	Monto      float64   `json:"monto"`
	FechaPago  time.Time `json:"fecha_pago"`
	MetodoPago string    `json:"metodo_pago"`
	Notas      *string   `json:"notas,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type PurchaseDetail struct {
	Purchase Purchase          `json:"compra"`
	Items    []PurchaseItem    `json:"items"`
	Payments []PurchasePayment `json:"pagos"`
}

type Sale struct {
	ID         int64     `json:"id"`
	Folio      string    `json:"folio"`
	BranchID   int64     `json:"id_sucursal"`
	UserID     int64     `json:"id_usuario"`
	MontoTotal float64   `json:"monto_total"`
	MetodoPago string    `json:"metodo_pago"`
	Estado     string    `json:"estado"`
	CreatedAt  time.Time `json:"created_at"`
}

type SaleItem struct {
	ID             int64   `json:"id"`
	SaleID         int64   `json:"id_venta"`
	ProductID      int64   `json:"id_producto"`
	Cantidad       int     `json:"cantidad"`
	PrecioUnitario float64 `json:"precio_unitario"`
}

type SaleDetail struct {
	Sale  Sale       `json:"venta"`
	Items []SaleItem `json:"items"`
}

// Wire payloads for the transactional endpoints. Field names mirror the
// production JSON contract.

type PurchaseItemInput struct {
	ProductID     int64   `json:"id_producto" validate:"required,gt=0"`
	Cantidad      int     `json:"cantidad" validate:"required,gt=0"`
	CostoUnitario float64 `json:"costo_unitario" validate:"gte=0"`
}

type CreatePurchaseRequest struct {
	ProviderID       int64               `json:"id_proveedor" validate:"required,gt=0"`
	BranchID         int64               `json:"id_sucursal" validate:"required,gt=0"`
	UserID           *int64              `json:"id_usuario"`
	MontoTotal       float64             `json:"monto_total" validate:"gte=0"`
	Estado           string              `json:"estado"`
	CondicionPago    string              `json:"condicion_pago"`
	FechaVencimiento *time.Time          `json:"fecha_vencimiento"`
	TipoCambio       float64             `json:"tipo_cambio"`
	Items            []PurchaseItemInput `json:"items" validate:"required,min=1,dive"`
}

type SaleItemInput struct {
	ProductID      int64   `json:"id_producto" validate:"required,gt=0"`
	Cantidad       int     `json:"cantidad" validate:"required,gt=0"`
	PrecioUnitario float64 `json:"precio_unitario" validate:"gte=0"`
}

type CreateSaleRequest struct {
	BranchID   int64           `json:"id_sucursal" validate:"required,gt=0"`
	UserID     int64           `json:"id_usuario" validate:"required,gt=0"`
	MontoTotal float64         `json:"monto_total" validate:"gte=0"`
	MetodoPago string          `json:"metodo_pago" validate:"required"`
	Items      []SaleItemInput `json:"items" validate:"required,min=1,dive"`
}

type RegisterPaymentRequest struct {
	PurchaseID int64   `json:"purchaseId" validate:"required,gt=0"`
	Monto      float64 `json:"amount" validate:"required,gt=0"`
	FechaPago  string  `json:"paymentDate" validate:"required"`
	MetodoPago string  `json:"method" validate:"required"`
	Notas      *string `json:"notes"`
}

type ReceiveStockRequest struct {
	PurchaseID int64 `json:"purchase_id" validate:"required,gt=0"`
}

type BranchPriceUpsert struct {
	BranchID    int64   `json:"id_sucursal" validate:"required,gt=0"`
	PrecioVenta float64 `json:"precio_venta" validate:"gte=0"`
}

type UpdateBranchPricesRequest struct {
	ProductID         int64               `json:"productId" validate:"required,gt=0"`
	RecordsToUpsert   []BranchPriceUpsert `json:"recordsToUpsert" validate:"dive"`
	BranchIDsToDelete []int64             `json:"branchIdsToDelete"`
}

// PaymentResult reports the recomputed financial state of a purchase after a
// payment is registered.
type PaymentResult struct {
	PurchaseID  int64   `json:"id_compra"`
	MontoTotal  float64 `json:"monto_total"`
	TotalPagado float64 `json:"total_pagado"`
	EstadoPago  string  `json:"estado_pago"`
}

// DerivePaymentStatus is the single definition of the payment-state rule:
// Pagado iff paid >= total - PaymentEpsilon, Parcialmente Pagado iff some but
// not enough has been paid, Pendiente otherwise.
func DerivePaymentStatus(total, paid float64) string {
	switch {
	case paid >= total-PaymentEpsilon:
		return PagoPagado
	case paid > 0:
		return PagoParcial
	default:
		return PagoPendiente
	}
}

// MergeWeightedAverage folds an incoming batch into an inventory position and
// returns the new quantity and weighted-average cost. A zero resulting
// quantity resets the cost to zero rather than dividing by it.
func MergeWeightedAverage(oldQty int, oldCost float64, qty int, unitCost float64) (int, float64) {
	newQty := oldQty + qty
	if newQty == 0 {
		return 0, 0
	}
	newCost := (float64(oldQty)*oldCost + float64(qty)*unitCost) / float64(newQty)
	return newQty, newCost
}

// LineCostInLocal converts a line item's unit cost into the local currency.
func LineCostInLocal(unitCost float64, moneda string, tipoCambio float64) float64 {
	if moneda == MonedaExtranjera {
		return unitCost * tipoCambio
	}
	return unitCost
}
