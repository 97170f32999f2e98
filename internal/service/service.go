// Package service holds the application logic between the HTTP layer and
// the store: request validation, payment date parsing, the price cache and
// audit logging. Transactional behavior itself lives in the store.
package service

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"servivent/backend/internal/cache"
	"servivent/backend/internal/domain"
	"servivent/backend/internal/excel"
	"servivent/backend/internal/store"
)

// ValidationError marks a request rejected before it reached the store.
// Handlers translate it to a 400 regardless of endpoint.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

type Service struct {
	store    store.Store
	prices   cache.PriceCache
	validate *validator.Validate
	log      zerolog.Logger
}

func New(st store.Store, prices cache.PriceCache, log zerolog.Logger) *Service {
	if prices == nil {
		prices = cache.NoopPriceCache{}
	}

	v := validator.New()
	// Error messages name the JSON field, not the Go field.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Service{
		store:    st,
		prices:   prices,
		validate: v,
		log:      log.With().Str("component", "service").Logger(),
	}
}

func (s *Service) checkStruct(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		first := errs[0]
		return invalid("campo '%s' invalido (regla: %s)", first.Field(), first.Tag())
	}
	return &ValidationError{Msg: err.Error()}
}

func (s *Service) CreatePurchase(ctx context.Context, req domain.CreatePurchaseRequest) (int64, error) {
	if err := s.checkStruct(req); err != nil {
		return 0, err
	}
	if req.Estado != "" && req.Estado != domain.CompraPendiente && req.Estado != domain.CompraRecibida {
		return 0, invalid("estado '%s' no es valido para una compra nueva", req.Estado)
	}
	if req.CondicionPago != "" &&
		req.CondicionPago != domain.CondicionContado && req.CondicionPago != domain.CondicionCredito {
		return 0, invalid("condicion_pago '%s' no es valida", req.CondicionPago)
	}

	id, err := s.store.CreatePurchase(ctx, req)
	if err != nil {
		return 0, err
	}
	s.log.Info().
		Int64("compra_id", id).
		Int64("sucursal_id", req.BranchID).
		Int64("proveedor_id", req.ProviderID).
		Int("lineas", len(req.Items)).
		Msg("compra registrada")
	return id, nil
}

func (s *Service) ReceivePurchaseStock(ctx context.Context, req domain.ReceiveStockRequest) error {
	if err := s.checkStruct(req); err != nil {
		return err
	}
	if err := s.store.ReceivePurchaseStock(ctx, req.PurchaseID); err != nil {
		return err
	}
	s.log.Info().Int64("compra_id", req.PurchaseID).Msg("mercaderia recibida")
	return nil
}

func (s *Service) RegisterPurchasePayment(ctx context.Context, req domain.RegisterPaymentRequest) (domain.PaymentResult, error) {
	if err := s.checkStruct(req); err != nil {
		return domain.PaymentResult{}, err
	}
	fechaPago, err := parsePaymentDate(req.FechaPago)
	if err != nil {
		return domain.PaymentResult{}, err
	}

	result, err := s.store.RegisterPurchasePayment(ctx, req.PurchaseID, domain.PurchasePayment{
		Monto:      req.Monto,
		FechaPago:  fechaPago,
		MetodoPago: req.MetodoPago,
		Notas:      req.Notas,
	})
	if err != nil {
		return domain.PaymentResult{}, err
	}
	s.log.Info().
		Int64("compra_id", req.PurchaseID).
		Float64("monto", req.Monto).
		Str("estado_pago", result.EstadoPago).
		Msg("pago registrado")
	return result, nil
}

func (s *Service) CreateSale(ctx context.Context, req domain.CreateSaleRequest) (int64, error) {
	if err := s.checkStruct(req); err != nil {
		return 0, err
	}

	id, err := s.store.CreateSale(ctx, req)
	if err != nil {
		return 0, err
	}
	s.log.Info().
		Int64("venta_id", id).
		Int64("sucursal_id", req.BranchID).
		Int("lineas", len(req.Items)).
		Msg("venta registrada")
	return id, nil
}

func (s *Service) UpdateBranchPrices(ctx context.Context, req domain.UpdateBranchPricesRequest) error {
	if err := s.checkStruct(req); err != nil {
		return err
	}
	if len(req.RecordsToUpsert) == 0 && len(req.BranchIDsToDelete) == 0 {
		return invalid("la solicitud no contiene cambios de precios")
	}

	if err := s.store.UpdateBranchPrices(ctx, req); err != nil {
		return err
	}
	if err := s.prices.Invalidate(ctx, req.ProductID); err != nil {
		s.log.Warn().Err(err).Int64("producto_id", req.ProductID).Msg("price cache invalidation failed")
	}
	s.log.Info().
		Int64("producto_id", req.ProductID).
		Int("upserts", len(req.RecordsToUpsert)).
		Int("deletes", len(req.BranchIDsToDelete)).
		Msg("precios por sucursal actualizados")
	return nil
}

// GetBranchPrices serves the read side of the price list through the cache.
// Cache failures degrade to a database read.
func (s *Service) GetBranchPrices(ctx context.Context, productID int64) ([]domain.BranchPrice, error) {
	cached, hit, err := s.prices.Get(ctx, productID)
	if err != nil {
		s.log.Warn().Err(err).Int64("producto_id", productID).Msg("price cache read failed")
	} else if hit {
		return cached, nil
	}

	prices, err := s.store.GetBranchPrices(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := s.prices.Set(ctx, productID, prices, cache.DefaultPriceTTL); err != nil {
		s.log.Warn().Err(err).Int64("producto_id", productID).Msg("price cache write failed")
	}
	return prices, nil
}

// ImportBranchPrices parses an uploaded spreadsheet and applies it as a
// plain upsert batch. Returns the number of branches updated.
func (s *Service) ImportBranchPrices(ctx context.Context, productID int64, fileName string, reader io.Reader) (int, error) {
	if productID <= 0 {
		return 0, invalid("productId es requerido")
	}
	records, err := excel.ParseBranchPriceRows(fileName, reader)
	if err != nil {
		return 0, &ValidationError{Msg: err.Error()}
	}
	if err := s.UpdateBranchPrices(ctx, domain.UpdateBranchPricesRequest{
		ProductID:       productID,
		RecordsToUpsert: records,
	}); err != nil {
		return 0, err
	}
	return len(records), nil
}

func (s *Service) ListProducts(ctx context.Context, search string, limit, offset int) ([]domain.Product, error) {
	return s.store.ListProducts(ctx, search, limit, offset)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.store.GetProduct(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	p.SKU = strings.TrimSpace(p.SKU)
	p.Nombre = strings.TrimSpace(p.Nombre)
	if p.SKU == "" {
		return domain.Product{}, invalid("sku es requerido")
	}
	if p.Nombre == "" {
		return domain.Product{}, invalid("nombre es requerido")
	}
	if p.PrecioBase < 0 {
		return domain.Product{}, invalid("precio_base no puede ser negativo")
	}
	return s.store.CreateProduct(ctx, p)
}

func (s *Service) UpdateProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	p.Nombre = strings.TrimSpace(p.Nombre)
	if p.Nombre == "" {
		return nil, invalid("nombre es requerido")
	}
	if p.PrecioBase < 0 {
		return nil, invalid("precio_base no puede ser negativo")
	}
	return s.store.UpdateProduct(ctx, p)
}

func (s *Service) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	return s.store.ListBranches(ctx)
}

func (s *Service) CreateBranch(ctx context.Context, b domain.Branch) (domain.Branch, error) {
	b.Nombre = strings.TrimSpace(b.Nombre)
	if b.Nombre == "" {
		return domain.Branch{}, invalid("nombre es requerido")
	}
	return s.store.CreateBranch(ctx, b)
}

func (s *Service) GetBranchInventory(ctx context.Context, branchID int64) ([]domain.InventoryRow, error) {
	return s.store.GetBranchInventory(ctx, branchID)
}

func (s *Service) ListPurchases(ctx context.Context, limit, offset int) ([]domain.Purchase, error) {
	return s.store.ListPurchases(ctx, limit, offset)
}

func (s *Service) GetPurchase(ctx context.Context, id int64) (*domain.PurchaseDetail, error) {
	return s.store.GetPurchase(ctx, id)
}

func (s *Service) ListSales(ctx context.Context, limit, offset int) ([]domain.Sale, error) {
	return s.store.ListSales(ctx, limit, offset)
}

func (s *Service) GetSale(ctx context.Context, id int64) (*domain.SaleDetail, error) {
	return s.store.GetSale(ctx, id)
}

// parsePaymentDate accepts the date-only form the web client sends and full
// RFC 3339 timestamps.
func parsePaymentDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Time{}, invalid("paymentDate '%s' no tiene un formato valido (se espera YYYY-MM-DD)", raw)
}
