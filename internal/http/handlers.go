package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"servivent/backend/internal/auth"
	"servivent/backend/internal/domain"
	"servivent/backend/internal/service"
	"servivent/backend/internal/store"
)

type Handler struct {
	svc  *service.Service
	auth *auth.Manager
	log  zerolog.Logger
}

func NewHandler(svc *service.Service, authManager *auth.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		svc:  svc,
		auth: authManager,
		log:  log.With().Str("component", "http").Logger(),
	}
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type loginRequest struct {
	Correo   string `json:"correo"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := h.auth.Login(r.Context(), req.Correo, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeMsg(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.log.Error().Err(err).Msg("login failed")
		writeMsg(w, http.StatusInternalServerError, "error interno del servidor")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreatePurchase inserts the purchase document and credits inventory in one
// transaction. Business failures report 500 with the store's message.
func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := h.svc.CreatePurchase(r.Context(), req)
	if err != nil {
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			writeMsg(w, http.StatusBadRequest, vErr.Msg)
			return
		}
		h.log.Error().Err(err).Msg("create-purchase failed")
		writeMsg(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "compraId": id})
}

// CreateSale performs the conditional stock decrement. Insufficient stock
// is a 500 whose msg names the product and both quantities.
func (h *Handler) CreateSale(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := h.svc.CreateSale(r.Context(), req)
	if err != nil {
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			writeMsg(w, http.StatusBadRequest, vErr.Msg)
			return
		}
		h.log.Error().Err(err).Msg("create-sale failed")
		writeMsg(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "ventaId": id})
}

func (h *Handler) RegisterPurchasePayment(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.svc.RegisterPurchasePayment(r.Context(), req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMsg(w, http.StatusBadRequest, fmt.Sprintf("Compra %d no encontrada.", req.PurchaseID))
			return
		}
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			writeMsg(w, http.StatusBadRequest, vErr.Msg)
			return
		}
		h.log.Error().Err(err).Int64("compra_id", req.PurchaseID).Msg("registrar-pago-compra failed")
		writeMsg(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Pago registrado. Estado de pago: %s.", result.EstadoPago),
	})
}

func (h *Handler) ReceivePurchaseStock(w http.ResponseWriter, r *http.Request) {
	var req domain.ReceiveStockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.ReceivePurchaseStock(r.Context(), req); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMsg(w, http.StatusBadRequest, fmt.Sprintf("Compra %d no encontrada.", req.PurchaseID))
			return
		}
		var stateErr *store.InvalidStateError
		if errors.As(err, &stateErr) {
			writeMsg(w, http.StatusBadRequest, stateErr.Msg)
			return
		}
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			writeMsg(w, http.StatusBadRequest, vErr.Msg)
			return
		}
		h.log.Error().Err(err).Int64("compra_id", req.PurchaseID).Msg("receive-purchase-stock failed")
		writeMsg(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Mercaderia recibida e inventario actualizado.",
	})
}

func (h *Handler) UpdateBranchPrices(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateBranchPricesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.UpdateBranchPrices(r.Context(), req); err != nil {
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			writeMsg(w, http.StatusBadRequest, vErr.Msg)
			return
		}
		h.log.Error().Err(err).Int64("producto_id", req.ProductID).Msg("update-branch-prices failed")
		writeMsg(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Precios actualizados correctamente.",
	})
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := parseOptionalInt(query.Get("limit"), 200)
	if err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := parseOptionalInt(query.Get("offset"), 0)
	if err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := h.svc.ListProducts(r.Context(), query.Get("search"), limit, offset)
	if err != nil {
		writeMsg(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	product, err := h.svc.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMsg(w, http.StatusNotFound, fmt.Sprintf("Producto %d no encontrado.", id))
			return
		}
		writeMsg(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var p domain.Product
	if err := decodeJSON(r, &p); err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.svc.CreateProduct(r.Context(), p)
	if err != nil {
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			writeMsg(w, http.StatusBadRequest, vErr.Msg)
			return
		}
		writeMsg(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	var p domain.Product
	if err := decodeJSON(r, &p); err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	p.ID = id
	updated, err := h.svc.UpdateProduct(r.Context(), p)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMsg(w, http.StatusNotFound, fmt.Sprintf("Producto %d no encontrado.", id))
			return
		}
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			writeMsg(w, http.StatusBadRequest, vErr.Msg)
			return
		}
		writeMsg(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) ListBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := h.svc.ListBranches(r.Context())
	if err != nil {
		writeMsg(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": branches, "count": len(branches)})
}

func (h *Handler) CreateBranch(w http.ResponseWriter, r *http.Request) {
	var b domain.Branch
	if err := decodeJSON(r, &b); err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.svc.CreateBranch(r.Context(), b)
	if err != nil {
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			writeMsg(w, http.StatusBadRequest, vErr.Msg)
			return
		}
		writeMsg(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) GetBranchInventory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	inventory, err := h.svc.GetBranchInventory(r.Context(), id)
	if err != nil {
		writeMsg(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": inventory, "count": len(inventory)})
}

func (h *Handler) GetBranchPrices(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	prices, err := h.svc.GetBranchPrices(r.Context(), id)
	if err != nil {
		writeMsg(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": prices, "count": len(prices)})
}

// ImportBranchPrices receives a multipart spreadsheet and applies it as one
// price-update transaction for the product in the URL.
func (h *Handler) ImportBranchPrices(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeMsg(w, http.StatusBadRequest, "archivo multipart invalido")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeMsg(w, http.StatusBadRequest, "se requiere el campo 'file'")
		return
	}
	defer file.Close()

	updated, err := h.svc.ImportBranchPrices(r.Context(), id, header.Filename, file)
	if err != nil {
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			writeMsg(w, http.StatusBadRequest, vErr.Msg)
			return
		}
		h.log.Error().Err(err).Int64("producto_id", id).Msg("import-branch-prices failed")
		writeMsg(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Precios importados para %d sucursales.", updated),
	})
}

func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePage(r)
	if err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	purchases, err := h.svc.ListPurchases(r.Context(), limit, offset)
	if err != nil {
		writeMsg(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": purchases, "count": len(purchases)})
}

func (h *Handler) GetPurchase(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	detail, err := h.svc.GetPurchase(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMsg(w, http.StatusNotFound, fmt.Sprintf("Compra %d no encontrada.", id))
			return
		}
		writeMsg(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePage(r)
	if err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	sales, err := h.svc.ListSales(r.Context(), limit, offset)
	if err != nil {
		writeMsg(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": sales, "count": len(sales)})
}

func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	detail, err := h.svc.GetSale(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMsg(w, http.StatusNotFound, fmt.Sprintf("Venta %d no encontrada.", id))
			return
		}
		writeMsg(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("cuerpo JSON invalido")
	}
	return nil
}

func parsePage(r *http.Request) (limit, offset int, err error) {
	limit, err = parseOptionalInt(r.URL.Query().Get("limit"), 200)
	if err != nil {
		return 0, 0, err
	}
	offset, err = parseOptionalInt(r.URL.Query().Get("offset"), 0)
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func parseOptionalInt(raw string, defaultValue int) (int, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("entero invalido: %s", raw)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("el valor no puede ser negativo")
	}
	return parsed, nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("id invalido")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMsg(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"msg": message})
}
