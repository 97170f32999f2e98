package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servivent/backend/internal/auth"
	"servivent/backend/internal/cache"
	"servivent/backend/internal/service"
	"servivent/backend/internal/store/memory"
)

type testAPI struct {
	router http.Handler
	store  *memory.Store
	token  string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	st := memory.NewSeeded()
	svc := service.New(st, cache.NoopPriceCache{}, zerolog.Nop())
	authManager := auth.NewManager("test-secret", time.Hour, st)
	handler := NewHandler(svc, authManager, zerolog.Nop())
	router := NewRouter(handler, authManager, zerolog.Nop(), 30*time.Second)

	login, err := authManager.Login(context.Background(), "admin@servivent.bo", "admin123")
	require.NoError(t, err)

	return &testAPI{router: router, store: st, token: login.AccessToken}
}

func (api *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if raw, ok := body.([]byte); ok {
		reader = bytes.NewReader(raw)
	} else if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if api.token != "" {
		req.Header.Set("Authorization", "Bearer "+api.token)
	}
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)
	api.token = ""
	rec := api.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t)
	api.token = ""
	rec := api.do(t, http.MethodPost, "/api/v1/create-sale", map[string]any{})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	api.token = "no-es-un-jwt"
	rec = api.do(t, http.MethodPost, "/api/v1/create-sale", map[string]any{})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin(t *testing.T) {
	api := newTestAPI(t)
	api.token = ""

	rec := api.do(t, http.MethodPost, "/api/v1/login", map[string]any{
		"correo": "admin@servivent.bo", "password": "admin123",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["accessToken"])

	rec = api.do(t, http.MethodPost, "/api/v1/login", map[string]any{
		"correo": "admin@servivent.bo", "password": "incorrecta",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/login", map[string]any{
		"correo": "nadie@servivent.bo", "password": "lo-que-sea",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code,
		"usuario desconocido y password incorrecta responden igual")
}

func TestCORSPreflight(t *testing.T) {
	api := newTestAPI(t)
	api.token = ""
	rec := api.do(t, http.MethodOptions, "/api/v1/create-sale", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func saleBody(productID int64, qty int) map[string]any {
	return map[string]any{
		"id_sucursal": 2,
		"id_usuario":  1,
		"monto_total": float64(qty) * 10.0,
		"metodo_pago": "Efectivo",
		"items": []map[string]any{
			{"id_producto": productID, "cantidad": qty, "precio_unitario": 10.0},
		},
	}
}

func TestCreateSaleEndpointScenario(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	// Inventario sembrado: producto 1, sucursal 2, 5 unidades.
	rec := api.do(t, http.MethodPost, "/api/v1/create-sale", saleBody(1, 3))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.NotZero(t, body["ventaId"])

	pos, err := api.store.GetInventoryPosition(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, pos.Cantidad)

	// La misma venta ya no cabe: 500 con el mensaje del contrato.
	rec = api.do(t, http.MethodPost, "/api/v1/create-sale", saleBody(1, 3))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t,
		`Stock insuficiente para "Teclado Mecanico". Disponible: 2, Solicitado: 3.`,
		decodeBody(t, rec)["msg"])

	pos, err = api.store.GetInventoryPosition(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, pos.Cantidad, "el inventario no cambia en la venta fallida")
}

func TestCreateSaleMalformedBody(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/api/v1/create-sale", []byte(`{"id_sucursal": `))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, decodeBody(t, rec)["msg"])
}

func TestPurchaseLifecycleEndpoints(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/create-purchase", map[string]any{
		"id_proveedor": 1,
		"id_sucursal":  1,
		"monto_total":  500.0,
		"items": []map[string]any{
			{"id_producto": 3, "cantidad": 10, "costo_unitario": 10.0},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	compraID := int64(body["compraId"].(float64))
	require.Positive(t, compraID)

	rec = api.do(t, http.MethodPost, "/api/v1/receive-purchase-stock", map[string]any{
		"purchase_id": compraID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// La segunda recepcion es un error de negocio: 400 con el estado actual.
	rec = api.do(t, http.MethodPost, "/api/v1/receive-purchase-stock", map[string]any{
		"purchase_id": compraID,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t,
		fmt.Sprintf("La compra %d ya fue procesada (estado actual: Recibida).", compraID),
		decodeBody(t, rec)["msg"])

	rec = api.do(t, http.MethodPost, "/api/v1/registrar-pago-compra", map[string]any{
		"purchaseId":  compraID,
		"amount":      40.0,
		"paymentDate": "2026-08-20",
		"method":      "Efectivo",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, decodeBody(t, rec)["message"], "Parcialmente Pagado")

	rec = api.do(t, http.MethodPost, "/api/v1/registrar-pago-compra", map[string]any{
		"purchaseId":  int64(424242),
		"amount":      40.0,
		"paymentDate": "2026-08-20",
		"method":      "Efectivo",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Compra 424242 no encontrada.", decodeBody(t, rec)["msg"])

	rec = api.do(t, http.MethodGet, fmt.Sprintf("/api/v1/purchases/%d", compraID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateBranchPricesEndpoint(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/update-branch-prices", map[string]any{
		"productId": 1,
		"recordsToUpsert": []map[string]any{
			{"id_sucursal": 1, "precio_venta": 350.0},
			{"id_sucursal": 2, "precio_venta": 365.0},
		},
		"branchIdsToDelete": []int64{},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/api/v1/products/1/branch-prices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decodeBody(t, rec)["count"])

	// Solicitud vacia: nada que aplicar.
	rec = api.do(t, http.MethodPost, "/api/v1/update-branch-prices", map[string]any{
		"productId": 1,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotFoundReads(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/v1/products/999", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Producto 999 no encontrado.", decodeBody(t, rec)["msg"])

	rec = api.do(t, http.MethodGet, "/api/v1/sales/999", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
