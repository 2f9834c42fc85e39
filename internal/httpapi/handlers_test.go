package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"calzado/backend/internal/domain"
	"calzado/backend/internal/service"
	"calzado/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, 30, true)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, nil, time.Minute, "*")
}

// loginAs obtains a bearer token for the given seeded user.
func loginAs(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login %s failed: %d %s", username, rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

// doJSON performs an authenticated JSON request with a valid CSRF token.
func doJSON(t *testing.T, api *API, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("X-CSRF-Token", api.generateCSRFToken())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// mustHashPassword generates a bcrypt hash of the given password or fails the test.
func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	token := loginAs(t, handler, "admin", "admin123")
	if token == "" {
		t.Fatal("expected a non-empty access token")
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleLogin_RateLimit(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	// The loginLimiter allows 5 attempts per minute.
	// Fire 6 requests from the same "IP" (httptest uses RemoteAddr "192.0.2.1:1234").
	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "badpass",
	})

	var lastCode int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after 6 attempts, got %d", lastCode)
	}
}

func TestHandleVariants_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/variantes", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleVariants_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "admin", "admin123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/variantes", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["variantes"] == nil {
		t.Fatalf("expected variantes key in response, got %v", body)
	}
}

func TestHandleCheckIn_SellerForbidden(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "vendedor", "vendedor123")

	rec := doJSON(t, api, handler, http.MethodPost, "/api/v1/inventario/ingresar", token, map[string]any{
		"id_producto":    1,
		"id_ubicacion":   1,
		"tipo_stock":     "general",
		"cantidad_pares": 5,
	})

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for seller check-in, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleSaleRegister_Paid(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "vendedor", "vendedor123")

	rec := doJSON(t, api, handler, http.MethodPost, "/api/v1/ventas/registrar", token, map[string]any{
		"cliente": "Cliente Mostrador",
		"productos": []map[string]any{
			{"id_inventario": 1, "id_producto": 1, "cantidad_pares": 12, "precio_unitario": "65.00"},
		},
		"estado_pago": "pagado",
		"metodo_pago": "efectivo",
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var resp domain.SaleRegisterResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(resp.SaleCode, "V") || strings.HasPrefix(resp.SaleCode, "VD") {
		t.Fatalf("expected a V-prefixed sale code, got %q", resp.SaleCode)
	}
	if resp.Total.StringFixed(2) != "780.00" {
		t.Fatalf("expected total 780.00, got %s", resp.Total)
	}
	if resp.AccountCode != "" {
		t.Fatalf("paid sale must not open an account, got %q", resp.AccountCode)
	}
}

func TestHandleSaleRegister_InsufficientStock(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "vendedor", "vendedor123")

	// Seeded inventory 1 holds 60 pairs.
	rec := doJSON(t, api, handler, http.MethodPost, "/api/v1/ventas/registrar", token, map[string]any{
		"cliente": "Cliente Mostrador",
		"productos": []map[string]any{
			{"id_inventario": 1, "id_producto": 1, "cantidad_pares": 500, "precio_unitario": "65.00"},
		},
		"estado_pago": "pagado",
		"metodo_pago": "efectivo",
	})

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleSaleRegister_CreditOpensAccount(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "vendedor", "vendedor123")

	customerID := int64(1)
	rec := doJSON(t, api, handler, http.MethodPost, "/api/v1/ventas/registrar", token, map[string]any{
		"cliente":    "Comercial Pacheco",
		"id_cliente": customerID,
		"productos": []map[string]any{
			{"id_inventario": 2, "id_producto": 2, "cantidad_pares": 12, "precio_unitario": "72.00"},
		},
		"estado_pago":  "credito",
		"pago_inicial": "100.00",
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var resp domain.SaleRegisterResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(resp.AccountCode, "CXC") {
		t.Fatalf("expected a CXC account code, got %q", resp.AccountCode)
	}
}

func TestHandleDailySummary(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "vendedor", "vendedor123")

	rec := doJSON(t, api, handler, http.MethodPost, "/api/v1/ventas/registrar", token, map[string]any{
		"cliente": "Cliente Mostrador",
		"productos": []map[string]any{
			{"id_inventario": 3, "id_producto": 3, "cantidad_pares": 6, "precio_unitario": "45.00"},
		},
		"estado_pago": "pagado",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("sale registration failed: %d %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reportes/resumen-diario", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	reportRec := httptest.NewRecorder()
	handler.ServeHTTP(reportRec, req)

	if reportRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", reportRec.Code, reportRec.Body.String())
	}

	var summary domain.DailySummary
	if err := json.NewDecoder(reportRec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Sales != 1 {
		t.Fatalf("expected 1 sale in summary, got %d", summary.Sales)
	}
	if summary.Net.StringFixed(2) != "270.00" {
		t.Fatalf("expected net 270.00, got %s", summary.Net)
	}
}

func TestHandleAuditLogs_AdminOnly(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	sellerToken := loginAs(t, handler, "vendedor", "vendedor123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit-logs", nil)
	req.Header.Set("Authorization", "Bearer "+sellerToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for seller, got %d", rec.Code)
	}

	adminToken := loginAs(t, handler, "admin", "admin123")
	req = httptest.NewRequest(http.MethodGet, "/api/v1/audit-logs", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

// TestMustHashPassword verifies that the test helper produces valid bcrypt hashes
// (used to confirm test infrastructure is sound).
func TestMustHashPassword(t *testing.T) {
	hash := mustHashPassword(t, "secret")
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")); err != nil {
		t.Fatalf("hash verification failed: %v", err)
	}
}
