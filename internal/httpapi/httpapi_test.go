package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/safar/shop-orders/internal/auth"
	"github.com/safar/shop-orders/internal/catalog"
	"github.com/safar/shop-orders/internal/database"
	"github.com/safar/shop-orders/internal/fulfillment"
	"github.com/safar/shop-orders/internal/models"
	"github.com/safar/shop-orders/internal/store"
	"github.com/safar/shop-orders/internal/store/memstore"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type testServer struct {
	app   *fiber.App
	auth  *auth.Service
	logs  *observer.ObservedLogs
	creds map[models.Role][2]string
}

func newTestServer(t *testing.T, repo store.Repository, authEnabled bool) *testServer {
	t.Helper()

	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	authSvc := auth.NewService(repo, logger)
	app := New(Deps{
		Orders:      fulfillment.NewService(repo, nil, logger, nil),
		Catalog:     catalog.NewService(repo, nil, logger, nil),
		Auth:        authSvc,
		Logger:      logger,
		AuthEnabled: authEnabled,
	})

	return &testServer{app: app, auth: authSvc, logs: logs, creds: map[models.Role][2]string{}}
}

func (s *testServer) addUser(t *testing.T, role models.Role) {
	t.Helper()
	username := strings.ToLower(string(role))
	password := username + "-secret"
	if _, err := s.auth.CreateUser(context.Background(), username, password, role); err != nil {
		t.Fatalf("create %s user: %v", role, err)
	}
	s.creds[role] = [2]string{username, password}
}

type response struct {
	status int
	header http.Header
	body   map[string]interface{}
	raw    string
}

func (s *testServer) do(t *testing.T, role models.Role, method, path, body string) response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if cred, ok := s.creds[role]; ok {
		req.Header.Set(fiber.HeaderAuthorization, basic(cred[0], cred[1]))
	}

	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	out := response{status: resp.StatusCode, header: resp.Header, raw: string(raw)}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out.body); err != nil {
			t.Fatalf("%s %s: decode body %q: %v", method, path, raw, err)
		}
	}
	return out
}

func basic(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

func expectStatus(t *testing.T, got response, want int) {
	t.Helper()
	if got.status != want {
		t.Fatalf("expected status %d, got %d: %s", want, got.status, got.raw)
	}
}

func (r response) id(t *testing.T) int64 {
	t.Helper()
	id, ok := r.body["id"].(float64)
	if !ok {
		t.Fatalf("response has no id: %s", r.raw)
	}
	return int64(id)
}

func (r response) link(rel string) (string, bool) {
	links, _ := r.body["_links"].(map[string]interface{})
	l, ok := links[rel].(map[string]interface{})
	if !ok {
		return "", false
	}
	href, _ := l["href"].(string)
	return href, true
}

func (s *testServer) addProduct(t *testing.T, role models.Role, name string, stock int) int64 {
	t.Helper()
	resp := s.do(t, role, "POST", "/products", fmt.Sprintf(`{"name":%q,"price":"2.50","stock":%d}`, name, stock))
	expectStatus(t, resp, fiber.StatusCreated)
	return resp.id(t)
}

func (s *testServer) stockOf(t *testing.T, role models.Role, productID int64) int {
	t.Helper()
	resp := s.do(t, role, "GET", fmt.Sprintf("/products/%d", productID), "")
	expectStatus(t, resp, fiber.StatusOK)
	return int(resp.body["stock"].(float64))
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, memstore.New(), false)
	productID := srv.addProduct(t, "", "Milk", 5)

	placed := srv.do(t, "", "POST", "/orders", fmt.Sprintf(`{"product_id":%d,"quantity":2}`, productID))
	expectStatus(t, placed, fiber.StatusCreated)
	orderID := placed.id(t)

	if loc := placed.header.Get(fiber.HeaderLocation); !strings.HasSuffix(loc, fmt.Sprintf("/orders/%d", orderID)) {
		t.Errorf("unexpected Location %q", loc)
	}
	if placed.body["status"] != string(models.OrderStatusInProgress) {
		t.Errorf("expected IN_PROGRESS, got %v", placed.body["status"])
	}
	for _, rel := range []string{"self", "orders", "product", "complete", "cancel"} {
		if _, ok := placed.link(rel); !ok {
			t.Errorf("placed order is missing the %q link", rel)
		}
	}
	if got := srv.stockOf(t, "", productID); got != 3 {
		t.Errorf("expected stock 3 after placing, got %d", got)
	}

	completed := srv.do(t, "", "PUT", fmt.Sprintf("/orders/%d/complete", orderID), "")
	expectStatus(t, completed, fiber.StatusCreated)
	if completed.body["status"] != string(models.OrderStatusCompleted) {
		t.Errorf("expected COMPLETED, got %v", completed.body["status"])
	}
	if _, ok := completed.link("complete"); ok {
		t.Error("completed order should not offer the complete link")
	}

	path := fmt.Sprintf("/orders/%d/cancel", orderID)
	rejected := srv.do(t, "", "DELETE", path, "")
	expectStatus(t, rejected, fiber.StatusNotAcceptable)
	if msg, _ := rejected.body["message"].(string); !strings.Contains(msg, "must have status 'IN_PROGRESS'") {
		t.Errorf("unexpected rejection message %q", msg)
	}
	if rejected.body["details"] != "uri="+path {
		t.Errorf("unexpected details %v", rejected.body["details"])
	}
	if _, ok := rejected.body["timestamp"]; !ok {
		t.Error("error body has no timestamp")
	}
	if got := srv.stockOf(t, "", productID); got != 3 {
		t.Errorf("completed order must keep its units, stock is %d", got)
	}

	expectStatus(t, srv.do(t, "", "DELETE", fmt.Sprintf("/orders/%d", orderID), ""), fiber.StatusNoContent)
	expectStatus(t, srv.do(t, "", "GET", fmt.Sprintf("/orders/%d", orderID), ""), fiber.StatusNotFound)
}

func TestCancelRestoresStockOverHTTP(t *testing.T) {
	srv := newTestServer(t, memstore.New(), false)
	productID := srv.addProduct(t, "", "Bread", 6)

	placed := srv.do(t, "", "POST", "/orders", fmt.Sprintf(`{"product_id":%d,"quantity":4}`, productID))
	expectStatus(t, placed, fiber.StatusCreated)

	cancelled := srv.do(t, "", "PUT", fmt.Sprintf("/orders/%d/cancel", placed.id(t)), "")
	expectStatus(t, cancelled, fiber.StatusCreated)
	if cancelled.body["status"] != string(models.OrderStatusCancelled) {
		t.Errorf("expected CANCELLED, got %v", cancelled.body["status"])
	}
	if got := srv.stockOf(t, "", productID); got != 6 {
		t.Errorf("expected stock 6 after cancelling, got %d", got)
	}
}

func TestPlaceOrderRejections(t *testing.T) {
	srv := newTestServer(t, memstore.New(), false)
	productID := srv.addProduct(t, "", "Milk", 1)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"insufficient stock", fmt.Sprintf(`{"product_id":%d,"quantity":2}`, productID), fiber.StatusNotAcceptable},
		{"unknown product", `{"product_id":999,"quantity":1}`, fiber.StatusNotFound},
		{"zero quantity", fmt.Sprintf(`{"product_id":%d,"quantity":0}`, productID), fiber.StatusBadRequest},
		{"malformed body", `{"product_id":`, fiber.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, srv.do(t, "", "POST", "/orders", tt.body), tt.status)
		})
	}

	if got := srv.stockOf(t, "", productID); got != 1 {
		t.Errorf("rejected orders must not touch stock, got %d", got)
	}

	list := srv.do(t, "", "GET", "/orders", "")
	expectStatus(t, list, fiber.StatusOK)
	embedded := list.body["_embedded"].(map[string]interface{})
	if orders := embedded["orders"].([]interface{}); len(orders) != 0 {
		t.Errorf("expected no orders, got %d", len(orders))
	}
}

func TestInvalidIDs(t *testing.T) {
	srv := newTestServer(t, memstore.New(), false)

	for _, path := range []string{"/orders/abc", "/orders/0", "/products/-3"} {
		resp := srv.do(t, "", "GET", path, "")
		expectStatus(t, resp, fiber.StatusBadRequest)
	}
	expectStatus(t, srv.do(t, "", "PUT", "/orders/77/complete", ""), fiber.StatusNotFound)
}

func TestListOrdersPaging(t *testing.T) {
	srv := newTestServer(t, memstore.New(), false)
	productID := srv.addProduct(t, "", "Milk", 10)
	for i := 0; i < 3; i++ {
		expectStatus(t, srv.do(t, "", "POST", "/orders", fmt.Sprintf(`{"product_id":%d,"quantity":1}`, productID)), fiber.StatusCreated)
	}

	resp := srv.do(t, "", "GET", "/orders?size=2&page=1", "")
	expectStatus(t, resp, fiber.StatusOK)

	orders := resp.body["_embedded"].(map[string]interface{})["orders"].([]interface{})
	if len(orders) != 1 {
		t.Fatalf("expected 1 order on the second page, got %d", len(orders))
	}
	page := resp.body["page"].(map[string]interface{})
	if page["total_elements"].(float64) != 3 || page["total_pages"].(float64) != 2 || page["number"].(float64) != 1 {
		t.Errorf("unexpected page info %v", page)
	}

	all := srv.do(t, "", "GET", "/orders", "")
	if _, ok := all.body["page"]; ok {
		t.Error("unpaged listing should not carry page info")
	}

	expectStatus(t, srv.do(t, "", "GET", "/orders?size=0", ""), fiber.StatusBadRequest)
}

func TestProductUpdatesOverHTTP(t *testing.T) {
	srv := newTestServer(t, memstore.New(), false)
	productID := srv.addProduct(t, "", "Milk", 5)
	base := fmt.Sprintf("/products/%d", productID)

	stock := srv.do(t, "", "PUT", base+"/stock?newStock=9", "")
	expectStatus(t, stock, fiber.StatusCreated)
	if stock.body["stock"].(float64) != 9 {
		t.Errorf("expected stock 9, got %v", stock.body["stock"])
	}

	price := srv.do(t, "", "PUT", base+"/price?newPrice=3.75", "")
	expectStatus(t, price, fiber.StatusCreated)
	got, err := decimal.NewFromString(fmt.Sprint(price.body["price"]))
	if err != nil || !got.Equal(decimal.RequireFromString("3.75")) {
		t.Errorf("expected price 3.75, got %v", price.body["price"])
	}

	name := srv.do(t, "", "PUT", base+"/name?newName=Oat%20Milk", "")
	expectStatus(t, name, fiber.StatusCreated)
	if name.body["name"] != "Oat Milk" {
		t.Errorf("expected renamed product, got %v", name.body["name"])
	}

	expectStatus(t, srv.do(t, "", "PUT", base+"/stock?newStock=lots", ""), fiber.StatusBadRequest)
	expectStatus(t, srv.do(t, "", "PUT", base+"/price?newPrice=free", ""), fiber.StatusBadRequest)
	expectStatus(t, srv.do(t, "", "PUT", base+"/stock?newStock=-1", ""), fiber.StatusBadRequest)
	expectStatus(t, srv.do(t, "", "PUT", base, `{"stock":1,"version":0}`), fiber.StatusConflict)

	expectStatus(t, srv.do(t, "", "DELETE", base, ""), fiber.StatusNoContent)
	expectStatus(t, srv.do(t, "", "GET", base, ""), fiber.StatusNotFound)
}

func TestAuthentication(t *testing.T) {
	srv := newTestServer(t, memstore.New(), true)
	srv.addUser(t, models.RoleAdmin)
	srv.addUser(t, models.RoleWrite)
	srv.addUser(t, models.RoleRead)

	anonymous := srv.do(t, "", "GET", "/orders", "")
	expectStatus(t, anonymous, fiber.StatusUnauthorized)
	if anonymous.header.Get(fiber.HeaderWWWAuthenticate) == "" {
		t.Error("401 without a WWW-Authenticate challenge")
	}

	req := httptest.NewRequest("GET", "/orders", nil)
	req.Header.Set(fiber.HeaderAuthorization, basic("read", "wrong-password"))
	resp, err := srv.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("expected 401 for a wrong password, got %d", resp.StatusCode)
	}
	if n := srv.logs.FilterMessage("Authentication failed").Len(); n != 1 {
		t.Errorf("expected one failed authentication log, got %d", n)
	}

	expectStatus(t, srv.do(t, models.RoleRead, "GET", "/orders", ""), fiber.StatusOK)
	expectStatus(t, srv.do(t, models.RoleRead, "POST", "/products", `{"name":"Milk","price":"1","stock":1}`), fiber.StatusForbidden)

	productID := srv.addProduct(t, models.RoleWrite, "Milk", 2)
	expectStatus(t, srv.do(t, models.RoleWrite, "DELETE", fmt.Sprintf("/products/%d", productID), ""), fiber.StatusForbidden)
	expectStatus(t, srv.do(t, models.RoleAdmin, "DELETE", fmt.Sprintf("/products/%d", productID), ""), fiber.StatusNoContent)

	expectStatus(t, srv.do(t, models.RoleWrite, "POST", "/users", `{"username":"eve","password":"password1","role":"ADMIN"}`), fiber.StatusForbidden)
	created := srv.do(t, models.RoleAdmin, "POST", "/users", `{"username":"carol","password":"password1","role":"read"}`)
	expectStatus(t, created, fiber.StatusCreated)
	if created.body["role"] != string(models.RoleRead) {
		t.Errorf("expected READ role, got %v", created.body["role"])
	}
	if _, leaked := created.body["password_hash"]; leaked {
		t.Error("password hash leaked in response")
	}
	expectStatus(t, srv.do(t, models.RoleAdmin, "POST", "/users", `{"username":"carol","password":"password1","role":"READ"}`), fiber.StatusConflict)
	expectStatus(t, srv.do(t, models.RoleAdmin, "POST", "/users", `{"username":"dave","password":"password1","role":"OWNER"}`), fiber.StatusBadRequest)

	expectStatus(t, srv.do(t, "", "GET", "/healthz", ""), fiber.StatusOK)
}

type brokenRepo struct {
	store.Repository
}

func (brokenRepo) ListOrders(context.Context) ([]models.Order, error) {
	return nil, errors.New("dial tcp 10.0.0.7:5432: connection refused")
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	srv := newTestServer(t, brokenRepo{Repository: memstore.New()}, false)

	resp := srv.do(t, "", "GET", "/orders", "")
	expectStatus(t, resp, fiber.StatusInternalServerError)
	if resp.body["message"] != genericErrorMessage {
		t.Errorf("unexpected message %v", resp.body["message"])
	}
	if strings.Contains(resp.raw, "10.0.0.7") {
		t.Errorf("internal details leaked: %s", resp.raw)
	}

	failures := srv.logs.FilterMessage("Request failed").All()
	if len(failures) != 1 {
		t.Fatalf("expected one failure log, got %d", len(failures))
	}
	if failures[0].ContextMap()["request_id"] == "" {
		t.Error("failure log has no request id")
	}
	if srv.logs.FilterMessage("Request handled").Len() != 1 {
		t.Error("expected an access log line")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("could not find order 1: %w", database.ErrOrderNotFound), fiber.StatusNotFound},
		{fmt.Errorf("could not find product 1: %w", database.ErrProductNotFound), fiber.StatusNotFound},
		{fmt.Errorf("stock: %w", database.ErrInsufficientStock), fiber.StatusNotAcceptable},
		{fmt.Errorf("status: %w", database.ErrOrderNotInProgress), fiber.StatusNotAcceptable},
		{database.ErrInvalidQuantity, fiber.StatusBadRequest},
		{database.ErrOptimisticLockFailed, fiber.StatusConflict},
		{database.ErrInvalidCredentials, fiber.StatusUnauthorized},
		{fiber.ErrUnprocessableEntity, fiber.StatusUnprocessableEntity},
		{errors.New("boom"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestParseBasicAuth(t *testing.T) {
	tests := []struct {
		header   string
		user     string
		password string
		ok       bool
	}{
		{basic("alice", "pa:ss"), "alice", "pa:ss", true},
		{"basic " + base64.StdEncoding.EncodeToString([]byte("bob:x")), "bob", "x", true},
		{"Bearer token", "", "", false},
		{"Basic !!!", "", "", false},
		{"Basic " + base64.StdEncoding.EncodeToString([]byte("nocolon")), "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		user, password, ok := parseBasicAuth(tt.header)
		if ok != tt.ok || (ok && (user != tt.user || password != tt.password)) {
			t.Errorf("parseBasicAuth(%q) = %q, %q, %v", tt.header, user, password, ok)
		}
	}
}
