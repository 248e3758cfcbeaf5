package routes_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kokossimo/backend/internal/handlers"
	"github.com/kokossimo/backend/internal/models"
	"github.com/kokossimo/backend/internal/routes"
	"github.com/kokossimo/backend/internal/testutil"
)

type harness struct {
	app    *fiber.App
	db     *gorm.DB
	outbox *testutil.Outbox
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	outbox := &testutil.Outbox{}

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	routes.Register(app, db, routes.NewServices(db, routes.Options{
		JWTSecret: "test-secret",
		TokenTTL:  time.Hour,
		CodeTTL:   10 * time.Minute,
		Mailer:    outbox,
	}))
	return &harness{app: app, db: db, outbox: outbox}
}

func (h *harness) do(t *testing.T, method, target, token string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}

	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (h *harness) registerByCode(t *testing.T, email string) string {
	t.Helper()
	status, body := h.do(t, http.MethodPost, "/api/auth/email/send/", "", fiber.Map{
		"email": email, "purpose": models.PurposeRegister,
	})
	require.Equal(t, http.StatusOK, status, string(body))

	mail, ok := h.outbox.Last()
	require.True(t, ok)
	code := regexp.MustCompile(`\d{6}`).FindString(mail.Body)

	status, body = h.do(t, http.MethodPost, "/api/auth/email/verify/", "", fiber.Map{
		"email": email, "code": code, "purpose": models.PurposeRegister, "password": "secret123",
	})
	require.Equal(t, http.StatusOK, status, string(body))

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func checkout(items ...fiber.Map) fiber.Map {
	return fiber.Map{
		"full_name": "Анна Иванова",
		"phone":     "+79991234567",
		"city":      "Москва",
		"street":    "Тверская",
		"house":     "7",
		"items":     items,
	}
}

func TestCheckoutFlow(t *testing.T) {
	h := newHarness(t)
	product := testutil.CreateProduct(t, h.db, "250.00")
	token := h.registerByCode(t, "buyer@example.com")

	status, body := h.do(t, http.MethodPost, "/api/orders/", token, checkout(
		fiber.Map{"product_id": product.ID, "quantity": 2},
		fiber.Map{"gift_certificate_amount": "1000"},
	))
	require.Equal(t, http.StatusCreated, status, string(body))

	var created struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		TotalPrice string `json:"total_price"`
		Items      []struct {
			ProductName       string `json:"product_name"`
			IsGiftCertificate bool   `json:"is_gift_certificate"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, models.OrderStatusNew, created.Status)
	assert.Equal(t, "1500", created.TotalPrice)
	require.Len(t, created.Items, 2)
	assert.Equal(t, product.Name, created.Items[0].ProductName)
	assert.True(t, created.Items[1].IsGiftCertificate)

	status, body = h.do(t, http.MethodGet, "/api/orders/list/", token, nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var list []struct {
		ID         string `json:"id"`
		ItemsCount int    `json:"items_count"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
	assert.Equal(t, 2, list[0].ItemsCount)

	status, _ = h.do(t, http.MethodGet, "/api/orders/"+created.ID+"/", token, nil)
	assert.Equal(t, http.StatusOK, status)

	other := h.registerByCode(t, "other@example.com")
	status, _ = h.do(t, http.MethodGet, "/api/orders/"+created.ID+"/", other, nil)
	assert.Equal(t, http.StatusNotFound, status, "orders of other users are hidden")

	status, body = h.do(t, http.MethodGet, "/api/orders/list/", other, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))
}

func TestOrderHistoryIsComplete(t *testing.T) {
	h := newHarness(t)
	token := h.registerByCode(t, "loyal@example.com")

	const placed = 25
	for i := 0; i < placed; i++ {
		status, body := h.do(t, http.MethodPost, "/api/orders/", token, checkout(fiber.Map{"gift_certificate_amount": "500"}))
		require.Equal(t, http.StatusCreated, status, string(body))
	}

	list := func(target string) ([]map[string]any, string) {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("Authorization", "Token "+token)
		resp, err := h.app.Test(req, -1)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var rows []map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
		return rows, resp.Header.Get("X-Total-Count")
	}

	all, total := list("/api/orders/list/")
	assert.Len(t, all, placed)
	assert.Equal(t, "25", total)

	page, total := list("/api/orders/list/?page=2&limit=10")
	assert.Len(t, page, 10)
	assert.Equal(t, "25", total)
}

func TestCheckoutErrors(t *testing.T) {
	h := newHarness(t)
	token := h.registerByCode(t, "buyer@example.com")

	status, _ := h.do(t, http.MethodPost, "/api/orders/", "", checkout(fiber.Map{"gift_certificate_amount": "100"}))
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := h.do(t, http.MethodPost, "/api/orders/", token, checkout(fiber.Map{"quantity": 1}))
	assert.Equal(t, http.StatusBadRequest, status)
	var validation struct {
		Detail string            `json:"detail"`
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(body, &validation))
	assert.Contains(t, validation.Errors, "items[0]")

	status, body = h.do(t, http.MethodPost, "/api/orders/", token,
		checkout(fiber.Map{"product_id": "00000000-0000-0000-0000-000000000001"}))
	assert.Equal(t, http.StatusBadRequest, status, string(body))

	status, body = h.do(t, http.MethodPost, "/api/orders/", token, checkout(
		fiber.Map{"gift_certificate_amount": "99999999"},
		fiber.Map{"gift_certificate_amount": "99999999"},
	))
	assert.Equal(t, http.StatusBadRequest, status, "oversized totals are a validation error")
	require.NoError(t, json.Unmarshal(body, &validation))
	assert.Contains(t, validation.Errors, "items")

	var count int64
	require.NoError(t, h.db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestAuthEndpoints(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(t, http.MethodPost, "/api/auth/register/", "", fiber.Map{
		"identifier": "pass@example.com", "password": "secret123", "first_name": "Пётр",
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, _ = h.do(t, http.MethodPost, "/api/auth/register/", "", fiber.Map{
		"identifier": "PASS@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusConflict, status)

	status, body = h.do(t, http.MethodPost, "/api/auth/login/", "", fiber.Map{
		"identifier": "pass@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, status)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(body, &login))

	status, body = h.do(t, http.MethodGet, "/api/auth/me/", login.Token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"first_name":"Пётр"`)

	status, body = h.do(t, http.MethodPatch, "/api/auth/profile/", login.Token, fiber.Map{"city": "Казань"})
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"city":"Казань"`)

	status, _ = h.do(t, http.MethodPost, "/api/auth/login/", "", fiber.Map{
		"identifier": "pass@example.com", "password": "wrong-one",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = h.do(t, http.MethodPost, "/api/auth/logout/", login.Token, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = h.do(t, http.MethodGet, "/api/auth/me/", login.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, status, "revoked token is rejected")

	status, _ = h.do(t, http.MethodGet, "/api/auth/me/", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestCatalogEndpoints(t *testing.T) {
	h := newHarness(t)
	product := testutil.CreateProduct(t, h.db, "99.90")

	status, body := h.do(t, http.MethodGet, "/api/products/?is_new=true", "", nil)
	require.Equal(t, http.StatusOK, status)
	var page struct {
		Success bool `json:"success"`
		Data    []struct {
			ID    string `json:"id"`
			Price string `json:"price"`
		} `json:"data"`
		Pagination map[string]any `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(body, &page))
	assert.True(t, page.Success)
	require.Len(t, page.Data, 1)
	assert.Equal(t, product.ID.String(), page.Data[0].ID)
	assert.Equal(t, "99.9", page.Data[0].Price)
	assert.EqualValues(t, 1, page.Pagination["total_items"])

	status, _ = h.do(t, http.MethodGet, "/api/products/"+product.ID.String()+"/", "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = h.do(t, http.MethodGet, "/api/products/not-a-uuid/", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = h.do(t, http.MethodGet, "/api/categories/", "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = h.do(t, http.MethodPost, "/api/products/"+product.ID.String()+"/rate/", "", fiber.Map{"rating": 5})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAdminRequiresStaff(t *testing.T) {
	h := newHarness(t)
	token := h.registerByCode(t, "staff@example.com")

	status, _ := h.do(t, http.MethodGet, "/api/admin/stats/", token, nil)
	assert.Equal(t, http.StatusForbidden, status)

	require.NoError(t, h.db.Model(&models.User{}).Where("email_normalized = ?", "staff@example.com").
		UpdateColumn("is_staff", true).Error)

	status, body := h.do(t, http.MethodGet, "/api/admin/stats/", token, nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var resp struct {
		Data struct {
			TotalUsers     int64            `json:"total_users"`
			TotalOrders    int64            `json:"total_orders"`
			OrdersByStatus map[string]int64 `json:"orders_by_status"`
			TotalRevenue   string           `json:"total_revenue"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	stats := resp.Data
	assert.EqualValues(t, 1, stats.TotalUsers)
	assert.Zero(t, stats.TotalOrders)
	assert.Contains(t, stats.OrdersByStatus, models.OrderStatusNew)
	assert.Equal(t, "0.00", stats.TotalRevenue)

	status, _ = h.do(t, http.MethodGet, "/api/admin/stats/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}
