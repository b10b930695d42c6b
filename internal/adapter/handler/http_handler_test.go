package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/pantry/internal/core/service"
)

var fixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type memoryGuard struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (g *memoryGuard) SetIdempotency(ctx context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys == nil {
		g.keys = make(map[string]bool)
	}
	if g.keys[key] {
		return false, nil
	}
	g.keys[key] = true
	return true, nil
}

func (g *memoryGuard) ClearIdempotency(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
	return nil
}

func newTestServer(t *testing.T) (*service.Pantry, http.Handler) {
	t.Helper()
	pantry := service.NewPantry(nil, service.WithIdempotencyGuard(&memoryGuard{}))
	h := NewHTTPHandler(pantry, nil)
	h.now = func() time.Time { return fixedNow }
	return pantry, h.Routes()
}

func doJSON(t *testing.T, srv http.Handler, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func addProduct(t *testing.T, srv http.Handler, name, productType, date string) ProductView {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/products", AddProductHTTPRequest{
		Name: name, Type: productType, ExpirationDate: date,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var view ProductView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	return view
}

func TestHealthCheck(t *testing.T) {
	_, srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAddAndListProducts(t *testing.T) {
	_, srv := newTestServer(t)

	first := addProduct(t, srv, "Egg", "egg", "2099-01-01")
	second := addProduct(t, srv, "Egg", "Egg", "2099-01-02")
	assert.Equal(t, "Egg", first.Name)
	assert.Equal(t, "Egg(2)", second.Name)
	assert.Equal(t, 2, second.Quantity)
	assert.NotEqual(t, first.Handle, second.Handle)

	rec := doJSON(t, srv, http.MethodGet, "/products", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var views []ProductView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)
	for _, v := range views {
		assert.Equal(t, 2, v.Quantity)
		assert.Equal(t, "egg", v.Type)
	}
	assert.Equal(t, "2099-01-01", views[0].ExpirationDate)
}

func TestAddProduct_Validation(t *testing.T) {
	_, srv := newTestServer(t)

	tests := []struct {
		name string
		body any
	}{
		{"missing name", AddProductHTTPRequest{Type: "egg", ExpirationDate: "2099-01-01"}},
		{"missing type", AddProductHTTPRequest{Name: "Egg", ExpirationDate: "2099-01-01"}},
		{"bad date", AddProductHTTPRequest{Name: "Egg", Type: "egg", ExpirationDate: "01/01/2099"}},
		{"blank type after trim", AddProductHTTPRequest{Name: "Egg", Type: "   ", ExpirationDate: "2099-01-01"}},
		{"not json", "just a string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, "/products", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestGetAndRemoveProduct(t *testing.T) {
	_, srv := newTestServer(t)
	p := addProduct(t, srv, "Milk", "milk", "2099-01-01")

	rec := doJSON(t, srv, http.MethodGet, "/products/"+p.Handle, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodDelete, "/products/"+p.Handle, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodDelete, "/products/"+p.Handle, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/products/"+p.Handle, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRemoveProductsByTypeAndAll(t *testing.T) {
	pantry, srv := newTestServer(t)
	for i := 0; i < 3; i++ {
		addProduct(t, srv, "Apple", "apple", "2099-01-01")
	}
	addProduct(t, srv, "Bread", "bread", "2099-01-01")

	rec := doJSON(t, srv, http.MethodDelete, "/products?type=Apple", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":3}`, rec.Body.String())
	assert.Equal(t, 1, pantry.Inventory().Len())

	rec = doJSON(t, srv, http.MethodDelete, "/products", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":1}`, rec.Body.String())
	assert.Equal(t, 0, pantry.Inventory().Len())
}

func TestRemoveProducts_BlankTypeRejected(t *testing.T) {
	pantry, srv := newTestServer(t)
	addProduct(t, srv, "Apple", "apple", "2099-01-01")
	addProduct(t, srv, "Bread", "bread", "2099-01-01")

	for _, path := range []string{"/products?type=", "/products?type=%20%20"} {
		rec := doJSON(t, srv, http.MethodDelete, path, nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
	assert.Equal(t, 2, pantry.Inventory().Len())
}

func TestExpiredAndExpiring(t *testing.T) {
	_, srv := newTestServer(t)
	addProduct(t, srv, "Yogurt", "yogurt", "2026-03-09")
	addProduct(t, srv, "Cheese", "cheese", "2026-03-10")
	addProduct(t, srv, "Milk", "milk", "2026-03-12")
	addProduct(t, srv, "Rice", "rice", "2027-01-01")

	var expired []ProductView
	rec := doJSON(t, srv, http.MethodGet, "/products/expired", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &expired))
	require.Len(t, expired, 2)
	assert.Equal(t, "cheese", expired[0].Type)
	assert.Equal(t, "yogurt", expired[1].Type)
	assert.True(t, expired[0].Expired)

	var expiring []ProductView
	rec = doJSON(t, srv, http.MethodGet, "/products/expiring", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &expiring))
	require.Len(t, expiring, 1)
	assert.Equal(t, "milk", expiring[0].Type)
	assert.True(t, expiring[0].ExpiringSoon)
	assert.False(t, expiring[0].Expired)
}

func TestRecipeLifecycle(t *testing.T) {
	_, srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/recipes", CreateRecipeHTTPRequest{
		Name: "Omelette", Ingredients: map[string]int{"Egg": 2}, Instructions: "whisk and fry",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created RecipeView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.False(t, created.CanMake)
	assert.Equal(t, map[string]int{"egg": 2}, created.Ingredients)
	require.Len(t, created.Shortages, 1)
	assert.Equal(t, 0, created.Shortages[0].Available)

	rec = doJSON(t, srv, http.MethodPost, "/recipes", CreateRecipeHTTPRequest{
		Name: "OMELETTE", Ingredients: map[string]int{"egg": 1},
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/recipes", CreateRecipeHTTPRequest{Name: "Air"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/recipes", CreateRecipeHTTPRequest{
		Name: "Negative", Ingredients: map[string]int{"egg": -1},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/recipes/omelette", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/recipes", nil, nil)
	var list []RecipeView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = doJSON(t, srv, http.MethodDelete, "/recipes/Omelette", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/recipes/omelette", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteAllRecipes(t *testing.T) {
	pantry, srv := newTestServer(t)
	_, err := pantry.CreateRecipe("toast", map[string]int{"bread": 1}, "")
	require.NoError(t, err)
	_, err = pantry.CreateRecipe("salad", map[string]int{"lettuce": 1}, "")
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodDelete, "/recipes", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":2}`, rec.Body.String())
}

func TestMakeRecipe(t *testing.T) {
	pantry, srv := newTestServer(t)
	for i := 0; i < 3; i++ {
		addProduct(t, srv, "Egg", "egg", fmt.Sprintf("2099-01-%02d", i+1))
	}
	addProduct(t, srv, "Milk", "milk", "2099-01-01")
	_, err := pantry.CreateRecipe("omelette", map[string]int{"egg": 2}, "whisk")
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, "/recipes/omelette/make", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var made MakeRecipeHTTPResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &made))
	require.Len(t, made.Removed, 2)
	assert.Equal(t, "2099-01-01", made.Removed[0].ExpirationDate)
	assert.Equal(t, "2099-01-02", made.Removed[1].ExpirationDate)
	assert.Equal(t, 1, pantry.Inventory().CountByType("egg"))

	rec = doJSON(t, srv, http.MethodPost, "/recipes/omelette/make", nil, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var failure ErrorHTTPResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &failure))
	require.Len(t, failure.Shortages, 1)
	assert.Equal(t, "egg", failure.Shortages[0].Type)
	assert.Equal(t, 2, failure.Shortages[0].Required)
	assert.Equal(t, 1, failure.Shortages[0].Available)
	assert.Equal(t, 1, pantry.Inventory().CountByType("egg"))

	rec = doJSON(t, srv, http.MethodPost, "/recipes/pancakes/make", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMakeRecipe_IdempotencyKey(t *testing.T) {
	pantry, srv := newTestServer(t)
	for i := 0; i < 4; i++ {
		addProduct(t, srv, "Egg", "egg", "2099-01-01")
	}
	_, err := pantry.CreateRecipe("omelette", map[string]int{"egg": 2}, "")
	require.NoError(t, err)

	header := map[string]string{idempotencyHeader: "req-42"}

	rec := doJSON(t, srv, http.MethodPost, "/recipes/omelette/make", nil, header)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/recipes/omelette/make", nil, header)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 2, pantry.Inventory().CountByType("egg"))
}

func TestExpiry_FollowsLocalCalendarDay(t *testing.T) {
	pantry := service.NewPantry(nil)
	h := NewHTTPHandler(pantry, nil)
	// 01:00 on the 20th in UTC, still the 19th on the local calendar.
	h.now = func() time.Time { return time.Date(2026, 10, 19, 21, 0, 0, 0, time.FixedZone("EDT", -4*60*60)) }
	srv := h.Routes()

	view := addProduct(t, srv, "Milk", "milk", "2026-10-20")
	assert.False(t, view.Expired)
	assert.True(t, view.ExpiringSoon)

	var expired []ProductView
	rec := doJSON(t, srv, http.MethodGet, "/products/expired", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &expired))
	assert.Empty(t, expired)
}
