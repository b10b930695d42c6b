package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rl1809/pantry/internal/core/domain"
	"github.com/rl1809/pantry/internal/core/service"
)

const idempotencyHeader = "Idempotency-Key"

type HTTPHandler struct {
	pantry    *service.Pantry
	logger    *zap.Logger
	validator *validator.Validate
	now       func() time.Time
}

type AddProductHTTPRequest struct {
	Name           string `json:"name" validate:"required,max=255"`
	Type           string `json:"type" validate:"required,max=255"`
	ExpirationDate string `json:"expiration_date" validate:"required,datetime=2006-01-02"`
	Note           string `json:"note" validate:"max=1000"`
}

type CreateRecipeHTTPRequest struct {
	Name         string         `json:"name" validate:"required,max=255"`
	Ingredients  map[string]int `json:"ingredients" validate:"dive,keys,required,endkeys,gt=0"`
	Instructions string         `json:"instructions"`
}

type ProductView struct {
	Handle         string `json:"handle"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	ExpirationDate string `json:"expiration_date"`
	Note           string `json:"note,omitempty"`
	Quantity       int    `json:"quantity"`
	Expired        bool   `json:"expired"`
	ExpiringSoon   bool   `json:"expiring_soon"`
}

type RecipeView struct {
	Name         string            `json:"name"`
	Ingredients  map[string]int    `json:"ingredients"`
	Instructions string            `json:"instructions,omitempty"`
	CanMake      bool              `json:"can_make"`
	Shortages    []domain.Shortage `json:"shortages,omitempty"`
}

type MakeRecipeHTTPResponse struct {
	Recipe  string        `json:"recipe"`
	Removed []ProductView `json:"removed"`
}

type RemovedHTTPResponse struct {
	Removed int `json:"removed"`
}

type ErrorHTTPResponse struct {
	Error     string            `json:"error"`
	Shortages []domain.Shortage `json:"shortages,omitempty"`
}

func NewHTTPHandler(pantry *service.Pantry, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{
		pantry:    pantry,
		logger:    logger,
		validator: validator.New(),
		now:       time.Now,
	}
}

// Routes returns a mux with every pantry endpoint registered.
func (h *HTTPHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthCheck)

	mux.HandleFunc("GET /products", h.ListProducts)
	mux.HandleFunc("GET /products/expired", h.ListExpired)
	mux.HandleFunc("GET /products/expiring", h.ListExpiring)
	mux.HandleFunc("GET /products/{handle}", h.GetProduct)
	mux.HandleFunc("POST /products", h.AddProduct)
	mux.HandleFunc("DELETE /products/{handle}", h.RemoveProduct)
	mux.HandleFunc("DELETE /products", h.RemoveProducts)

	mux.HandleFunc("GET /recipes", h.ListRecipes)
	mux.HandleFunc("GET /recipes/{name}", h.GetRecipe)
	mux.HandleFunc("POST /recipes", h.CreateRecipe)
	mux.HandleFunc("DELETE /recipes/{name}", h.DeleteRecipe)
	mux.HandleFunc("DELETE /recipes", h.DeleteRecipes)
	mux.HandleFunc("POST /recipes/{name}/make", h.MakeRecipe)
	return mux
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.productViews(h.pantry.Products()))
}

func (h *HTTPHandler) ListExpired(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.productViews(h.pantry.Expired(h.now())))
}

func (h *HTTPHandler) ListExpiring(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.productViews(h.pantry.ExpiringSoon(h.now())))
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.pantry.Product(r.PathValue("handle"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.productView(p, h.now()))
}

func (h *HTTPHandler) AddProduct(w http.ResponseWriter, r *http.Request) {
	var req AddProductHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	exp, err := domain.ParseDate(req.ExpirationDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Error: "expiration_date must be YYYY-MM-DD"})
		return
	}

	p, err := h.pantry.AddProduct(req.Name, req.Type, exp, req.Note)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.productView(p, h.now()))
}

func (h *HTTPHandler) RemoveProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.pantry.RemoveProduct(r.PathValue("handle"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.productView(p, h.now()))
}

// RemoveProducts deletes every product of ?type=, or the whole inventory
// when the parameter is absent. A present but blank type is rejected.
func (h *HTTPHandler) RemoveProducts(w http.ResponseWriter, r *http.Request) {
	var n int
	if q := r.URL.Query(); q.Has("type") {
		t := strings.TrimSpace(q.Get("type"))
		if t == "" {
			writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Error: "type must not be blank"})
			return
		}
		n = h.pantry.RemoveProductType(t)
	} else {
		n = h.pantry.ClearProducts()
	}
	writeJSON(w, http.StatusOK, RemovedHTTPResponse{Removed: n})
}

func (h *HTTPHandler) ListRecipes(w http.ResponseWriter, r *http.Request) {
	statuses := h.pantry.Recipes()
	views := make([]RecipeView, 0, len(statuses))
	for _, s := range statuses {
		views = append(views, recipeView(s))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *HTTPHandler) GetRecipe(w http.ResponseWriter, r *http.Request) {
	s, err := h.pantry.Recipe(r.PathValue("name"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recipeView(s))
}

func (h *HTTPHandler) CreateRecipe(w http.ResponseWriter, r *http.Request) {
	var req CreateRecipeHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	recipe, err := h.pantry.CreateRecipe(req.Name, req.Ingredients, req.Instructions)
	if err != nil {
		h.writeError(w, err)
		return
	}

	s, err := h.pantry.Recipe(recipe.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, recipeView(s))
}

func (h *HTTPHandler) DeleteRecipe(w http.ResponseWriter, r *http.Request) {
	recipe, err := h.pantry.DeleteRecipe(r.PathValue("name"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RecipeView{
		Name:         recipe.Name,
		Ingredients:  recipe.Ingredients,
		Instructions: recipe.Instructions,
	})
}

func (h *HTTPHandler) DeleteRecipes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RemovedHTTPResponse{Removed: h.pantry.ClearRecipes()})
}

func (h *HTTPHandler) MakeRecipe(w http.ResponseWriter, r *http.Request) {
	summary, err := h.pantry.MakeRecipe(r.Context(), r.PathValue("name"), r.Header.Get(idempotencyHeader))
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MakeRecipeHTTPResponse{
		Recipe:  summary.Recipe,
		Removed: h.productViews(summary.Removed),
	})
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Error: "invalid request body"})
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Error: err.Error()})
		return false
	}
	return true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, ErrorHTTPResponse{
		Error:     err.Error(),
		Shortages: domain.ShortagesOf(err),
	})
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateName), errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict
	case errors.Is(err, domain.ErrEmptyIngredients), errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTPHandler) productViews(products []domain.Product) []ProductView {
	asOf := h.now()
	views := make([]ProductView, 0, len(products))
	for _, p := range products {
		views = append(views, h.productView(p, asOf))
	}
	return views
}

func (h *HTTPHandler) productView(p domain.Product, asOf time.Time) ProductView {
	return toProductView(p, asOf, h.pantry.ExpiringWindow())
}

func toProductView(p domain.Product, asOf time.Time, window time.Duration) ProductView {
	return ProductView{
		Handle:         p.Handle,
		Name:           p.DisplayName,
		Type:           p.Type,
		ExpirationDate: domain.FormatDate(p.ExpirationDate),
		Note:           p.Note,
		Quantity:       p.QuantityAtType,
		Expired:        p.IsExpired(asOf),
		ExpiringSoon:   p.IsExpiringSoon(asOf, window),
	}
}

func recipeView(s service.RecipeStatus) RecipeView {
	return RecipeView{
		Name:         s.Name,
		Ingredients:  s.Ingredients,
		Instructions: s.Instructions,
		CanMake:      s.CanMake,
		Shortages:    s.Shortages,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
