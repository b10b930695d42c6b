package handler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/pantry/internal/core/domain"
	"github.com/rl1809/pantry/internal/core/service"
)

const serviceName = "pantry.v1.PantryService"

// Product listing filters.
const (
	FilterAll      = ""
	FilterExpired  = "expired"
	FilterExpiring = "expiring"
)

type AddProductRequest struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	ExpirationDate string `json:"expiration_date"`
	Note           string `json:"note,omitempty"`
}

type ListProductsRequest struct {
	Filter string `json:"filter,omitempty"`
}

type ListProductsResponse struct {
	Products []ProductView `json:"products"`
}

type RemoveProductRequest struct {
	Handle string `json:"handle"`
}

type CreateRecipeRequest struct {
	Name         string         `json:"name"`
	Ingredients  map[string]int `json:"ingredients"`
	Instructions string         `json:"instructions,omitempty"`
}

type ListRecipesRequest struct{}

type ListRecipesResponse struct {
	Recipes []RecipeView `json:"recipes"`
}

type MakeRecipeRequest struct {
	Name      string `json:"name"`
	RequestID string `json:"request_id,omitempty"`
}

type MakeRecipeResponse struct {
	Recipe  string        `json:"recipe"`
	Removed []ProductView `json:"removed"`
}

// PantryServiceServer is the server side of pantry.v1.PantryService.
type PantryServiceServer interface {
	AddProduct(context.Context, *AddProductRequest) (*ProductView, error)
	ListProducts(context.Context, *ListProductsRequest) (*ListProductsResponse, error)
	RemoveProduct(context.Context, *RemoveProductRequest) (*ProductView, error)
	CreateRecipe(context.Context, *CreateRecipeRequest) (*RecipeView, error)
	ListRecipes(context.Context, *ListRecipesRequest) (*ListRecipesResponse, error)
	MakeRecipe(context.Context, *MakeRecipeRequest) (*MakeRecipeResponse, error)
}

type GRPCHandler struct {
	pantry *service.Pantry
	logger *zap.Logger
	now    func() time.Time
}

func NewGRPCHandler(pantry *service.Pantry, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{pantry: pantry, logger: logger, now: time.Now}
}

// RegisterPantryServiceServer attaches srv to s under pantry.v1.PantryService.
func RegisterPantryServiceServer(s grpc.ServiceRegistrar, srv PantryServiceServer) {
	s.RegisterService(&pantryServiceDesc, srv)
}

func (h *GRPCHandler) AddProduct(ctx context.Context, req *AddProductRequest) (*ProductView, error) {
	exp, err := domain.ParseDate(req.ExpirationDate)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "expiration_date must be YYYY-MM-DD")
	}

	p, err := h.pantry.AddProduct(req.Name, req.Type, exp, req.Note)
	if err != nil {
		return nil, h.toStatus(err)
	}
	view := toProductView(p, h.now(), h.pantry.ExpiringWindow())
	return &view, nil
}

func (h *GRPCHandler) ListProducts(ctx context.Context, req *ListProductsRequest) (*ListProductsResponse, error) {
	asOf := h.now()

	var products []domain.Product
	switch req.Filter {
	case FilterAll:
		products = h.pantry.Products()
	case FilterExpired:
		products = h.pantry.Expired(asOf)
	case FilterExpiring:
		products = h.pantry.ExpiringSoon(asOf)
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown filter %q", req.Filter)
	}

	resp := &ListProductsResponse{Products: make([]ProductView, 0, len(products))}
	for _, p := range products {
		resp.Products = append(resp.Products, toProductView(p, asOf, h.pantry.ExpiringWindow()))
	}
	return resp, nil
}

func (h *GRPCHandler) RemoveProduct(ctx context.Context, req *RemoveProductRequest) (*ProductView, error) {
	p, err := h.pantry.RemoveProduct(req.Handle)
	if err != nil {
		return nil, h.toStatus(err)
	}
	view := toProductView(p, h.now(), h.pantry.ExpiringWindow())
	return &view, nil
}

func (h *GRPCHandler) CreateRecipe(ctx context.Context, req *CreateRecipeRequest) (*RecipeView, error) {
	recipe, err := h.pantry.CreateRecipe(req.Name, req.Ingredients, req.Instructions)
	if err != nil {
		return nil, h.toStatus(err)
	}
	s, err := h.pantry.Recipe(recipe.Name)
	if err != nil {
		return nil, h.toStatus(err)
	}
	view := recipeView(s)
	return &view, nil
}

func (h *GRPCHandler) ListRecipes(ctx context.Context, req *ListRecipesRequest) (*ListRecipesResponse, error) {
	statuses := h.pantry.Recipes()
	resp := &ListRecipesResponse{Recipes: make([]RecipeView, 0, len(statuses))}
	for _, s := range statuses {
		resp.Recipes = append(resp.Recipes, recipeView(s))
	}
	return resp, nil
}

func (h *GRPCHandler) MakeRecipe(ctx context.Context, req *MakeRecipeRequest) (*MakeRecipeResponse, error) {
	summary, err := h.pantry.MakeRecipe(ctx, req.Name, req.RequestID)
	if err != nil {
		return nil, h.toStatus(err)
	}

	asOf := h.now()
	resp := &MakeRecipeResponse{Recipe: summary.Recipe, Removed: make([]ProductView, 0, len(summary.Removed))}
	for _, p := range summary.Removed {
		resp.Removed = append(resp.Removed, toProductView(p, asOf, h.pantry.ExpiringWindow()))
	}
	return resp, nil
}

func (h *GRPCHandler) toStatus(err error) error {
	code := grpcCode(err)
	if code == codes.Internal {
		h.logger.Error("rpc failed", zap.Error(err))
	}
	return status.Error(code, err.Error())
}

func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, domain.ErrDuplicateName), errors.Is(err, domain.ErrDuplicateRequest):
		return codes.AlreadyExists
	case errors.Is(err, domain.ErrEmptyIngredients), errors.Is(err, domain.ErrInvalidArgument):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrInsufficientStock):
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

func unaryHandler[Req, Resp any](method string, call func(PantryServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PantryServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PantryServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var pantryServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*PantryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AddProduct", Handler: unaryHandler("AddProduct", PantryServiceServer.AddProduct)},
		{MethodName: "ListProducts", Handler: unaryHandler("ListProducts", PantryServiceServer.ListProducts)},
		{MethodName: "RemoveProduct", Handler: unaryHandler("RemoveProduct", PantryServiceServer.RemoveProduct)},
		{MethodName: "CreateRecipe", Handler: unaryHandler("CreateRecipe", PantryServiceServer.CreateRecipe)},
		{MethodName: "ListRecipes", Handler: unaryHandler("ListRecipes", PantryServiceServer.ListRecipes)},
		{MethodName: "MakeRecipe", Handler: unaryHandler("MakeRecipe", PantryServiceServer.MakeRecipe)},
	},
	Streams: []grpc.StreamDesc{},
}

// LoggingInterceptor logs every unary call with its duration and status code.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("rpc",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}
