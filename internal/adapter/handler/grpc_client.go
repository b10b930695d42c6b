package handler

import (
	"context"

	"google.golang.org/grpc"
)

// PantryClient calls pantry.v1.PantryService over any gRPC connection.
type PantryClient struct {
	cc grpc.ClientConnInterface
}

func NewPantryClient(cc grpc.ClientConnInterface) *PantryClient {
	return &PantryClient{cc: cc}
}

func (c *PantryClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...)
}

func (c *PantryClient) AddProduct(ctx context.Context, in *AddProductRequest, opts ...grpc.CallOption) (*ProductView, error) {
	out := new(ProductView)
	if err := c.invoke(ctx, "AddProduct", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PantryClient) ListProducts(ctx context.Context, in *ListProductsRequest, opts ...grpc.CallOption) (*ListProductsResponse, error) {
	out := new(ListProductsResponse)
	if err := c.invoke(ctx, "ListProducts", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PantryClient) RemoveProduct(ctx context.Context, in *RemoveProductRequest, opts ...grpc.CallOption) (*ProductView, error) {
	out := new(ProductView)
	if err := c.invoke(ctx, "RemoveProduct", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PantryClient) CreateRecipe(ctx context.Context, in *CreateRecipeRequest, opts ...grpc.CallOption) (*RecipeView, error) {
	out := new(RecipeView)
	if err := c.invoke(ctx, "CreateRecipe", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PantryClient) ListRecipes(ctx context.Context, in *ListRecipesRequest, opts ...grpc.CallOption) (*ListRecipesResponse, error) {
	out := new(ListRecipesResponse)
	if err := c.invoke(ctx, "ListRecipes", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PantryClient) MakeRecipe(ctx context.Context, in *MakeRecipeRequest, opts ...grpc.CallOption) (*MakeRecipeResponse, error) {
	out := new(MakeRecipeResponse)
	if err := c.invoke(ctx, "MakeRecipe", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
