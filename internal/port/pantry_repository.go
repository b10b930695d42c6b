package port

import (
	"context"

	"github.com/rl1809/pantry/internal/core/domain"
)

type PantryRepository interface {
	// LoadProducts returns every persisted product
	LoadProducts(ctx context.Context) ([]domain.Product, error)

	// LoadRecipes returns every persisted recipe
	LoadRecipes(ctx context.Context) ([]domain.Recipe, error)

	// SaveProducts replaces the persisted products with the given set
	SaveProducts(ctx context.Context, products []domain.Product) error

	// SaveRecipes replaces the persisted recipes with the given set
	SaveRecipes(ctx context.Context, recipes []domain.Recipe) error
}
