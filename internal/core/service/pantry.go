package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/pantry/internal/core/domain"
	"github.com/rl1809/pantry/internal/port"
)

const saveTimeout = 5 * time.Second

// RecipeStatus is a recipe together with its feasibility against current stock.
type RecipeStatus struct {
	domain.Recipe
	CanMake   bool
	Shortages []domain.Shortage
}

type Option func(*Pantry)

func WithIdempotencyGuard(guard port.IdempotencyGuard) Option {
	return func(p *Pantry) { p.guard = guard }
}

func WithExpiringWindow(window time.Duration) Option {
	return func(p *Pantry) {
		if window > 0 {
			p.window = window
		}
	}
}

// WithSaveInterval sets the minimum pause between two saves. Mutations made
// during the pause are folded into the next save.
func WithSaveInterval(interval time.Duration) Option {
	return func(p *Pantry) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Pantry) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Pantry is the application service behind the transports. Mutations are
// applied in memory and queued for the persistence worker started by Run.
type Pantry struct {
	inventory *InventoryStore
	recipes   *RecipeLedger
	repo      port.PantryRepository
	guard     port.IdempotencyGuard
	window    time.Duration
	interval  time.Duration
	logger    *zap.Logger
	dirty     chan struct{}
}

// NewPantry builds a pantry backed by repo. A nil repo keeps everything in memory.
func NewPantry(repo port.PantryRepository, opts ...Option) *Pantry {
	p := &Pantry{
		inventory: NewInventoryStore(),
		repo:      repo,
		window:    domain.DefaultExpiringWindow,
		logger:    zap.NewNop(),
		dirty:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.recipes = NewRecipeLedger(p.logger.Named("recipes"))
	return p
}

func (p *Pantry) Inventory() *InventoryStore { return p.inventory }

func (p *Pantry) Ledger() *RecipeLedger { return p.recipes }

// Load replaces in-memory state with the repository content.
func (p *Pantry) Load(ctx context.Context) error {
	if p.repo == nil {
		return nil
	}

	products, err := p.repo.LoadProducts(ctx)
	if err != nil {
		return fmt.Errorf("load products: %w", err)
	}
	recipes, err := p.repo.LoadRecipes(ctx)
	if err != nil {
		return fmt.Errorf("load recipes: %w", err)
	}

	// Both sets validate before either is installed.
	inventory, err := newInventorySnapshot(products)
	if err != nil {
		return fmt.Errorf("restore products: %w", err)
	}
	ledger, err := newRecipeSet(recipes)
	if err != nil {
		return fmt.Errorf("restore recipes: %w", err)
	}
	p.inventory.install(inventory)
	p.recipes.install(ledger)

	p.logger.Info("pantry loaded",
		zap.Int("products", p.inventory.Len()),
		zap.Int("recipes", p.recipes.Len()),
	)
	return nil
}

// Save writes the full product and recipe sets to the repository.
func (p *Pantry) Save(ctx context.Context) error {
	if p.repo == nil {
		return nil
	}
	if err := p.repo.SaveProducts(ctx, p.inventory.Products()); err != nil {
		return fmt.Errorf("save products: %w", err)
	}
	if err := p.repo.SaveRecipes(ctx, p.recipes.List()); err != nil {
		return fmt.Errorf("save recipes: %w", err)
	}
	return nil
}

// Run persists pending mutations until ctx is done, then saves once more.
func (p *Pantry) Run(ctx context.Context) {
	for {
		select {
		case <-p.dirty:
			p.saveWithTimeout()
			if p.interval == 0 {
				continue
			}
			select {
			case <-time.After(p.interval):
			case <-ctx.Done():
				p.saveWithTimeout()
				return
			}
		case <-ctx.Done():
			p.saveWithTimeout()
			return
		}
	}
}

func (p *Pantry) saveWithTimeout() {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := p.Save(ctx); err != nil {
		p.logger.Error("failed to persist pantry", zap.Error(err))
	}
}

func (p *Pantry) markDirty() {
	select {
	case p.dirty <- struct{}{}:
	default:
	}
}

func (p *Pantry) AddProduct(name, productType string, expiration time.Time, note string) (domain.Product, error) {
	product, err := p.inventory.Add(name, productType, expiration, note)
	if err != nil {
		return domain.Product{}, err
	}
	p.markDirty()
	p.logger.Debug("product added",
		zap.String("handle", product.Handle),
		zap.String("type", product.Type),
		zap.Int("quantity", product.QuantityAtType),
	)
	return product, nil
}

func (p *Pantry) Products() []domain.Product {
	return p.inventory.Products()
}

func (p *Pantry) Product(handle string) (domain.Product, error) {
	product, ok := p.inventory.Get(handle)
	if !ok {
		return domain.Product{}, domain.Errorf(domain.ErrNotFound, "product %q", handle)
	}
	return product, nil
}

func (p *Pantry) Expired(asOf time.Time) []domain.Product {
	return p.inventory.Expired(asOf)
}

func (p *Pantry) ExpiringSoon(asOf time.Time) []domain.Product {
	return p.inventory.ExpiringSoon(asOf, p.window)
}

func (p *Pantry) ExpiringWindow() time.Duration { return p.window }

func (p *Pantry) RemoveProduct(handle string) (domain.Product, error) {
	product, ok := p.inventory.RemoveByID(handle)
	if !ok {
		return domain.Product{}, domain.Errorf(domain.ErrNotFound, "product %q", handle)
	}
	p.markDirty()
	return product, nil
}

func (p *Pantry) RemoveProductType(productType string) int {
	n := p.inventory.RemoveType(productType)
	if n > 0 {
		p.markDirty()
	}
	return n
}

func (p *Pantry) ClearProducts() int {
	n := p.inventory.RemoveAll()
	if n > 0 {
		p.markDirty()
	}
	return n
}

func (p *Pantry) CreateRecipe(name string, ingredients map[string]int, instructions string) (domain.Recipe, error) {
	recipe, err := p.recipes.Create(name, ingredients, instructions)
	if err != nil {
		return domain.Recipe{}, err
	}
	p.markDirty()
	return recipe, nil
}

// Recipes lists every recipe with its current feasibility.
func (p *Pantry) Recipes() []RecipeStatus {
	recipes := p.recipes.List()
	out := make([]RecipeStatus, 0, len(recipes))
	for _, r := range recipes {
		out = append(out, p.status(r))
	}
	return out
}

func (p *Pantry) Recipe(name string) (RecipeStatus, error) {
	r, err := p.recipes.Lookup(name)
	if err != nil {
		return RecipeStatus{}, err
	}
	return p.status(r), nil
}

func (p *Pantry) status(r domain.Recipe) RecipeStatus {
	missing := p.recipes.Shortages(r, p.inventory)
	return RecipeStatus{Recipe: r, CanMake: len(missing) == 0, Shortages: missing}
}

func (p *Pantry) DeleteRecipe(name string) (domain.Recipe, error) {
	r, err := p.recipes.Delete(name)
	if err != nil {
		return domain.Recipe{}, err
	}
	p.markDirty()
	return r, nil
}

func (p *Pantry) ClearRecipes() int {
	n := p.recipes.DeleteAll()
	if n > 0 {
		p.markDirty()
	}
	return n
}

// MakeRecipe consumes the recipe's ingredients. A non-empty requestKey makes
// the call idempotent when a guard is configured; the key is released again
// if consumption fails.
func (p *Pantry) MakeRecipe(ctx context.Context, name, requestKey string) (domain.ConsumedSummary, error) {
	recipe, err := p.recipes.Lookup(name)
	if err != nil {
		return domain.ConsumedSummary{}, err
	}

	var idempotencyKey string
	if requestKey != "" && p.guard != nil {
		idempotencyKey = fmt.Sprintf("make:%s:%s", recipe.Key(), requestKey)
		ok, err := p.guard.SetIdempotency(ctx, idempotencyKey)
		if err != nil {
			return domain.ConsumedSummary{}, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return domain.ConsumedSummary{}, domain.Errorf(domain.ErrDuplicateRequest, "%s", requestKey)
		}
	}

	summary, err := p.recipes.ConsumeIngredients(recipe, p.inventory)
	if err != nil {
		if idempotencyKey != "" {
			if clearErr := p.guard.ClearIdempotency(ctx, idempotencyKey); clearErr != nil {
				p.logger.Warn("failed to release idempotency key",
					zap.String("key", idempotencyKey),
					zap.Error(clearErr),
				)
			}
		}
		return domain.ConsumedSummary{}, err
	}

	p.markDirty()
	return summary, nil
}
