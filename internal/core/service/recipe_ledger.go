package service

import (
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/rl1809/pantry/internal/core/domain"
)

type RecipeLedger struct {
	mu      sync.Mutex
	recipes map[string]domain.Recipe // lowercase name -> recipe
	logger  *zap.Logger
}

func NewRecipeLedger(logger *zap.Logger) *RecipeLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecipeLedger{
		recipes: make(map[string]domain.Recipe),
		logger:  logger,
	}
}

// Create registers a recipe. Ingredient types are normalized; entries that
// normalize to the same type are summed.
func (l *RecipeLedger) Create(name string, ingredients map[string]int, instructions string) (domain.Recipe, error) {
	recipe, err := newRecipe(name, ingredients, instructions)
	if err != nil {
		return domain.Recipe{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.recipes[recipe.Key()]; exists {
		return domain.Recipe{}, domain.Errorf(domain.ErrDuplicateName, "%q", recipe.Name)
	}
	l.recipes[recipe.Key()] = recipe
	return recipe.Clone(), nil
}

// CanMake reports whether stock covers every ingredient. It never mutates
// stock. Recipes that do not validate cannot be made.
func (l *RecipeLedger) CanMake(recipe domain.Recipe, stock Stock) bool {
	normalized, err := newRecipe(recipe.Name, recipe.Ingredients, recipe.Instructions)
	if err != nil {
		return false
	}
	return len(shortages(normalized, stock)) == 0
}

// Shortages lists the ingredients stock cannot cover, ordered by type. It
// returns nil for a recipe that does not validate.
func (l *RecipeLedger) Shortages(recipe domain.Recipe, stock Stock) []domain.Shortage {
	normalized, err := newRecipe(recipe.Name, recipe.Ingredients, recipe.Instructions)
	if err != nil {
		return nil
	}
	return shortages(normalized, stock)
}

// ConsumeIngredients removes the recipe's ingredients from stock, all or
// nothing. Feasibility is checked again under the keeper's lock.
func (l *RecipeLedger) ConsumeIngredients(recipe domain.Recipe, keeper StockKeeper) (domain.ConsumedSummary, error) {
	recipe, err := newRecipe(recipe.Name, recipe.Ingredients, recipe.Instructions)
	if err != nil {
		return domain.ConsumedSummary{}, err
	}
	summary := domain.ConsumedSummary{Recipe: recipe.Name}

	err = keeper.Atomically(func(stock Stock) error {
		if missing := shortages(recipe, stock); len(missing) > 0 {
			return domain.InsufficientStock(recipe.Name, missing)
		}

		for _, t := range recipe.IngredientTypes() {
			for i := 0; i < recipe.Ingredients[t]; i++ {
				p, err := stock.RemoveOne(t)
				if err != nil {
					l.logger.Error("ingredient removal failed after feasibility check",
						zap.String("recipe", recipe.Name),
						zap.String("type", t),
						zap.Int("removed", i),
						zap.Int("required", recipe.Ingredients[t]),
						zap.Error(err),
					)
					return &domain.Error{
						Kind: domain.ErrInconsistentState,
						Msg:  "removing " + t + " for " + recipe.Name + ": " + err.Error(),
					}
				}
				summary.Removed = append(summary.Removed, p)
			}
		}
		return nil
	})
	if err != nil {
		return domain.ConsumedSummary{}, err
	}

	l.logger.Info("recipe prepared",
		zap.String("recipe", recipe.Name),
		zap.Int("products_removed", len(summary.Removed)),
	)
	return summary, nil
}

func (l *RecipeLedger) Lookup(name string) (domain.Recipe, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.recipes[domain.RecipeKey(name)]
	if !ok {
		return domain.Recipe{}, domain.Errorf(domain.ErrNotFound, "recipe %q", name)
	}
	return r.Clone(), nil
}

// List returns every recipe ordered by name.
func (l *RecipeLedger) List() []domain.Recipe {
	l.mu.Lock()
	out := make([]domain.Recipe, 0, len(l.recipes))
	for _, r := range l.recipes {
		out = append(out, r.Clone())
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func (l *RecipeLedger) Delete(name string) (domain.Recipe, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := domain.RecipeKey(name)
	r, ok := l.recipes[key]
	if !ok {
		return domain.Recipe{}, domain.Errorf(domain.ErrNotFound, "recipe %q", name)
	}
	delete(l.recipes, key)
	return r, nil
}

func (l *RecipeLedger) DeleteAll() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.recipes)
	l.recipes = make(map[string]domain.Recipe)
	return n
}

func (l *RecipeLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recipes)
}

// Restore replaces the ledger with previously persisted recipes, applying the
// same validation as Create.
func (l *RecipeLedger) Restore(recipes []domain.Recipe) error {
	loaded, err := newRecipeSet(recipes)
	if err != nil {
		return err
	}
	l.install(loaded)
	return nil
}

func newRecipeSet(recipes []domain.Recipe) (map[string]domain.Recipe, error) {
	loaded := make(map[string]domain.Recipe, len(recipes))
	for _, r := range recipes {
		recipe, err := newRecipe(r.Name, r.Ingredients, r.Instructions)
		if err != nil {
			return nil, err
		}
		if _, dup := loaded[recipe.Key()]; dup {
			return nil, domain.Errorf(domain.ErrDuplicateName, "%q", recipe.Name)
		}
		loaded[recipe.Key()] = recipe
	}
	return loaded, nil
}

func (l *RecipeLedger) install(recipes map[string]domain.Recipe) {
	l.mu.Lock()
	l.recipes = recipes
	l.mu.Unlock()
}

func newRecipe(name string, ingredients map[string]int, instructions string) (domain.Recipe, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Recipe{}, domain.Errorf(domain.ErrInvalidArgument, "recipe name is required")
	}
	if len(ingredients) == 0 {
		return domain.Recipe{}, &domain.Error{Kind: domain.ErrEmptyIngredients, Msg: name}
	}

	normalized := make(map[string]int, len(ingredients))
	for t, qty := range ingredients {
		key := domain.NormalizeType(t)
		if key == "" {
			return domain.Recipe{}, domain.Errorf(domain.ErrInvalidArgument, "%s: ingredient type is required", name)
		}
		if qty <= 0 {
			return domain.Recipe{}, domain.Errorf(domain.ErrInvalidArgument, "%s: quantity of %s must be positive", name, key)
		}
		if normalized[key] > math.MaxInt-qty {
			return domain.Recipe{}, domain.Errorf(domain.ErrInvalidArgument, "%s: quantity of %s is too large", name, key)
		}
		normalized[key] += qty
	}

	return domain.Recipe{
		Name:         name,
		Ingredients:  normalized,
		Instructions: strings.TrimSpace(instructions),
	}, nil
}

func shortages(recipe domain.Recipe, stock Stock) []domain.Shortage {
	var out []domain.Shortage
	for _, t := range recipe.IngredientTypes() {
		required := recipe.Ingredients[t]
		if available := stock.CountByType(t); available < required {
			out = append(out, domain.Shortage{Type: t, Required: required, Available: available})
		}
	}
	return out
}
