package domain

import (
	"sort"
	"strings"
)

type Recipe struct {
	Name         string         `json:"name"`
	Ingredients  map[string]int `json:"ingredients"` // product type -> required quantity
	Instructions string         `json:"instructions"`
}

// Key is the case-insensitive lookup key of the recipe.
func (r Recipe) Key() string {
	return RecipeKey(r.Name)
}

// IngredientTypes returns the required product types in ascending order.
func (r Recipe) IngredientTypes() []string {
	types := make([]string, 0, len(r.Ingredients))
	for t := range r.Ingredients {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Clone returns a copy that does not share the ingredient map.
func (r Recipe) Clone() Recipe {
	ingredients := make(map[string]int, len(r.Ingredients))
	for t, qty := range r.Ingredients {
		ingredients[t] = qty
	}
	r.Ingredients = ingredients
	return r
}

func RecipeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Shortage describes an ingredient the inventory cannot cover.
type Shortage struct {
	Type      string `json:"type"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

// ConsumedSummary lists the products removed while preparing a recipe.
type ConsumedSummary struct {
	Recipe  string    `json:"recipe"`
	Removed []Product `json:"removed"`
}
