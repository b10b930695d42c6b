package storage

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/pantry/internal/core/domain"
)

func sampleSnapshot() ([]domain.Product, []domain.Recipe) {
	exp := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
	products := []domain.Product{
		{
			ID: "0b0f1f5e-3a54-4c0c-9a7e-1d2f3c4b5a61", Handle: "3c4b5a61",
			BaseName: "Egg", DisplayName: "Egg", Type: "egg",
			ExpirationDate: exp, QuantityAtType: 2, DisambiguationID: 1,
		},
		{
			ID: "9d8c7b6a-5f4e-4d3c-8b2a-190817263544", Handle: "17263544",
			BaseName: "Egg", DisplayName: "Egg(2)", Type: "egg",
			ExpirationDate: exp.AddDate(0, 0, 3), Note: "free range",
			QuantityAtType: 2, DisambiguationID: 2,
		},
		{
			ID: "4a3b2c1d-0e9f-48a7-b6c5-d4e3f2a1b0c9", Handle: "f2a1b0c9",
			BaseName: "Milk", DisplayName: "Milk", Type: "milk",
			ExpirationDate: exp, QuantityAtType: 1, DisambiguationID: 1,
		},
	}
	recipes := []domain.Recipe{
		{Name: "Omelette", Ingredients: map[string]int{"egg": 2, "milk": 1}, Instructions: "whisk and fry"},
		{Name: "Boiled egg", Ingredients: map[string]int{"egg": 1}},
	}
	return products, recipes
}

func assertSameProducts(t *testing.T, want, got []domain.Product) {
	t.Helper()
	require.Len(t, got, len(want))

	byHandle := func(ps []domain.Product) []domain.Product {
		out := append([]domain.Product(nil), ps...)
		sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
		return out
	}
	w, g := byHandle(want), byHandle(got)
	for i := range w {
		assert.Equal(t, w[i].ID, g[i].ID)
		assert.Equal(t, w[i].Handle, g[i].Handle)
		assert.Equal(t, w[i].BaseName, g[i].BaseName)
		assert.Equal(t, w[i].DisplayName, g[i].DisplayName)
		assert.Equal(t, w[i].Type, g[i].Type)
		assert.Equal(t, w[i].Note, g[i].Note)
		assert.Equal(t, w[i].DisambiguationID, g[i].DisambiguationID)
		assert.True(t, w[i].ExpirationDate.Equal(g[i].ExpirationDate),
			"expiration mismatch for %s: %v vs %v", w[i].Handle, w[i].ExpirationDate, g[i].ExpirationDate)
	}
}

func assertSameRecipes(t *testing.T, want, got []domain.Recipe) {
	t.Helper()
	require.Len(t, got, len(want))

	byKey := make(map[string]domain.Recipe, len(got))
	for _, r := range got {
		byKey[r.Key()] = r
	}
	for _, w := range want {
		g, ok := byKey[w.Key()]
		require.True(t, ok, "recipe %q missing", w.Name)
		assert.Equal(t, w.Name, g.Name)
		assert.Equal(t, w.Ingredients, g.Ingredients)
		assert.Equal(t, w.Instructions, g.Instructions)
	}
}
