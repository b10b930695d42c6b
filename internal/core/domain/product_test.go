package domain

import (
	"errors"
	"testing"
	"time"
)

func TestIsExpired_Boundary(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	p := Product{ExpirationDate: now}

	if !p.IsExpired(now) {
		t.Error("expected product dated exactly now to be expired")
	}
	if p.IsExpiringSoon(now, DefaultExpiringWindow) {
		t.Error("expected product dated exactly now not to be expiring soon")
	}
}

func TestIsExpiringSoon(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		exp      time.Time
		expired  bool
		expiring bool
	}{
		{"yesterday", now.AddDate(0, 0, -1), true, false},
		{"tomorrow", now.AddDate(0, 0, 1), false, true},
		{"in two days", now.AddDate(0, 0, 2), false, true},
		{"exactly three days out", now.Add(DefaultExpiringWindow), false, false},
		{"next week", now.AddDate(0, 0, 7), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Product{ExpirationDate: tt.exp}
			if got := p.IsExpired(now); got != tt.expired {
				t.Errorf("IsExpired = %v, want %v", got, tt.expired)
			}
			if got := p.IsExpiringSoon(now, DefaultExpiringWindow); got != tt.expiring {
				t.Errorf("IsExpiringSoon = %v, want %v", got, tt.expiring)
			}
		})
	}
}

func TestExpiry_UsesLocalCalendarDay(t *testing.T) {
	edt := time.FixedZone("EDT", -4*60*60)
	p := Product{ExpirationDate: time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)}

	evening := time.Date(2026, 10, 19, 21, 0, 0, 0, edt) // already the 20th in UTC
	if p.IsExpired(evening) {
		t.Error("expected product dated tomorrow not to be expired late in the local evening")
	}
	if !p.IsExpiringSoon(evening, DefaultExpiringWindow) {
		t.Error("expected product dated tomorrow to be expiring soon")
	}

	morning := time.Date(2026, 10, 20, 1, 0, 0, 0, time.FixedZone("JST", 9*60*60)) // still the 19th in UTC
	if !p.IsExpired(morning) {
		t.Error("expected product to be expired once its local calendar day starts")
	}
}

func TestDisplayNameFor(t *testing.T) {
	if got := DisplayNameFor("Egg", 1); got != "Egg" {
		t.Errorf("expected Egg, got %s", got)
	}
	if got := DisplayNameFor("Egg", 3); got != "Egg(3)" {
		t.Errorf("expected Egg(3), got %s", got)
	}
}

func TestNormalizeType(t *testing.T) {
	if got := NormalizeType("  Green Apple "); got != "green apple" {
		t.Errorf("expected 'green apple', got %q", got)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2099-01-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if FormatDate(d) != "2099-01-01" {
		t.Errorf("round trip mismatch: %s", FormatDate(d))
	}
	if _, err := ParseDate("01/01/2099"); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestInsufficientStockError(t *testing.T) {
	shortages := []Shortage{{Type: "egg", Required: 3, Available: 2}}
	err := InsufficientStock("omelette", shortages)

	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if got := ShortagesOf(err); len(got) != 1 || got[0] != shortages[0] {
		t.Errorf("unexpected shortages: %+v", got)
	}
	if want := "insufficient stock: omelette: egg needs 3, have 2"; err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestRecipeKeyAndClone(t *testing.T) {
	r := Recipe{Name: " Omelette ", Ingredients: map[string]int{"milk": 1, "egg": 2}}
	if r.Key() != "omelette" {
		t.Errorf("expected key omelette, got %q", r.Key())
	}
	types := r.IngredientTypes()
	if len(types) != 2 || types[0] != "egg" || types[1] != "milk" {
		t.Errorf("unexpected ingredient order: %v", types)
	}

	c := r.Clone()
	c.Ingredients["egg"] = 5
	if r.Ingredients["egg"] != 2 {
		t.Error("clone shares ingredient map with original")
	}
}
