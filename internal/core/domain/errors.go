package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateName     = errors.New("duplicate recipe name")
	ErrEmptyIngredients  = errors.New("recipe requires at least one ingredient")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInconsistentState = errors.New("inconsistent inventory state")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrDuplicateRequest  = errors.New("duplicate request")
)

// Error carries one of the sentinel kinds above plus detail for the caller.
type Error struct {
	Kind      error
	Msg       string
	Shortages []Shortage
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

// Errorf builds an *Error of the given kind.
func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// InsufficientStock reports every shortage at once.
func InsufficientStock(recipe string, shortages []Shortage) error {
	parts := make([]string, 0, len(shortages))
	for _, s := range shortages {
		parts = append(parts, fmt.Sprintf("%s needs %d, have %d", s.Type, s.Required, s.Available))
	}
	return &Error{
		Kind:      ErrInsufficientStock,
		Msg:       fmt.Sprintf("%s: %s", recipe, strings.Join(parts, "; ")),
		Shortages: shortages,
	}
}

// ShortagesOf extracts the shortage detail from an insufficient stock error.
func ShortagesOf(err error) []Shortage {
	var e *Error
	if errors.As(err, &e) {
		return e.Shortages
	}
	return nil
}
