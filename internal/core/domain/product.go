package domain

import (
	"strconv"
	"strings"
	"time"
)

// DefaultExpiringWindow is how far ahead a product counts as expiring soon.
const DefaultExpiringWindow = 72 * time.Hour

const dateLayout = "2006-01-02"

type Product struct {
	ID               string    `json:"id"`     // full uuid
	Handle           string    `json:"handle"` // short user-facing id
	BaseName         string    `json:"base_name"`
	DisplayName      string    `json:"display_name"`
	Type             string    `json:"type"`
	ExpirationDate   time.Time `json:"expiration_date"`
	Note             string    `json:"note,omitempty"`
	QuantityAtType   int       `json:"quantity_at_type"`
	DisambiguationID int       `json:"disambiguation_id"`
}

// IsExpired reports whether the product is past its date. A product dated
// exactly asOf is already expired. asOf is read as wall-clock time in its own
// location.
func (p Product) IsExpired(asOf time.Time) bool {
	return !CalendarTime(asOf).Before(p.ExpirationDate)
}

// IsExpiringSoon reports whether the product expires strictly within window
// after asOf and is not yet expired.
func (p Product) IsExpiringSoon(asOf time.Time, window time.Duration) bool {
	asOf = CalendarTime(asOf)
	return p.ExpirationDate.Add(-window).Before(asOf) && asOf.Before(p.ExpirationDate)
}

// CalendarTime moves t's wall-clock reading into the UTC frame expiration
// dates are stored in, so 21:00 local on the 19th stays on the 19th.
func CalendarTime(t time.Time) time.Time {
	y, m, d := t.Date()
	h, mi, sec := t.Clock()
	return time.Date(y, m, d, h, mi, sec, t.Nanosecond(), time.UTC)
}

// NormalizeType turns a user supplied product type into its grouping key.
func NormalizeType(productType string) string {
	return strings.ToLower(strings.TrimSpace(productType))
}

// DisplayNameFor renders the name shown for the n-th product of a type.
func DisplayNameFor(baseName string, disambiguationID int) string {
	if disambiguationID <= 1 {
		return baseName
	}
	return baseName + "(" + strconv.Itoa(disambiguationID) + ")"
}

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, strings.TrimSpace(s))
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}
