package service

import (
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/pantry/internal/core/domain"
)

const handleLength = 8

// Stock is the view of the inventory a recipe works against. Products are
// referenced by type and count only.
type Stock interface {
	CountByType(productType string) int
	RemoveOne(productType string) (domain.Product, error)
}

// StockKeeper runs a check-then-consume sequence without interleaving writers.
type StockKeeper interface {
	Stock
	Atomically(fn func(Stock) error) error
}

// InventoryStore owns every live product together with a per-type index, so
// type counts never need a rescan.
type InventoryStore struct {
	mu       sync.Mutex
	products map[string]*domain.Product     // handle -> product
	byType   map[string]map[string]struct{} // type -> handles
	newID    func() string
}

func NewInventoryStore() *InventoryStore {
	return &InventoryStore{
		products: make(map[string]*domain.Product),
		byType:   make(map[string]map[string]struct{}),
		newID:    uuid.NewString,
	}
}

// Add inserts a product. Its disambiguation id is one above the highest id
// live for the type, or 1 when the type is out of stock.
func (s *InventoryStore) Add(baseName, productType string, expiration time.Time, note string) (domain.Product, error) {
	baseName = strings.TrimSpace(baseName)
	productType = domain.NormalizeType(productType)
	if baseName == "" {
		return domain.Product{}, domain.Errorf(domain.ErrInvalidArgument, "product name is required")
	}
	if productType == "" {
		return domain.Product{}, domain.Errorf(domain.ErrInvalidArgument, "product type is required")
	}
	if expiration.IsZero() {
		return domain.Product{}, domain.Errorf(domain.ErrInvalidArgument, "expiration date is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, handle := s.newIdentityLocked()
	n := s.maxDisambiguationLocked(productType) + 1
	p := &domain.Product{
		ID:               id,
		Handle:           handle,
		BaseName:         baseName,
		DisplayName:      domain.DisplayNameFor(baseName, n),
		Type:             productType,
		ExpirationDate:   domain.DateOf(expiration),
		Note:             strings.TrimSpace(note),
		DisambiguationID: n,
	}
	s.insertLocked(p)
	return *p, nil
}

// List yields products ordered by type, then expiration date. Every range
// over the sequence starts from a fresh snapshot.
func (s *InventoryStore) List() iter.Seq[domain.Product] {
	return func(yield func(domain.Product) bool) {
		for _, p := range s.Products() {
			if !yield(p) {
				return
			}
		}
	}
}

func (s *InventoryStore) Products() []domain.Product {
	s.mu.Lock()
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, *p)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return lessProduct(out[i], out[j]) })
	return out
}

func (s *InventoryStore) Get(handle string) (domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[strings.TrimSpace(handle)]
	if !ok {
		return domain.Product{}, false
	}
	return *p, true
}

func (s *InventoryStore) Expired(asOf time.Time) []domain.Product {
	var out []domain.Product
	for p := range s.List() {
		if p.IsExpired(asOf) {
			out = append(out, p)
		}
	}
	return out
}

func (s *InventoryStore) ExpiringSoon(asOf time.Time, window time.Duration) []domain.Product {
	var out []domain.Product
	for p := range s.List() {
		if p.IsExpiringSoon(asOf, window) {
			out = append(out, p)
		}
	}
	return out
}

func (s *InventoryStore) CountByType(productType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byType[domain.NormalizeType(productType)])
}

func (s *InventoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.products)
}

// Types returns the product types currently in stock, ascending.
func (s *InventoryStore) Types() []string {
	s.mu.Lock()
	types := make([]string, 0, len(s.byType))
	for t := range s.byType {
		types = append(types, t)
	}
	s.mu.Unlock()

	sort.Strings(types)
	return types
}

// RemoveOne removes the earliest expiring product of the type.
func (s *InventoryStore) RemoveOne(productType string) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeOneLocked(domain.NormalizeType(productType))
}

// RemoveByID removes the product with the given handle. It reports false when
// no live product has that handle.
func (s *InventoryStore) RemoveByID(handle string) (domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle = strings.TrimSpace(handle)
	if _, ok := s.products[handle]; !ok {
		return domain.Product{}, false
	}
	return s.removeLocked(handle), true
}

// RemoveAll empties the store and returns how many products were removed.
func (s *InventoryStore) RemoveAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.products)
	s.products = make(map[string]*domain.Product)
	s.byType = make(map[string]map[string]struct{})
	return n
}

// RemoveType removes every product of the type.
func (s *InventoryStore) RemoveType(productType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	productType = domain.NormalizeType(productType)
	handles := s.byType[productType]
	n := len(handles)
	for h := range handles {
		delete(s.products, h)
	}
	delete(s.byType, productType)
	return n
}

// Atomically runs fn while holding the store lock. Products removed through
// the Stock passed to fn are put back, identity unchanged, if fn fails.
func (s *InventoryStore) Atomically(fn func(Stock) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &lockedStock{store: s}
	if err := fn(tx); err != nil {
		for i := len(tx.removed) - 1; i >= 0; i-- {
			p := tx.removed[i]
			s.insertLocked(&p)
		}
		return err
	}
	return nil
}

// Restore replaces the store content with previously persisted products.
// QuantityAtType is recomputed; identities are kept as stored.
func (s *InventoryStore) Restore(products []domain.Product) error {
	snap, err := newInventorySnapshot(products)
	if err != nil {
		return err
	}
	s.install(snap)
	return nil
}

type inventorySnapshot struct {
	products map[string]*domain.Product
	byType   map[string]map[string]struct{}
}

// newInventorySnapshot validates persisted products and indexes them without
// touching any store.
func newInventorySnapshot(products []domain.Product) (inventorySnapshot, error) {
	loaded := make(map[string]*domain.Product, len(products))
	byType := make(map[string]map[string]struct{})
	seen := make(map[string]map[int]string)

	for i := range products {
		p := products[i]
		p.Type = domain.NormalizeType(p.Type)
		if p.Handle == "" || p.Type == "" || p.DisambiguationID < 1 {
			return inventorySnapshot{}, domain.Errorf(domain.ErrInconsistentState, "stored product %q is incomplete", p.ID)
		}
		if _, dup := loaded[p.Handle]; dup {
			return inventorySnapshot{}, domain.Errorf(domain.ErrInconsistentState, "duplicate handle %s", p.Handle)
		}
		if seen[p.Type] == nil {
			seen[p.Type] = make(map[int]string)
		}
		if other, dup := seen[p.Type][p.DisambiguationID]; dup {
			return inventorySnapshot{}, domain.Errorf(domain.ErrInconsistentState, "products %s and %s share id %d of type %s",
				other, p.Handle, p.DisambiguationID, p.Type)
		}
		seen[p.Type][p.DisambiguationID] = p.Handle

		if p.BaseName == "" {
			p.BaseName = p.DisplayName
		}
		p.DisplayName = domain.DisplayNameFor(p.BaseName, p.DisambiguationID)
		loaded[p.Handle] = &p
		if byType[p.Type] == nil {
			byType[p.Type] = make(map[string]struct{})
		}
		byType[p.Type][p.Handle] = struct{}{}
	}

	return inventorySnapshot{products: loaded, byType: byType}, nil
}

// install replaces the store content with a validated snapshot and
// recomputes QuantityAtType.
func (s *InventoryStore) install(snap inventorySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.products = snap.products
	s.byType = snap.byType
	for t := range snap.byType {
		s.syncQuantityLocked(t)
	}
}

func (s *InventoryStore) newIdentityLocked() (string, string) {
	for {
		id := s.newID()
		handle := shortHandle(id)
		if _, taken := s.products[handle]; !taken {
			return id, handle
		}
	}
}

func (s *InventoryStore) maxDisambiguationLocked(productType string) int {
	highest := 0
	for h := range s.byType[productType] {
		if n := s.products[h].DisambiguationID; n > highest {
			highest = n
		}
	}
	return highest
}

func (s *InventoryStore) insertLocked(p *domain.Product) {
	s.products[p.Handle] = p
	handles, ok := s.byType[p.Type]
	if !ok {
		handles = make(map[string]struct{})
		s.byType[p.Type] = handles
	}
	handles[p.Handle] = struct{}{}
	s.syncQuantityLocked(p.Type)
}

func (s *InventoryStore) removeLocked(handle string) domain.Product {
	p := s.products[handle]
	delete(s.products, handle)
	delete(s.byType[p.Type], handle)
	s.syncQuantityLocked(p.Type)
	return *p
}

func (s *InventoryStore) removeOneLocked(productType string) (domain.Product, error) {
	var oldest *domain.Product
	for h := range s.byType[productType] {
		p := s.products[h]
		if oldest == nil || lessExpiry(*p, *oldest) {
			oldest = p
		}
	}
	if oldest == nil {
		return domain.Product{}, domain.Errorf(domain.ErrNotFound, "no product of type %q", productType)
	}
	return s.removeLocked(oldest.Handle), nil
}

// syncQuantityLocked writes the live count of a type onto each of its products.
func (s *InventoryStore) syncQuantityLocked(productType string) {
	handles := s.byType[productType]
	if len(handles) == 0 {
		delete(s.byType, productType)
		return
	}
	n := len(handles)
	for h := range handles {
		s.products[h].QuantityAtType = n
	}
}

// lockedStock is the Stock handed to Atomically callbacks. The store lock is
// already held.
type lockedStock struct {
	store   *InventoryStore
	removed []domain.Product
}

func (l *lockedStock) CountByType(productType string) int {
	return len(l.store.byType[domain.NormalizeType(productType)])
}

func (l *lockedStock) RemoveOne(productType string) (domain.Product, error) {
	p, err := l.store.removeOneLocked(domain.NormalizeType(productType))
	if err != nil {
		return domain.Product{}, err
	}
	l.removed = append(l.removed, p)
	return p, nil
}

func shortHandle(id string) string {
	compact := strings.ReplaceAll(id, "-", "")
	if len(compact) <= handleLength {
		return compact
	}
	return compact[len(compact)-handleLength:]
}

func lessExpiry(a, b domain.Product) bool {
	if !a.ExpirationDate.Equal(b.ExpirationDate) {
		return a.ExpirationDate.Before(b.ExpirationDate)
	}
	if a.DisambiguationID != b.DisambiguationID {
		return a.DisambiguationID < b.DisambiguationID
	}
	return a.Handle < b.Handle
}

func lessProduct(a, b domain.Product) bool {
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	return lessExpiry(a, b)
}
