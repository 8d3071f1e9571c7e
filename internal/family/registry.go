// Package family implements the family registry: named member groups
// that share task visibility and reminder fan-out.
package family

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/din98/family-tasks/internal/model"
)

// Family name length bounds, in runes.
const (
	MinNameLen = 2
	MaxNameLen = 50
)

// Store is the document store the registry persists through.
type Store interface {
	Get(ctx context.Context) (*model.Document, error)
	Put(ctx context.Context, doc *model.Document) error
}

// Registry holds the family map in memory alongside an inverted
// member index, and persists changes by rewriting the families section
// of the whole document.
//
// AllowTransfer preserves the legacy invite behavior: an invitee who
// already belongs to a different family is added anyway, leaving them
// in two families. Off by default; the default rejects such invites to
// keep the one-family-per-user invariant.
type Registry struct {
	store         Store
	allowTransfer bool
	now           func() time.Time

	mu       sync.RWMutex
	families map[string]model.Family
	memberOf map[model.UserID]string
}

// NewRegistry creates an empty registry; call Load before use.
func NewRegistry(store Store, allowTransfer bool) *Registry {
	return &Registry{
		store:         store,
		allowTransfer: allowTransfer,
		now:           time.Now,
		families:      map[string]model.Family{},
		memberOf:      map[model.UserID]string{},
	}
}

// Load reads the document and rebuilds the in-memory family map and
// member index.
func (r *Registry) Load(ctx context.Context) error {
	doc, err := r.store.Get(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebuild(doc.Families)
	return nil
}

// rebuild replaces the in-memory state. Callers hold r.mu. If legacy
// data has a user in two families, the first family indexed wins, which
// matches the old first-match-wins scan.
func (r *Registry) rebuild(families map[string]model.Family) {
	r.families = families
	r.memberOf = make(map[model.UserID]string, len(families))
	for id, fam := range families {
		for _, m := range fam.Members {
			if _, ok := r.memberOf[m]; !ok {
				r.memberOf[m] = id
			}
		}
	}
}

// GroupOf returns the family the given user belongs to, if any.
func (r *Registry) GroupOf(id model.UserID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	famID, ok := r.memberOf[id]
	return famID, ok
}

// Get returns a family by id.
func (r *Registry) Get(famID string) (*model.Family, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fam, ok := r.families[famID]
	if !ok {
		return nil, false
	}
	return &fam, true
}

// Members returns the member list of a family.
func (r *Registry) Members(famID string) ([]model.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fam, ok := r.families[famID]
	if !ok {
		return nil, false
	}
	members := make([]model.UserID, len(fam.Members))
	copy(members, fam.Members)
	return members, true
}

// Create makes a new family with the creator as its only member.
// Fails with model.ErrValidation if the name is out of bounds and with
// model.ErrAlreadyMember if the creator already belongs to a family.
func (r *Registry) Create(ctx context.Context, creator model.UserID, name string) (*model.Family, error) {
	if n := utf8.RuneCountInString(name); n < MinNameLen || n > MaxNameLen {
		return nil, fmt.Errorf("%w: family name must be %d-%d characters", model.ErrValidation, MinNameLen, MaxNameLen)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if famID, ok := r.memberOf[creator]; ok {
		return nil, fmt.Errorf("user %d is already in family %s: %w", creator, famID, model.ErrAlreadyMember)
	}

	fam := model.Family{
		ID:        uuid.NewString(),
		Name:      name,
		Members:   []model.UserID{creator},
		CreatedBy: creator,
		CreatedAt: r.now().UTC(),
	}

	if err := r.commit(ctx, func(families map[string]model.Family) {
		families[fam.ID] = fam
	}); err != nil {
		return nil, err
	}
	return &fam, nil
}

// Invite adds a user to an existing family. It returns false without
// error when the family does not exist, the user is already in it, or
// the user belongs to another family and transfers are disallowed.
func (r *Registry) Invite(ctx context.Context, famID string, invitee model.UserID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fam, ok := r.families[famID]
	if !ok {
		return false, nil
	}
	if fam.HasMember(invitee) {
		return false, nil
	}
	if other, ok := r.memberOf[invitee]; ok && other != famID && !r.allowTransfer {
		return false, nil
	}

	if err := r.commit(ctx, func(families map[string]model.Family) {
		f, ok := families[famID]
		if !ok || f.HasMember(invitee) {
			return
		}
		f.Members = append(f.Members, invitee)
		families[famID] = f
	}); err != nil {
		return false, err
	}
	return true, nil
}

// commit re-reads the document, applies the mutation to its family map,
// writes the whole document back, and on success rebuilds the in-memory
// state from what was written. Tasks in the document are carried
// through untouched. Callers hold r.mu.
func (r *Registry) commit(ctx context.Context, mutate func(map[string]model.Family)) error {
	doc, err := r.store.Get(ctx)
	if err != nil {
		return err
	}

	mutate(doc.Families)

	if err := r.store.Put(ctx, doc); err != nil {
		return err
	}
	r.rebuild(doc.Families)
	return nil
}
