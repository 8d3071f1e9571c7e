// Package task implements the task repository. Every mutation is a full
// read-modify-write of the shared document; there is no finer-grained
// persistence.
package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/din98/family-tasks/internal/model"
)

// Store is the document store the repository operates on.
type Store interface {
	Get(ctx context.Context) (*model.Document, error)
	Put(ctx context.Context, doc *model.Document) error
}

// Repository manages the task list inside the shared document.
type Repository struct {
	store Store
	now   func() time.Time
}

// NewRepository creates a repository over the given store.
func NewRepository(store Store) *Repository {
	return &Repository{
		store: store,
		now:   time.Now,
	}
}

// ListAll returns every task in the document. A store failure is
// returned as an error so callers can tell "no tasks" apart from "could
// not determine"; callers that prefer to degrade (the scheduler tick,
// the chat listing) log and skip instead.
func (r *Repository) ListAll(ctx context.Context) ([]model.Task, error) {
	doc, err := r.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Tasks, nil
}

// FindByID returns the task with the given id, or model.ErrNotFound.
func (r *Repository) FindByID(ctx context.Context, id string) (*model.Task, error) {
	doc, err := r.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	for i := range doc.Tasks {
		if doc.Tasks[i].ID == id {
			t := doc.Tasks[i]
			return &t, nil
		}
	}
	return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
}

// Append validates and persists a new task, returning it with the
// assigned id and creation time. A shared task must reference an
// existing family that the owner belongs to.
func (r *Repository) Append(ctx context.Context, t model.Task) (*model.Task, error) {
	if strings.TrimSpace(t.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", model.ErrValidation)
	}
	if t.DueAt.IsZero() {
		return nil, fmt.Errorf("%w: due time is required", model.ErrValidation)
	}

	doc, err := r.store.Get(ctx)
	if err != nil {
		return nil, err
	}

	if t.FamilyID != "" {
		fam, ok := doc.Families[t.FamilyID]
		if !ok {
			return nil, fmt.Errorf("family %s: %w", t.FamilyID, model.ErrNotFound)
		}
		if !fam.HasMember(t.OwnerID) {
			return nil, fmt.Errorf("user %d is not in family %s: %w", t.OwnerID, t.FamilyID, model.ErrForbidden)
		}
	}

	t.ID = uuid.NewString()
	t.CreatedAt = r.now().UTC()
	t.ClearNotified()

	doc.Tasks = append(doc.Tasks, t)
	if err := r.store.Put(ctx, doc); err != nil {
		return nil, err
	}
	return &t, nil
}

// Patch holds optional fields for a partial task update.
type Patch struct {
	Title *string
	DueAt *time.Time
}

// UpdateFields applies a partial update to a task. Changing the due
// time clears all delivery markers so a rescheduled task can re-fire
// its reminders.
func (r *Repository) UpdateFields(ctx context.Context, id string, patch Patch) (*model.Task, error) {
	doc, err := r.store.Get(ctx)
	if err != nil {
		return nil, err
	}

	for i := range doc.Tasks {
		if doc.Tasks[i].ID != id {
			continue
		}
		t := &doc.Tasks[i]
		if patch.Title != nil {
			if strings.TrimSpace(*patch.Title) == "" {
				return nil, fmt.Errorf("%w: title is required", model.ErrValidation)
			}
			t.Title = *patch.Title
		}
		if patch.DueAt != nil {
			t.DueAt = *patch.DueAt
			t.ClearNotified()
		}
		updated := *t
		if err := r.store.Put(ctx, doc); err != nil {
			return nil, err
		}
		return &updated, nil
	}
	return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
}

// Remove deletes a task by id.
func (r *Repository) Remove(ctx context.Context, id string) error {
	doc, err := r.store.Get(ctx)
	if err != nil {
		return err
	}

	for i := range doc.Tasks {
		if doc.Tasks[i].ID == id {
			doc.Tasks = append(doc.Tasks[:i], doc.Tasks[i+1:]...)
			return r.store.Put(ctx, doc)
		}
	}
	return fmt.Errorf("task %s: %w", id, model.ErrNotFound)
}

// Mark identifies one delivered reminder: a task and a threshold label.
type Mark struct {
	TaskID string
	Label  string
}

// MarkNotified records a batch of delivered reminders in one
// read-modify-write cycle. Marks for tasks that have disappeared in the
// meantime are skipped. Nothing is written when marks is empty.
func (r *Repository) MarkNotified(ctx context.Context, marks []Mark) error {
	if len(marks) == 0 {
		return nil
	}

	doc, err := r.store.Get(ctx)
	if err != nil {
		return err
	}

	byID := make(map[string]*model.Task, len(doc.Tasks))
	for i := range doc.Tasks {
		byID[doc.Tasks[i].ID] = &doc.Tasks[i]
	}

	changed := false
	for _, m := range marks {
		t, ok := byID[m.TaskID]
		if !ok || t.HasNotified(m.Label) {
			continue
		}
		t.MarkNotified(m.Label)
		changed = true
	}
	if !changed {
		return nil
	}
	return r.store.Put(ctx, doc)
}
