package model

import "time"

// UserID identifies an actor. It is the Telegram chat id of the user and
// is trusted as given by the command surface.
type UserID int64

// Task represents one reminder unit. A task is personal unless FamilyID
// is set, in which case it is shared with every member of that family.
//
// JSON field names match the legacy document layout (userId, datetime,
// notified) so existing bins keep loading.
type Task struct {
	ID        string    `json:"id"`
	OwnerID   UserID    `json:"userId"`
	Title     string    `json:"title"`
	DueAt     time.Time `json:"datetime"`
	CreatedAt time.Time `json:"createdAt"`
	FamilyID  string    `json:"familyId,omitempty"`

	// NotifiedThresholds records which reminder lead times (e.g. "5h",
	// "30m") have already been delivered for this task.
	NotifiedThresholds []string `json:"notifiedThresholds,omitempty"`

	// Notified is the legacy single-reminder flag from before multiple
	// thresholds existed. It is read but never written back as true: a
	// legacy-notified task is treated as fully reminded until it is
	// rescheduled, so migrated bins are not re-notified.
	Notified bool `json:"notified,omitempty"`
}

// Shared reports whether the task belongs to a family.
func (t *Task) Shared() bool {
	return t.FamilyID != ""
}

// HasNotified reports whether the reminder for the given threshold label
// has already been delivered.
func (t *Task) HasNotified(label string) bool {
	if t.Notified {
		return true
	}
	for _, l := range t.NotifiedThresholds {
		if l == label {
			return true
		}
	}
	return false
}

// MarkNotified records a delivered threshold. Marking is idempotent.
func (t *Task) MarkNotified(label string) {
	if t.HasNotified(label) {
		return
	}
	t.NotifiedThresholds = append(t.NotifiedThresholds, label)
}

// ClearNotified resets all delivery markers, legacy flag included.
// Called when a task is rescheduled so reminders can fire again.
func (t *Task) ClearNotified() {
	t.NotifiedThresholds = nil
	t.Notified = false
}

// Family is a named set of member identities sharing visibility into
// each other's shared tasks.
type Family struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Members   []UserID  `json:"members"`
	CreatedBy UserID    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasMember reports whether id is a member of the family.
func (f *Family) HasMember(id UserID) bool {
	for _, m := range f.Members {
		if m == id {
			return true
		}
	}
	return false
}

// Document is the single persisted aggregate: the full task list plus
// the family registry. It is always read and written wholesale; there
// is no partial update and no version token, so concurrent writers race
// with last-write-wins semantics.
type Document struct {
	Tasks    []Task            `json:"tasks"`
	Families map[string]Family `json:"families"`
}

// Normalize fills in nil collections so that documents from older bins
// (or an empty bin) behave like an empty document.
func (d *Document) Normalize() {
	if d.Tasks == nil {
		d.Tasks = []Task{}
	}
	if d.Families == nil {
		d.Families = map[string]Family{}
	}
}
