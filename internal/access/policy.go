// Package access decides who may see, edit, or delete a task. There is
// a single predicate for all three; the system deliberately has no
// separate read and write policies.
package access

import "github.com/din98/family-tasks/internal/model"

// Membership resolves which family a user belongs to.
type Membership interface {
	GroupOf(id model.UserID) (string, bool)
}

// Policy gates task operations on ownership and family membership.
type Policy struct {
	membership Membership
}

// NewPolicy creates a policy over the given membership source.
func NewPolicy(membership Membership) *Policy {
	return &Policy{membership: membership}
}

// CanAccess reports whether actor may view, edit, or delete the task:
// true iff the actor owns it, or it is shared with the actor's family.
func (p *Policy) CanAccess(actor model.UserID, t *model.Task) bool {
	if t.OwnerID == actor {
		return true
	}
	if !t.Shared() {
		return false
	}
	famID, ok := p.membership.GroupOf(actor)
	return ok && famID == t.FamilyID
}

// Filter returns the tasks visible to the actor, preserving order.
func (p *Policy) Filter(actor model.UserID, tasks []model.Task) []model.Task {
	visible := make([]model.Task, 0, len(tasks))
	for i := range tasks {
		if p.CanAccess(actor, &tasks[i]) {
			visible = append(visible, tasks[i])
		}
	}
	return visible
}
