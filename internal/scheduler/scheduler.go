// Package scheduler runs the periodic reminder reconciliation loop:
// fetch all tasks, decide which reminder thresholds have been crossed,
// deliver messages, and persist the delivery markers.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/din98/family-tasks/internal/model"
	"github.com/din98/family-tasks/internal/task"
)

// Threshold is one configured reminder lead time. Label is the stable
// identifier persisted in a task's delivery markers.
type Threshold struct {
	Label string
	Lead  time.Duration
}

// DefaultThresholds returns the standard reminder ladder, widest first.
func DefaultThresholds() []Threshold {
	return []Threshold{
		{Label: "5h", Lead: 5 * time.Hour},
		{Label: "1h", Lead: time.Hour},
		{Label: "30m", Lead: 30 * time.Minute},
		{Label: "15m", Lead: 15 * time.Minute},
	}
}

// ParseThresholds converts duration strings ("5h", "30m") into
// thresholds, using the string itself as the marker label.
func ParseThresholds(specs []string) ([]Threshold, error) {
	thresholds := make([]Threshold, 0, len(specs))
	for _, spec := range specs {
		d, err := time.ParseDuration(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid threshold %q: %w", spec, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid threshold %q: must be positive", spec)
		}
		thresholds = append(thresholds, Threshold{Label: spec, Lead: d})
	}
	return thresholds, nil
}

// TaskSource is the repository surface the scheduler needs.
type TaskSource interface {
	ListAll(ctx context.Context) ([]model.Task, error)
	MarkNotified(ctx context.Context, marks []task.Mark) error
}

// Membership resolves reminder fan-out for shared tasks.
type Membership interface {
	Members(famID string) ([]model.UserID, bool)
}

// Sender delivers one reminder message to one recipient.
type Sender interface {
	Send(ctx context.Context, recipient model.UserID, text string) error
}

// Scheduler checks tasks against the threshold ladder on a fixed
// interval and sends reminders through the delivery channel.
type Scheduler struct {
	tasks      TaskSource
	membership Membership
	sender     Sender
	interval   time.Duration
	thresholds []Threshold
	now        func() time.Time
}

// New creates a scheduler. Thresholds are checked in the given order;
// pass them widest first.
func New(tasks TaskSource, membership Membership, sender Sender, interval time.Duration, thresholds []Threshold) *Scheduler {
	return &Scheduler{
		tasks:      tasks,
		membership: membership,
		sender:     sender,
		interval:   interval,
		thresholds: thresholds,
		now:        time.Now,
	}
}

// Run blocks and runs Tick on interval + immediately on start.
// It exits when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", s.interval)
	}

	log.Printf("[scheduler] Started. Interval: %s, thresholds: %d", s.interval, len(s.thresholds))

	s.Tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[scheduler] Shutting down...")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs one reconciliation pass. Nothing in it is fatal: a
// store read failure skips the pass, a failed marker write is retried
// implicitly by the next tick re-evaluating the same idempotent checks.
func (s *Scheduler) Tick(ctx context.Context) {
	tasks, err := s.tasks.ListAll(ctx)
	if err != nil {
		log.Printf("[scheduler] Error: task fetch failed, skipping tick: %v", err)
		return
	}

	now := s.now()
	var marks []task.Mark

	for i := range tasks {
		t := &tasks[i]
		remaining := t.DueAt.Sub(now)

		// Overdue windows are never fired retroactively.
		if remaining <= 0 {
			continue
		}

		for _, th := range s.thresholds {
			if remaining > th.Lead || t.HasNotified(th.Label) {
				continue
			}
			s.deliver(ctx, t, remaining)

			// Mark even when some recipients failed: the contract is
			// at-least-once, not exactly-once.
			t.MarkNotified(th.Label)
			marks = append(marks, task.Mark{TaskID: t.ID, Label: th.Label})
		}
	}

	if len(marks) == 0 {
		return
	}
	if err := s.tasks.MarkNotified(ctx, marks); err != nil {
		log.Printf("[scheduler] Error: marker write failed (next tick retries): %v", err)
	}
}

// deliver sends one reminder to every recipient of the task. Failures
// are per-recipient: one failed send never blocks the others.
func (s *Scheduler) deliver(ctx context.Context, t *model.Task, remaining time.Duration) {
	text := fmt.Sprintf("🔔 Reminder!\n%q is due in %s.", t.Title, formatRemaining(remaining))

	for _, recipient := range s.recipients(t) {
		if err := s.sender.Send(ctx, recipient, text); err != nil {
			log.Printf("[scheduler] Error: send to %d failed for task %s: %v", recipient, t.ID, err)
			continue
		}
		log.Printf("[scheduler] Reminder sent to %d for task %s", recipient, t.ID)
	}
}

// recipients resolves the fan-out set: the owner for a personal task,
// every family member for a shared one. A shared task whose family has
// been deleted falls back to the owner.
func (s *Scheduler) recipients(t *model.Task) []model.UserID {
	if t.Shared() {
		if members, ok := s.membership.Members(t.FamilyID); ok && len(members) > 0 {
			return members
		}
	}
	return []model.UserID{t.OwnerID}
}

// formatRemaining renders a lead time for the reminder text, rounded to
// the minute.
func formatRemaining(d time.Duration) string {
	d = d.Round(time.Minute)
	if d < time.Minute {
		d = time.Minute
	}
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dm", m)
	}
}
