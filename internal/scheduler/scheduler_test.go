package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/din98/family-tasks/internal/model"
	"github.com/din98/family-tasks/internal/task"
)

type fakeSource struct {
	tasks   []model.Task
	listErr error
	markErr error
	writes  int
}

func (f *fakeSource) ListAll(ctx context.Context) ([]model.Task, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Task{}, f.tasks...), nil
}

func (f *fakeSource) MarkNotified(ctx context.Context, marks []task.Mark) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.writes++
	for _, m := range marks {
		for i := range f.tasks {
			if f.tasks[i].ID == m.TaskID {
				f.tasks[i].MarkNotified(m.Label)
			}
		}
	}
	return nil
}

type fakeMembers map[string][]model.UserID

func (f fakeMembers) Members(famID string) ([]model.UserID, bool) {
	members, ok := f[famID]
	return members, ok
}

type sentMessage struct {
	recipient model.UserID
	text      string
}

type fakeSender struct {
	sent    []sentMessage
	failFor map[model.UserID]bool
}

func (f *fakeSender) Send(ctx context.Context, recipient model.UserID, text string) error {
	if f.failFor[recipient] {
		return errors.New("send failed")
	}
	f.sent = append(f.sent, sentMessage{recipient: recipient, text: text})
	return nil
}

func newTestScheduler(src *fakeSource, members fakeMembers, sender *fakeSender, thresholds []Threshold, now time.Time) *Scheduler {
	s := New(src, members, sender, time.Minute, thresholds)
	s.now = func() time.Time { return now }
	return s
}

// TestTickSingleThresholdScenario: a personal task due in 5h gets one
// reminder once the window is entered, and an immediate second tick
// delivers nothing further.
func TestTickSingleThresholdScenario(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{tasks: []model.Task{{
		ID:      "t1",
		OwnerID: 42,
		Title:   "Pay rent",
		DueAt:   base.Add(5 * time.Hour),
	}}}
	sender := &fakeSender{}
	thresholds := []Threshold{{Label: "5h", Lead: 5 * time.Hour}}

	// remaining = 1m, inside the 5h window.
	tickAt := base.Add(4*time.Hour + 59*time.Minute)
	s := newTestScheduler(src, fakeMembers{}, sender, thresholds, tickAt)

	s.Tick(context.Background())

	require.Len(t, sender.sent, 1)
	assert.Equal(t, model.UserID(42), sender.sent[0].recipient)
	assert.Contains(t, sender.sent[0].text, "Pay rent")
	assert.Equal(t, []string{"5h"}, src.tasks[0].NotifiedThresholds)
	assert.Equal(t, 1, src.writes)

	// Second tick with the same clock: the marker is already set.
	s.Tick(context.Background())
	assert.Len(t, sender.sent, 1)
	assert.Equal(t, 1, src.writes, "no marker changes, no write")
}

func TestTickThresholdProgression(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{tasks: []model.Task{{
		ID:      "t1",
		OwnerID: 7,
		Title:   "Board game night",
		DueAt:   base.Add(6 * time.Hour),
	}}}
	sender := &fakeSender{}
	s := newTestScheduler(src, fakeMembers{}, sender, DefaultThresholds(), base)

	// remaining = 6h: outside every window.
	s.Tick(context.Background())
	assert.Empty(t, sender.sent)

	// remaining = 4h: the 5h window fires, the 1h window does not.
	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	s.Tick(context.Background())
	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"5h"}, src.tasks[0].NotifiedThresholds)

	// remaining = 55m: the 1h window fires once.
	s.now = func() time.Time { return base.Add(5*time.Hour + 5*time.Minute) }
	s.Tick(context.Background())
	require.Len(t, sender.sent, 2)
	assert.Equal(t, []string{"5h", "1h"}, src.tasks[0].NotifiedThresholds)
}

// TestTickLateCreationFiresAllCrossedWindows pins the behavior for a
// task created close to its due time: every already-crossed window
// fires on the first tick, each exactly once.
func TestTickLateCreationFiresAllCrossedWindows(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{tasks: []model.Task{{
		ID:      "t1",
		OwnerID: 7,
		Title:   "Leave now",
		DueAt:   base.Add(20 * time.Minute),
	}}}
	sender := &fakeSender{}
	s := newTestScheduler(src, fakeMembers{}, sender, DefaultThresholds(), base)

	s.Tick(context.Background())
	assert.Len(t, sender.sent, 3) // 5h, 1h and 30m windows are all crossed
	assert.Equal(t, []string{"5h", "1h", "30m"}, src.tasks[0].NotifiedThresholds)

	s.Tick(context.Background())
	assert.Len(t, sender.sent, 3)
}

func TestTickOverdueWindowNeverFires(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{tasks: []model.Task{{
		ID:      "t1",
		OwnerID: 7,
		Title:   "Missed",
		DueAt:   base.Add(-time.Minute),
	}}}
	sender := &fakeSender{}
	s := newTestScheduler(src, fakeMembers{}, sender, DefaultThresholds(), base)

	s.Tick(context.Background())
	assert.Empty(t, sender.sent)
	assert.Equal(t, 0, src.writes)
}

func TestTickFamilyFanOut(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{tasks: []model.Task{{
		ID:       "t1",
		OwnerID:  1,
		Title:    "Vet appointment",
		DueAt:    base.Add(10 * time.Minute),
		FamilyID: "fam-1",
	}}}
	members := fakeMembers{"fam-1": {1, 2, 3}}
	// Delivery to user 2 fails; the others must still get theirs.
	sender := &fakeSender{failFor: map[model.UserID]bool{2: true}}
	thresholds := []Threshold{{Label: "15m", Lead: 15 * time.Minute}}
	s := newTestScheduler(src, members, sender, thresholds, base)

	s.Tick(context.Background())

	require.Len(t, sender.sent, 2)
	assert.Equal(t, model.UserID(1), sender.sent[0].recipient)
	assert.Equal(t, model.UserID(3), sender.sent[1].recipient)

	// The marker is set even though one recipient failed.
	assert.True(t, src.tasks[0].HasNotified("15m"))
}

func TestTickSharedTaskWithoutFamilyFallsBackToOwner(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{tasks: []model.Task{{
		ID:       "t1",
		OwnerID:  1,
		Title:    "Orphaned",
		DueAt:    base.Add(10 * time.Minute),
		FamilyID: "deleted",
	}}}
	sender := &fakeSender{}
	thresholds := []Threshold{{Label: "15m", Lead: 15 * time.Minute}}
	s := newTestScheduler(src, fakeMembers{}, sender, thresholds, base)

	s.Tick(context.Background())
	require.Len(t, sender.sent, 1)
	assert.Equal(t, model.UserID(1), sender.sent[0].recipient)
}

func TestTickStoreFailureSkipsPass(t *testing.T) {
	src := &fakeSource{listErr: model.ErrStoreUnavailable}
	sender := &fakeSender{}
	s := newTestScheduler(src, fakeMembers{}, sender, DefaultThresholds(), time.Now())

	s.Tick(context.Background())
	assert.Empty(t, sender.sent)
}

func TestTickMarkerWriteFailureDoesNotPanicNextTick(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{
		tasks: []model.Task{{
			ID:      "t1",
			OwnerID: 1,
			Title:   "Flaky store",
			DueAt:   base.Add(10 * time.Minute),
		}},
		markErr: errors.New("write failed"),
	}
	sender := &fakeSender{}
	thresholds := []Threshold{{Label: "15m", Lead: 15 * time.Minute}}
	s := newTestScheduler(src, fakeMembers{}, sender, thresholds, base)

	s.Tick(context.Background())
	require.Len(t, sender.sent, 1)

	// The marker never landed, so the next tick re-delivers: the
	// accepted contract is at-least-once.
	src.markErr = nil
	s.Tick(context.Background())
	assert.Len(t, sender.sent, 2)
	assert.True(t, src.tasks[0].HasNotified("15m"))
}

func TestParseThresholds(t *testing.T) {
	thresholds, err := ParseThresholds([]string{"5h", "30m"})
	require.NoError(t, err)
	require.Len(t, thresholds, 2)
	assert.Equal(t, "5h", thresholds[0].Label)
	assert.Equal(t, 5*time.Hour, thresholds[0].Lead)
	assert.Equal(t, 30*time.Minute, thresholds[1].Lead)

	_, err = ParseThresholds([]string{"soon"})
	assert.Error(t, err)

	_, err = ParseThresholds([]string{"-5m"})
	assert.Error(t, err)
}

func TestFormatRemaining(t *testing.T) {
	assert.Equal(t, "4h 59m", formatRemaining(4*time.Hour+59*time.Minute))
	assert.Equal(t, "2h", formatRemaining(2*time.Hour))
	assert.Equal(t, "30m", formatRemaining(30*time.Minute))
	assert.Equal(t, "1m", formatRemaining(10*time.Second))
}
