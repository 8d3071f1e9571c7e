package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/din98/family-tasks/internal/access"
	"github.com/din98/family-tasks/internal/family"
	"github.com/din98/family-tasks/internal/model"
	"github.com/din98/family-tasks/internal/task"
)

type memStore struct {
	doc model.Document
}

func (m *memStore) Get(ctx context.Context) (*model.Document, error) {
	data, err := json.Marshal(m.doc)
	if err != nil {
		return nil, err
	}
	var copy model.Document
	if err := json.Unmarshal(data, &copy); err != nil {
		return nil, err
	}
	copy.Normalize()
	return &copy, nil
}

func (m *memStore) Put(ctx context.Context, doc *model.Document) error {
	m.doc = *doc
	return nil
}

type reply struct {
	chatID int64
	text   string
}

// newTestBot wires a bot over an in-memory store and a fake Bot API
// that records every sendMessage call.
func newTestBot(t *testing.T, store *memStore) (*Bot, *[]reply) {
	t.Helper()

	replies := &[]reply{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			ChatID int64  `json:"chat_id"`
			Text   string `json:"text"`
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &payload)
		*replies = append(*replies, reply{chatID: payload.ChatID, text: payload.Text})
		io.WriteString(w, `{"ok":true}`)
	}))
	t.Cleanup(srv.Close)

	sender := NewSender("token")
	sender.SetBaseURL(srv.URL)

	registry := family.NewRegistry(store, false)
	require.NoError(t, registry.Load(context.Background()))

	repo := task.NewRepository(store)
	policy := access.NewPolicy(registry)

	return NewBot(sender, repo, registry, policy, "https://example.test/app"), replies
}

func sharedTaskStore() *memStore {
	return &memStore{doc: model.Document{
		Tasks: []model.Task{{
			ID:                 "t1",
			OwnerID:            1,
			Title:              "Water the plants",
			DueAt:              time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
			FamilyID:           "G",
			NotifiedThresholds: []string{"5h"},
		}},
		Families: map[string]model.Family{
			"G": {ID: "G", Name: "Smiths", Members: []model.UserID{1, 2}, CreatedBy: 1},
		},
	}}
}

// TestRescheduleSharedTask: a non-member is refused, a family member
// may move the due time, and doing so re-arms the reminders.
func TestRescheduleSharedTask(t *testing.T) {
	store := sharedTaskStore()
	bot, replies := newTestBot(t, store)
	ctx := context.Background()

	bot.handleCommand(ctx, 3, "/reschedule t1 2026-03-05T09:00:00Z")
	require.Len(t, *replies, 1)
	assert.Equal(t, int64(3), (*replies)[0].chatID)
	assert.Contains(t, (*replies)[0].text, "not yours")
	assert.Equal(t, []string{"5h"}, store.doc.Tasks[0].NotifiedThresholds, "denied edit must not touch the task")

	bot.handleCommand(ctx, 2, "/reschedule t1 2026-03-05T09:00:00Z")
	require.Len(t, *replies, 2)
	assert.Contains(t, (*replies)[1].text, "Water the plants")

	moved := store.doc.Tasks[0]
	assert.True(t, moved.DueAt.Equal(time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)))
	assert.Empty(t, moved.NotifiedThresholds)
}

func TestDelTaskAccess(t *testing.T) {
	store := sharedTaskStore()
	bot, replies := newTestBot(t, store)
	ctx := context.Background()

	bot.handleCommand(ctx, 3, "/deltask t1")
	require.Len(t, *replies, 1)
	assert.Contains(t, (*replies)[0].text, "not yours")
	assert.Len(t, store.doc.Tasks, 1)

	bot.handleCommand(ctx, 1, "/deltask t1")
	require.Len(t, *replies, 2)
	assert.Contains(t, (*replies)[1].text, "deleted")
	assert.Empty(t, store.doc.Tasks)
}

func TestMyTasksVisibility(t *testing.T) {
	store := sharedTaskStore()
	bot, replies := newTestBot(t, store)
	ctx := context.Background()

	bot.handleCommand(ctx, 2, "/mytasks")
	require.Len(t, *replies, 1)
	assert.Contains(t, (*replies)[0].text, "Water the plants")

	bot.handleCommand(ctx, 3, "/mytasks")
	require.Len(t, *replies, 2)
	assert.Contains(t, (*replies)[1].text, "no tasks yet")
}

func TestAddTaskCommand(t *testing.T) {
	store := sharedTaskStore()
	bot, replies := newTestBot(t, store)
	ctx := context.Background()

	bot.handleCommand(ctx, 2, `/addtask {"title":"Buy milk","datetime":"2026-03-03T18:00:00Z"}`)
	require.Len(t, *replies, 1)
	assert.Contains(t, (*replies)[0].text, "✅")
	require.Len(t, store.doc.Tasks, 2)
	added := store.doc.Tasks[1]
	assert.Equal(t, "Buy milk", added.Title)
	assert.Equal(t, model.UserID(2), added.OwnerID)
	assert.False(t, added.Shared())

	// Shared creation picks up the actor's family.
	bot.handleCommand(ctx, 2, `/addtask {"title":"Family dinner","datetime":"2026-03-03T19:00:00Z","shared":true}`)
	require.Len(t, store.doc.Tasks, 3)
	assert.Equal(t, "G", store.doc.Tasks[2].FamilyID)

	// A user without a family cannot create a shared task.
	bot.handleCommand(ctx, 3, `/addtask {"title":"Nope","datetime":"2026-03-03T19:00:00Z","shared":true}`)
	assert.Len(t, store.doc.Tasks, 3)
	assert.Contains(t, (*replies)[len(*replies)-1].text, "not in a family")

	bot.handleCommand(ctx, 2, `/addtask not-json`)
	assert.Contains(t, (*replies)[len(*replies)-1].text, "❌")
}

func TestFamilyCommands(t *testing.T) {
	store := &memStore{}
	bot, replies := newTestBot(t, store)
	ctx := context.Background()

	bot.handleCommand(ctx, 10, "/newfamily The Does")
	require.Len(t, *replies, 1)
	assert.Contains(t, (*replies)[0].text, "The Does")
	require.Len(t, store.doc.Families, 1)

	// /invite sends a confirmation to the inviter and a notice to the
	// invitee.
	bot.handleCommand(ctx, 10, "/invite 11")
	texts := *replies
	require.Len(t, texts, 3)
	assert.Equal(t, int64(10), texts[1].chatID)
	assert.Contains(t, texts[1].text, "added")
	assert.Equal(t, int64(11), texts[2].chatID)

	bot.handleCommand(ctx, 10, "/invite 11")
	assert.Contains(t, (*replies)[len(*replies)-1].text, "⚠️")

	bot.handleCommand(ctx, 10, "/newfamily Another")
	assert.Contains(t, (*replies)[len(*replies)-1].text, "already belong")
}

func TestSplitCommand(t *testing.T) {
	cmd, args := splitCommand("/addtask {\"title\":\"x\"}")
	assert.Equal(t, "/addtask", cmd)
	assert.Equal(t, "{\"title\":\"x\"}", args)

	cmd, args = splitCommand("/mytasks")
	assert.Equal(t, "/mytasks", cmd)
	assert.Empty(t, args)
}
