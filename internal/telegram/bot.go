package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/din98/family-tasks/internal/access"
	"github.com/din98/family-tasks/internal/family"
	"github.com/din98/family-tasks/internal/model"
	"github.com/din98/family-tasks/internal/task"
)

// longPollTimeout is the getUpdates hold time in seconds. It must stay
// below the sender's HTTP client timeout.
const longPollTimeout = 25

// Bot is the chat-command surface. It long-polls for updates and
// translates commands into repository, registry, and policy calls. The
// chat id of the incoming message is the actor identity and is trusted
// as given.
type Bot struct {
	sender     *Sender
	tasks      *task.Repository
	families   *family.Registry
	policy     *access.Policy
	miniAppURL string

	lastUpdateID int64
}

// NewBot wires the command surface over the core components.
func NewBot(sender *Sender, tasks *task.Repository, families *family.Registry, policy *access.Policy, miniAppURL string) *Bot {
	return &Bot{
		sender:     sender,
		tasks:      tasks,
		families:   families,
		policy:     policy,
		miniAppURL: miniAppURL,
	}
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

// Run blocks, polling for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	log.Println("[bot] Started. Polling for updates...")

	for {
		select {
		case <-ctx.Done():
			log.Println("[bot] Shutting down...")
			return nil
		default:
		}

		updates, err := b.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("[bot] Error: polling failed: %v", err)
			// Brief pause so a broken connection does not spin.
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= b.lastUpdateID {
				b.lastUpdateID = u.UpdateID + 1
			}
			if u.Message == nil || u.Message.Text == "" {
				continue
			}
			b.handleCommand(ctx, model.UserID(u.Message.Chat.ID), u.Message.Text)
		}
	}
}

func (b *Bot) getUpdates(ctx context.Context) ([]update, error) {
	payload := map[string]interface{}{
		"offset":          b.lastUpdateID,
		"timeout":         longPollTimeout,
		"allowed_updates": []string{"message"},
	}

	result, err := b.sender.call(ctx, "getUpdates", payload)
	if err != nil {
		return nil, err
	}

	var updates []update
	if err := json.Unmarshal(result, &updates); err != nil {
		return nil, fmt.Errorf("failed to parse updates: %w", err)
	}
	return updates, nil
}

// handleCommand dispatches one chat message. Every failure turns into a
// chat reply; nothing here can take the bot down.
func (b *Bot) handleCommand(ctx context.Context, actor model.UserID, text string) {
	cmd, args := splitCommand(text)

	switch cmd {
	case "/start":
		b.handleStart(ctx, actor)
	case "/addtask":
		b.handleAddTask(ctx, actor, args)
	case "/mytasks", "/getmytasks":
		b.handleMyTasks(ctx, actor)
	case "/deltask":
		b.handleDelTask(ctx, actor, args)
	case "/reschedule":
		b.handleReschedule(ctx, actor, args)
	case "/newfamily":
		b.handleNewFamily(ctx, actor, args)
	case "/invite":
		b.handleInvite(ctx, actor, args)
	default:
		// Non-command chatter is ignored.
	}
}

func splitCommand(text string) (cmd, args string) {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, ' '); i >= 0 {
		return text[:i], strings.TrimSpace(text[i+1:])
	}
	return text, ""
}

func (b *Bot) handleStart(ctx context.Context, actor model.UserID) {
	markup := map[string]interface{}{
		"inline_keyboard": [][]map[string]interface{}{{{
			"text":    "📋 Open tasks",
			"web_app": map[string]string{"url": b.miniAppURL},
		}}},
	}
	b.send(ctx, actor, func() error {
		return b.sender.SendWithMarkup(ctx, actor,
			"Welcome to the family task manager! Tap the button below to open the app.", markup)
	})
}

// addTaskPayload is the JSON the mini app sends with /addtask.
type addTaskPayload struct {
	Title    string `json:"title"`
	Datetime string `json:"datetime"`
	Shared   bool   `json:"shared,omitempty"`
}

func (b *Bot) handleAddTask(ctx context.Context, actor model.UserID, args string) {
	var payload addTaskPayload
	if err := json.Unmarshal([]byte(args), &payload); err != nil {
		b.reply(ctx, actor, "❌ Could not read the task data")
		return
	}

	dueAt, err := time.Parse(time.RFC3339, payload.Datetime)
	if err != nil {
		b.reply(ctx, actor, "❌ Invalid date/time, expected RFC 3339")
		return
	}

	t := model.Task{
		OwnerID: actor,
		Title:   payload.Title,
		DueAt:   dueAt,
	}
	if payload.Shared {
		famID, ok := b.families.GroupOf(actor)
		if !ok {
			b.reply(ctx, actor, "❌ You are not in a family yet. Create one with /newfamily <name>")
			return
		}
		t.FamilyID = famID
	}

	created, err := b.tasks.Append(ctx, t)
	if err != nil {
		b.replyError(ctx, actor, "add the task", err)
		return
	}
	b.reply(ctx, actor, fmt.Sprintf("✅ Task %q added!", created.Title))
}

func (b *Bot) handleMyTasks(ctx context.Context, actor model.UserID) {
	all, err := b.tasks.ListAll(ctx)
	if err != nil {
		b.reply(ctx, actor, "❌ Failed to load tasks, try again later")
		return
	}

	visible := b.policy.Filter(actor, all)
	if len(visible) == 0 {
		b.reply(ctx, actor, "📝 You have no tasks yet")
		return
	}

	var sb strings.Builder
	sb.WriteString("📋 Your tasks:\n\n")
	for _, t := range visible {
		sb.WriteString(fmt.Sprintf("• %s\n  📅 %s", t.Title, t.DueAt.Local().Format("Mon, 02 Jan 15:04")))
		if t.Shared() {
			if fam, ok := b.families.Get(t.FamilyID); ok {
				sb.WriteString(fmt.Sprintf("  👨‍👩‍👧 %s", fam.Name))
			}
		}
		sb.WriteString(fmt.Sprintf("\n  id: %s\n\n", t.ID))
	}
	b.reply(ctx, actor, sb.String())
}

func (b *Bot) handleDelTask(ctx context.Context, actor model.UserID, args string) {
	id := strings.TrimSpace(args)
	if id == "" {
		b.reply(ctx, actor, "Usage: /deltask <task id>")
		return
	}

	t, err := b.tasks.FindByID(ctx, id)
	if err != nil {
		b.replyError(ctx, actor, "delete the task", err)
		return
	}
	if !b.policy.CanAccess(actor, t) {
		b.reply(ctx, actor, "⛔ This task is not yours to delete")
		return
	}

	if err := b.tasks.Remove(ctx, id); err != nil {
		b.replyError(ctx, actor, "delete the task", err)
		return
	}
	b.reply(ctx, actor, fmt.Sprintf("🗑 Task %q deleted", t.Title))
}

func (b *Bot) handleReschedule(ctx context.Context, actor model.UserID, args string) {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		b.reply(ctx, actor, "Usage: /reschedule <task id> <RFC 3339 time>")
		return
	}
	id := parts[0]

	dueAt, err := time.Parse(time.RFC3339, parts[1])
	if err != nil {
		b.reply(ctx, actor, "❌ Invalid date/time, expected RFC 3339")
		return
	}

	t, err := b.tasks.FindByID(ctx, id)
	if err != nil {
		b.replyError(ctx, actor, "reschedule the task", err)
		return
	}
	if !b.policy.CanAccess(actor, t) {
		b.reply(ctx, actor, "⛔ This task is not yours to edit")
		return
	}

	updated, err := b.tasks.UpdateFields(ctx, id, task.Patch{DueAt: &dueAt})
	if err != nil {
		b.replyError(ctx, actor, "reschedule the task", err)
		return
	}
	b.reply(ctx, actor, fmt.Sprintf("📅 Task %q moved to %s", updated.Title,
		updated.DueAt.Local().Format("Mon, 02 Jan 15:04")))
}

func (b *Bot) handleNewFamily(ctx context.Context, actor model.UserID, args string) {
	name := strings.TrimSpace(args)
	if name == "" {
		b.reply(ctx, actor, "Usage: /newfamily <name>")
		return
	}

	fam, err := b.families.Create(ctx, actor, name)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrAlreadyMember):
			b.reply(ctx, actor, "❌ You already belong to a family")
		case errors.Is(err, model.ErrValidation):
			b.reply(ctx, actor, fmt.Sprintf("❌ Family name must be %d-%d characters",
				family.MinNameLen, family.MaxNameLen))
		default:
			b.replyError(ctx, actor, "create the family", err)
		}
		return
	}
	b.reply(ctx, actor, fmt.Sprintf("👨‍👩‍👧 Family %q created! Invite members with /invite <user id>", fam.Name))
}

func (b *Bot) handleInvite(ctx context.Context, actor model.UserID, args string) {
	inviteeID, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		b.reply(ctx, actor, "Usage: /invite <numeric user id>")
		return
	}
	invitee := model.UserID(inviteeID)

	famID, ok := b.families.GroupOf(actor)
	if !ok {
		b.reply(ctx, actor, "❌ You are not in a family yet. Create one with /newfamily <name>")
		return
	}

	added, err := b.families.Invite(ctx, famID, invitee)
	if err != nil {
		b.replyError(ctx, actor, "send the invite", err)
		return
	}
	if !added {
		b.reply(ctx, actor, "⚠️ Could not add that user (already in a family?)")
		return
	}

	b.reply(ctx, actor, "✅ Member added to your family!")
	// Best effort: tell the invitee. Their chat may not exist yet.
	if fam, ok := b.families.Get(famID); ok {
		if err := b.sender.Send(ctx, invitee, fmt.Sprintf("👨‍👩‍👧 You were added to family %q", fam.Name)); err != nil {
			log.Printf("[bot] Error: invite notice to %d failed: %v", invitee, err)
		}
	}
}

// replyError maps a core error to a chat reply.
func (b *Bot) replyError(ctx context.Context, actor model.UserID, action string, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		b.reply(ctx, actor, "❌ No such task")
	case errors.Is(err, model.ErrForbidden):
		b.reply(ctx, actor, "⛔ You are not allowed to do that")
	case errors.Is(err, model.ErrValidation):
		b.reply(ctx, actor, fmt.Sprintf("❌ Could not %s: %v", action, err))
	default:
		log.Printf("[bot] Error: failed to %s for %d: %v", action, actor, err)
		b.reply(ctx, actor, fmt.Sprintf("❌ Failed to %s, try again later", action))
	}
}

func (b *Bot) reply(ctx context.Context, actor model.UserID, text string) {
	b.send(ctx, actor, func() error {
		return b.sender.Send(ctx, actor, text)
	})
}

func (b *Bot) send(ctx context.Context, actor model.UserID, fn func() error) {
	if err := fn(); err != nil {
		log.Printf("[bot] Error: reply to %d failed: %v", actor, err)
	}
}
