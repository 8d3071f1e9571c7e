// Package mcpserver exposes the task and family operations as MCP
// tools, so the companion application can drive the same core the chat
// bot uses. The caller-supplied user_id is the actor identity and is
// trusted as given.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/din98/family-tasks/internal/access"
	"github.com/din98/family-tasks/internal/family"
	"github.com/din98/family-tasks/internal/model"
	"github.com/din98/family-tasks/internal/task"
)

const (
	serverName    = "family-tasks"
	serverVersion = "1.0.0"
)

// Server is the MCP server for task and family management.
type Server struct {
	mcpServer *server.MCPServer
	tasks     *task.Repository
	families  *family.Registry
	policy    *access.Policy
}

// NewServer creates an MCP server over the core components.
func NewServer(tasks *task.Repository, families *family.Registry, policy *access.Policy) *Server {
	s := &Server{
		tasks:    tasks,
		families: families,
		policy:   policy,
	}

	s.mcpServer = server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
	)

	s.registerTools()
	return s
}

// MCPServer returns the underlying MCP server for serving.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	// add_task
	s.mcpServer.AddTool(
		mcp.NewTool("add_task",
			mcp.WithDescription("Add a new task with a title and due time, personal or shared with the user's family"),
			mcp.WithNumber("user_id", mcp.Required(), mcp.Description("Acting user id")),
			mcp.WithString("title", mcp.Required(), mcp.Description("Task title")),
			mcp.WithString("due_at", mcp.Required(), mcp.Description("Due time in RFC3339 format (e.g. 2026-01-15T09:00:00Z)")),
			mcp.WithBoolean("shared", mcp.Description("Share the task with the user's family (default: personal)")),
		),
		s.handleAddTask,
	)

	// list_tasks
	s.mcpServer.AddTool(
		mcp.NewTool("list_tasks",
			mcp.WithDescription("List all tasks visible to the user (own tasks plus the family's shared tasks)"),
			mcp.WithNumber("user_id", mcp.Required(), mcp.Description("Acting user id")),
		),
		s.handleListTasks,
	)

	// update_task
	s.mcpServer.AddTool(
		mcp.NewTool("update_task",
			mcp.WithDescription("Update a task's title or due time. Changing the due time re-arms its reminders."),
			mcp.WithNumber("user_id", mcp.Required(), mcp.Description("Acting user id")),
			mcp.WithString("id", mcp.Required(), mcp.Description("Task id")),
			mcp.WithString("title", mcp.Description("New title")),
			mcp.WithString("due_at", mcp.Description("New due time in RFC3339 format")),
		),
		s.handleUpdateTask,
	)

	// delete_task
	s.mcpServer.AddTool(
		mcp.NewTool("delete_task",
			mcp.WithDescription("Delete a task permanently"),
			mcp.WithNumber("user_id", mcp.Required(), mcp.Description("Acting user id")),
			mcp.WithString("id", mcp.Required(), mcp.Description("Task id")),
		),
		s.handleDeleteTask,
	)

	// create_family
	s.mcpServer.AddTool(
		mcp.NewTool("create_family",
			mcp.WithDescription("Create a new family with the user as its first member"),
			mcp.WithNumber("user_id", mcp.Required(), mcp.Description("Acting user id")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Family name (2-50 characters)")),
		),
		s.handleCreateFamily,
	)

	// invite_member
	s.mcpServer.AddTool(
		mcp.NewTool("invite_member",
			mcp.WithDescription("Add another user to the acting user's family"),
			mcp.WithNumber("user_id", mcp.Required(), mcp.Description("Acting user id")),
			mcp.WithNumber("invitee_id", mcp.Required(), mcp.Description("User id to add")),
		),
		s.handleInviteMember,
	)
}

func (s *Server) handleAddTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, ok := actorFrom(req)
	if !ok {
		return mcp.NewToolResultError("user_id parameter required"), nil
	}

	title := req.GetString("title", "")
	if title == "" {
		return mcp.NewToolResultError("title parameter required"), nil
	}

	dueAt, err := time.Parse(time.RFC3339, req.GetString("due_at", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid due_at: %v", err)), nil
	}

	t := model.Task{
		OwnerID: actor,
		Title:   title,
		DueAt:   dueAt,
	}
	if req.GetBool("shared", false) {
		famID, ok := s.families.GroupOf(actor)
		if !ok {
			return mcp.NewToolResultError("user has no family to share the task with"), nil
		}
		t.FamilyID = famID
	}

	created, err := s.tasks.Append(ctx, t)
	if err != nil {
		return toolError("add task", err), nil
	}
	return jsonResult(created)
}

func (s *Server) handleListTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, ok := actorFrom(req)
	if !ok {
		return mcp.NewToolResultError("user_id parameter required"), nil
	}

	all, err := s.tasks.ListAll(ctx)
	if err != nil {
		return toolError("list tasks", err), nil
	}
	return jsonResult(s.policy.Filter(actor, all))
}

func (s *Server) handleUpdateTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, ok := actorFrom(req)
	if !ok {
		return mcp.NewToolResultError("user_id parameter required"), nil
	}

	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("id parameter required"), nil
	}

	t, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return toolError("update task", err), nil
	}
	if !s.policy.CanAccess(actor, t) {
		return toolError("update task", model.ErrForbidden), nil
	}

	var patch task.Patch
	if title := req.GetString("title", ""); title != "" {
		patch.Title = &title
	}
	if raw := req.GetString("due_at", ""); raw != "" {
		dueAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid due_at: %v", err)), nil
		}
		patch.DueAt = &dueAt
	}

	updated, err := s.tasks.UpdateFields(ctx, id, patch)
	if err != nil {
		return toolError("update task", err), nil
	}
	return jsonResult(updated)
}

func (s *Server) handleDeleteTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, ok := actorFrom(req)
	if !ok {
		return mcp.NewToolResultError("user_id parameter required"), nil
	}

	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("id parameter required"), nil
	}

	t, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return toolError("delete task", err), nil
	}
	if !s.policy.CanAccess(actor, t) {
		return toolError("delete task", model.ErrForbidden), nil
	}

	if err := s.tasks.Remove(ctx, id); err != nil {
		return toolError("delete task", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task %q deleted", t.Title)), nil
}

func (s *Server) handleCreateFamily(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, ok := actorFrom(req)
	if !ok {
		return mcp.NewToolResultError("user_id parameter required"), nil
	}

	name := req.GetString("name", "")
	if name == "" {
		return mcp.NewToolResultError("name parameter required"), nil
	}

	fam, err := s.families.Create(ctx, actor, name)
	if err != nil {
		return toolError("create family", err), nil
	}
	return jsonResult(fam)
}

func (s *Server) handleInviteMember(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, ok := actorFrom(req)
	if !ok {
		return mcp.NewToolResultError("user_id parameter required"), nil
	}

	inviteeID := req.GetFloat("invitee_id", 0)
	if inviteeID == 0 {
		return mcp.NewToolResultError("invitee_id parameter required"), nil
	}

	famID, ok := s.families.GroupOf(actor)
	if !ok {
		return mcp.NewToolResultError("user has no family; create one first"), nil
	}

	added, err := s.families.Invite(ctx, famID, model.UserID(int64(inviteeID)))
	if err != nil {
		return toolError("invite member", err), nil
	}
	if !added {
		return mcp.NewToolResultText("Not added: user is already in a family"), nil
	}
	return mcp.NewToolResultText("Member added"), nil
}

// actorFrom extracts the required user_id parameter.
func actorFrom(req mcp.CallToolRequest) (model.UserID, bool) {
	id := req.GetFloat("user_id", 0)
	if id == 0 {
		return 0, false
	}
	return model.UserID(int64(id)), true
}

// toolError renders a core error as a tool error result.
func toolError(action string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("Failed to %s: not found", action))
	case errors.Is(err, model.ErrForbidden):
		return mcp.NewToolResultError(fmt.Sprintf("Failed to %s: access denied", action))
	default:
		return mcp.NewToolResultError(fmt.Sprintf("Failed to %s: %v", action, err))
	}
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
