// Package mcptools exposes one user's tasks as MCP tools.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"taskwise/internal/analytics"
	"taskwise/internal/model"
	"taskwise/internal/service"
	"taskwise/internal/tasklist"
)

const (
	serverName    = "taskwise"
	serverVersion = "1.0.0"
)

// Server is the MCP server for task management, scoped to a single user.
type Server struct {
	mcpServer *server.MCPServer
	tasks     *service.TaskService
	userID    string
	loc       *time.Location
	now       func() time.Time
}

func NewServer(tasks *service.TaskService, userID string, loc *time.Location) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{
		tasks:  tasks,
		userID: userID,
		loc:    loc,
		now:    time.Now,
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
	s.mcpServer.AddTool(
		mcp.NewTool("list_tasks",
			mcp.WithDescription("List tasks in display order: open before completed, then by priority and due date"),
			mcp.WithString("status", mcp.Description("all, past-due, due-today, due-this-week, upcoming or completed (default: all)")),
			mcp.WithString("priority", mcp.Description("Critical, High, Medium, Low or Very Low")),
			mcp.WithString("category", mcp.Description("Work, Personal, Health or Study")),
		),
		s.handleListTasks,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("add_task",
			mcp.WithDescription("Add a task due in the future"),
			mcp.WithString("title", mcp.Required(), mcp.Description("Task title, at least 2 characters")),
			mcp.WithString("due_date", mcp.Required(), mcp.Description("Due date in RFC3339 format (e.g. 2025-01-15T09:00:00Z)")),
			mcp.WithString("description", mcp.Description("Optional description")),
			mcp.WithString("priority", mcp.Description("Critical, High, Medium, Low or Very Low (default: Medium)")),
			mcp.WithString("category", mcp.Description("Work, Personal, Health or Study (default: Personal)")),
		),
		s.handleAddTask,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("complete_task",
			mcp.WithDescription("Mark a task as completed, or open again with completed=false"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Task id or a unique prefix of it")),
			mcp.WithBoolean("completed", mcp.Description("Target state (default: true)")),
		),
		s.handleCompleteTask,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("delete_task",
			mcp.WithDescription("Delete a task permanently"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Task id or a unique prefix of it")),
		),
		s.handleDeleteTask,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("task_stats",
			mcp.WithDescription("Totals, completion rate, priority and category distribution and the completion trend"),
		),
		s.handleTaskStats,
	)
}

type taskView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	DueDate     time.Time `json:"due_date"`
	Priority    string    `json:"priority"`
	Category    string    `json:"category"`
	Completed   bool      `json:"completed"`
	PastDue     bool      `json:"past_due"`
}

func viewOf(t model.Task, now time.Time) taskView {
	return taskView{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		DueDate:     t.DueDate.In(now.Location()),
		Priority:    string(t.Priority),
		Category:    string(t.Category),
		Completed:   t.Completed,
		PastDue:     tasklist.IsPastDue(t, now),
	}
}

func (s *Server) clock() time.Time { return s.now().In(s.loc) }

func (s *Server) handleListTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var view tasklist.View
	var err error
	if view.Status, err = tasklist.ParseStatus(req.GetString("status", "")); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if v := req.GetString("priority", ""); v != "" && v != "all" {
		if view.Priority, err = model.ParsePriority(v); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	if v := req.GetString("category", ""); v != "" && v != "all" {
		if view.Category, err = model.ParseCategory(v); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	now := s.clock()
	tasks, err := s.tasks.View(ctx, s.userID, view, now)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tasks: %v", err)), nil
	}
	if len(tasks) == 0 {
		return mcp.NewToolResultText("No tasks found."), nil
	}

	out := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, viewOf(t, now))
	}
	return jsonResult(out), nil
}

func (s *Server) handleAddTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dueDate, err := time.Parse(time.RFC3339, req.GetString("due_date", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid due_date format: %v (use RFC3339, e.g. 2025-01-15T09:00:00Z)", err)), nil
	}

	priority := model.PriorityMedium
	if v := req.GetString("priority", ""); v != "" {
		if priority, err = model.ParsePriority(v); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	category := model.CategoryPersonal
	if v := req.GetString("category", ""); v != "" {
		if category, err = model.ParseCategory(v); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	task, err := s.tasks.CreateTask(ctx, s.userID, service.TaskInput{
		Title:       req.GetString("title", ""),
		Description: req.GetString("description", ""),
		DueDate:     dueDate,
		Priority:    priority,
		Category:    category,
	})
	if err != nil {
		return toolError("failed to add task", err), nil
	}

	return jsonResult(viewOf(*task, s.clock())), nil
}

func (s *Server) handleCompleteTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task, err := s.tasks.Resolve(ctx, s.userID, req.GetString("id", ""))
	if err != nil {
		return toolError("failed to find task", err), nil
	}
	completed := req.GetBool("completed", true)
	if _, err := s.tasks.SetCompleted(ctx, s.userID, task.ID, completed); err != nil {
		return toolError("failed to update task", err), nil
	}
	if completed {
		return mcp.NewToolResultText(fmt.Sprintf("Task %s marked as completed.", task.ShortID())), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task %s is open again.", task.ShortID())), nil
}

func (s *Server) handleDeleteTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task, err := s.tasks.Resolve(ctx, s.userID, req.GetString("id", ""))
	if err != nil {
		return toolError("failed to find task", err), nil
	}
	if err := s.tasks.DeleteTask(ctx, s.userID, task.ID); err != nil {
		return toolError("failed to delete task", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task %s deleted.", task.ShortID())), nil
}

func (s *Server) handleTaskStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tasks, err := s.tasks.ListTasks(ctx, s.userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load tasks: %v", err)), nil
	}
	return jsonResult(analytics.Compute(tasks, s.clock())), nil
}

func jsonResult(v any) *mcp.CallToolResult {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err))
	}
	return mcp.NewToolResultText(string(output))
}

// toolError reports user mistakes as-is and everything else with context.
func toolError(action string, err error) *mcp.CallToolResult {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return mcp.NewToolResultError(verr.Error())
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrAmbiguousID), errors.Is(err, service.ErrDueDateLocked):
		return mcp.NewToolResultError(err.Error())
	default:
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", action, err))
	}
}
