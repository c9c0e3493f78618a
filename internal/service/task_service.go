package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"taskwise/internal/model"
	"taskwise/internal/repository"
	"taskwise/internal/tasklist"
)

const (
	minTitleLen  = 2
	maxTitleLen  = 200
	minPrefixLen = 4
)

// TaskInput represents data required to create a task.
type TaskInput struct {
	Title       string
	Description string
	DueDate     time.Time
	Priority    model.Priority
	Category    model.Category
}

// TaskPatch carries the fields to change; nil means untouched.
type TaskPatch struct {
	Title       *string
	Description *string
	DueDate     *time.Time
	Priority    *model.Priority
	Category    *model.Category
}

// Publisher is told about every write so live views can refresh.
type Publisher interface {
	Publish(ctx context.Context, userID string) error
}

// TaskService is the write boundary for tasks: every validation and edit
// rule lives here, not in the store.
type TaskService struct {
	taskRepo *repository.TaskRepository
	hub      Publisher
	log      *zap.Logger
	now      func() time.Time
}

func NewTaskService(taskRepo *repository.TaskRepository, hub Publisher, log *zap.Logger) *TaskService {
	if log == nil {
		log = zap.NewNop()
	}
	return &TaskService{taskRepo: taskRepo, hub: hub, log: log, now: time.Now}
}

func (s *TaskService) CreateTask(ctx context.Context, userID string, input TaskInput) (*model.Task, error) {
	task, err := s.newTask(userID, input, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.taskRepo.Create(ctx, &task); err != nil {
		return nil, err
	}
	s.publish(ctx, userID)
	return &task, nil
}

// CreateBatch validates every input first and inserts all or none.
func (s *TaskService) CreateBatch(ctx context.Context, userID string, inputs []TaskInput) ([]model.Task, error) {
	if len(inputs) == 0 {
		return nil, invalid("tasks", "at least one task is required")
	}
	now := s.now()
	tasks := make([]model.Task, 0, len(inputs))
	for i, in := range inputs {
		task, err := s.newTask(userID, in, now)
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				verr.Field = fmt.Sprintf("tasks[%d].%s", i, verr.Field)
			}
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := s.taskRepo.CreateBatch(ctx, tasks); err != nil {
		return nil, err
	}
	s.publish(ctx, userID)
	return tasks, nil
}

func (s *TaskService) newTask(userID string, in TaskInput, now time.Time) (model.Task, error) {
	title, err := validTitle(in.Title)
	if err != nil {
		return model.Task{}, err
	}
	if err := validEnums(in.Priority, in.Category); err != nil {
		return model.Task{}, err
	}
	if !in.DueDate.After(now) {
		return model.Task{}, invalid("dueDate", "due date and time must be in the future")
	}
	return model.Task{
		UserID:      userID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		DueDate:     in.DueDate,
		Priority:    in.Priority,
		Category:    in.Category,
	}, nil
}

func (s *TaskService) GetTask(ctx context.Context, userID, taskID string) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, userID, taskID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}
	return task, nil
}

// Resolve accepts a full id or a unique prefix of at least four characters,
// as typed in chat commands.
func (s *TaskService) Resolve(ctx context.Context, userID, ref string) (*model.Task, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if task, err := s.GetTask(ctx, userID, ref); !errors.Is(err, ErrNotFound) {
		return task, err
	}
	if len(ref) < minPrefixLen || strings.ContainsAny(ref, "%_") {
		return nil, ErrNotFound
	}
	matches, err := s.taskRepo.FindByIDPrefix(ctx, userID, ref, 2)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return &matches[0], nil
	default:
		return nil, ErrAmbiguousID
	}
}

func (s *TaskService) ListTasks(ctx context.Context, userID string) ([]model.Task, error) {
	return s.taskRepo.ListByUser(ctx, userID)
}

// View returns exactly what the user should see for view at now.
func (s *TaskService) View(ctx context.Context, userID string, view tasklist.View, now time.Time) ([]model.Task, error) {
	tasks, err := s.taskRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return tasklist.Apply(tasks, view, now), nil
}

// UpdateTask applies patch. The due date is editable only while the task is
// neither completed nor past due, must move into the future, and re-arms the
// reminder when it changes.
func (s *TaskService) UpdateTask(ctx context.Context, userID, taskID string, patch TaskPatch) (*model.Task, error) {
	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	fields := map[string]interface{}{}

	if patch.Title != nil {
		title, err := validTitle(*patch.Title)
		if err != nil {
			return nil, err
		}
		fields["title"] = title
	}
	if patch.Description != nil {
		fields["description"] = strings.TrimSpace(*patch.Description)
	}
	if patch.Priority != nil {
		if !patch.Priority.Valid() {
			return nil, invalid("priority", "unknown priority %q", *patch.Priority)
		}
		fields["priority"] = *patch.Priority
	}
	if patch.Category != nil {
		if !patch.Category.Valid() {
			return nil, invalid("category", "unknown category %q", *patch.Category)
		}
		fields["category"] = *patch.Category
	}
	if patch.DueDate != nil && !patch.DueDate.Equal(task.DueDate) {
		if task.Completed || tasklist.IsPastDue(*task, now) {
			return nil, ErrDueDateLocked
		}
		if !patch.DueDate.After(now) {
			return nil, invalid("dueDate", "due date and time must be in the future")
		}
		fields["due_date"] = *patch.DueDate
		fields["reminder_sent"] = false
	}

	if len(fields) == 0 {
		return task, nil
	}
	if err := s.write(ctx, userID, taskID, fields); err != nil {
		return nil, err
	}
	return s.GetTask(ctx, userID, taskID)
}

// SetCompleted toggles completion. Dates are not validated: past-due tasks
// can always be closed or reopened.
func (s *TaskService) SetCompleted(ctx context.Context, userID, taskID string, completed bool) (*model.Task, error) {
	if err := s.write(ctx, userID, taskID, map[string]interface{}{"completed": completed}); err != nil {
		return nil, err
	}
	return s.GetTask(ctx, userID, taskID)
}

// DeleteTask removes a task permanently.
func (s *TaskService) DeleteTask(ctx context.Context, userID, taskID string) error {
	err := s.taskRepo.Delete(ctx, userID, taskID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	s.publish(ctx, userID)
	return nil
}

func (s *TaskService) write(ctx context.Context, userID, taskID string, fields map[string]interface{}) error {
	err := s.taskRepo.Update(ctx, userID, taskID, fields)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	s.publish(ctx, userID)
	return nil
}

// publish never fails a write: live views catch up on the next change.
func (s *TaskService) publish(ctx context.Context, userID string) {
	if s.hub == nil {
		return
	}
	if err := s.hub.Publish(ctx, userID); err != nil {
		s.log.Warn("publish snapshot", zap.String("user_id", userID), zap.Error(err))
	}
}

func validTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	switch n := utf8.RuneCountInString(title); {
	case n < minTitleLen:
		return "", invalid("title", "title must be at least %d characters", minTitleLen)
	case n > maxTitleLen:
		return "", invalid("title", "title must be at most %d characters", maxTitleLen)
	}
	return title, nil
}

func validEnums(p model.Priority, c model.Category) error {
	if !p.Valid() {
		return invalid("priority", "unknown priority %q", p)
	}
	if !c.Valid() {
		return invalid("category", "unknown category %q", c)
	}
	return nil
}
