package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"taskwise/internal/model"
)

// TaskRepository persists tasks. Every query except the reminder sweep's is
// scoped to one owning user. Times are stored in UTC.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	task.DueDate = task.DueDate.UTC()
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// CreateBatch inserts all tasks in one transaction, or none of them.
func (r *TaskRepository) CreateBatch(ctx context.Context, tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	for i := range tasks {
		tasks[i].DueDate = tasks[i].DueDate.UTC()
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&tasks).Error
	})
	if err != nil {
		return fmt.Errorf("create task batch: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, userID, taskID string) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, taskID).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// FindByIDPrefix returns at most limit tasks whose id starts with prefix.
func (r *TaskRepository) FindByIDPrefix(ctx context.Context, userID, prefix string, limit int) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id LIKE ?", userID, prefix+"%").
		Limit(limit).
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("find task by prefix: %w", err)
	}
	return tasks, nil
}

// ListByUser returns the user's whole collection in insertion order.
func (r *TaskRepository) ListByUser(ctx context.Context, userID string) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at, id").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Update applies a partial field set. gorm.ErrRecordNotFound when no row matched.
func (r *TaskRepository) Update(ctx context.Context, userID, taskID string, fields map[string]interface{}) error {
	if due, ok := fields["due_date"].(time.Time); ok {
		fields["due_date"] = due.UTC()
	}
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ? AND id = ?", userID, taskID).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a task permanently. gorm.ErrRecordNotFound when no row matched.
func (r *TaskRepository) Delete(ctx context.Context, userID, taskID string) error {
	res := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, taskID).Delete(&model.Task{})
	if res.Error != nil {
		return fmt.Errorf("delete task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListReminderCandidates returns incomplete, unreminded tasks of every user
// due within [from, to], earliest first.
func (r *TaskRepository) ListReminderCandidates(ctx context.Context, from, to time.Time) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("completed = ? AND reminder_sent = ? AND due_date >= ? AND due_date <= ?", false, false, from.UTC(), to.UTC()).
		Order("due_date").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list reminder candidates: %w", err)
	}
	return tasks, nil
}

// MarkReminderSent flags the reminder as delivered for the given due date.
// The write is conditioned so a deleted, completed, rescheduled or already
// reminded task is left untouched; the bool reports whether a row changed.
func (r *TaskRepository) MarkReminderSent(ctx context.Context, taskID string, dueDate time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND completed = ? AND reminder_sent = ? AND due_date = ?", taskID, false, false, dueDate.UTC()).
		Update("reminder_sent", true)
	if res.Error != nil {
		return false, fmt.Errorf("mark reminder sent: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
