package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"taskwise/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "data", "taskwise.db"), nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newTask(userID, title string, due time.Time) model.Task {
	return model.Task{
		UserID:   userID,
		Title:    title,
		DueDate:  due,
		Priority: model.PriorityMedium,
		Category: model.CategoryWork,
	}
}

func TestTaskRepositoryCRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(newTestDB(t))
	due := time.Now().Add(time.Hour).Truncate(time.Second)

	task := newTask("u1", "write report", due)
	if err := repo.Create(ctx, &task); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(task.ID) != 36 {
		t.Fatalf("expected uuid id, got %q", task.ID)
	}

	got, err := repo.FindByID(ctx, "u1", task.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !got.DueDate.Equal(due) || got.Completed || got.ReminderSent {
		t.Fatalf("unexpected task %+v", got)
	}
	if _, err := repo.FindByID(ctx, "u2", task.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("other users must not see the task, got %v", err)
	}

	if err := repo.Update(ctx, "u1", task.ID, map[string]interface{}{"completed": true}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = repo.FindByID(ctx, "u1", task.ID)
	if !got.Completed {
		t.Fatal("update not applied")
	}
	if err := repo.Update(ctx, "u2", task.ID, map[string]interface{}{"completed": false}); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("cross-user update must not match, got %v", err)
	}

	if err := repo.Delete(ctx, "u1", task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Delete(ctx, "u1", task.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestTaskRepositoryBatchAndPrefix(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(newTestDB(t))
	due := time.Now().Add(time.Hour)

	batch := []model.Task{newTask("u1", "one", due), newTask("u1", "two", due), newTask("u2", "three", due)}
	if err := repo.CreateBatch(ctx, batch); err != nil {
		t.Fatalf("batch: %v", err)
	}
	tasks, err := repo.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks for u1, got %d", len(tasks))
	}

	found, err := repo.FindByIDPrefix(ctx, "u1", batch[0].ID[:8], 2)
	if err != nil {
		t.Fatalf("prefix: %v", err)
	}
	if len(found) != 1 || found[0].ID != batch[0].ID {
		t.Fatalf("prefix lookup returned %+v", found)
	}
	if found, _ := repo.FindByIDPrefix(ctx, "u1", batch[2].ID[:8], 2); len(found) != 0 {
		t.Fatal("prefix lookup crossed users")
	}
}

func TestReminderCandidatesAndConditionalMark(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(newTestDB(t))
	now := time.Now().Truncate(time.Second)

	soon := newTask("u1", "soon", now.Add(23*time.Hour))
	later := newTask("u1", "later", now.Add(48*time.Hour))
	past := newTask("u1", "past", now.Add(-time.Hour))
	done := newTask("u2", "done", now.Add(2*time.Hour))
	done.Completed = true
	for _, tk := range []*model.Task{&soon, &later, &past, &done} {
		if err := repo.Create(ctx, tk); err != nil {
			t.Fatal(err)
		}
	}

	candidates, err := repo.ListReminderCandidates(ctx, now, now.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ID != soon.ID {
		t.Fatalf("expected only %q, got %+v", soon.ID, candidates)
	}

	// A stale due date must not be marked.
	if ok, err := repo.MarkReminderSent(ctx, soon.ID, soon.DueDate.Add(time.Minute)); err != nil || ok {
		t.Fatalf("stale mark: ok=%t err=%v", ok, err)
	}
	if ok, err := repo.MarkReminderSent(ctx, soon.ID, candidates[0].DueDate); err != nil || !ok {
		t.Fatalf("mark: ok=%t err=%v", ok, err)
	}
	if ok, _ := repo.MarkReminderSent(ctx, soon.ID, candidates[0].DueDate); ok {
		t.Fatal("second mark must not change anything")
	}
	if ok, _ := repo.MarkReminderSent(ctx, done.ID, done.DueDate); ok {
		t.Fatal("completed task must not be marked")
	}
	if ok, _ := repo.MarkReminderSent(ctx, "missing", now); ok {
		t.Fatal("deleted task must not be resurrected")
	}

	candidates, _ = repo.ListReminderCandidates(ctx, now, now.Add(24*time.Hour))
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates after marking, got %d", len(candidates))
	}
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))

	u, err := repo.UpsertFromTelegram(ctx, 42, "Ada", "L", "ada")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	again, err := repo.UpsertFromTelegram(ctx, 42, "Ada", "Lovelace", "ada")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if again.ID != u.ID || again.LastName != "Lovelace" {
		t.Fatalf("upsert must update in place: %+v", again)
	}

	if on, err := repo.NotificationsEnabled(ctx, u.ID); err != nil || on {
		t.Fatalf("default preference: on=%t err=%v", on, err)
	}
	if on, err := repo.NotificationsEnabled(ctx, "nobody"); err != nil || on {
		t.Fatalf("missing user must be opted out: on=%t err=%v", on, err)
	}
	if err := repo.SetNotificationsEnabled(ctx, u.ID, true); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if on, _ := repo.NotificationsEnabled(ctx, u.ID); !on {
		t.Fatal("preference not stored")
	}
	users, err := repo.ListNotifiable(ctx)
	if err != nil || len(users) != 1 || users[0].ID != u.ID {
		t.Fatalf("notifiable: %+v, %v", users, err)
	}

	ext, err := repo.Ensure(ctx, "auth|123")
	if err != nil || ext.ID != "auth|123" {
		t.Fatalf("ensure: %+v, %v", ext, err)
	}
	if _, err := repo.Ensure(ctx, "auth|123"); err != nil {
		t.Fatalf("ensure must be idempotent: %v", err)
	}
}

func TestPushRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPushRepository(newTestDB(t))

	if _, ok, err := repo.ResolveAddress(ctx, "u1"); err != nil || ok {
		t.Fatalf("empty registry: ok=%t err=%v", ok, err)
	}
	if err := repo.RegisterAddress(ctx, "u1", "100"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := repo.RegisterAddress(ctx, "u1", "100"); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	addr, ok, err := repo.ResolveAddress(ctx, "u1")
	if err != nil || !ok || addr != "100" {
		t.Fatalf("resolve: %q ok=%t err=%v", addr, ok, err)
	}

	if err := repo.RegisterAddress(ctx, "u2", "100"); err != nil {
		t.Fatalf("move: %v", err)
	}
	if _, ok, _ := repo.ResolveAddress(ctx, "u1"); ok {
		t.Fatal("address must move to the new owner")
	}

	if err := repo.RemoveAddress(ctx, "100"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := repo.ResolveAddress(ctx, "u2"); ok {
		t.Fatal("address must be gone")
	}

	_ = repo.RegisterAddress(ctx, "u3", "1")
	_ = repo.RegisterAddress(ctx, "u3", "2")
	if err := repo.UnregisterAll(ctx, "u3"); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if _, ok, _ := repo.ResolveAddress(ctx, "u3"); ok {
		t.Fatal("unregister all left an address")
	}
}

func TestPushRepositoryReRegisterBecomesMostRecent(t *testing.T) {
	ctx := context.Background()
	repo := NewPushRepository(newTestDB(t))

	for _, addr := range []string{"1", "2", "1"} {
		if err := repo.RegisterAddress(ctx, "u1", addr); err != nil {
			t.Fatalf("register %s: %v", addr, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	addr, ok, err := repo.ResolveAddress(ctx, "u1")
	if err != nil || !ok || addr != "1" {
		t.Fatalf("resolve: %q ok=%t err=%v", addr, ok, err)
	}
}
