package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"taskwise/internal/model"
	"taskwise/internal/push"
	"taskwise/internal/repository"
	"taskwise/internal/tasklist"
)

var now = time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)

type stubHub struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (h *stubHub) Publish(_ context.Context, userID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, userID)
	return h.err
}

type fixture struct {
	tasks *TaskService
	notif *NotificationService
	hub   *stubHub
	users *repository.UserRepository
	push  *repository.PushRepository
	repo  *repository.TaskRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "taskwise.db"), nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	repo := repository.NewTaskRepository(db)
	users := repository.NewUserRepository(db)
	push := repository.NewPushRepository(db)
	hub := &stubHub{}
	svc := NewTaskService(repo, hub, nil)
	svc.now = func() time.Time { return now }
	return &fixture{
		tasks: svc,
		notif: NewNotificationService(users, push, nil),
		hub:   hub,
		users: users,
		push:  push,
		repo:  repo,
	}
}

func input(title string, due time.Time) TaskInput {
	return TaskInput{Title: title, DueDate: due, Priority: model.PriorityHigh, Category: model.CategoryWork}
}

func TestCreateTaskValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		in    TaskInput
		field string
	}{
		{"short title", input(" a ", now.Add(time.Hour)), "title"},
		{"long title", input(strings.Repeat("x", 201), now.Add(time.Hour)), "title"},
		{"past due", input("report", now.Add(-time.Minute)), "dueDate"},
		{"due now", input("report", now), "dueDate"},
		{"bad priority", TaskInput{Title: "report", DueDate: now.Add(time.Hour), Priority: "Medium-High", Category: model.CategoryWork}, "priority"},
		{"bad category", TaskInput{Title: "report", DueDate: now.Add(time.Hour), Priority: model.PriorityLow, Category: "Errands"}, "category"},
	}
	for _, tc := range cases {
		_, err := f.tasks.CreateTask(ctx, "u1", tc.in)
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Field != tc.field {
			t.Errorf("%s: expected validation error on %s, got %v", tc.name, tc.field, err)
		}
	}
	if len(f.hub.calls) != 0 {
		t.Fatal("rejected writes must not publish")
	}

	task, err := f.tasks.CreateTask(ctx, "u1", input("  Quarterly report  ", now.Add(time.Hour)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Title != "Quarterly report" || task.Completed || task.ReminderSent || task.ID == "" {
		t.Fatalf("task = %+v", task)
	}
	if len(f.hub.calls) != 1 || f.hub.calls[0] != "u1" {
		t.Fatalf("publish calls = %v", f.hub.calls)
	}
}

func TestCreateBatchIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tasks.CreateBatch(ctx, "u1", []TaskInput{input("first", now.Add(time.Hour)), input("x", now.Add(time.Hour))})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "tasks[1].title" {
		t.Fatalf("expected indexed validation error, got %v", err)
	}
	if tasks, _ := f.tasks.ListTasks(ctx, "u1"); len(tasks) != 0 {
		t.Fatal("nothing may be inserted when one input is invalid")
	}

	created, err := f.tasks.CreateBatch(ctx, "u1", []TaskInput{input("first", now.Add(time.Hour)), input("second", now.Add(2*time.Hour))})
	if err != nil || len(created) != 2 {
		t.Fatalf("batch: %v (%d)", err, len(created))
	}
	if len(f.hub.calls) != 1 {
		t.Fatalf("a batch publishes once, got %d", len(f.hub.calls))
	}
}

func TestUpdateDueDateRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.tasks.CreateTask(ctx, "u1", input("report", now.Add(time.Hour)))
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := f.repo.MarkReminderSent(ctx, task.ID, task.DueDate); !ok {
		t.Fatal("setup: mark reminder")
	}

	moved := now.Add(3 * time.Hour)
	updated, err := f.tasks.UpdateTask(ctx, "u1", task.ID, TaskPatch{DueDate: &moved})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.DueDate.Equal(moved) || updated.ReminderSent {
		t.Fatalf("due must move and reminderSent reset: %+v", updated)
	}

	past := now.Add(-time.Hour)
	var verr *ValidationError
	if _, err := f.tasks.UpdateTask(ctx, "u1", task.ID, TaskPatch{DueDate: &past}); !errors.As(err, &verr) {
		t.Fatalf("moving into the past must fail validation, got %v", err)
	}

	if _, err := f.tasks.SetCompleted(ctx, "u1", task.ID, true); err != nil {
		t.Fatal(err)
	}
	later := now.Add(5 * time.Hour)
	if _, err := f.tasks.UpdateTask(ctx, "u1", task.ID, TaskPatch{DueDate: &later}); !errors.Is(err, ErrDueDateLocked) {
		t.Fatalf("completed task due date must be locked, got %v", err)
	}
	title := "renamed"
	if got, err := f.tasks.UpdateTask(ctx, "u1", task.ID, TaskPatch{Title: &title}); err != nil || got.Title != "renamed" {
		t.Fatalf("other fields stay editable: %+v, %v", got, err)
	}
}

func TestUpdatePastDueIsLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task := model.Task{UserID: "u1", Title: "old", DueDate: now.AddDate(0, 0, -2), Priority: model.PriorityLow, Category: model.CategoryStudy}
	if err := f.repo.Create(ctx, &task); err != nil {
		t.Fatal(err)
	}
	next := now.Add(time.Hour)
	if _, err := f.tasks.UpdateTask(ctx, "u1", task.ID, TaskPatch{DueDate: &next}); !errors.Is(err, ErrDueDateLocked) {
		t.Fatalf("expected ErrDueDateLocked, got %v", err)
	}
	if _, err := f.tasks.SetCompleted(ctx, "u1", task.ID, true); err != nil {
		t.Fatalf("past-due tasks can still be completed: %v", err)
	}
}

func TestUpdateEarlierTodayIsEditable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task := model.Task{UserID: "u1", Title: "standup", DueDate: now.Add(-2 * time.Hour), Priority: model.PriorityHigh, Category: model.CategoryWork}
	if err := f.repo.Create(ctx, &task); err != nil {
		t.Fatal(err)
	}
	next := now.Add(time.Hour)
	if _, err := f.tasks.UpdateTask(ctx, "u1", task.ID, TaskPatch{DueDate: &next}); err != nil {
		t.Fatalf("a task due earlier today is not past due: %v", err)
	}
}

func TestNotFoundAndIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task, _ := f.tasks.CreateTask(ctx, "u1", input("mine", now.Add(time.Hour)))

	if _, err := f.tasks.GetTask(ctx, "u2", task.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get: %v", err)
	}
	if _, err := f.tasks.SetCompleted(ctx, "u2", task.ID, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("complete: %v", err)
	}
	if err := f.tasks.DeleteTask(ctx, "u2", task.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete: %v", err)
	}
	if err := f.tasks.DeleteTask(ctx, "u1", task.ID); err != nil {
		t.Fatalf("delete own: %v", err)
	}
	if err := f.tasks.DeleteTask(ctx, "u1", task.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete twice: %v", err)
	}
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task, _ := f.tasks.CreateTask(ctx, "u1", input("mine", now.Add(time.Hour)))

	for _, ref := range []string{task.ID, task.ShortID(), strings.ToUpper(task.ID[:6])} {
		got, err := f.tasks.Resolve(ctx, "u1", ref)
		if err != nil || got.ID != task.ID {
			t.Errorf("%q: %+v, %v", ref, got, err)
		}
	}
	for _, ref := range []string{task.ID[:3], "%%%%", "____", "ffffffff-none"} {
		if _, err := f.tasks.Resolve(ctx, "u1", ref); !errors.Is(err, ErrNotFound) {
			t.Errorf("%q: expected ErrNotFound, got %v", ref, err)
		}
	}
	if _, err := f.tasks.Resolve(ctx, "u2", task.ShortID()); !errors.Is(err, ErrNotFound) {
		t.Error("prefix resolution crossed users")
	}
}

func TestView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, _ := f.tasks.CreateTask(ctx, "u1", TaskInput{Title: "A", DueDate: now.Add(time.Hour), Priority: model.PriorityCritical, Category: model.CategoryWork})
	b, _ := f.tasks.CreateTask(ctx, "u1", TaskInput{Title: "B", DueDate: now.Add(30 * time.Minute), Priority: model.PriorityHigh, Category: model.CategoryWork})
	c, _ := f.tasks.CreateTask(ctx, "u1", TaskInput{Title: "C", DueDate: now.Add(2 * time.Hour), Priority: model.PriorityCritical, Category: model.CategoryHealth})
	_, _ = f.tasks.SetCompleted(ctx, "u1", c.ID, true)

	got, err := f.tasks.View(ctx, "u1", tasklist.View{}, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].ID != a.ID || got[1].ID != b.ID || got[2].ID != c.ID {
		t.Fatalf("unexpected order %v", got)
	}
	got, _ = f.tasks.View(ctx, "u1", tasklist.View{Status: tasklist.StatusCompleted}, now)
	if len(got) != 1 || got[0].ID != c.ID {
		t.Fatalf("completed view = %v", got)
	}
}

func TestNotificationPreference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.users.Ensure(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}

	if on, _ := f.notif.Enabled(ctx, user.ID); on {
		t.Fatal("notifications start disabled")
	}
	if err := f.notif.SetEnabled(ctx, user.ID, true); err != nil {
		t.Fatal(err)
	}
	if err := f.notif.RegisterAddress(ctx, user.ID, "555"); err != nil {
		t.Fatal(err)
	}
	if on, _ := f.notif.Enabled(ctx, user.ID); !on {
		t.Fatal("preference not saved")
	}

	if err := f.notif.SetEnabled(ctx, user.ID, false); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := f.push.ResolveAddress(ctx, user.ID); ok {
		t.Fatal("disabling must unregister every address")
	}
	if err := f.notif.SetEnabled(ctx, "ghost", true); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}

type stubSessions struct {
	disabled []string
}

func (s *stubSessions) Disable(userID string) { s.disabled = append(s.disabled, userID) }

type stubSender struct {
	sent []string
	err  error
}

func (s *stubSender) Send(_ context.Context, address string, msg push.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, address+": "+msg.Title)
	return nil
}

func TestOptOutStopsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessions := &stubSessions{}
	notif := NewNotificationService(f.users, f.push, nil, WithSessions(sessions))
	if _, err := f.users.Ensure(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	if err := notif.SetEnabled(ctx, "u1", true); err != nil {
		t.Fatal(err)
	}
	if len(sessions.disabled) != 0 {
		t.Fatalf("opt-in stopped a session: %v", sessions.disabled)
	}
	if err := notif.SetEnabled(ctx, "u1", false); err != nil {
		t.Fatal(err)
	}
	if len(sessions.disabled) != 1 || sessions.disabled[0] != "u1" {
		t.Fatalf("disabled = %v", sessions.disabled)
	}
}

func TestSendTest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := &stubSender{}
	notif := NewNotificationService(f.users, f.push, nil, WithSender(sender))
	if _, err := f.users.Ensure(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	if err := notif.SendTest(ctx, "u1"); !errors.Is(err, ErrNotificationsOff) {
		t.Fatalf("opted out: %v", err)
	}
	if err := notif.SetEnabled(ctx, "u1", true); err != nil {
		t.Fatal(err)
	}
	if err := notif.SendTest(ctx, "u1"); !errors.Is(err, ErrNoPushAddress) {
		t.Fatalf("no address: %v", err)
	}
	if err := notif.RegisterAddress(ctx, "u1", "555"); err != nil {
		t.Fatal(err)
	}
	if err := notif.SendTest(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "555: Test Notification" {
		t.Fatalf("sent = %v", sender.sent)
	}

	sender.err = push.ErrInvalidAddress
	if err := notif.SendTest(ctx, "u1"); !errors.Is(err, ErrNoPushAddress) {
		t.Fatalf("invalid address: %v", err)
	}
	if _, ok, _ := f.push.ResolveAddress(ctx, "u1"); ok {
		t.Fatal("invalid address kept")
	}

	if err := NewNotificationService(f.users, f.push, nil).SendTest(ctx, "u1"); !errors.Is(err, ErrNoSender) {
		t.Fatalf("no sender: %v", err)
	}
}

func TestFormatDigest(t *testing.T) {
	tasks := []model.Task{
		{ID: "aaaaaaaa-1", Title: "old <bill>", DueDate: now.AddDate(0, 0, -1), Priority: model.PriorityHigh, Category: model.CategoryPersonal},
		{ID: "bbbbbbbb-2", Title: "standup", DueDate: now.Add(time.Hour), Priority: model.PriorityMedium, Category: model.CategoryWork},
		{ID: "cccccccc-3", Title: "gym", DueDate: now.AddDate(0, 0, 2), Priority: model.PriorityLow, Category: model.CategoryHealth},
		{ID: "dddddddd-4", Title: "done", DueDate: now.Add(time.Hour), Completed: true, Priority: model.PriorityLow, Category: model.CategoryHealth},
	}
	out := FormatDigest(tasks, now)

	for _, want := range []string{"Daily summary", "Wednesday, October 15", "old &lt;bill&gt;", "<code>aaaaaaaa</code>", "past due", "standup", "gym"} {
		if !strings.Contains(out, want) {
			t.Errorf("digest lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "done") {
		t.Error("completed tasks do not belong in the digest")
	}
	if strings.Index(out, "old") > strings.Index(out, "standup") || strings.Index(out, "standup") > strings.Index(out, "gym") {
		t.Errorf("sections out of order:\n%s", out)
	}
}

func TestBuildDailySpec(t *testing.T) {
	spec, err := buildDailySpec("08:30")
	if err != nil || spec != "0 30 8 * * *" {
		t.Fatalf("spec = %q, %v", spec, err)
	}
	for _, bad := range []string{"8", "24:00", "12:60", "ab:cd"} {
		if _, err := buildDailySpec(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewSchedulerService(time.UTC, nil)
	if _, err := s.Schedule("every now and then", func() {}); err == nil {
		t.Fatal("expected error")
	}
	id, err := s.Schedule("@every 15m", func() {})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	s.Start()
	defer s.Stop()
	if s.Next(id).IsZero() {
		t.Fatal("next run must be known once started")
	}
}
