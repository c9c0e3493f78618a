package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"taskwise/internal/model"
	"taskwise/internal/repository"
	"taskwise/internal/tasklist"
)

// DigestService builds the human-readable morning summary sent in chat.
type DigestService struct {
	taskRepo *repository.TaskRepository
}

func NewDigestService(taskRepo *repository.TaskRepository) *DigestService {
	return &DigestService{taskRepo: taskRepo}
}

// DailySummary lists past-due, due-today and the rest of this week's open
// tasks in display order. Empty sections are kept so the shape is stable.
func (s *DigestService) DailySummary(ctx context.Context, userID string, now time.Time) (string, error) {
	tasks, err := s.taskRepo.ListByUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return FormatDigest(tasks, now), nil
}

// FormatDigest renders the digest as Telegram HTML.
func FormatDigest(tasks []model.Task, now time.Time) string {
	pastDue := tasklist.Apply(tasks, tasklist.View{Status: tasklist.StatusPastDue}, now)
	today := tasklist.Apply(tasks, tasklist.View{Status: tasklist.StatusDueToday}, now)
	var laterThisWeek []model.Task
	for _, t := range tasklist.Apply(tasks, tasklist.View{Status: tasklist.StatusDueThisWeek}, now) {
		if !tasklist.MatchStatus(t, tasklist.StatusDueToday, now) {
			laterThisWeek = append(laterThisWeek, t)
		}
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Daily summary</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n", now.Format("Monday, January 2")))

	section := func(header, empty string, list []model.Task) {
		builder.WriteString("\n" + header + "\n")
		if len(list) == 0 {
			builder.WriteString("• " + empty + "\n")
			return
		}
		for _, t := range list {
			builder.WriteString(FormatTask(t, now))
		}
	}
	section("⚠️ <b>Past due</b>", "nothing overdue", pastDue)
	section("🔥 <b>Due today</b>", "nothing due today", today)
	section("📆 <b>Later this week</b>", "nothing else this week", laterThisWeek)

	return strings.TrimSpace(builder.String())
}

// FormatTask renders one task line with a status icon, its short id and due time.
func FormatTask(task model.Task, now time.Time) string {
	var sb strings.Builder

	d := task.DueDate.In(now.Location())
	icon := "🟢"
	switch {
	case task.Completed:
		icon = "✅"
	case now.After(d):
		icon = "⚠️"
	case d.Sub(now) <= 48*time.Hour:
		icon = "⏳"
	}

	sb.WriteString(fmt.Sprintf("%s <code>%s</code> %s", icon, task.ShortID(), html.EscapeString(strings.TrimSpace(task.Title))))
	sb.WriteString(fmt.Sprintf(" <i>(%s · %s)</i>", html.EscapeString(string(task.Priority)), html.EscapeString(string(task.Category))))
	sb.WriteString(fmt.Sprintf("\n   ⏰ %s", d.Format("2006-01-02 15:04")))
	if !task.Completed && tasklist.IsPastDue(task, now) {
		sb.WriteString(" · <b>past due</b>")
	}

	if task.Description != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(strings.TrimSpace(task.Description))))
	}

	sb.WriteByte('\n')
	return sb.String()
}
