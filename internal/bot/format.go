package bot

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
	"unicode"

	"taskwise/internal/analytics"
	"taskwise/internal/model"
	"taskwise/internal/routine"
	"taskwise/internal/tasklist"
)

const dueDateLayout = "2006-01-02 15:04"

// parseDueDate reads a wall-clock due time in loc.
func parseDueDate(text string, loc *time.Location) (time.Time, error) {
	text = strings.TrimSpace(text)
	for _, layout := range []string{dueDateLayout, "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, text, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid due date %q", text)
}

var veryLow = regexp.MustCompile(`(?i)\bvery\s+low\b`)

// parseListArgs reads "/tasks" filters in any order. Each word may be a
// status, a priority or a category; each kind can appear once.
func parseListArgs(args string) (tasklist.View, error) {
	view := tasklist.View{Status: tasklist.StatusAll}
	var seenStatus bool
	for _, word := range strings.Fields(veryLow.ReplaceAllString(args, "very-low")) {
		if s, err := tasklist.ParseStatus(word); err == nil {
			if seenStatus {
				return tasklist.View{}, fmt.Errorf("more than one status given")
			}
			view.Status, seenStatus = s, true
			continue
		}
		if p, err := model.ParsePriority(word); err == nil {
			if view.Priority != "" {
				return tasklist.View{}, fmt.Errorf("more than one priority given")
			}
			view.Priority = p
			continue
		}
		if c, err := model.ParseCategory(word); err == nil {
			if view.Category != "" {
				return tasklist.View{}, fmt.Errorf("more than one category given")
			}
			view.Category = c
			continue
		}
		return tasklist.View{}, fmt.Errorf("unknown filter %q", word)
	}
	return view, nil
}

func describeView(view tasklist.View) string {
	parts := []string{string(view.Status)}
	if view.Priority != "" {
		parts = append(parts, string(view.Priority))
	}
	if view.Category != "" {
		parts = append(parts, string(view.Category))
	}
	return strings.Join(parts, " · ")
}

func formatStats(s analytics.Stats) string {
	var b strings.Builder
	b.WriteString("📊 <b>Your progress</b>\n")
	b.WriteString(fmt.Sprintf("• Total: %d\n• Completed: %d\n• Pending: %d\n• Past due: %d\n", s.Total, s.Completed, s.Pending, s.Overdue))
	b.WriteString(fmt.Sprintf("• Completion rate: %.0f%%\n", s.CompletionRate))

	b.WriteString("\n<b>By priority</b>\n")
	for _, bucket := range s.PriorityDistribution {
		b.WriteString(fmt.Sprintf("• %s: %d\n", bucket.Name, bucket.Value))
	}
	b.WriteString("\n<b>By category</b>\n")
	for _, bucket := range s.CategoryDistribution {
		b.WriteString(fmt.Sprintf("• %s: %d\n", bucket.Name, bucket.Value))
	}
	return strings.TrimSpace(b.String())
}

func formatRoutinePreview(res routine.Result, loc *time.Location) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🧭 <b>%d tasks from your routine</b>\n\n", len(res.Tasks)))
	for i, c := range res.Tasks {
		b.WriteString(fmt.Sprintf("%d. <b>%s</b> <i>(%s · %s)</i>\n", i+1, escape(c.Title), c.Priority, c.Category))
		line := "   ⏰ " + c.DueDate.In(loc).Format(dueDateLayout)
		if c.Duration > 0 {
			line += fmt.Sprintf(" · %d min", int(c.Duration/time.Minute))
		}
		b.WriteString(line + "\n")
	}
	if res.Discarded > 0 {
		b.WriteString(fmt.Sprintf("\n%d suggestions were already in the past and were left out.\n", res.Discarded))
	}
	b.WriteString("\nAdd them?")
	return b.String()
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func capitalize(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func escape(s string) string {
	return html.EscapeString(s)
}
