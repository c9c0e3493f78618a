package routine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskwise/internal/model"
)

// Suggestion is a recommended priority with the model's reasoning.
type Suggestion struct {
	Priority    model.Priority
	Explanation string
}

var ErrEmptyDescription = errors.New("task description is empty")

// SuggestPriority asks the completer to rank a task by urgency, importance
// and impact.
func (c *Converter) SuggestPriority(ctx context.Context, description string) (Suggestion, error) {
	text := strings.TrimSpace(description)
	if text == "" {
		return Suggestion{}, ErrEmptyDescription
	}
	if n := len([]rune(text)); n > c.maxLen {
		return Suggestion{}, fmt.Errorf("%w: %d characters, at most %d", ErrInputTooLong, n, c.maxLen)
	}

	out, err := c.completer.Complete(ctx, prioritySystemPrompt, priorityPrompt(text))
	if err != nil {
		return Suggestion{}, fmt.Errorf("%w: %v", ErrCompletion, err)
	}

	var raw struct {
		SuggestedPriority string `json:"suggestedPriority"`
		Explanation       string `json:"explanation"`
	}
	if err := decodeStrict(out, &raw); err != nil {
		return Suggestion{}, err
	}
	p := model.Priority(raw.SuggestedPriority)
	if !p.Valid() {
		return Suggestion{}, fmt.Errorf("%w: priority %q", ErrInvalidResponse, raw.SuggestedPriority)
	}
	return Suggestion{Priority: p, Explanation: strings.TrimSpace(raw.Explanation)}, nil
}

const prioritySystemPrompt = `You are a task management assistant. Reply with a single JSON object and nothing else.`

func priorityPrompt(description string) string {
	return `Suggest a priority for the task below. Weigh how soon it must be done, how much it matters to the owner's goals and what happens if it is skipped.

Available priorities: Critical, High, Medium, Low, Very Low.

Answer with exactly this JSON shape:
{"suggestedPriority":"Critical|High|Medium|Low|Very Low","explanation":"one or two sentences"}

Task description: ` + description
}
