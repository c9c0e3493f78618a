package metrics

import "time"

// SweepMetrics observes reminder sweep outcomes.
type SweepMetrics interface {
	CandidatesFound(n int)
	ReminderSent()
	ReminderSkipped(reason string)
	ReminderFailed()
	SweepDuration(d time.Duration)
}

// Nop discards every observation.
type Nop struct{}

func (Nop) CandidatesFound(int) {}
func (Nop) ReminderSent() {}
func (Nop) ReminderSkipped(string) {}
func (Nop) ReminderFailed() {}
func (Nop) SweepDuration(time.Duration) {}
