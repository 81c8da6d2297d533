package client

import "time"

type AttemptOutcome string

const (
	OutcomeRunning   AttemptOutcome = "running"
	OutcomeSucceeded AttemptOutcome = "succeeded"
	OutcomeFailed    AttemptOutcome = "failed"
)

// Attempt tracks the retry state of a single Fetch call. It is owned by the
// goroutine executing the fetch and never shared.
type Attempt struct {
	URL        string
	Number     int
	StartedAt  time.Time
	NextDelay  time.Duration
	Outcome    AttemptOutcome
	LastStatus int
	Err        error
}

func (a *Attempt) Begin() {
	a.Number++
	a.StartedAt = time.Now()
	a.NextDelay = 0
	a.Outcome = OutcomeRunning
	a.Err = nil
}

func (a *Attempt) Succeed(status int) {
	a.Outcome = OutcomeSucceeded
	a.LastStatus = status
}

func (a *Attempt) Fail(err *FetchError) {
	a.Outcome = OutcomeFailed
	a.LastStatus = err.LastStatus
	a.Err = err
}

// ScheduleRetry computes the linear backoff before the next attempt.
func (a *Attempt) ScheduleRetry(base time.Duration) time.Duration {
	a.NextDelay = base * time.Duration(a.Number)
	return a.NextDelay
}

// TotalBackoff is the summed delay of a fetch that fails every attempt:
// base * (1 + 2 + ... + retries).
func TotalBackoff(base time.Duration, retries int) time.Duration {
	return base * time.Duration(retries*(retries+1)/2)
}
