package scheduler

import "forum/crawler/internal/domain"

type Outcome int

const (
	OutcomeQueued Outcome = iota
	OutcomeDone
	OutcomeFailed
	OutcomeSkipped     // fingerprint already done
	OutcomeDuplicate   // fingerprint already accepted this session
	OutcomeInterrupted // cancelled mid-retry
	OutcomeAbandoned   // never started because the session stopped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeQueued:
		return "queued"
	case OutcomeDone:
		return "done"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeInterrupted:
		return "interrupted"
	case OutcomeAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Summary counts how the units of one Run settled.
type Summary struct {
	Executed    int
	Succeeded   int
	Failed      int
	Skipped     int
	Duplicates  int
	Interrupted int
	Abandoned   int
	Failures    []domain.Failure
}

func (s Summary) clone() Summary {
	out := s
	out.Failures = append([]domain.Failure(nil), s.Failures...)
	return out
}
