package domain

import "time"

// Failure is a work unit that settled as failed during a session.
type Failure struct {
	Fingerprint string          `json:"fingerprint"`
	Board       string          `json:"board"`
	Kind        string          `json:"kind"`
	URL         string          `json:"url"`
	Reason      string          `json:"reason"`
	Category    FailureCategory `json:"category"`
}

// CrawlReport is the outcome of one CrawlSession run.
type CrawlReport struct {
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	PerBoard    []CrawlProgress `json:"per_board"`
	Failures    []Failure       `json:"failures"`
	Skipped     int             `json:"skipped"`
	Duplicates  int             `json:"duplicates"`
	Abandoned   int             `json:"abandoned"`
	Interrupted bool            `json:"interrupted"`
}

// Success reports whether at least one board reached Done without failures.
func (r *CrawlReport) Success() bool {
	for _, board := range r.PerBoard {
		if board.State == WalkerDone && board.Failed == 0 {
			return true
		}
	}
	return false
}

// Board returns the progress of the named board.
func (r *CrawlReport) Board(name string) (CrawlProgress, bool) {
	for _, board := range r.PerBoard {
		if board.Board == name {
			return board, true
		}
	}
	return CrawlProgress{}, false
}

// FailedBoards returns the names of boards with at least one failed unit, in report order.
func (r *CrawlReport) FailedBoards() []string {
	var names []string
	for _, board := range r.PerBoard {
		if board.Failed > 0 {
			names = append(names, board.Board)
		}
	}
	return names
}

func (r *CrawlReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
