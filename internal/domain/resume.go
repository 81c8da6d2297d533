package domain

import "time"

type ResumeStatus string

func (s ResumeStatus) String() string {
	return string(s)
}

const (
	StatusPending ResumeStatus = "pending"
	StatusDone    ResumeStatus = "done"
	StatusFailed  ResumeStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s ResumeStatus) Valid() bool {
	switch s {
	case StatusPending, StatusDone, StatusFailed:
		return true
	default:
		return false
	}
}

// ResumeRecord is the persisted state of one work unit.
type ResumeRecord struct {
	Fingerprint string       `json:"fingerprint"`
	Status      ResumeStatus `json:"status"`
	Reason      string       `json:"reason,omitempty"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Apply returns the record that results from moving r to status.
// A done record is terminal and never downgraded.
func (r ResumeRecord) Apply(status ResumeStatus, reason string, now time.Time) (ResumeRecord, bool) {
	if r.Status == StatusDone {
		return r, false
	}
	if r.Status == status && r.Reason == reason {
		return r, false
	}
	return ResumeRecord{
		Fingerprint: r.Fingerprint,
		Status:      status,
		Reason:      reason,
		UpdatedAt:   now,
	}, true
}
