// Package review implements the scrape-review reconciliation workflow:
// scraped bicycle records are listed next to their matched canonical
// bicycle, a reviewer records a decision, and approved field-level changes
// are applied to the catalog inside one transaction.
//
// Review status lifecycle:
//
//	pending ──► approved
//	   │
//	   └──────► rejected ──► (deletable)
//
// approved and rejected are terminal. Only rejected records may be deleted.
package review

import "fmt"

// Status values mirror the review_status column of scraped_bikes_review.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// validTransitions lists every forward (from → to) pair.
var validTransitions = map[Status][]Status{
	StatusPending: {StatusApproved, StatusRejected},
	// approved and rejected are terminal
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusApproved, StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown review status %q", s)
}

// IsTransitionAllowed reports whether from → to follows the lifecycle.
func IsTransitionAllowed(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanDelete reports whether a record in status s may be deleted.
func CanDelete(s Status) bool { return s == StatusRejected }

// queueRank orders the review queue: pending first, then approved, then
// everything else.
func queueRank(s Status) int {
	switch s {
	case StatusPending:
		return 0
	case StatusApproved:
		return 1
	}
	return 2
}
