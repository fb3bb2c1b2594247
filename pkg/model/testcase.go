package model

import "time"

// TestCase is an opaque byte string belonging to one Problem. Discovery is
// append-only and idempotent on (ProblemID, Content): see
// pkg/repository.TestCaseRepository.FoundTestcase.
type TestCase struct {
	ID        int64
	ProblemID int64
	Content   string
	CreatedAt time.Time
}
