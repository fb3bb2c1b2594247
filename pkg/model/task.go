package model

import "time"

// TaskStatus is one of the five states a Task can be in.
type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskPaused     TaskStatus = "PAUSED"
	TaskSuccess    TaskStatus = "SUCCESS"
	TaskFailure    TaskStatus = "FAILURE"
)

// TaskKind distinguishes the two job kinds the Orchestrator accepts.
type TaskKind string

const (
	KindCrawlTestCases  TaskKind = "crawl-testcases"
	KindCreateAccounts  TaskKind = "create-accounts"
)

// TaskResult is the user-visible `result` field: on success a
// human-readable message, on failure an error string plus the last known
// checkpoint state.
type TaskResult struct {
	Message   string      `json:"message,omitempty"`
	Error     string      `json:"error,omitempty"`
	LastState *Checkpoint `json:"last_state,omitempty"`
}

// Task is the common envelope shared by CrawlTask and CreateAccountsTask.
type Task struct {
	ID        string
	Kind      TaskKind
	Status    TaskStatus
	Progress  int
	Result    *TaskResult
	CreatedAt time.Time
	UpdatedAt time.Time

	// CrawlTask fields (nil/zero when Kind == KindCreateAccounts).
	ProblemID       int64
	TemplateSetID   int64
	HeaderCode      string
	FooterCode      string
	Checkpoint      *Checkpoint

	// CreateAccountsTask fields (zero when Kind == KindCrawlTestCases).
	Quantity int
}

// IsResumable reports whether the task may be requeued via the resume
// endpoint: only FAILURE or PAUSED tasks are eligible.
func (t Task) IsResumable() bool {
	return t.Status == TaskFailure || t.Status == TaskPaused
}

// IsPausable reports whether the task may currently be paused: only
// PENDING or IN_PROGRESS tasks are eligible.
func (t Task) IsPausable() bool {
	return t.Status == TaskPending || t.Status == TaskInProgress
}
