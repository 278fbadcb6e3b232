package engine

import (
	"time"

	"github.com/google/uuid"
)

// TaskType distinguishes single-file tasks from directory tasks.
type TaskType string

const (
	TaskFile      TaskType = "file"
	TaskDirectory TaskType = "directory"
)

// TaskState reflects where a task sits in its lifecycle.
type TaskState string

const (
	TaskActive    TaskState = "active"
	TaskCompleted TaskState = "completed"
	TaskUnknown   TaskState = "unknown"
)

// ScanTask is one unit of queued work: a file or a directory tree.
type ScanTask struct {
	ID          string    `json:"id"`
	Type        TaskType  `json:"type"`
	Path        string    `json:"path"`
	Recursive   bool      `json:"recursive"`
	Patterns    []string  `json:"patterns,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// TaskStatus is the snapshot returned for a task id.
type TaskStatus struct {
	ID     string           `json:"id"`
	State  TaskState        `json:"state"`
	Report *DirectoryReport `json:"report,omitempty"`
}

func newTaskID() string {
	return "scan-" + uuid.NewString()
}
