package domain

// TaskState is the lifecycle state of a task.
type TaskState string

const (
	StateUnassigned    TaskState = "unassigned"
	StateAssigned      TaskState = "assigned"
	StatePendingReview TaskState = "pending_review"
	StateApproved      TaskState = "approved"
	StateRejected      TaskState = "rejected"
)

// States lists every lifecycle state in declaration order.
var States = []TaskState{StateUnassigned, StateAssigned, StatePendingReview, StateApproved, StateRejected}

// Valid reports whether s is one of the defined lifecycle states.
func (s TaskState) Valid() bool {
	switch s {
	case StateUnassigned, StateAssigned, StatePendingReview, StateApproved, StateRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition leaves s.
func (s TaskState) IsTerminal() bool {
	return s == StateApproved || s == StateRejected
}

// Task represents a single work item in the store.
type Task struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   *string   `json:"description,omitempty"`
	State         TaskState `json:"state"`
	DeadlineAt    *string   `json:"deadline_at,omitempty"`
	AssigneeID    int64     `json:"assignee_id,omitempty"`
	ManagerID     int64     `json:"manager_id,omitempty"`
	ReviewComment *string   `json:"review_comment,omitempty"`
	Deleted       bool      `json:"deleted,omitempty"`
}

// TaskLink is a reference URL attached to a task. A link without an ID has
// not been persisted yet; the store assigns one on insert.
type TaskLink struct {
	ID          string  `json:"id,omitempty"`
	TaskID      string  `json:"task_id,omitempty"`
	URL         string  `json:"url"`
	Description *string `json:"description,omitempty"`
	CreatedBy   int64   `json:"created_by,omitempty"`
}

// Identity describes the acting user as established by the auth layer.
type Identity struct {
	UserID int64
	Role   string
}
