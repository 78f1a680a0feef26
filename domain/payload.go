package domain

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// Payload field names as they appear on the wire.
const (
	FieldTitle         = "title"
	FieldDescription   = "description"
	FieldState         = "state"
	FieldDeadlineAt    = "deadline_at"
	FieldAssigneeID    = "assignee_id"
	FieldManagerID     = "manager_id"
	FieldReviewComment = "review_comment"
)

// ValidationError reports the first schema violation of a task payload. No
// write is attempted once one is found.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// TaskPayload carries an outbound partial task write. A nil pointer with the
// key marked set means an explicit null (clear the stored value); an unmarked
// key is left untouched by the store. Decoding from JSON records key presence
// automatically.
type TaskPayload struct {
	Title         *string    `json:"title,omitempty"`
	Description   *string    `json:"description,omitempty"`
	State         *TaskState `json:"state,omitempty"`
	DeadlineAt    *string    `json:"deadline_at,omitempty"`
	AssigneeID    *int64     `json:"assignee_id,omitempty"`
	ManagerID     *int64     `json:"manager_id,omitempty"`
	ReviewComment *string    `json:"review_comment,omitempty"`

	present map[string]bool
}

var payloadFields = map[string]bool{
	FieldTitle:         true,
	FieldDescription:   true,
	FieldState:         true,
	FieldDeadlineAt:    true,
	FieldAssigneeID:    true,
	FieldManagerID:     true,
	FieldReviewComment: true,
}

// UnmarshalJSON decodes the payload and records which keys were supplied,
// including keys carrying an explicit null. Keys outside the task schema are
// rejected.
func (p *TaskPayload) UnmarshalJSON(data []byte) error {
	type shadow TaskPayload
	var s shadow
	if err := sonic.Unmarshal(data, &s); err != nil {
		return err
	}
	var keys map[string]sonic.NoCopyRawMessage
	if err := sonic.Unmarshal(data, &keys); err != nil {
		return err
	}
	*p = TaskPayload(s)
	p.present = make(map[string]bool, len(keys))
	for k := range keys {
		if !payloadFields[k] {
			return fmt.Errorf("unknown field %q", k)
		}
		p.present[k] = true
	}
	return nil
}

// MarkSet records the named keys as supplied. Callers building payloads in
// code use this where JSON decoding would have recorded presence.
func (p *TaskPayload) MarkSet(fields ...string) {
	if p.present == nil {
		p.present = make(map[string]bool, len(fields))
	}
	for _, f := range fields {
		p.present[f] = true
	}
}

// Has reports whether the named key was supplied, null values included. Keys
// holding a non-nil value count as supplied even without a MarkSet call.
func (p *TaskPayload) Has(field string) bool {
	if p.present[field] {
		return true
	}
	switch field {
	case FieldTitle:
		return p.Title != nil
	case FieldDescription:
		return p.Description != nil
	case FieldState:
		return p.State != nil
	case FieldDeadlineAt:
		return p.DeadlineAt != nil
	case FieldAssigneeID:
		return p.AssigneeID != nil
	case FieldManagerID:
		return p.ManagerID != nil
	case FieldReviewComment:
		return p.ReviewComment != nil
	}
	return false
}

// Validate checks the payload against the task schema and returns the first
// violation found.
func (p *TaskPayload) Validate() error {
	if p.Has(FieldTitle) && (p.Title == nil || *p.Title == "") {
		return &ValidationError{Field: FieldTitle, Message: "title must be a non-empty string"}
	}
	if p.Has(FieldState) {
		if p.State == nil || !p.State.Valid() {
			return &ValidationError{Field: FieldState, Message: "state must be one of unassigned, assigned, pending_review, approved, rejected"}
		}
	}
	if p.Has(FieldDeadlineAt) && p.DeadlineAt != nil {
		if _, err := time.Parse(time.RFC3339, *p.DeadlineAt); err != nil {
			return &ValidationError{Field: FieldDeadlineAt, Message: "deadline_at must be an ISO-8601 timestamp"}
		}
	}
	if p.Has(FieldAssigneeID) && p.AssigneeID != nil && *p.AssigneeID <= 0 {
		return &ValidationError{Field: FieldAssigneeID, Message: "assignee_id must be a positive number"}
	}
	if p.Has(FieldManagerID) && p.ManagerID != nil && *p.ManagerID <= 0 {
		return &ValidationError{Field: FieldManagerID, Message: "manager_id must be a positive number"}
	}
	return nil
}
