package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Messages surfaced when a rework comment fails validation.
const (
	MsgCommentRequired = "Comment is required"
	MsgCommentTooShort = "Comment must be at least 3 characters"
)

const minReassignCommentLen = 3

// GuardError reports an attempted transition the engine does not allow.
// Callers are expected not to have offered the action in the first place.
type GuardError struct {
	Message string
}

func (e *GuardError) Error() string { return e.Message }

// ValidateReassignComment checks the rework comment a reviewer must supply
// when sending a task back to its assignee. The comment is trimmed before
// length rules apply; the trimmed form is returned.
func ValidateReassignComment(comment string) (string, error) {
	trimmed := strings.TrimSpace(comment)
	if trimmed == "" {
		return "", &GuardError{Message: MsgCommentRequired}
	}
	if utf8.RuneCountInString(trimmed) < minReassignCommentLen {
		return "", &GuardError{Message: MsgCommentTooShort}
	}
	return trimmed, nil
}

// TransitionPendingReviewToAssigned is the only engine-guarded edge of the
// task lifecycle: a reviewer rejecting work back to the assignee must explain
// why. It returns the next state paired with the trimmed comment recorded as
// the reason. Every other state change is an unconstrained payload update
// handled by the persistence layer.
func TransitionPendingReviewToAssigned(current TaskState, comment string) (TaskState, string, error) {
	if current != StatePendingReview {
		return "", "", &GuardError{Message: fmt.Sprintf("cannot reassign a task in state %q", current)}
	}
	reason, err := ValidateReassignComment(comment)
	if err != nil {
		return "", "", err
	}
	return StateAssigned, reason, nil
}
