package domain

// Roles recognised by the permission policy. Any other value is treated as
// unprivileged.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
	RoleOwner  = "owner"
)

// Block reasons returned by EditBlockMessage.
const (
	MsgTaskMissing = "Unable to edit: The selected task no longer exists in the system"
	MsgTaskDeleted = "This task has been deleted and cannot be modified"
)

// IsPrivileged reports whether the role bypasses ownership checks.
func IsPrivileged(role string) bool {
	return role == RoleAdmin || role == RoleOwner
}

// CanDeleteTask reports whether the acting user may delete a task. Privileged
// roles always may; otherwise the task's manager may delete their own task.
// A zero manager or user id never satisfies ownership.
func CanDeleteTask(role string, managerID, userID int64) bool {
	if IsPrivileged(role) {
		return true
	}
	return managerID != 0 && userID != 0 && managerID == userID
}

// CanChangeState reports whether the acting user may move a task through its
// lifecycle. Same shape as CanDeleteTask, keyed on the assignee.
func CanChangeState(role string, assigneeID, userID int64) bool {
	if IsPrivileged(role) {
		return true
	}
	return assigneeID != 0 && userID != 0 && assigneeID == userID
}

// CanEditTask reports whether a task accepts modifications. A deleted task is
// immutable regardless of role.
func CanEditTask(deleted bool) bool {
	return !deleted
}

// EditBlockMessage returns the human-readable reason a task cannot be edited,
// or the empty string when editing is allowed. Non-existence takes precedence
// over deletion.
func EditBlockMessage(exists, deleted bool) string {
	if !exists {
		return MsgTaskMissing
	}
	if deleted {
		return MsgTaskDeleted
	}
	return ""
}
