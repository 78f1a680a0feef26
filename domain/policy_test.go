package domain

import "testing"

func TestIsPrivileged(t *testing.T) {
	tests := []struct {
		role string
		want bool
	}{
		{role: RoleAdmin, want: true},
		{role: RoleOwner, want: true},
		{role: RoleMember, want: false},
		{role: "viewer", want: false},
		{role: "", want: false},
		{role: "Admin", want: false},
	}
	for _, tt := range tests {
		if got := IsPrivileged(tt.role); got != tt.want {
			t.Fatalf("IsPrivileged(%q) = %v, want %v", tt.role, got, tt.want)
		}
	}
}

func TestCanDeleteTask(t *testing.T) {
	tests := []struct {
		name      string
		role      string
		managerID int64
		userID    int64
		want      bool
	}{
		{name: "member owns task", role: RoleMember, managerID: 100, userID: 100, want: true},
		{name: "member other task", role: RoleMember, managerID: 100, userID: 200, want: false},
		{name: "admin without manager", role: RoleAdmin, managerID: 0, userID: 5, want: true},
		{name: "owner always", role: RoleOwner, managerID: 1, userID: 2, want: true},
		{name: "zero manager never owns", role: RoleMember, managerID: 0, userID: 0, want: false},
		{name: "unknown role unprivileged", role: "guest", managerID: 7, userID: 8, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanDeleteTask(tt.role, tt.managerID, tt.userID); got != tt.want {
				t.Fatalf("CanDeleteTask(%q, %d, %d) = %v, want %v", tt.role, tt.managerID, tt.userID, got, tt.want)
			}
		})
	}
}

func TestCanChangeState(t *testing.T) {
	if !CanChangeState(RoleMember, 42, 42) {
		t.Fatalf("assignee should be able to change state of own task")
	}
	if CanChangeState(RoleMember, 42, 43) {
		t.Fatalf("non-assignee member should not change state")
	}
	if !CanChangeState(RoleAdmin, 0, 0) {
		t.Fatalf("admin should bypass ownership")
	}
	if CanChangeState(RoleMember, 0, 0) {
		t.Fatalf("zero ids must never satisfy ownership")
	}
}

func TestCanEditTask(t *testing.T) {
	if CanEditTask(true) {
		t.Fatalf("deleted task must be immutable")
	}
	if !CanEditTask(false) {
		t.Fatalf("live task must be editable")
	}
}

func TestEditBlockMessage(t *testing.T) {
	if got := EditBlockMessage(false, false); got != MsgTaskMissing {
		t.Fatalf("missing task: got %q", got)
	}
	// Non-existence takes precedence over deletion.
	if got := EditBlockMessage(false, true); got != MsgTaskMissing {
		t.Fatalf("missing deleted task: got %q", got)
	}
	if got := EditBlockMessage(true, true); got != MsgTaskDeleted {
		t.Fatalf("deleted task: got %q", got)
	}
	if got := EditBlockMessage(true, false); got != "" {
		t.Fatalf("editable task should yield empty message, got %q", got)
	}
}
