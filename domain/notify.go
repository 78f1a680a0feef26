package domain

import "strings"

// Fixed notification shape for the rework flow.
const (
	notifyReworkTitle = "Task returned for rework"
	notifyTasksURL    = "/tasks"
)

// NotifyPayload is handed to the push-delivery collaborator. It is created
// per transition event and never stored.
type NotifyPayload struct {
	TargetUserID int64  `json:"targetUserId"`
	Title        string `json:"title"`
	Body         string `json:"body"`
	URL          string `json:"url"`
}

// PrepareNotifyPayload builds the notification sent to an assignee whose task
// was returned for rework.
func PrepareNotifyPayload(userID int64, comment string) NotifyPayload {
	return NotifyPayload{
		TargetUserID: userID,
		Title:        notifyReworkTitle,
		Body:         strings.TrimSpace(comment),
		URL:          notifyTasksURL,
	}
}
