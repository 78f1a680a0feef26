package storage

import "errors"

// ErrInsertNoID is returned when the store does not hand back an identifier
// for a newly inserted task.
var ErrInsertNoID = errors.New("Insert did not return task id")

// NotFoundError reports that a written row could not be re-read. It is fatal
// to the operation and never silently ignored.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// IntegrityError reports that a re-read value disagrees with the intended
// write. The store may silently reject or transform values; this layer never
// trusts a write without a confirming read.
type IntegrityError struct {
	Field string
}

func (e *IntegrityError) Error() string {
	return "Integrity check failed: " + e.Field + " mismatch"
}
