package tracker

import "github.com/pkg/errors"

var (
	// errors
	ErrClassNotFound      = errors.New("class not found")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrNotLoaded          = errors.New("data not loaded yet")
	ErrRemoteUnavailable  = errors.New("remote store not configured")
	ErrNotAuthenticated   = errors.New("user not authenticated")
	ErrCloudDataExists    = errors.New("Cloud data already exists")
	ErrCorruptedData      = errors.New("Failed to parse local storage data")
)

// user facing sync messages
const (
	msgLoadFailed             = "Failed to load data from cloud"
	msgSaveClassFailed        = "Failed to save class"
	msgUpdateClassFailed      = "Failed to update class"
	msgDeleteClassFailed      = "Failed to delete class"
	msgSaveAssignmentFailed   = "Failed to save assignment"
	msgUpdateAssignmentFailed = "Failed to update assignment"
	msgDeleteAssignmentFailed = "Failed to delete assignment"
	msgSweepFailed            = "Failed to update overdue assignments"
)

// SyncError is a remote failure surfaced to the user as a dismissable message.
type SyncError struct {
	Message string
	Err     error
}

func newSyncError(msg string, err error) *SyncError {
	return &SyncError{Message: msg, Err: err}
}

func (e *SyncError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *SyncError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is caused by a missing class or assignment.
func IsNotFound(err error) bool {
	cause := errors.Cause(err)
	return cause == ErrClassNotFound || cause == ErrAssignmentNotFound
}

// IsCorrupted reports whether err is caused by a local record that failed to parse.
func IsCorrupted(err error) bool {
	return errors.Cause(err) == ErrCorruptedData
}
