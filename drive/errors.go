package drive

import (
	"errors"
	"fmt"
	"net/http"
)

// Fixed per-operation failure messages.
const (
	msgFindUser       = "User not found"
	msgUpload         = "File upload failed"
	msgListFiles      = "Failed to fetch files"
	msgListAllFiles   = "Failed to fetch all files"
	msgDelete         = "Failed to delete file"
	msgShare          = "Failed to share file"
	msgGenerateLink   = "Failed to generate share link"
	msgPromote        = "Failed to promote user"
	msgUsers          = "Failed to fetch users"
	msgUserFiles      = "Failed to fetch user files"
	msgRequestAccess  = "Failed to request access"
	msgAccessRequests = "Failed to get access requests"
	msgApproveAccess  = "Failed to approve access"
	msgDownload       = "Failed to download file"
	msgUpdateMetadata = "Failed to update file metadata"
	msgPublicFile     = "Failed to load shared file"
)

// APIError is a non-success response from a drive operation.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// String includes the operation and status, for logs.
func (e *APIError) String() string {
	return fmt.Sprintf("%s: %d %s: %s", e.Op, e.Status, http.StatusText(e.Status), e.Message)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	return statusOf(err) == http.StatusNotFound
}

// IsForbidden reports whether err is an APIError with status 403.
func IsForbidden(err error) bool {
	return statusOf(err) == http.StatusForbidden
}

func statusOf(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}
