package drive

import (
	"errors"
	"io"
	"time"

	"github.com/MrEthical07/minidrive/session"
)

// Permission is the access level granted on a shared file.
type Permission string

const (
	PermissionView Permission = "view"
	PermissionEdit Permission = "edit"
)

// Valid reports whether p is view or edit.
func (p Permission) Valid() bool {
	return p == PermissionView || p == PermissionEdit
}

// ParsePermission validates a user-supplied permission name.
func ParsePermission(s string) (Permission, error) {
	p := Permission(s)
	if !p.Valid() {
		return "", ErrInvalidPermission
	}
	return p, nil
}

var (
	ErrInvalidPermission = errors.New("permission must be view or edit")
	ErrEmptyID           = errors.New("id must not be empty")
	ErrNilTransport      = errors.New("drive: nil transport")
)

type Owner struct {
	ID    string `json:"_id"`
	Email string `json:"email"`
}

// FileItem is a file's metadata as returned by the API. UserPermission is
// nil for files the caller owns.
type FileItem struct {
	ID             string      `json:"_id"`
	Filename       string      `json:"filename"`
	OriginalName   string      `json:"originalName"`
	Size           int64       `json:"size"`
	UploadDate     time.Time   `json:"uploadDate"`
	ContentType    string      `json:"contentType,omitempty"`
	UserID         string      `json:"userId,omitempty"`
	Owner          *Owner      `json:"owner,omitempty"`
	UserPermission *Permission `json:"userPermission,omitempty"`
	Shared         bool        `json:"shared,omitempty"`
}

// FileLists splits the caller's files into owned and shared-with-me.
type FileLists struct {
	Owned  []FileItem `json:"owned"`
	Shared []FileItem `json:"shared"`
}

// Account is a user record in admin listings.
type Account struct {
	ID    string       `json:"_id"`
	Email string       `json:"email"`
	Role  session.Role `json:"role"`
}

type ShareLink struct {
	Link  string `json:"link"`
	Token string `json:"token"`
}

type AccessStatus string

const (
	AccessPending  AccessStatus = "pending"
	AccessApproved AccessStatus = "approved"
	AccessRejected AccessStatus = "rejected"
)

type AccessRequest struct {
	ID     string       `json:"_id"`
	FileID string       `json:"fileId"`
	UserID string       `json:"userId"`
	Status AccessStatus `json:"status"`
}

// MetadataUpdate carries the subset of fields to change; nil fields are
// left untouched.
type MetadataUpdate struct {
	OriginalName *string `json:"originalName,omitempty"`
	ContentType  *string `json:"contentType,omitempty"`
	OwnerID      *string `json:"ownerId,omitempty"`
}

// Download is an open file body. The caller must close Body.
type Download struct {
	Body        io.ReadCloser
	ContentType string
	Filename    string
	Size        int64
}
