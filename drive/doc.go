// Package drive wraps every file, user and access-request endpoint of the
// MiniDrive API.
//
// Each operation builds one request, sends it through the authorized
// [transport.Client] and turns a non-success status into an [*APIError]
// carrying a fixed, operation-specific message. A handful of operations
// prefer the API's own JSON "message" when it supplies one. Authentication
// failures never reach this layer as statuses: the transport has already
// torn the session down and returns [transport.ErrUnauthorized].
package drive
