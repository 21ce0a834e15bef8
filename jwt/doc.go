// Package jwt reads claims out of bearer tokens without verifying them.
//
// The client never holds signing keys; verification is the API's job. The
// claims are used for display (who the token names, when it expires) and
// for log-safe fingerprints.
package jwt
