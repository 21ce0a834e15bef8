// Package session is the single source of truth for who is logged in.
//
// A [Store] owns the in-memory [Session] (user, token, loading flag) and keeps
// it consistent with the persisted token:
//
//   - [Store.Initialize] rehydrates from the persisted token, verifying it
//     against the "who am I" endpoint before any user is exposed.
//   - [Store.Login] and [Store.Signup] set token and user together and persist
//     the token.
//   - [Store.Logout], and any auth failure reported by the transport, clear
//     both.
//
// Token and user are set and cleared together. The only exception is the
// rehydration window, where the token is known, the user is not, and
// Loading is true.
//
// # What this package must NOT do
//
//   - Swallow login or signup errors; they are returned to the caller.
//   - Leave a token without a user once Initialize has completed.
//   - Import drive or the root package.
package session
