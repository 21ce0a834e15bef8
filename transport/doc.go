// Package transport is the authorized HTTP client every API call goes through.
//
// [Client.Do] attaches the bearer token, tags the request with an
// X-Request-ID and applies the auth-failure policy: on a 401 it removes the
// persisted token, notifies every subscriber registered with
// [Client.Subscribe] and returns [ErrUnauthorized]. Callers never special-case
// the status themselves.
//
// [Client.DoPublic] is the bare path used by login, signup and the public-link
// viewer. It never injects the provider token and never runs the auth-failure
// policy.
//
// # What this package must NOT do
//
//   - Interpret non-401 error bodies; each operation decides its own message.
//   - Retry, poll or enforce timeouts beyond what the *http.Client carries.
//   - Import session or drive (no upward imports).
package transport
