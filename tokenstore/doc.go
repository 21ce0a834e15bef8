// Package tokenstore persists the single bearer token that survives a process
// restart.
//
// The token lives under the fixed key [Key]. Exactly three writers exist: a
// successful login or signup, an explicit logout, and the transport's
// auth-failure handler. Stores apply last-writer-wins and take no locks
// beyond what is needed to keep a single backend consistent.
//
// # Backends
//
//   - [MemoryStore]: process-local, mostly for tests and short-lived tools.
//   - [FileStore]: JSON document on disk, written atomically.
//   - [RedisStore]: shared key in Redis, optional TTL.
//
// This package does not interpret tokens.
package tokenstore
