// Package internal holds helpers private to the minidrive module.
//
// # Sub-packages
//
//   - audit: async dispatch of session events to a Sink
//   - fakeapi: in-memory MiniDrive API used by tests, examples and the CLI tests
//   - logging: slog construction and token-safe log attributes
package internal
