// Package minidrive is a client for the MiniDrive file-sharing API.
//
// A [Client] is assembled with [New] and [Builder.Build]. It wires four
// layers together:
//
//   - tokenstore keeps the one bearer token that survives restarts.
//   - transport sends every request, attaches the token and turns a 401
//     into a session teardown.
//   - session owns who is logged in and rehydrates on [Client.Start].
//   - drive exposes the file, sharing and admin operations.
//
// Session transitions are counted in [Metrics] and, when enabled, relayed
// to an [AuditSink].
//
// # What this package must NOT do
//
//   - Log or audit raw tokens or passwords.
//   - Start background work other than the optional audit dispatcher.
//   - Be imported by tokenstore, transport, session or drive. Only the
//     exporters and the CLI sit above it.
package minidrive
