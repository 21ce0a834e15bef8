// Package fakeapi is an in-memory MiniDrive API used by tests and the
// example program. It issues HS256 JWTs, hashes passwords with bcrypt and
// implements every endpoint the client consumes, including the admin and
// public-link flows.
package fakeapi
