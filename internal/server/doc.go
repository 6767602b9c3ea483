// Package server manages the HTTP/HTTPS server lifecycle: non-blocking
// startup, graceful shutdown with request draining, and SIGINT/SIGTERM
// handling. Manager wraps net/http.Server and exposes an asynchronous
// error channel so the caller can observe serve failures.
package server
