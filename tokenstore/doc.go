// Package tokenstore persists OAuth2 token state between process runs.
//
// A Store is a small key/value capability with per-key expiry. The token manager
// in package tokensource serializes its state into a Store so that a new process
// against the same Canvas domain and client ID reuses a still-valid access token
// instead of refreshing eagerly.
//
// Backends:
//   - Memory: process-local map, useful for tests and single-run tools
//   - File: one JSON file per key, written atomically
//   - Keyring: OS credential store via go-keyring
//   - Redis: native key TTL
//   - S3: object storage via minio-go
//   - SQL: SQLite or PostgreSQL via bun
//
// Every backend returns ErrNotFound for absent and expired keys.
package tokenstore
