package storage

// Package storage persists deferred-task records so scheduled work
// survives restarts.
//
// Backends:
//   - sqlite (default for production; WAL, single writer)
//   - memory (tests, or running without a storage section)
