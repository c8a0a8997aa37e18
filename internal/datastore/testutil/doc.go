// Package testutil builds throwaway legacy and destination SQLite databases,
// mapping stores and fixtures for migration tests.
package testutil
