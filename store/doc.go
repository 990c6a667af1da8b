// Package store contains implementations of core.PersistenceStore.
//
// The interface lives in core so the facade and CLI depend on the contract
// only. InMemoryStore suits tests and throwaway runs; SQLiteStore keeps
// sessions and settings in a single SQLite file.
package store
