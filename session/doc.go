// Package session keeps the chat sessions of a running client in memory.
//
// The Registry is the authoritative in-process view of all conversations and
// tracks which one is active. Durable snapshots live in a
// core.PersistenceStore; the registry itself performs no I/O and is filled
// from a store with Put.
package session
