// Package core provides the foundational domain types shared by every other
// package of chatpipe:
//
//   - Messages and sessions (the conversation model)
//   - ChatRequest (one outgoing turn, immutable once submitted)
//   - ChatEvent (closed sum type of dispatch outcomes: chunk, error, cancelled)
//   - EventSink (where a backend emits events for one dispatch)
//   - PersistenceStore (snapshot contract implemented by package store)
//
// The package deliberately holds no concurrency machinery; dispatching lives
// in package pipeline and engines in package backend.
package core
