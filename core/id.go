package core

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewID returns a random UUID used for message identifiers.
func NewID() string { return uuid.NewString() }

// NewSessionID returns a ULID so session identifiers sort by creation time.
func NewSessionID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}
