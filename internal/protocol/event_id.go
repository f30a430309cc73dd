package protocol

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// GenerateEventID returns a random version 4 UUID encoded as 32 lowercase hex
// characters, the form used for event ids in envelope headers.
func GenerateEventID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
