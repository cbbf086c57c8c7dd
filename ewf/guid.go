package ewf

import "github.com/google/uuid"

// NewGUID returns a fresh RFC 4122 random GUID for a new segment-file set,
// replacing the non-conformant hand-rolled generator the prior generation
// of this library used.
func NewGUID() [16]byte {
	return uuid.New()
}
