// Package codec implements the EWF chunk codec: Adler-32 checksums and the
// DEFLATE (zlib) compression wrapper used by every chunk and every section
// footer in the container.
package codec

import "hash/adler32"

// Checksum returns the standard Adler-32 checksum of buf. Spec §4.1 allows
// an implementation to delegate to an external zlib when available and
// fall back to a portable modular implementation otherwise; Go's
// hash/adler32 is always available, so there is no degraded path to wire
// up here — see DESIGN.md for why this one primitive stays stdlib.
func Checksum(buf []byte) uint32 {
	return adler32.Checksum(buf)
}

// Verify reports whether buf's Adler-32 matches want.
func Verify(buf []byte, want uint32) bool {
	return Checksum(buf) == want
}
