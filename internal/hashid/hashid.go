// Package hashid derives the opaque 16-byte ids addressing every event,
// property, and value in a bucket, grounded on the composite-key digest
// described by the hash-addressed key model: length-prefix each element of
// a tuple, concatenate, and take a stable 128-bit digest.
package hashid

import (
	"crypto/md5"
	"encoding/binary"
)

// Size is the fixed width, in bytes, of every id this package produces.
const Size = 16

// HighID sorts strictly above any real id; used as the upper bound of an
// unbounded slice read.
var HighID = func() [Size]byte {
	var id [Size]byte
	for i := range id {
		id[i] = 0xFF
	}
	return id
}()

// ID is an opaque 16-byte identifier.
type ID [Size]byte

// Bytes returns the id's raw bytes.
func (id ID) Bytes() []byte { return id[:] }

// FromBytes builds an ID from a raw 16-byte slice already known to be of
// the right width (e.g. a client-supplied visitor id).
func FromBytes(b []byte) ID {
	var id ID
	copy(id[:], b)
	return id
}

// Hash derives an ID from a tuple of byte strings. An input already exactly
// Size bytes long is returned verbatim (it is already an id — most commonly
// a client-supplied visitor id); anything else is length-prefixed and
// digested.
func Hash(parts ...[]byte) ID {
	if len(parts) == 1 && len(parts[0]) == Size {
		return FromBytes(parts[0])
	}
	h := md5.New()
	var lenBuf [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(p)))
		h.Write(lenBuf[:])
		h.Write(p)
	}
	var id ID
	copy(id[:], h.Sum(nil))
	return id
}

// HashStrings is a convenience wrapper over Hash for string tuples.
func HashStrings(parts ...string) ID {
	b := make([][]byte, len(parts))
	for i, p := range parts {
		b[i] = []byte(p)
	}
	return Hash(b...)
}
