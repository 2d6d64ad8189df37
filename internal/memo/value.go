package memo

import (
	"github.com/cespare/xxhash/v2"
)

// String is a Value wrapper for plain strings.
type String string

func (s String) Fingerprint() uint64 { return xxhash.Sum64String(string(s)) }

// Strings is a Value wrapper for an ordered string list.
type Strings []string

func (s Strings) Fingerprint() uint64 {
	h := xxhash.New()
	for _, v := range s {
		h.WriteString(v)
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// Uint64 is a Value wrapper for numeric fingerprint-like inputs.
type Uint64 uint64

func (u Uint64) Fingerprint() uint64 { return uint64(u) }
