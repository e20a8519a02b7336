// Package oid defines the 160-bit object identifier used throughout this
// tool. OIDs are value objects; none are computed in-process. Every OID a
// component holds was printed by the external VCS binary (rev-parse,
// cat-file, ls-tree, commit-tree, hash-object).
package oid

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
)

const (
	// Size is the byte width of an OID (160 bits).
	Size = 20
	// HexSize is the canonical textual width.
	HexSize = Size * 2
	// ShortHexSize is the width of the short display form.
	ShortHexSize = 10
)

// OID is a 160-bit content hash.
type OID [Size]byte

// Zero is the sentinel all-zero OID used by the VCS's own line-attribution
// output to denote the staging area / uncommitted state.
var Zero OID

// FromHex parses a canonical 40-hex string into an OID.
func FromHex(s string) (OID, error) {
	var out OID
	if len(s) != HexSize {
		return out, fmt.Errorf("oid: expected %d hex characters, got %d (%q)", HexSize, len(s), s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("oid: invalid hex %q: %w", s, err)
	}
	copy(out[:], b)
	return out, nil
}

// MustFromHex parses a canonical hex string, panicking on malformed input.
// Reserved for fixtures and tests where the value is a compile-time literal.
func MustFromHex(s string) OID {
	o, err := FromHex(s)
	if err != nil {
		panic(err)
	}
	return o
}

func (o OID) String() string {
	return hex.EncodeToString(o[:])
}

// Short returns the 10-hex-character display form.
func (o OID) Short() string {
	return o.String()[:ShortHexSize]
}

// IsZero reports whether this is the sentinel zero OID.
func (o OID) IsZero() bool {
	return o == Zero
}

// Equal reports byte-wise equality.
func (o OID) Equal(other OID) bool {
	return o == other
}

// Less orders OIDs by their hex form, for use in sorted slices.
func (o OID) Less(other OID) bool {
	return bytes.Compare(o[:], other[:]) < 0
}

func (o OID) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *OID) UnmarshalText(text []byte) error {
	parsed, err := FromHex(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// Slice is a sortable slice of OIDs, ordered on the hex form.
type Slice []OID

func (s Slice) Len() int           { return len(s) }
func (s Slice) Less(i, j int) bool { return s[i].Less(s[j]) }
func (s Slice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

var _ sort.Interface = Slice(nil)
