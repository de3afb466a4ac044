// Package fingerprint derives stable content-addressed identifiers from
// arbitrary Go values, and generates the random unique identifiers used to
// tag cache records and session handles.
//
// A value's fingerprint is computed by canonicalizing it into a
// deterministic byte form (maps sorted by key, slices kept in order) and
// hashing the result with SHA-256. Two values that are deeply equal after
// JSON round-tripping always fingerprint the same way regardless of
// construction order, matching spec.md §4.2's requirement that
// fingerprinting be stable under key reordering.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// ErrUnsupportedValue is returned when FP is asked to fingerprint a value
// that encoding/json cannot marshal (channels, functions, complex numbers,
// NaN or infinite floats, maps with unsupported key types). Maps with
// string or integer keys are accepted and canonicalized by sorted key.
var ErrUnsupportedValue = errors.New("fingerprint: unsupported value")

// Length is the number of hex characters in an FP output (128 bits).
const Length = 32

// FP computes a stable, content-addressed fingerprint for v. v is first
// marshaled to JSON (so structs, maps, slices and scalars are all
// supported), then canonicalized by recursively sorting every object's
// keys, then hashed with SHA-256. The result is the first Length hex
// characters of the digest, lowercase.
func FP(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: marshal: %v", ErrUnsupportedValue, err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("%w: unmarshal: %v", ErrUnsupportedValue, err)
	}
	canon, err := canonicalize(generic)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])[:Length], nil
}

// canonicalize re-marshals a decoded JSON value with map keys sorted at
// every level, guaranteeing two equal values always produce byte-identical
// output regardless of the order fields were set in.
func canonicalize(v any) ([]byte, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return nil, fmt.Errorf("%w: marshal key: %v", ErrUnsupportedValue, err)
			}
			out = append(out, key...)
			out = append(out, ':')
			val, err := canonicalize(t[k])
			if err != nil {
				return nil, err
			}
			out = append(out, val...)
		}
		out = append(out, '}')
		return out, nil
	case []any:
		out := []byte{'['}
		for i, item := range t {
			if i > 0 {
				out = append(out, ',')
			}
			val, err := canonicalize(item)
			if err != nil {
				return nil, err
			}
			out = append(out, val...)
		}
		out = append(out, ']')
		return out, nil
	default:
		return json.Marshal(t)
	}
}

// UID returns a fresh random identifier suitable for cache record IDs and
// session handles. It is never derived from content, unlike FP.
func UID() string {
	return uuid.New().String()
}
