// Package clone provides deep-copy helpers used to uphold immutability
// invariants across the module (question templates must never be mutated
// by instantiation, cache records must never be mutated in place).
package clone

import (
	"encoding/json"
	"fmt"
)

// Of performs a deep copy of src's exported fields via JSON round-tripping.
// Pointers to zero values (such as a slot index of 0) survive the copy.
func Of[T any](src T) (T, error) {
	var dst T
	raw, err := json.Marshal(src)
	if err != nil {
		return dst, fmt.Errorf("encode for clone: %w", err)
	}
	if err := json.Unmarshal(raw, &dst); err != nil {
		return dst, fmt.Errorf("decode for clone: %w", err)
	}
	return dst, nil
}
