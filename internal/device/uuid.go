package device

import (
	"fmt"

	"github.com/srg/blegatt/internal/bledb"
)

// NormalizeUUID is re-exported from bledb for convenience.
func NormalizeUUID(uuid string) string {
	return bledb.NormalizeUUID(uuid)
}

// ValidateUUID normalizes uuids, rejecting empty entries.
func ValidateUUID(uuids ...string) ([]string, error) {
	if len(uuids) == 0 {
		return nil, fmt.Errorf("at least one UUID is required")
	}

	result := make([]string, 0, len(uuids))
	for i, uuid := range uuids {
		normalized := NormalizeUUID(uuid)
		if normalized == "" {
			return nil, fmt.Errorf("UUID at index %d cannot be empty", i)
		}
		result = append(result, normalized)
	}
	return result, nil
}

// SameUUID compares two UUIDs in any accepted notation.
func SameUUID(a, b string) bool {
	return NormalizeUUID(a) == NormalizeUUID(b)
}
