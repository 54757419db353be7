package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// BuildKey assembles a cache key of the form
// resource:operation[:id][:query-hash]. The serialized query is hashed so
// keys stay short and free of pattern metacharacters.
func BuildKey(resource, operation, id, serializedQuery string) string {
	parts := []string{resource, operation}
	if id != "" {
		parts = append(parts, id)
	}
	if serializedQuery != "" {
		hash := sha256.Sum256([]byte(serializedQuery))
		parts = append(parts, hex.EncodeToString(hash[:16]))
	}
	return strings.Join(parts, ":")
}

// DefaultPattern is the invalidation pattern applied when a resource
// configures none: every key belonging to the resource.
func DefaultPattern(resource string) string {
	return resource + ":*"
}

// MatchPattern reports whether a key matches a glob pattern where * matches
// any run of characters. Used by the memory store; Redis applies the same
// semantics natively in SCAN MATCH.
func MatchPattern(pattern, key string) bool {
	segments := strings.Split(pattern, "*")
	if len(segments) == 1 {
		return pattern == key
	}

	if !strings.HasPrefix(key, segments[0]) {
		return false
	}
	key = key[len(segments[0]):]

	for _, segment := range segments[1 : len(segments)-1] {
		idx := strings.Index(key, segment)
		if idx < 0 {
			return false
		}
		key = key[idx+len(segment):]
	}

	return strings.HasSuffix(key, segments[len(segments)-1])
}
