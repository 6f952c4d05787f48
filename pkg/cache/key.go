package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key represents a unique identifier for a cached upstream response.
type Key struct {
	// Path is the upstream endpoint path (e.g. "/v1/items/42/")
	Path string

	// Query are the request query parameters
	Query url.Values
}

// String generates a deterministic cache key string.
// Format: req:path:query1=val1:query2=val2
//
// Example:
//
//	req:v1/items/42:order=asc:page=2
func (k Key) String() string {
	parts := []string{"req"}

	path := strings.Trim(k.Path, "/")
	if path != "" {
		parts = append(parts, path)
	}

	// Sorted for determinism; repeated parameters keep every value so
	// distinct request signatures never collapse onto one key.
	if len(k.Query) > 0 {
		queryKeys := make([]string, 0, len(k.Query))
		for key := range k.Query {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			values := append([]string(nil), k.Query[key]...)
			sort.Strings(values)
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(values, ",")))
		}
	}

	return strings.Join(parts, ":")
}
