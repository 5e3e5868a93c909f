package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperjump/curator/internal/models"
)

// ListSeparator joins list-valued metadata into a single string.
const ListSeparator = "、"

// SanitizeMetadata rewrites every value of m in place to a primitive the vector
// store accepts: lists are joined with ListSeparator, maps are JSON-encoded,
// nil becomes "" and other types are formatted with fmt.
func SanitizeMetadata(m models.Metadata) {
	for k, v := range m {
		m[k] = sanitizeValue(v)
	}
}

func sanitizeValue(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return ""
	case string, bool, int, int32, int64, float32, float64:
		return x
	case []string:
		return strings.Join(x, ListSeparator)
	case []interface{}:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = fmt.Sprint(sanitizeValue(e))
		}
		return strings.Join(parts, ListSeparator)
	case map[string]string, map[string]interface{}, models.Metadata:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	default:
		return fmt.Sprint(x)
	}
}
