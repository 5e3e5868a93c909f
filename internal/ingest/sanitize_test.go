package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hyperjump/curator/internal/models"
)

type zone struct{ name string }

func TestSanitizeMetadata(t *testing.T) {
	m := models.Metadata{
		"name":    "光影回廊",
		"row":     3,
		"score":   0.5,
		"flag":    true,
		"missing": nil,
		"fields":  []string{"创作动机", "设计灵感"},
		"mixed":   []interface{}{"a", 1, nil},
		"nested":  map[string]string{"k": "v"},
		"struct":  zone{"A区"},
	}
	SanitizeMetadata(m)

	assert.Equal(t, "光影回廊", m["name"])
	assert.Equal(t, 3, m["row"])
	assert.Equal(t, 0.5, m["score"])
	assert.Equal(t, true, m["flag"])
	assert.Equal(t, "", m["missing"])
	assert.Equal(t, "创作动机、设计灵感", m["fields"])
	assert.Equal(t, "a、1、", m["mixed"])
	assert.Equal(t, `{"k":"v"}`, m["nested"])
	assert.Equal(t, "{A区}", m["struct"])
}
