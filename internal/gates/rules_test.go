package gates

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) interface{} {
	t.Helper()
	var v interface{}
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestLookup(t *testing.T) {
	doc := decode(t, `{"a":{"b":[{"c":1}]}}`)

	v, ok := lookup(doc, "a.b.0.c")
	require.True(t, ok)
	assert.Equal(t, float64(1), v)

	_, ok = lookup(doc, "a.b.1")
	assert.False(t, ok)
	_, ok = lookup(doc, "a.x")
	assert.False(t, ok)
}

func TestFindAll(t *testing.T) {
	doc := decode(t, `{"score":1,"z":{"score":2},"list":[{"score":3},{"other":4}]}`)
	assert.Equal(t, []interface{}{float64(3), float64(1), float64(2)}, findAll(doc, "score"))
	assert.Empty(t, findAll(doc, "absent"))
}
