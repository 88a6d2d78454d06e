package idgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IsUUID(t *testing.T) {
	id := New()
	require.Len(t, id, 36)
	assert.True(t, Valid(id))
}

func TestNew_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("sle_")
	assert.True(t, strings.HasPrefix(id, "sle_"))
	assert.Len(t, id, len("sle_")+32)
	assert.NotContains(t, id[4:], "-")
}

func TestValid_RejectsGarbage(t *testing.T) {
	assert.False(t, Valid("not-a-uuid"))
	assert.False(t, Valid(""))
}
