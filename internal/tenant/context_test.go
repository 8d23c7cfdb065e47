package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext(t *testing.T) {
	t.Run("returns tenant when set", func(t *testing.T) {
		ctx := WithTenant(context.Background(), "tenant-1")

		id, ok := FromContext(ctx)
		assert.True(t, ok)
		assert.Equal(t, "tenant-1", id)
	})

	t.Run("missing tenant", func(t *testing.T) {
		id, ok := FromContext(context.Background())
		assert.False(t, ok)
		assert.Empty(t, id)
	})

	t.Run("empty tenant treated as missing", func(t *testing.T) {
		ctx := WithTenant(context.Background(), "")

		_, ok := FromContext(ctx)
		assert.False(t, ok)
	})
}
