package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"autoasesor/internal/config"
)

func TestReplyCache_NilIsDisabled(t *testing.T) {
	var c *ReplyCache

	_, ok := c.Get(context.Background(), "value_prop", "qué garantía ofrecen")
	assert.False(t, ok)

	// Set and Close on the disabled cache are no-ops
	c.Set(context.Background(), "value_prop", "qué garantía ofrecen", "respuesta")
	assert.NoError(t, c.Close())
}

func TestNewReplyCache_NoAddr(t *testing.T) {
	c := NewReplyCache(config.RedisConfig{}, zap.NewNop())
	assert.Nil(t, c)
}

func TestReplyCache_KeyStability(t *testing.T) {
	c := &ReplyCache{prefix: "reply"}

	base := c.key("value_prop", "qué garantía ofrecen")

	// Case and surrounding whitespace do not change the key
	assert.Equal(t, base, c.key("value_prop", "  Qué Garantía Ofrecen  "))

	// Different query or reply type does
	assert.NotEqual(t, base, c.key("value_prop", "dónde están las sedes"))
	assert.NotEqual(t, base, c.key("recommend", "qué garantía ofrecen"))

	assert.Contains(t, base, "reply:value_prop:")
}
