package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanoutllm/fanout/providers"
	"github.com/fanoutllm/fanout/types"
)

func testRequest(model, prompt string) *providers.Request {
	return &providers.Request{
		Model:    model,
		Messages: []types.Message{types.NewUserMessage(prompt)},
	}
}

func TestKeyDeterministic(t *testing.T) {
	a := Key("openai", testRequest("gpt-4o", "hello"))
	b := Key("openai", testRequest("gpt-4o", "hello"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestKeyDiscriminates(t *testing.T) {
	base := Key("openai", testRequest("gpt-4o", "hello"))
	assert.NotEqual(t, base, Key("anthropic", testRequest("gpt-4o", "hello")))
	assert.NotEqual(t, base, Key("openai", testRequest("gpt-4o-mini", "hello")))
	assert.NotEqual(t, base, Key("openai", testRequest("gpt-4o", "goodbye")))

	// Role is part of the key, not just content bytes.
	sys := &providers.Request{
		Model:    "gpt-4o",
		Messages: []types.Message{types.NewSystemMessage("hello")},
	}
	assert.NotEqual(t, base, Key("openai", sys))
}

func TestLocalOnlyRoundTrip(t *testing.T) {
	c := NewMultiLevel(nil, nil, nil)
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	entry := &Entry{Content: "cached answer", Model: "gpt-4o",
		Usage: types.UsageStats{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12}}
	require.NoError(t, c.Set(ctx, "k1", entry))

	got, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "cached answer", got.Content)
	assert.Equal(t, 12, got.Usage.TotalTokens)
	assert.Equal(t, 1, got.HitCount)
}

func TestLocalEviction(t *testing.T) {
	c := NewMultiLevel(nil, &Config{LocalMaxSize: 2, LocalTTL: time.Minute, EnableLocal: true}, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", &Entry{Content: "a"}))
	require.NoError(t, c.Set(ctx, "b", &Entry{Content: "b"}))
	require.NoError(t, c.Set(ctx, "c", &Entry{Content: "c"}))

	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrMiss, "oldest entry evicted at capacity")

	got, err := c.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "c", got.Content)
}

func TestRedisTierAndBackfill(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	ctx := context.Background()
	writer := NewMultiLevel(rdb, nil, nil)
	require.NoError(t, writer.Set(ctx, "shared", &Entry{Content: "from redis"}))

	// A second instance with a cold local tier reads through Redis.
	reader := NewMultiLevel(rdb, nil, nil)
	got, err := reader.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, "from redis", got.Content)

	// Backfilled locally: still served after Redis loses the key.
	mr.FlushAll()
	got, err = reader.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, "from redis", got.Content)
}

func TestRedisExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := &Config{RedisTTL: time.Minute}
	c := NewMultiLevel(rdb, cfg, nil)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", &Entry{Content: "v"}))

	mr.FastForward(2 * time.Minute)
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	c := NewMultiLevel(rdb, nil, nil)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", &Entry{Content: "v"}))
	require.NoError(t, c.Delete(ctx, "k"))

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}
