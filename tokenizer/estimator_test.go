package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanoutllm/fanout/types"
)

func TestEstimatorCountTokens(t *testing.T) {
	e := NewEstimator()

	n, err := e.CountTokens("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = e.CountTokens("hi")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "short text rounds up to one token")

	// ~400 ASCII chars => ~100 tokens.
	n, err = e.CountTokens(strings.Repeat("word ", 80))
	require.NoError(t, err)
	assert.InDelta(t, 100, n, 5)
}

func TestEstimatorCJKRatio(t *testing.T) {
	e := NewEstimator()

	ascii, err := e.CountTokens(strings.Repeat("a", 300))
	require.NoError(t, err)
	cjk, err := e.CountTokens(strings.Repeat("中", 300))
	require.NoError(t, err)
	assert.Greater(t, cjk, ascii, "CJK text yields more tokens per char")
}

func TestEstimatorCountMessages(t *testing.T) {
	e := NewEstimator()

	msgs := []types.Message{
		types.NewSystemMessage(strings.Repeat("classify documents ", 50)),
		types.NewUserMessage("doc A"),
	}
	n, err := e.CountMessages(msgs)
	require.NoError(t, err)

	content, err := e.CountTokens(msgs[0].Content)
	require.NoError(t, err)
	assert.Greater(t, n, content, "message overhead is included")
}

func TestForModelSelection(t *testing.T) {
	assert.Equal(t, "tiktoken[o200k_base]", ForModel("gpt-4o-mini").Name())
	assert.Equal(t, "tiktoken[cl100k_base]", ForModel("gpt-4-turbo").Name())
	assert.Equal(t, "estimator", ForModel("claude-sonnet-4-5").Name())
	assert.Equal(t, "estimator", ForModel("llama-3.3-70b-versatile").Name())
}
