package corpus

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordCodec は空白区切りの単語を1トークンとして扱うtokenCodec
type wordCodec struct {
	words []string
}

func (c *wordCodec) Encode(text string, _ []string, _ []string) []int {
	c.words = strings.Fields(text)
	tokens := make([]int, len(c.words))
	for i := range tokens {
		tokens[i] = i
	}
	return tokens
}

func (c *wordCodec) Decode(tokens []int) string {
	decoded := make([]string, len(tokens))
	for i, t := range tokens {
		decoded[i] = c.words[t]
	}
	return strings.Join(decoded, " ")
}

func TestClipper_ClipTruncatesOnTokenBoundary(t *testing.T) {
	clipper, err := newClipper(&wordCodec{}, 3)
	require.NoError(t, err)

	assert.Equal(t, "alpha beta gamma", clipper.Clip("alpha beta gamma delta epsilon"))
}

func TestClipper_ClipKeepsTextWithinBudget(t *testing.T) {
	clipper, err := newClipper(&wordCodec{}, 3)
	require.NoError(t, err)

	// 上限ちょうどの本文は無加工で返る
	assert.Equal(t, "alpha beta gamma", clipper.Clip("alpha beta gamma"))
	assert.Equal(t, "alpha", clipper.Clip("alpha"))
}

func TestClipper_CountTokens(t *testing.T) {
	clipper, err := newClipper(&wordCodec{}, 10)
	require.NoError(t, err)

	assert.Equal(t, 4, clipper.CountTokens("alpha beta gamma delta"))
	assert.Zero(t, clipper.CountTokens(""))
}

func TestNewClipper_RejectsInvalidArguments(t *testing.T) {
	_, err := NewClipper("bogus-encoding", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus-encoding")

	_, err = newClipper(&wordCodec{}, 0)
	require.Error(t, err)
}
