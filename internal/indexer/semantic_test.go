package indexer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kiku/internal/embedding"
)

func TestSplitSentences(t *testing.T) {
	got := splitSentences("First one. Second one?  Third one!\nTrailing words")
	assert.Equal(t, []string{"First one.", "Second one?", "Third one!", "Trailing words"}, got)
	assert.Equal(t, []string{"v1.2 is out."}, splitSentences("v1.2 is out."))
	assert.Empty(t, splitSentences("   "))
}

func TestPercentile(t *testing.T) {
	values := []float64{4, 1, 3, 2}
	assert.InDelta(t, 1.0, percentile(values, 0), 1e-9)
	assert.InDelta(t, 4.0, percentile(values, 100), 1e-9)
	assert.InDelta(t, 2.5, percentile(values, 50), 1e-9)
	assert.InDelta(t, 3.85, percentile(values, 95), 1e-9)
	assert.Equal(t, 0.0, percentile(nil, 95))
	assert.Equal(t, []float64{4, 1, 3, 2}, values, "input is not reordered")
}

func TestMeanStd(t *testing.T) {
	mean, std := meanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, mean, 1e-9)
	assert.InDelta(t, 2.0, std, 1e-9)
}

func TestSemanticSplitter_PreservesSentences(t *testing.T) {
	text := "Cats purr when content. Cats chase small mice. Cats sleep most afternoons. " +
		"Rockets burn liquid fuel. Rockets reach low orbit. Rockets launch from pads."
	for _, thresholdType := range []string{"percentile", "standard_deviation"} {
		t.Run(thresholdType, func(t *testing.T) {
			amount := 95.0
			if thresholdType == "standard_deviation" {
				amount = 0.5
			}
			s := NewSemanticSplitter(embedding.NewMockEmbedder(128), thresholdType, amount)
			chunks, err := s.Split(context.Background(), text)
			require.NoError(t, err)
			require.NotEmpty(t, chunks)
			assert.Less(t, len(chunks), 6)
			assert.Equal(t, strings.Join(splitSentences(text), " "), strings.Join(chunks, " "))
		})
	}
}

func TestSemanticSplitter_SingleSentence(t *testing.T) {
	e := embedding.NewMockEmbedder(32)
	chunks, err := NewSemanticSplitter(e, "percentile", 95).Split(context.Background(), "Only one sentence here")
	require.NoError(t, err)
	assert.Equal(t, []string{"Only one sentence here"}, chunks)
	assert.Zero(t, e.Calls(), "single sentence needs no embeddings")
}

func TestSemanticSplitter_NoEmbedder(t *testing.T) {
	_, err := NewSemanticSplitter(nil, "percentile", 95).Split(context.Background(), "A. B.")
	assert.ErrorIs(t, err, ErrSemanticUnavailable)
}
