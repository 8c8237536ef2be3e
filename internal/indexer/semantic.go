package indexer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/embedding"
	"github.com/hyperjump/kiku/internal/vector"
)

// ErrSemanticUnavailable is returned when semantic splitting is requested without an embedder.
var ErrSemanticUnavailable = errors.New("semantic chunking unavailable: no embedder configured")

var sentenceEnd = regexp.MustCompile(`[.?!]\s+`)

// SemanticSplitter splits text at topic shifts: sentences are embedded with their
// neighbours and a chunk ends wherever the cosine distance to the next sentence
// exceeds the threshold.
type SemanticSplitter struct {
	embedder      embedding.Embedder
	thresholdType string
	amount        float64
	buffer        int
}

// NewSemanticSplitter creates a semantic splitter. thresholdType is percentile or
// standard_deviation; amount is the percentile (0-100) or the number of deviations.
func NewSemanticSplitter(e embedding.Embedder, thresholdType string, amount float64) *SemanticSplitter {
	return &SemanticSplitter{
		embedder:      e,
		thresholdType: thresholdType,
		amount:        amount,
		buffer:        1,
	}
}

// Split implements Splitter.
func (s *SemanticSplitter) Split(ctx context.Context, text string) ([]string, error) {
	if s.embedder == nil {
		return nil, ErrSemanticUnavailable
	}
	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		return sentences, nil
	}

	combined := make([]string, len(sentences))
	for i := range sentences {
		lo := max(0, i-s.buffer)
		hi := min(len(sentences), i+s.buffer+1)
		combined[i] = strings.Join(sentences[lo:hi], " ")
	}
	vectors, err := s.embedder.EmbedBatch(ctx, combined)
	if err != nil {
		return nil, fmt.Errorf("embed sentences: %w", err)
	}
	if len(vectors) != len(sentences) {
		return nil, fmt.Errorf("embed sentences: got %d vectors for %d sentences", len(vectors), len(sentences))
	}

	distances := make([]float64, len(vectors)-1)
	for i := range distances {
		distances[i] = 1 - vector.CosineSimilarity(vectors[i], vectors[i+1])
	}
	threshold, err := s.threshold(distances)
	if err != nil {
		return nil, err
	}

	var chunks []string
	start := 0
	for i, d := range distances {
		if d > threshold {
			chunks = append(chunks, strings.Join(sentences[start:i+1], " "))
			start = i + 1
		}
	}
	if start < len(sentences) {
		chunks = append(chunks, strings.Join(sentences[start:], " "))
	}
	return chunks, nil
}

func (s *SemanticSplitter) threshold(distances []float64) (float64, error) {
	switch s.thresholdType {
	case config.ThresholdPercentile, "":
		return percentile(distances, s.amount), nil
	case config.ThresholdStandardDeviation:
		mean, std := meanStd(distances)
		return mean + s.amount*std, nil
	default:
		return 0, fmt.Errorf("unknown semantic threshold type %q", s.thresholdType)
	}
}

// splitSentences splits after '.', '?' or '!' followed by whitespace.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start : loc[0]+1]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// percentile uses linear interpolation between closest ranks. p is in [0, 100].
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	p = math.Max(0, math.Min(100, p))
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// meanStd returns the mean and population standard deviation.
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}
