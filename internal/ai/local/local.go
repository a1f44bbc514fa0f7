package local

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"github.com/spigell/peermatch/internal/ai"
)

const (
	ProviderName = "local"

	DefaultDimension = 256
)

// Embedder is a feature-hashed bag of words. It needs no corpus and no
// network, so it works offline and in tests; vectors are only comparable with
// vectors from an Embedder of the same dimension.
type Embedder struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}+#]+(?:['’.][\p{L}\p{N}]+)*`),
		stopwords:    defaultStopwords(),
	}
}

func (e *Embedder) Name() string { return ProviderName }

func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrProviderUnavailable, err)
	}

	tokens := e.tokenize(text)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: no tokens in text", ai.ErrProviderUnavailable)
	}

	acc := make([]float64, e.dimension)
	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()

		idx := int(sum % uint64(e.dimension))
		if sum&(1<<63) != 0 {
			acc[idx]--
		} else {
			acc[idx]++
		}
	}

	norm := 0.0
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, e.dimension)
	if norm == 0 {
		// every token collided and cancelled out
		return vec, nil
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec, nil
}

func (e *Embedder) tokenize(text string) []string {
	raw := e.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		// labels of the embedding text template
		"affiliation", "skills", "interests", "goals",
		"a", "an", "the", "and", "or", "but", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are",
		"be", "it", "this", "that", "from", "into", "about", "i", "my", "me", "want", "some",
		"и", "в", "на", "с", "по", "для", "я", "мой", "моя", "хочу",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

var _ ai.Embedder = (*Embedder)(nil)
