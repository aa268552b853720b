package testutil

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashEmbedder maps each lower-cased word to a bucket of a fixed-size vector.
// Texts sharing words end up close under cosine distance.
type HashEmbedder struct {
	Dim int
}

// Embed implements generation.Embedder.
func (h HashEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dim := h.Dim
	if dim <= 0 {
		dim = 64
	}
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		vec := make([]float32, dim)
		words := strings.FieldsFunc(strings.ToLower(in), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			f := fnv.New32a()
			_, _ = f.Write([]byte(w))
			vec[f.Sum32()%uint32(dim)]++
		}
		out[i] = vec
	}
	return out, nil
}
