package embed

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/sandevgo/mnemo/internal/textsim"
)

const (
	DefaultHashDims = 256
	hashModel       = "feature-hash"
	// stemLen folds inflections ("connection", "connections") onto one feature.
	stemLen = 6
)

// HashEmbedder is an offline embedder based on signed feature hashing of
// significant tokens and their stems. Equal texts map to equal vectors and
// texts sharing vocabulary point in similar directions.
type HashEmbedder struct {
	dims int
}

func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultHashDims
	}
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dims)
	for _, tok := range textsim.Tokens(text) {
		h.add(vec, tok, 1)
		if r := []rune(tok); len(r) > stemLen {
			h.add(vec, "stem:"+string(r[:stemLen]), 0.5)
		}
	}
	return normalize(vec), nil
}

func (h *HashEmbedder) add(vec []float32, feature string, weight float32) {
	f := fnv.New64a()
	f.Write([]byte(feature))
	sum := f.Sum64()

	idx := int(sum % uint64(h.dims))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

func (h *HashEmbedder) Dims() int {
	return h.dims
}

func (h *HashEmbedder) Model() string {
	return hashModel
}

// normalize converts embedding to unit vector.
func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}

	n := float32(math.Sqrt(norm))
	for i, v := range vec {
		vec[i] = v / n
	}
	return vec
}
