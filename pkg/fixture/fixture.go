package fixture

import (
	"math/rand"
	"strconv"
	"sync"

	"github.com/livelist/livelist/pkg/types"
)

// Defaults match the demo list: ten rows out of a thousand possible ids.
const (
	DefaultSize  = 10
	DefaultSpace = 1000
)

// Generator produces fixture batches. It is safe for concurrent use.
type Generator struct {
	size, space int

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Generator. Non-positive size or space fall back to the
// defaults.
func New(size, space int, seed int64) *Generator {
	if size <= 0 {
		size = DefaultSize
	}
	if space <= 0 {
		space = DefaultSpace
	}
	return &Generator{size: size, space: space, rng: rand.New(rand.NewSource(seed))}
}

// Next returns a fresh batch.
func (g *Generator) Next() []types.Record {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]types.Record, g.size)
	for i := range out {
		n := strconv.Itoa(g.rng.Intn(g.space))
		out[i] = types.Record{ID: n, Name: "item" + n}
	}
	return out
}
