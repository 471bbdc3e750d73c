package engine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator mints the IDs of script runs and dashboards.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 IDs.
//
// UUIDv7 embeds a timestamp in the most significant bits, so dashboard and
// run IDs sort by creation time.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined IDs for testing.
//
// Golden dashboard payloads need stable widget IDs, which derive from the
// dashboard ID. Once the list is exhausted the generator keeps numbering
// from the last ID ("dash-1" -> "dash-1.1", "dash-1.2", ...), so a test
// running more statements than it listed still gets unique IDs.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu    sync.Mutex
	ids   []string
	idx   int
	extra int
}

// NewFixedGenerator creates a generator that returns ids in order.
//
// Example:
//
//	gen := NewFixedGenerator("run-1", "dash-1")
//	gen.Generate() // "run-1"
//	gen.Generate() // "dash-1"
//	gen.Generate() // "dash-1.1"
func NewFixedGenerator(ids ...string) *FixedGenerator {
	if len(ids) == 0 {
		ids = []string{"id"}
	}
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined ID.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx < len(g.ids) {
		id := g.ids[g.idx]
		g.idx++
		return id
	}
	g.extra++
	return fmt.Sprintf("%s.%d", g.ids[len(g.ids)-1], g.extra)
}
