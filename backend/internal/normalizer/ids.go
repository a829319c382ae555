package normalizer

import (
	"fmt"
	"sync/atomic"
	"time"
)

// IDGenerator issues provisional identifiers for one session. Identifiers
// combine the wall-clock millisecond with a monotonically increasing counter,
// so two proposals created in the same millisecond still differ.
type IDGenerator struct {
	seq atomic.Uint64
	now func() time.Time
}

// NewIDGenerator creates a generator starting at sequence 1
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

// Next returns a new identifier with the given prefix, e.g. "n1718000000000-3"
func (g *IDGenerator) Next(prefix string) string {
	n := g.seq.Add(1)
	return fmt.Sprintf("%s%d-%d", prefix, g.now().UnixMilli(), n)
}
