package sheet

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGenerator mints "new-<unixms>-<counter>-<rand>" ids for rows created
// locally. The counter makes ids minted in the same millisecond distinct even
// before the random suffix is considered.
type IDGenerator struct {
	mu      sync.Mutex
	now     func() time.Time
	counter uint64
	entropy *ulid.MonotonicEntropy
}

// NewIDGenerator returns a generator using the wall clock.
func NewIDGenerator() *IDGenerator {
	return NewIDGeneratorWithClock(time.Now)
}

// NewIDGeneratorWithClock returns a generator reading time from now.
func NewIDGeneratorWithClock(now func() time.Time) *IDGenerator {
	return &IDGenerator{
		now:     now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Next returns a fresh local row id.
func (g *IDGenerator) Next() RowID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now()
	g.counter++
	id, err := ulid.New(ulid.Timestamp(ts), g.entropy)
	suffix := ""
	if err == nil {
		// the random half of the ulid; the timestamp half duplicates ts
		suffix = strings.ToLower(id.String()[10:18])
	} else {
		suffix = fmt.Sprintf("%08x", g.counter)
	}
	return RowID(fmt.Sprintf("%s%d-%d-%s", localPrefix, ts.UnixMilli(), g.counter, suffix))
}
