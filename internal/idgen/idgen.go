// Package idgen generates prefixed, time-sortable identifiers.
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	PrefixConversation = "conv"
	PrefixMessage      = "msg"
)

// Generator produces ULID-based ids. It is safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// New returns a Generator drawing entropy from crypto/rand.
func New() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// New returns prefix + "_" + ULID. Within one millisecond the monotonic
// entropy increments, so ids never repeat and sort in generation order.
func (g *Generator) New(prefix string) string {
	g.mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
	g.mu.Unlock()
	if prefix == "" {
		return id.String()
	}
	return prefix + "_" + id.String()
}
