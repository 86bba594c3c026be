// Package idgen provides the identifier sources used by the ledger.
package idgen

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/alanyoungcy/predictionledger/internal/domain"
)

// Sequence hands out "1", "2", "3", ... It is safe for concurrent use.
type Sequence struct {
	next atomic.Uint64
}

// NewSequence returns a Sequence whose first id is "1".
func NewSequence() *Sequence {
	return &Sequence{}
}

// NextID returns the next id in the sequence.
func (s *Sequence) NextID() (string, error) {
	return strconv.FormatUint(s.next.Add(1), 10), nil
}

// UUIDs hands out time-ordered UUIDv7 strings.
type UUIDs struct{}

// NextID returns a fresh UUIDv7.
func (UUIDs) NextID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("idgen: uuid v7: %w", err)
	}
	return id.String(), nil
}

// New returns the generator for scheme ("sequence" or "uuid"). Case and
// surrounding space are ignored.
func New(scheme string) (domain.IDGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(scheme)) {
	case "", "sequence":
		return NewSequence(), nil
	case "uuid":
		return UUIDs{}, nil
	default:
		return nil, fmt.Errorf("idgen: unknown scheme %q", scheme)
	}
}

var (
	_ domain.IDGenerator = (*Sequence)(nil)
	_ domain.IDGenerator = UUIDs{}
)
