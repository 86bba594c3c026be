// Package memory implements domain.SignalBus inside the process. It is used
// when no Redis address is configured.
package memory

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"sync"

	"github.com/alanyoungcy/predictionledger/internal/domain"
)

const (
	subscriberBuffer = 128
	defaultMaxLen    = 10000
)

type subscriber struct {
	pattern string
	ch      chan []byte
}

type stream struct {
	seq     uint64
	entries []domain.StreamMessage
}

// Bus fans published payloads out to every matching subscriber and keeps
// capped in-memory streams. Slow subscribers lose messages instead of
// blocking publishers.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	streams map[string]*stream
	maxLen  int
}

// NewBus creates a Bus whose streams keep at most maxLen entries (10,000 when
// maxLen <= 0).
func NewBus(maxLen int) *Bus {
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &Bus{
		subs:    make(map[*subscriber]struct{}),
		streams: make(map[string]*stream),
		maxLen:  maxLen,
	}
}

// Publish delivers payload to every subscriber whose channel or glob pattern
// matches channel.
func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subs {
		if !matches(s.pattern, channel) {
			continue
		}
		msg := append([]byte(nil), payload...)
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of payloads published on channel, which may be
// a glob pattern such as "ledger:*". The returned channel is closed when ctx
// is cancelled.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if _, err := path.Match(channel, ""); err != nil {
		return nil, fmt.Errorf("memory: subscribe %s: %w", channel, err)
	}

	s := &subscriber{pattern: channel, ch: make(chan []byte, subscriberBuffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		close(s.ch)
		b.mu.Unlock()
	}()

	return s.ch, nil
}

func matches(pattern, channel string) bool {
	if pattern == channel {
		return true
	}
	ok, err := path.Match(pattern, channel)
	return err == nil && ok
}

// StreamAppend appends payload to stream, dropping the oldest entries beyond
// the cap.
func (b *Bus) StreamAppend(ctx context.Context, name string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.streams[name]
	if !ok {
		st = &stream{}
		b.streams[name] = st
	}
	st.seq++
	st.entries = append(st.entries, domain.StreamMessage{
		ID:      strconv.FormatUint(st.seq, 10) + "-0",
		Payload: append([]byte(nil), payload...),
	})
	if over := len(st.entries) - b.maxLen; over > 0 {
		st.entries = append([]domain.StreamMessage(nil), st.entries[over:]...)
	}
	return nil
}

// StreamRead returns up to count entries with an id after lastID. "0", "0-0"
// and "" read from the beginning.
func (b *Bus) StreamRead(ctx context.Context, name string, lastID string, count int) ([]domain.StreamMessage, error) {
	after, err := parseID(lastID)
	if err != nil {
		return nil, fmt.Errorf("memory: stream read %s: %w", name, err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	st, ok := b.streams[name]
	if !ok {
		return nil, nil
	}

	var out []domain.StreamMessage
	for _, e := range st.entries {
		seq, _ := parseID(e.ID)
		if seq <= after {
			continue
		}
		out = append(out, domain.StreamMessage{ID: e.ID, Payload: append([]byte(nil), e.Payload...)})
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

func parseID(id string) (uint64, error) {
	if id == "" || id == "0" || id == "0-0" {
		return 0, nil
	}
	for i := 0; i < len(id); i++ {
		if id[i] == '-' {
			id = id[:i]
			break
		}
	}
	return strconv.ParseUint(id, 10, 64)
}

// Compile-time interface check.
var _ domain.SignalBus = (*Bus)(nil)
