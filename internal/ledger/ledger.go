package ledger

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DefaultCapacity is the number of conversations remembered per process.
const DefaultCapacity = 100

// Ledger remembers which conversations already received the instruction block.
// It is bounded: once full, the oldest insertion is evicted to make room.
// Marking an id that is already present does not move it.
type Ledger struct {
	mu       sync.Mutex
	capacity int
	ids      *orderedmap.OrderedMap[string, struct{}]
}

func New(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ledger{
		capacity: capacity,
		ids:      orderedmap.New[string, struct{}](),
	}
}

// Has reports whether id was marked and not yet evicted.
func (l *Ledger) Has(id string) bool {
	if id == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.ids.Get(id)
	return ok
}

// Mark records id. It returns the id that was evicted to make room, if any.
func (l *Ledger) Mark(id string) (evicted string) {
	if id == "" {
		return ""
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.ids.Get(id); ok {
		return ""
	}
	if l.ids.Len() >= l.capacity {
		if oldest := l.ids.Oldest(); oldest != nil {
			evicted = oldest.Key
			l.ids.Delete(oldest.Key)
		}
	}
	l.ids.Set(id, struct{}{})
	return evicted
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ids.Len()
}

func (l *Ledger) Capacity() int { return l.capacity }

// IDs returns the marked ids, oldest first.
func (l *Ledger) IDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, l.ids.Len())
	for pair := l.ids.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}
