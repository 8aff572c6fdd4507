package ledger

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLedger_MarkAndHas(t *testing.T) {
	l := New(3)

	assert.False(t, l.Has("c1"))
	assert.Empty(t, l.Mark("c1"))
	assert.True(t, l.Has("c1"))
	assert.Equal(t, 1, l.Len())
}

func TestLedger_EmptyIDIgnored(t *testing.T) {
	l := New(3)

	assert.Empty(t, l.Mark(""))
	assert.False(t, l.Has(""))
	assert.Equal(t, 0, l.Len())
}

func TestLedger_EvictsOldestInsertion(t *testing.T) {
	const capacity = 100
	l := New(capacity)

	for i := 0; i < capacity; i++ {
		l.Mark(fmt.Sprintf("conv-%d", i))
	}
	assert.Equal(t, capacity, l.Len())

	evicted := l.Mark("conv-new")
	assert.Equal(t, "conv-0", evicted)
	assert.Equal(t, capacity, l.Len())
	assert.False(t, l.Has("conv-0"))
	assert.True(t, l.Has("conv-1"))
	assert.True(t, l.Has("conv-new"))
}

func TestLedger_RemarkDoesNotRefreshPosition(t *testing.T) {
	l := New(2)
	l.Mark("a")
	l.Mark("b")

	assert.Empty(t, l.Mark("a"), "re-marking must not evict")
	assert.Equal(t, "a", l.Mark("c"), "a is still the oldest insertion")

	if diff := cmp.Diff([]string{"b", "c"}, l.IDs()); diff != "" {
		t.Errorf("IDs() mismatch (-want +got):\n%s", diff)
	}
}

func TestLedger_EvictedIDIsEligibleAgain(t *testing.T) {
	l := New(1)
	l.Mark("a")
	l.Mark("b")

	assert.False(t, l.Has("a"))
	assert.Equal(t, "b", l.Mark("a"))
	assert.True(t, l.Has("a"))
}

func TestLedger_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Capacity())
	assert.Equal(t, DefaultCapacity, New(-5).Capacity())
	assert.Equal(t, 7, New(7).Capacity())
}
