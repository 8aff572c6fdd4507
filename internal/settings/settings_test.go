package settings

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCell_UnknownUntilPublished(t *testing.T) {
	var c Cell

	s, ok := c.Load()
	assert.False(t, ok)
	assert.False(t, c.Ready())
	assert.Equal(t, Snapshot{}, s)

	_, ok = c.Raw()
	assert.False(t, ok)
}

func TestCell_PublishThenLoad(t *testing.T) {
	var c Cell
	require.NoError(t, c.Publish(Snapshot{Enabled: true, Instructions: []string{"Be concise", "Use Markdown"}}))

	s, ok := c.Load()
	require.True(t, ok)
	assert.True(t, s.Enabled)
	assert.Equal(t, []string{"Be concise", "Use Markdown"}, s.Instructions)

	raw, ok := c.Raw()
	require.True(t, ok)
	assert.JSONEq(t, `{"enabled":true,"instructions":["Be concise","Use Markdown"]}`, raw)
}

func TestCell_DisabledIsKnown(t *testing.T) {
	var c Cell
	require.NoError(t, c.Publish(Snapshot{}))

	s, ok := c.Load()
	assert.True(t, ok, "a disabled configuration is still a known configuration")
	assert.False(t, s.Active())
	assert.NotNil(t, s.Instructions)
}

func TestCell_LoadReturnsFreshCopy(t *testing.T) {
	var c Cell
	require.NoError(t, c.Publish(Snapshot{Enabled: true, Instructions: []string{"a"}}))

	s, _ := c.Load()
	s.Instructions[0] = "mutated"

	again, _ := c.Load()
	assert.Equal(t, "a", again.Instructions[0])
}

func TestCell_LatestPublishWins(t *testing.T) {
	var c Cell
	require.NoError(t, c.Publish(Snapshot{Enabled: true, Instructions: []string{"old"}}))
	require.NoError(t, c.Publish(Snapshot{Enabled: false, Instructions: []string{"new"}}))

	s, ok := c.Load()
	require.True(t, ok)
	assert.False(t, s.Enabled)
	assert.Equal(t, []string{"new"}, s.Instructions)
}

func TestSnapshot_Active(t *testing.T) {
	assert.False(t, Snapshot{Enabled: true}.Active())
	assert.False(t, Snapshot{Enabled: false, Instructions: []string{"x"}}.Active())
	assert.True(t, Snapshot{Enabled: true, Instructions: []string{"x"}}.Active())
}

func TestSnapshot_Clone(t *testing.T) {
	orig := Snapshot{Enabled: true, Instructions: []string{"a", "b"}}
	clone := orig.Clone()
	clone.Instructions[0] = "z"
	assert.Equal(t, "a", orig.Instructions[0])
	assert.Nil(t, Snapshot{}.Clone().Instructions)
}

func TestNormalizeInstruction(t *testing.T) {
	got, err := NormalizeInstruction("  Be concise \n")
	require.NoError(t, err)
	assert.Equal(t, "Be concise", got)

	_, err = NormalizeInstruction("   ")
	assert.ErrorIs(t, err, ErrEmptyInstruction)

	_, err = NormalizeInstruction(strings.Repeat("가", MaxInstructionLength))
	assert.NoError(t, err, "limit counts characters, not bytes")

	_, err = NormalizeInstruction(strings.Repeat("a", MaxInstructionLength+1))
	assert.ErrorIs(t, err, ErrInstructionTooLong)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(Snapshot{}))

	many := make([]string, MaxInstructions+1)
	for i := range many {
		many[i] = "x"
	}
	assert.ErrorIs(t, Validate(Snapshot{Instructions: many}), ErrTooManyInstructions)
	assert.NoError(t, Validate(Snapshot{Instructions: many[:MaxInstructions]}))

	assert.ErrorIs(t, Validate(Snapshot{Instructions: []string{"ok", ""}}), ErrEmptyInstruction)
}
