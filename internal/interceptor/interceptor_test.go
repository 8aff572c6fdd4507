package interceptor

import (
	"fmt"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/goleak"

	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/envelope"
	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/prompts"
	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/settings"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	streamTarget = "/_/BardChatUi/data/assistant.lamda.BardFrontendService/StreamGenerate?bl=boq&rt=c"
	otherTarget  = "/_/BardChatUi/data/batchexecute?rpcids=abc"
	convNav      = "https://gemini.google.com/app/abc123"
	composerNav  = "https://gemini.google.com/app"

	// helloBody carries the outer array [null,"[[\"hello\"]]"].
	helloBody = "f.req=%5Bnull%2C%22%5B%5B%5C%22hello%5C%22%5D%5D%22%5D"
)

type failingSource struct{}

func (failingSource) Load() (settings.Snapshot, bool) { panic("settings exploded") }

func published(t *testing.T, snap settings.Snapshot) *settings.Cell {
	t.Helper()
	cell := &settings.Cell{}
	require.NoError(t, cell.Publish(snap))
	return cell
}

func activeCell(t *testing.T, instructions ...string) *settings.Cell {
	return published(t, settings.Snapshot{Enabled: true, Instructions: instructions})
}

func message(t *testing.T, body string) string {
	t.Helper()
	form, ok, err := envelope.Extract(body)
	require.NoError(t, err)
	require.True(t, ok)
	inner := gjson.Get(form.Value(), "1").String()
	return gjson.Get(inner, "0.0").String()
}

type recorder struct {
	mu     sync.Mutex
	events []FailureEvent
}

func (r *recorder) handle(evt FailureEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) all() []FailureEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]FailureEvent(nil), r.events...)
}

func TestTransmit_InjectsOncePerConversation(t *testing.T) {
	ic := New(activeCell(t, "Be concise"), Options{})

	out, outcome := ic.Transmit(streamTarget, convNav, helloBody)
	require.Equal(t, OutcomeMutated, outcome)
	assert.Equal(t, "<system_instructions>\nBe concise\n</system_instructions>\n\nhello", message(t, out))
	assert.True(t, ic.Ledger().Has("abc123"))

	out, outcome = ic.Transmit(streamTarget, convNav, helloBody)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Equal(t, helloBody, out)
}

func TestTransmit_MultipleInstructionsJoined(t *testing.T) {
	ic := New(activeCell(t, "A", "B"), Options{})

	out, outcome := ic.Transmit(streamTarget, convNav, helloBody)
	require.Equal(t, OutcomeMutated, outcome)
	assert.Equal(t, "<system_instructions>\nA\n\nB\n</system_instructions>\n\nhello", message(t, out))
}

func TestTransmit_ComposerAlwaysInjects(t *testing.T) {
	ic := New(activeCell(t, "Be concise"), Options{})

	for i := 0; i < 3; i++ {
		_, outcome := ic.Transmit(streamTarget, composerNav, helloBody)
		assert.Equal(t, OutcomeMutated, outcome)
	}
	assert.Equal(t, 0, ic.Ledger().Len(), "composer sends have no conversation id to record")
}

func TestTransmit_PassesThroughUnchanged(t *testing.T) {
	tests := []struct {
		name   string
		source Source
		target string
		nav    string
		want   Outcome
	}{
		{"non-candidate target", activeCell(t, "x"), otherTarget, convNav, OutcomeSkipped},
		{"unknown configuration", &settings.Cell{}, streamTarget, convNav, OutcomeSkipped},
		{"disabled", published(t, settings.Snapshot{Enabled: false, Instructions: []string{"x"}}), streamTarget, convNav, OutcomeSkipped},
		{"empty instructions", published(t, settings.Snapshot{Enabled: true}), streamTarget, convNav, OutcomeSkipped},
		{"persona page", activeCell(t, "x"), streamTarget, "https://gemini.google.com/gem/helper/abc123", OutcomeSkipped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ic := New(tt.source, Options{})
			out, outcome := ic.Transmit(tt.target, tt.nav, helloBody)
			assert.Equal(t, tt.want, outcome)
			assert.Equal(t, helloBody, out)
			assert.Equal(t, 0, ic.Ledger().Len())
		})
	}
}

func TestTransmit_AbsentField(t *testing.T) {
	ic := New(activeCell(t, "x"), Options{})
	rec := &recorder{}
	ic.OnInjectionFailed(rec.handle)

	body := "at=token&bl=boq"
	out, outcome := ic.Transmit(streamTarget, convNav, body)
	assert.Equal(t, OutcomeAbsent, outcome)
	assert.Equal(t, body, out)
	assert.Empty(t, rec.all())
	assert.False(t, ic.Ledger().Has("abc123"))
}

func TestTransmit_FormatChanged(t *testing.T) {
	ic := New(activeCell(t, "x"), Options{})
	rec := &recorder{}
	ic.OnInjectionFailed(rec.handle)

	body := "f.req=" + url.QueryEscape("[null,42]")
	out, outcome := ic.Transmit(streamTarget, convNav, body)

	assert.Equal(t, OutcomeInvalid, outcome)
	assert.Equal(t, body, out)
	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, prompts.CodeAPIFormatChanged, events[0].Error)
	assert.Equal(t, "abc123", events[0].ConversationID)
	assert.NotEmpty(t, events[0].ID)
	assert.False(t, ic.Ledger().Has("abc123"), "failed sends are not recorded")

	_, outcome = ic.Transmit(streamTarget, convNav, helloBody)
	assert.Equal(t, OutcomeMutated, outcome, "a later well-formed send still injects")
}

func TestTransmit_MalformedJSONIsFormatChange(t *testing.T) {
	ic := New(activeCell(t, "x"), Options{})
	rec := &recorder{}
	ic.OnInjectionFailed(rec.handle)

	for _, raw := range []string{`{"a":1}`, `[null,"not json"]`, `[null,"[1,2]"]`, `[null`} {
		body := "f.req=" + url.QueryEscape(raw)
		out, outcome := ic.Transmit(streamTarget, convNav, body)
		assert.Equal(t, OutcomeInvalid, outcome, raw)
		assert.Equal(t, body, out)
	}
	assert.Len(t, rec.all(), 4)
}

func TestTransmit_UnexpectedErrorCarriesMessage(t *testing.T) {
	ic := New(activeCell(t, "x"), Options{})
	rec := &recorder{}
	ic.OnInjectionFailed(rec.handle)

	body := "f.req=%ZZ"
	out, outcome := ic.Transmit(streamTarget, convNav, body)

	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, body, out)
	events := rec.all()
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Error, "unescape f.req")
	assert.NotEqual(t, prompts.CodeAPIFormatChanged, events[0].Error)
}

func TestTransmit_PanicIsContained(t *testing.T) {
	ic := New(failingSource{}, Options{})
	rec := &recorder{}
	ic.OnInjectionFailed(rec.handle)

	out, outcome := ic.Transmit(streamTarget, convNav, helloBody)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, helloBody, out)
	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, "settings exploded", events[0].Error)

	// the lock must have been released
	_, outcome = ic.Transmit(otherTarget, convNav, helloBody)
	assert.Equal(t, OutcomeSkipped, outcome)
}

func TestTransmit_PanickingHandler(t *testing.T) {
	ic := New(activeCell(t, "x"), Options{})
	rec := &recorder{}
	ic.OnInjectionFailed(func(FailureEvent) { panic("listener bug") })
	ic.OnInjectionFailed(rec.handle)

	body := "f.req=" + url.QueryEscape("[null,42]")
	assert.NotPanics(t, func() {
		out, _ := ic.Transmit(streamTarget, convNav, body)
		assert.Equal(t, body, out)
	})
	assert.Len(t, rec.all(), 1, "later handlers still run")
}

func TestTransmit_ReadsSettingsFresh(t *testing.T) {
	cell := &settings.Cell{}
	ic := New(cell, Options{})

	_, outcome := ic.Transmit(streamTarget, convNav, helloBody)
	assert.Equal(t, OutcomeSkipped, outcome, "before the first publish")

	require.NoError(t, cell.Publish(settings.Snapshot{Enabled: true, Instructions: []string{"late"}}))
	out, outcome := ic.Transmit(streamTarget, convNav, helloBody)
	require.Equal(t, OutcomeMutated, outcome)
	assert.Contains(t, message(t, out), "late")

	require.NoError(t, cell.Publish(settings.Snapshot{Enabled: false, Instructions: []string{"late"}}))
	_, outcome = ic.Transmit(streamTarget, "https://gemini.google.com/app/other", helloBody)
	assert.Equal(t, OutcomeSkipped, outcome)
}

func TestTransmit_LedgerBounded(t *testing.T) {
	ic := New(activeCell(t, "x"), Options{LedgerCapacity: 3})

	for i := 0; i < 5; i++ {
		_, outcome := ic.Transmit(streamTarget, fmt.Sprintf("https://gemini.google.com/app/c%d", i), helloBody)
		require.Equal(t, OutcomeMutated, outcome)
	}
	assert.Equal(t, 3, ic.Ledger().Len())
	assert.Equal(t, []string{"c2", "c3", "c4"}, ic.Ledger().IDs())

	_, outcome := ic.Transmit(streamTarget, "https://gemini.google.com/app/c0", helloBody)
	assert.Equal(t, OutcomeMutated, outcome, "evicted conversations become eligible again")
}

func TestTransmit_ConcurrentSendsInjectOnce(t *testing.T) {
	ic := New(activeCell(t, "x"), Options{})

	const senders = 16
	var wg sync.WaitGroup
	results := make(chan Outcome, senders)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, outcome := ic.Transmit(streamTarget, convNav, helloBody)
			results <- outcome
		}()
	}
	wg.Wait()
	close(results)

	mutated := 0
	for o := range results {
		if o == OutcomeMutated {
			mutated++
		}
	}
	assert.Equal(t, 1, mutated)
}

func TestStats(t *testing.T) {
	ic := New(activeCell(t, "x"), Options{})

	ic.Transmit(otherTarget, convNav, helloBody)
	ic.Transmit(streamTarget, convNav, "at=1")
	ic.Transmit(streamTarget, convNav, "f.req="+url.QueryEscape("[null,42]"))
	ic.Transmit(streamTarget, convNav, helloBody)

	assert.Equal(t, Stats{Skipped: 1, Absent: 1, Invalid: 1, Mutated: 1, LedgerSize: 1}, ic.Stats())
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "mutated", OutcomeMutated.String())
	assert.Equal(t, "unknown", Outcome(99).String())
}
