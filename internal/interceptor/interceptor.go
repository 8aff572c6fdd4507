package interceptor

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/envelope"
	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/ledger"
	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/prompts"
	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/settings"
)

var errAbsent = errors.New("envelope field absent")

// Source is where the interceptor reads the current configuration. It is
// consulted on every candidate transmit; ok=false means "not published yet".
type Source interface {
	Load() (snap settings.Snapshot, ok bool)
}

type Options struct {
	Marker           string
	PersonaSegment   string
	LedgerCapacity   int
	NavigationHeader string
	// Location returns the navigation target for transports that do not
	// carry their own (see Navigator).
	Location func() string
}

// Interceptor rewrites the streaming generation payload so the configured
// instruction block precedes the user's message, at most once per conversation.
type Interceptor struct {
	source    Source
	gate      Gate
	marker    string
	navHeader string
	location  func() string
	ledger    *ledger.Ledger

	// mu serializes gate check, rewrite and ledger mark.
	mu sync.Mutex

	handlersMu sync.RWMutex
	handlers   []FailureHandler

	counts      [outcomeCount]atomic.Int64
	passthrough atomic.Int64

	installOnce sync.Once
	installed   http.RoundTripper
}

func New(source Source, opts Options) *Interceptor {
	if opts.Marker == "" {
		opts.Marker = DefaultMarker
	}
	if opts.NavigationHeader == "" {
		opts.NavigationHeader = "Referer"
	}
	if opts.Location == nil {
		opts.Location = func() string { return "" }
	}
	return &Interceptor{
		source:    source,
		gate:      Gate{PersonaSegment: opts.PersonaSegment},
		marker:    opts.Marker,
		navHeader: opts.NavigationHeader,
		location:  opts.Location,
		ledger:    ledger.New(opts.LedgerCapacity),
	}
}

// OnInjectionFailed registers handler for failure events. Handlers run on the
// transmitting goroutine after the rewrite lock is released; a panic in a
// handler is logged and does not affect the request.
func (ic *Interceptor) OnInjectionFailed(handler FailureHandler) {
	if handler == nil {
		return
	}
	ic.handlersMu.Lock()
	defer ic.handlersMu.Unlock()
	ic.handlers = append(ic.handlers, handler)
}

// Ledger exposes the injection ledger for inspection.
func (ic *Interceptor) Ledger() *ledger.Ledger { return ic.ledger }

func (ic *Interceptor) Stats() Stats {
	return Stats{
		Skipped:     ic.counts[OutcomeSkipped].Load(),
		Absent:      ic.counts[OutcomeAbsent].Load(),
		Invalid:     ic.counts[OutcomeInvalid].Load(),
		Failed:      ic.counts[OutcomeFailed].Load(),
		Mutated:     ic.counts[OutcomeMutated].Load(),
		Passthrough: ic.passthrough.Load(),
		LedgerSize:  ic.ledger.Len(),
	}
}

// Transmit runs the send pipeline for one request body and returns the body
// that must be forwarded. It never fails: on every non-Mutated outcome the
// returned body is the input unchanged.
func (ic *Interceptor) Transmit(target, navigation, body string) (string, Outcome) {
	if !Classify(target, ic.marker) {
		ic.counts[OutcomeSkipped].Add(1)
		return body, OutcomeSkipped
	}

	out, outcome, failure := ic.run(target, navigation, body)
	ic.counts[outcome].Add(1)
	if failure != nil {
		ic.emit(*failure)
	}
	if outcome == OutcomeMutated {
		slog.Debug("instructions injected", "conversation", ConversationID(navigation))
	}
	return out, outcome
}

func (ic *Interceptor) run(target, navigation, body string) (out string, outcome Outcome, failure *FailureEvent) {
	convID := ConversationID(navigation)

	ic.mu.Lock()
	defer ic.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			out, outcome = body, OutcomeFailed
			failure = newFailure(fmt.Sprint(r), target, convID)
		}
	}()

	snap, ready := ic.source.Load()
	if !ic.gate.Eligible(snap, ready, navigation, ic.ledger) {
		return body, OutcomeSkipped, nil
	}

	rewritten, err := rewrite(body, prompts.BuildBlock(snap.Instructions))
	switch {
	case errors.Is(err, errAbsent):
		return body, OutcomeAbsent, nil
	case errors.Is(err, envelope.ErrStructuralMismatch):
		return body, OutcomeInvalid, newFailure(prompts.CodeAPIFormatChanged, target, convID)
	case err != nil:
		return body, OutcomeFailed, newFailure(err.Error(), target, convID)
	}

	ic.ledger.Mark(convID)
	return rewritten, OutcomeMutated, nil
}

func rewrite(body, block string) (string, error) {
	form, ok, err := envelope.Extract(body)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errAbsent
	}
	raw := form.Value()
	if !envelope.Validate(raw) {
		return "", envelope.ErrStructuralMismatch
	}
	env, err := envelope.Decode(raw)
	if err != nil {
		return "", err
	}
	return envelope.Reencode(envelope.Mutate(env, block), form)
}

func newFailure(msg, target, convID string) *FailureEvent {
	return &FailureEvent{
		ID:             uuid.NewString(),
		Error:          msg,
		Target:         target,
		ConversationID: convID,
		Timestamp:      time.Now(),
	}
}

func (ic *Interceptor) emit(evt FailureEvent) {
	slog.Warn("instruction injection failed", "error", evt.Error, "target", evt.Target, "conversation", evt.ConversationID)

	ic.handlersMu.RLock()
	handlers := make([]FailureHandler, len(ic.handlers))
	copy(handlers, ic.handlers)
	ic.handlersMu.RUnlock()

	for _, h := range handlers {
		callHandler(h, evt)
	}
}

func callHandler(h FailureHandler, evt FailureEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("failure handler panicked", "panic", r)
		}
	}()
	h(evt)
}
