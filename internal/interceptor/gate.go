package interceptor

import (
	"regexp"
	"strings"

	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/settings"
)

// Defaults for the Gemini web client.
const (
	DefaultMarker         = "StreamGenerate"
	DefaultPersonaSegment = "/gem/"
)

var conversationPattern = regexp.MustCompile(`/app/([a-zA-Z0-9_-]+)`)

// Classify reports whether a request target is a candidate for augmentation.
// A plain substring match: the marker is stable across versioned endpoint paths.
func Classify(target, marker string) bool {
	return marker != "" && strings.Contains(target, marker)
}

// ConversationID extracts the conversation token from a navigation target, or "".
func ConversationID(navigation string) string {
	m := conversationPattern.FindStringSubmatch(navigation)
	if m == nil {
		return ""
	}
	return m[1]
}

// isComposer reports whether navigation is the bare new-conversation page.
func isComposer(navigation string) bool {
	if i := strings.IndexAny(navigation, "?#"); i >= 0 {
		navigation = navigation[:i]
	}
	return strings.HasSuffix(navigation, "/app") || strings.HasSuffix(navigation, "/app/")
}

// Seen is the read side of the injection ledger.
type Seen interface {
	Has(id string) bool
}

// Gate decides whether a candidate request should be augmented.
type Gate struct {
	// PersonaSegment marks pages whose instructions the host application manages itself.
	PersonaSegment string
}

// Eligible evaluates, in order: unknown configuration, disabled or empty
// configuration, persona pages, the new-conversation composer, and finally
// whether the conversation was already augmented.
func (g Gate) Eligible(snap settings.Snapshot, ready bool, navigation string, seen Seen) bool {
	if !ready {
		return false
	}
	if !snap.Active() {
		return false
	}
	if g.PersonaSegment != "" && strings.Contains(navigation, g.PersonaSegment) {
		return false
	}
	if isComposer(navigation) {
		return true
	}
	id := ConversationID(navigation)
	if id == "" {
		return true
	}
	return !seen.Has(id)
}
