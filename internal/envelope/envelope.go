// Package envelope reads and rewrites the nested payload the Gemini web client
// sends to its streaming endpoint: a form field holding a JSON array whose
// second element is itself a JSON-encoded array, whose first element is an
// array starting with the user's message text.
//
//	f.req=[null,"[[\"hello\"],...]",...]
//
// This package is the only place that knows that layout.
package envelope

import (
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	ErrMalformedEnvelope  = errors.New("malformed envelope")
	ErrStructuralMismatch = errors.New("envelope shape mismatch")
)

const (
	innerSlot   = "1"
	messagePath = "0.0"
)

// Envelope is a decoded payload. It keeps the original JSON text of both
// layers so re-encoding only touches the message string.
type Envelope struct {
	outer   string
	inner   string
	message string
}

// Message is the user-visible text carried by the envelope.
func (e *Envelope) Message() string { return e.message }

// Validate reports whether raw has exactly the shape Decode expects. It is the
// protocol drift check and performs no mutation.
func Validate(raw string) bool {
	if !gjson.Valid(raw) {
		return false
	}
	outer := gjson.Parse(raw)
	if !outer.IsArray() {
		return false
	}
	slot := outer.Get(innerSlot)
	if slot.Type != gjson.String {
		return false
	}
	inner := slot.String()
	if !gjson.Valid(inner) {
		return false
	}
	in := gjson.Parse(inner)
	if !in.IsArray() || !in.Get("0").IsArray() {
		return false
	}
	return in.Get(messagePath).Type == gjson.String
}

// Decode parses both layers of raw.
func Decode(raw string) (*Envelope, error) {
	if !gjson.Valid(raw) {
		return nil, errors.Wrap(ErrMalformedEnvelope, "outer payload")
	}
	outer := gjson.Parse(raw)
	slot := outer.Get(innerSlot)
	if !outer.IsArray() || slot.Type != gjson.String {
		return nil, errors.Wrap(ErrStructuralMismatch, "outer payload")
	}

	inner := slot.String()
	if !gjson.Valid(inner) {
		return nil, errors.Wrap(ErrMalformedEnvelope, "inner payload")
	}
	in := gjson.Parse(inner)
	msg := in.Get(messagePath)
	if !in.IsArray() || !in.Get("0").IsArray() || msg.Type != gjson.String {
		return nil, errors.Wrap(ErrStructuralMismatch, "inner payload")
	}

	return &Envelope{outer: raw, inner: inner, message: msg.String()}, nil
}

// Mutate returns a copy of env whose message is prefixed by augmentation and a blank line.
func Mutate(env *Envelope, augmentation string) *Envelope {
	out := *env
	out.message = augmentation + "\n\n" + env.message
	return &out
}

// Reencode writes env back into both JSON layers and substitutes the result
// into form. Fields other than the message are left as they were.
func Reencode(env *Envelope, form *Form) (string, error) {
	inner, err := sjson.Set(env.inner, messagePath, env.message)
	if err != nil {
		return "", errors.Wrap(err, "encode inner payload")
	}
	outer, err := sjson.Set(env.outer, innerSlot, inner)
	if err != nil {
		return "", errors.Wrap(err, "encode outer payload")
	}
	return form.With(outer), nil
}
