package envelope

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// FieldName is the form field that carries the envelope.
const FieldName = "f.req"

// Form is a URL-encoded body kept as its raw pairs, so that every field other
// than the envelope survives re-encoding byte for byte and in order.
type Form struct {
	pairs []string
	field int
	value string
}

// Extract locates the first envelope field in body. ok is false when the
// field is absent, which is a normal outcome and not an error.
func Extract(body string) (form *Form, ok bool, err error) {
	pairs := strings.Split(body, "&")
	for i, pair := range pairs {
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, kerr := url.QueryUnescape(rawKey)
		if kerr != nil {
			key = rawKey
		}
		if key != FieldName {
			continue
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, false, errors.Wrapf(err, "unescape %s", FieldName)
		}
		return &Form{pairs: pairs, field: i, value: value}, true, nil
	}
	return nil, false, nil
}

// Value is the decoded envelope field.
func (f *Form) Value() string { return f.value }

// With returns the body with the envelope field replaced by value.
func (f *Form) With(value string) string {
	out := make([]string, len(f.pairs))
	copy(out, f.pairs)
	rawKey, _, _ := strings.Cut(f.pairs[f.field], "=")
	out[f.field] = rawKey + "=" + url.QueryEscape(value)
	return strings.Join(out, "&")
}
