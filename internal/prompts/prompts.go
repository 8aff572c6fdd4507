package prompts

import (
	"fmt"
	"strings"
)

// CodeAPIFormatChanged is the failure code sent when the wire payload no longer
// has the shape the interceptor knows how to rewrite.
const CodeAPIFormatChanged = "api_format_changed"

// Messages holds all user-facing strings for a locale.
type Messages struct {
	InjectionError   string
	APIFormatChanged string
	UnknownError     string

	InstructionTooLongFmt  string
	TooManyInstructionsFmt string
	EmptyInstruction       string
	NoSuchInstruction      string

	Examples []string
}

// Get returns messages for the given locale. Any "ko" variant uses Korean;
// everything else falls back to English.
func Get(locale string) *Messages {
	if strings.HasPrefix(strings.ToLower(locale), "ko") {
		return MessagesKO
	}
	return MessagesEN
}

// Sanitize maps a failure code to a localized message. Codes it does not know,
// including raw error text, become the generic message so internals never reach the user.
func Sanitize(code, locale string) string {
	m := Get(locale)
	switch code {
	case CodeAPIFormatChanged:
		return m.APIFormatChanged
	default:
		return m.UnknownError
	}
}

// Toast renders the full notification line for a failure code.
func Toast(code, locale string) string {
	return fmt.Sprintf("%s: %s", Get(locale).InjectionError, Sanitize(code, locale))
}
