package settings

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Editor limits. The interceptor never truncates; these are checked where
// instructions are added or replaced.
const (
	MaxInstructionLength = 5000
	MaxInstructions      = 20
)

var (
	ErrEmptyInstruction    = errors.New("instruction is empty")
	ErrInstructionTooLong  = errors.New("instruction too long")
	ErrTooManyInstructions = errors.New("too many instructions")
	ErrNoSuchInstruction   = errors.New("no such instruction")
)

// Snapshot is the configuration the interceptor reads on every candidate send.
// Instruction order is significant: it is the order of the rendered block.
type Snapshot struct {
	Enabled      bool     `json:"enabled"`
	Instructions []string `json:"instructions"`
}

// Active reports whether the snapshot would augment anything.
func (s Snapshot) Active() bool {
	return s.Enabled && len(s.Instructions) > 0
}

func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Enabled: s.Enabled}
	if s.Instructions != nil {
		out.Instructions = append([]string(nil), s.Instructions...)
	}
	return out
}

// NormalizeInstruction trims text and checks it against the editor limits.
func NormalizeInstruction(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyInstruction
	}
	if utf8.RuneCountInString(text) > MaxInstructionLength {
		return "", fmt.Errorf("%w: %d characters", ErrInstructionTooLong, utf8.RuneCountInString(text))
	}
	return text, nil
}

// Validate checks every instruction and the list length.
func Validate(s Snapshot) error {
	if len(s.Instructions) > MaxInstructions {
		return fmt.Errorf("%w: %d", ErrTooManyInstructions, len(s.Instructions))
	}
	for i, text := range s.Instructions {
		if _, err := NormalizeInstruction(text); err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
	}
	return nil
}
