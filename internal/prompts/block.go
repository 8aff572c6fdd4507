package prompts

import "strings"

const (
	blockOpen  = "<system_instructions>"
	blockClose = "</system_instructions>"
)

// BuildBlock renders instructions, in order, as one tagged block with a blank
// line between entries. No truncation: limits are enforced where instructions are edited.
func BuildBlock(instructions []string) string {
	var b strings.Builder
	b.WriteString(blockOpen)
	b.WriteString("\n")
	b.WriteString(strings.Join(instructions, "\n\n"))
	b.WriteString("\n")
	b.WriteString(blockClose)
	return b.String()
}
