package prompts

// MessagesEN is the English message set.
var MessagesEN = &Messages{
	InjectionError:   "Injection failed",
	APIFormatChanged: "Gemini API format may have changed. Extension update needed.",
	UnknownError:     "An unexpected error occurred",

	InstructionTooLongFmt:  "Instruction too long (max %d characters)",
	TooManyInstructionsFmt: "Too many instructions (max %d)",
	EmptyInstruction:       "Instruction is empty",
	NoSuchInstruction:      "No instruction at that position",

	Examples: []string{
		"Always respond in a friendly, conversational tone",
		"I prefer concise answers without unnecessary explanations",
		"When writing code, always include comments",
		"I am a software developer working with Python and JavaScript",
	},
}
