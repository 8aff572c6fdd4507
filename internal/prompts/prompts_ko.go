package prompts

// MessagesKO is the Korean message set.
var MessagesKO = &Messages{
	InjectionError:   "주입 실패",
	APIFormatChanged: "Gemini API 형식이 변경되었을 수 있습니다. 업데이트가 필요합니다.",
	UnknownError:     "예기치 않은 오류가 발생했습니다",

	InstructionTooLongFmt:  "지침이 너무 깁니다 (최대 %d자)",
	TooManyInstructionsFmt: "지침이 너무 많습니다 (최대 %d개)",
	EmptyInstruction:       "지침이 비어 있습니다",
	NoSuchInstruction:      "해당 위치에 지침이 없습니다",

	Examples: []string{
		"항상 친근하고 대화하는 톤으로 응답해주세요",
		"불필요한 설명 없이 간결한 답변을 선호합니다",
		"코드를 작성할 때 항상 주석을 포함해주세요",
		"저는 Python과 JavaScript로 작업하는 소프트웨어 개발자입니다",
	},
}
