package gateway

import (
	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/interceptor"
	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/prompts"
)

// notifyFailure pushes evt to every toast client in its own language.
func (s *Server) notifyFailure(evt interceptor.FailureEvent) {
	s.Conns.BroadcastLocalized(EventInjectionFailed, func(locale string) any {
		return FailurePayload{
			ID:             evt.ID,
			Error:          evt.Error,
			Message:        prompts.Toast(evt.Error, locale),
			ConversationID: evt.ConversationID,
			Timestamp:      evt.Timestamp.UnixMilli(),
		}
	})
}
