package llm

import "github.com/dipeo/dipeo/internal/domainerr"

func newUnregisteredServiceError(service string) error {
	return domainerr.NewLLMProviderError(service, "", "no provider registered for this service", nil, false)
}
