package orchestrator

import "fmt"

// NoProviderError means no provider can serve the request for the language.
type NoProviderError struct {
	Kind     RequestKind
	Language string
}

func (e *NoProviderError) Error() string {
	switch e.Kind {
	case FullDocument:
		return fmt.Sprintf("There is no document formatter for '%s'-files installed.", e.Language)
	case OnType:
		return fmt.Sprintf("There is no on-type formatter for '%s'-files installed.", e.Language)
	default:
		return fmt.Sprintf("There is no selection formatter for '%s'-files installed.", e.Language)
	}
}

// ProviderError wraps a provider failure or edits the editor refused.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("formatter %s failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
