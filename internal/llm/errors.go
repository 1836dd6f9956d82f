package llm

import (
	"errors"
	"fmt"
)

// ErrEmbeddingUnsupported is returned by providers that only do completions.
var ErrEmbeddingUnsupported = errors.New("embedding not supported by provider")

// CompletionServiceError reports a failed chat completion call. StatusCode is
// zero when the request never got an HTTP response.
type CompletionServiceError struct {
	Provider   string
	StatusCode int
	Reason     string
	Err        error
}

func (e *CompletionServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s completion: status %d: %s", e.Provider, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("%s completion: %s", e.Provider, e.Reason)
}

func (e *CompletionServiceError) Unwrap() error { return e.Err }

// EmbeddingServiceError reports a failed embedding call.
type EmbeddingServiceError struct {
	Provider   string
	Model      string
	StatusCode int
	Reason     string
	Err        error
}

func (e *EmbeddingServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s embed (%s): status %d: %s", e.Provider, e.Model, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("%s embed (%s): %s", e.Provider, e.Model, e.Reason)
}

func (e *EmbeddingServiceError) Unwrap() error { return e.Err }

// StatusCode extracts the remote HTTP status from a service error, or 0.
func StatusCode(err error) int {
	var ce *CompletionServiceError
	if errors.As(err, &ce) {
		return ce.StatusCode
	}
	var ee *EmbeddingServiceError
	if errors.As(err, &ee) {
		return ee.StatusCode
	}
	return 0
}
