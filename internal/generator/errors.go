package generator

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step a failure happened in.
type Stage string

const (
	StageValidate Stage = "validate"
	StageLoad     Stage = "load"
	StageCompose  Stage = "compose"
	StageEmbed    Stage = "embed"
	StageRetrieve Stage = "retrieve"
	StageComplete Stage = "complete"
)

// ErrTimeout is wrapped into the cause when the request deadline passes.
var ErrTimeout = errors.New("generation timed out")

// GenerationError is the only error Generate returns. Cause keeps the
// component error for errors.As.
type GenerationError struct {
	Stage Stage
	Cause error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate: %s: %v", e.Stage, e.Cause)
}

func (e *GenerationError) Unwrap() error { return e.Cause }

// StageOf returns the stage of a GenerationError, or "".
func StageOf(err error) Stage {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Stage
	}
	return ""
}
