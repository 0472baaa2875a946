package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownStage is returned when a referenced stage has no configuration.
	ErrUnknownStage = errors.New("unknown stage")

	// ErrRequiredStageInactive is returned when the pipeline reaches a stage
	// that is required but deactivated. Progression halts until an admin
	// reactivates the stage or clears its required flag.
	ErrRequiredStageInactive = errors.New("required stage is inactive")
)

// GeneratorError reports a content-generation failure after the retry budget
// for one stage execution was exhausted.
type GeneratorError struct {
	StageID  string
	Attempts int
	Err      error
}

func (e *GeneratorError) Error() string {
	return fmt.Sprintf("stage %s: generation failed after %d attempts: %v", e.StageID, e.Attempts, e.Err)
}

func (e *GeneratorError) Unwrap() error {
	return e.Err
}

// IsGeneratorError checks if the error is a generation failure.
func IsGeneratorError(err error) bool {
	var generatorErr *GeneratorError

	return errors.As(err, &generatorErr)
}
