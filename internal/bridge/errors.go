package bridge

import "fmt"

// Stage names the step of a turn that failed.
type Stage string

const (
	StageLookup    Stage = "lookup"
	StageBootstrap Stage = "bootstrap"
	StageWelcome   Stage = "welcome"
	StageMessage   Stage = "message"
)

// OrchestrationError is a fatal turn failure.
type OrchestrationError struct {
	SessionID string
	Stage     Stage
	Err       error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("turn %s failed at %s: %v", e.SessionID, e.Stage, e.Err)
}

func (e *OrchestrationError) Unwrap() error { return e.Err }

// DataTransferError reports a visitor field that could not be encoded for
// the bootstrap data transfer. It is logged, never returned from a turn.
type DataTransferError struct {
	Key string
	Err error
}

func (e *DataTransferError) Error() string {
	return fmt.Sprintf("data transfer field %q: %v", e.Key, e.Err)
}

func (e *DataTransferError) Unwrap() error { return e.Err }
