package execution

import "context"

// Backend runs agents against environments. Implementations encode every
// expected failure in the returned RunResult; the error return is reserved
// for specs that cannot be run at all.
type Backend interface {
	Name() string
	Run(ctx context.Context, spec *RunSpec) (*RunResult, error)
	Status(submissionID string) (*RunStatus, bool)
	Cancel(submissionID string) bool
	Health(ctx context.Context) bool
}
