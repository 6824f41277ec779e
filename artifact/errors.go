package artifact

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pithecene-io/buildout/types"
)

// Sentinel errors for producer graph configuration failures.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrDuplicateInitialProducer indicates an INITIAL registration on a
	// ledger that already has a producer.
	ErrDuplicateInitialProducer = errors.New("duplicate initial producer")

	// ErrMultipleProducers indicates a single-producer view was requested
	// while more than one producer is registered.
	ErrMultipleProducers = errors.New("multiple producers registered")

	// ErrNoProducer indicates a final product was requested for an artifact
	// type that nothing produces.
	ErrNoProducer = errors.New("no producer registered")

	// ErrLocationObserved indicates a registration would move a location a
	// consumer has already read.
	ErrLocationObserved = errors.New("location already observed by a consumer")

	// ErrRegistrationClosed indicates a registration after Seal.
	ErrRegistrationClosed = errors.New("registration phase closed")

	// ErrPathCollision indicates two producers would write the same path.
	ErrPathCollision = errors.New("producer path collision")

	// ErrUnresolved indicates a location was read before any path was set.
	ErrUnresolved = errors.New("location not resolved")
)

// ProducerError wraps a configuration failure with the artifact type and
// the task names involved, so the build tool can report an actionable message.
type ProducerError struct {
	// Kind is the sentinel error for classification.
	Kind error
	// ArtifactType is the artifact type whose ledger rejected the operation.
	ArtifactType types.ArtifactType
	// Tasks names the offending tasks, in registration order.
	Tasks []string
}

func (e *ProducerError) Error() string {
	if len(e.Tasks) == 0 {
		return fmt.Sprintf("artifact %s: %v", e.ArtifactType.Name, e.Kind)
	}
	return fmt.Sprintf("artifact %s: %v (tasks: %s)",
		e.ArtifactType.Name, e.Kind, strings.Join(e.Tasks, ", "))
}

// Unwrap returns the sentinel kind for errors.Is chain traversal.
func (e *ProducerError) Unwrap() error {
	return e.Kind
}

func newProducerError(kind error, t types.ArtifactType, tasks ...string) *ProducerError {
	return &ProducerError{Kind: kind, ArtifactType: t, Tasks: tasks}
}
