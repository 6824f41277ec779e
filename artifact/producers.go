// Package artifact tracks which build steps produce which artifact types
// and allocates the location every producer writes to.
//
// Producers register with a Holder during the registration phase. Each
// registration resolves the affected ledger immediately so a task always
// holds a valid output path, and a later producer for the same artifact
// type moves earlier locations to task-specific directories. Seal closes
// the registration phase; consumers read final products after that.
package artifact

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pithecene-io/buildout/types"
)

// OperationType is the registration discipline of a producer.
type OperationType int

const (
	// Initial requires the producer to be the first for its artifact type.
	Initial OperationType = iota
	// Append adds the producer to the chain; consumers see all outputs in
	// registration order.
	Append
	// Transform replaces the chain with this producer.
	Transform
)

func (o OperationType) String() string {
	switch o {
	case Initial:
		return "INITIAL"
	case Append:
		return "APPEND"
	case Transform:
		return "TRANSFORM"
	default:
		return "UNKNOWN"
	}
}

// ParseOperationType parses an operation name, case-insensitively.
func ParseOperationType(s string) (OperationType, error) {
	switch strings.ToUpper(s) {
	case "INITIAL":
		return Initial, nil
	case "APPEND":
		return Append, nil
	case "TRANSFORM":
		return Transform, nil
	default:
		return 0, fmt.Errorf("unknown operation %q (must be initial, append or transform)", s)
	}
}

// defaultDirectoryName is used when a DIRECTORY producer gives no file name.
const defaultDirectoryName = "out"

// Producer is one registration: task TaskName writes FileName at Location.
type Producer struct {
	TaskName string
	FileName string
	Location *Location
	// Operation is the discipline the producer registered with.
	Operation OperationType
	// Retired is set once a Transform producer replaced this one.
	Retired bool
}

// Producers is the ledger of one artifact type within one scope.
// It is owned by a Holder and only touched under the holder's lock.
type Producers struct {
	artifactType types.ArtifactType
	buildDir     string
	scope        string

	// chain holds the consumer-visible producers in registration order.
	chain []*Producer
	// history holds every producer ever registered, retired ones included.
	history []*Producer
}

func newProducers(t types.ArtifactType, buildDir, scope string) *Producers {
	return &Producers{artifactType: t, buildDir: buildDir, scope: scope}
}

// ArtifactType returns the artifact type the ledger allocates paths for.
func (p *Producers) ArtifactType() types.ArtifactType { return p.artifactType }

// Len returns the number of consumer-visible producers.
func (p *Producers) Len() int { return len(p.chain) }

// taskNames returns the task names of the consumer-visible chain.
func (p *Producers) taskNames() []string {
	names := make([]string, 0, len(p.chain))
	for _, prod := range p.chain {
		names = append(names, prod.TaskName)
	}
	return names
}

// current returns the most recently registered consumer-visible producer.
func (p *Producers) current() *Producer {
	if len(p.chain) == 0 {
		return nil
	}
	return p.chain[len(p.chain)-1]
}

// add registers a producer. The ledger is left untouched on error.
// Returns the number of existing locations that moved.
func (p *Producers) add(op OperationType, taskName string, loc *Location, fileName string) (int, error) {
	if fileName == "" && p.artifactType.Kind == types.KindDirectory {
		fileName = defaultDirectoryName
	}
	prod := &Producer{TaskName: taskName, FileName: fileName, Location: loc, Operation: op}

	var chain []*Producer
	switch op {
	case Initial:
		if len(p.chain) > 0 {
			return 0, newProducerError(ErrDuplicateInitialProducer, p.artifactType,
				append(p.taskNames(), taskName)...)
		}
		chain = []*Producer{prod}
	case Append:
		chain = append(slices.Clone(p.chain), prod)
	case Transform:
		chain = []*Producer{prod}
	}

	historyLen := len(p.history) + 1
	if clash := p.collision(prod, chain, historyLen); clash != nil {
		tasks := []string{clash.TaskName}
		if clash.TaskName != taskName {
			tasks = append(tasks, taskName)
		}
		return 0, newProducerError(ErrPathCollision, p.artifactType, tasks...)
	}
	for _, existing := range chain[:len(chain)-1] {
		if !existing.Location.canMove(p.locationFor(existing, historyLen)) {
			return 0, newProducerError(ErrLocationObserved, p.artifactType,
				existing.TaskName, taskName)
		}
	}

	if op == Transform {
		for _, old := range p.chain {
			old.Retired = true
		}
	}
	p.chain = chain
	p.history = append(p.history, prod)

	return p.resolveAll()
}

// collision returns the producer whose output would share prod's path once
// chain is committed, or nil. Chain members are compared at the paths they
// will move to; retired producers keep the path they last had.
func (p *Producers) collision(prod *Producer, chain []*Producer, historyLen int) *Producer {
	target := p.locationFor(prod, historyLen)
	for _, existing := range p.history {
		var path string
		if slices.Contains(chain, existing) {
			path = p.locationFor(existing, historyLen)
		} else {
			path, _ = existing.Location.Peek()
		}
		if path == target {
			return existing
		}
	}
	return nil
}

// resolveAll assigns the final location of every consumer-visible producer.
// Returns the number of already-assigned locations that moved.
func (p *Producers) resolveAll() (int, error) {
	moved := 0
	for _, prod := range p.chain {
		m, err := prod.Location.assign(p.locationFor(prod, len(p.history)))
		if err != nil {
			return moved, newProducerError(err, p.artifactType, prod.TaskName)
		}
		if m {
			moved++
		}
	}
	return moved, nil
}

// locationFor computes a producer's path. A lone producer writes to
// {category}/{type}/{scope}/{file}; once a ledger has seen more than one
// producer every producer gets its own {task} segment, which keeps a
// Transform producer from overwriting the output it replaced.
func (p *Producers) locationFor(prod *Producer, historyLen int) string {
	parts := []string{
		p.buildDir,
		string(p.artifactType.Category),
		p.artifactType.DirName(),
		p.scope,
	}
	if historyLen > 1 {
		parts = append(parts, prod.TaskName)
	}
	parts = append(parts, prod.FileName)
	return filepath.Join(parts...)
}
