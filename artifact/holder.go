package artifact

import (
	"fmt"
	"sync"

	"github.com/pithecene-io/buildout/log"
	"github.com/pithecene-io/buildout/metrics"
	"github.com/pithecene-io/buildout/types"
)

// Task is the owner of a producer registration.
type Task interface {
	Name() string
}

// TaskName is a Task identified only by its name.
type TaskName string

// Name implements Task.
func (n TaskName) Name() string { return string(n) }

// Holder owns the producer ledgers of one scope (e.g. one build variant).
// All registration and resolution is serialized by a single lock; callers
// never see a half-registered ledger.
type Holder struct {
	mu       sync.Mutex
	buildDir string
	scope    string
	ledgers  map[string]*Producers
	// keys records ledger keys in first-use order, aliases included.
	keys   []types.ArtifactType
	sealed bool

	logger  *log.Logger
	metrics *metrics.Collector
}

// Option configures a Holder.
type Option func(*Holder)

// WithLogger sets the logger used for registration events.
func WithLogger(l *log.Logger) Option {
	return func(h *Holder) { h.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(h *Holder) { h.metrics = c }
}

// NewHolder creates a holder allocating paths under buildDir for scope.
func NewHolder(buildDir, scope string, opts ...Option) *Holder {
	h := &Holder{
		buildDir: buildDir,
		scope:    scope,
		ledgers:  make(map[string]*Producers),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Scope returns the scope identifier.
func (h *Holder) Scope() string { return h.scope }

// ledger returns the ledger for t, creating it on first use.
// Must be called with h.mu held.
func (h *Holder) ledger(t types.ArtifactType) *Producers {
	if p, ok := h.ledgers[t.Name]; ok {
		return p
	}
	p := newProducers(t, h.buildDir, h.scope)
	h.ledgers[t.Name] = p
	h.keys = append(h.keys, t)
	return p
}

// RegisterProducer records that task will write an artifact of type t to
// slot. The slot is assigned immediately, so a task run directly without
// any consumer still has a valid output path. Earlier producers of t may
// be moved to task-specific directories.
func (h *Holder) RegisterProducer(t types.ArtifactType, op OperationType, task Task, slot *Location, fileName string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sealed {
		h.metrics.IncProducerConfigError()
		return newProducerError(ErrRegistrationClosed, t, task.Name())
	}

	moved, err := h.ledger(t).add(op, task.Name(), slot, fileName)
	if err != nil {
		h.metrics.IncProducerConfigError()
		h.logger.Error("producer registration rejected", map[string]any{
			"artifact_type": t.Name,
			"operation":     op.String(),
			"task":          task.Name(),
			"error":         err.Error(),
		})
		return err
	}

	h.metrics.IncProducerRegistered()
	h.metrics.AddProducerRelocations(moved)
	path, _ := slot.Peek()
	h.logger.Debug("producer registered", map[string]any{
		"artifact_type": t.Name,
		"operation":     op.String(),
		"task":          task.Name(),
		"path":          path,
		"relocated":     moved,
	})
	return nil
}

// Republish makes the producers of from also satisfy to.
// Fails if to already has its own producers.
func (h *Holder) Republish(from, to types.ArtifactType) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.ledgers[to.Name]; ok {
		if existing.artifactType.Name == from.Name {
			return nil
		}
		if existing.Len() > 0 {
			return newProducerError(fmt.Errorf("cannot republish %s: %w", from.Name, ErrDuplicateInitialProducer),
				to, existing.taskNames()...)
		}
	}
	if _, ok := h.ledgers[to.Name]; !ok {
		h.keys = append(h.keys, to)
	}
	h.ledgers[to.Name] = h.ledger(from)
	return nil
}

// HasProducer reports whether t has at least one consumer-visible producer.
func (h *Holder) HasProducer(t types.ArtifactType) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.ledgers[t.Name]
	return ok && p.Len() > 0
}

// CurrentProduct returns the location of the most recently registered
// producer of t, or nil if there is none. The location may still move
// until it is read.
func (h *Holder) CurrentProduct(t types.ArtifactType) *Location {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.ledgers[t.Name]
	if !ok {
		return nil
	}
	if cur := p.current(); cur != nil {
		return cur.Location
	}
	return nil
}

// ProducerTasks returns the task names producing t, in registration order.
func (h *Holder) ProducerTasks(t types.ArtifactType) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.ledgers[t.Name]
	if !ok {
		return nil
	}
	return p.taskNames()
}

// Seal closes the registration phase and resolves every ledger.
// Later registrations fail with ErrRegistrationClosed. Seal is idempotent.
func (h *Holder) Seal() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sealed {
		return nil
	}
	for _, t := range h.keys {
		if _, err := h.ledgers[t.Name].resolveAll(); err != nil {
			return err
		}
	}
	h.sealed = true
	h.logger.Info("registration phase sealed", map[string]any{
		"artifact_types": len(h.keys),
	})
	return nil
}

// Sealed reports whether Seal has been called.
func (h *Holder) Sealed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sealed
}

// FinalProduct returns a deferred view of the single producer of t.
func (h *Holder) FinalProduct(t types.ArtifactType) *Provider {
	return &Provider{holder: h, artifactType: t}
}

// FinalProducts returns a deferred view of every producer of t.
func (h *Holder) FinalProducts(t types.ArtifactType) *ListProvider {
	return &ListProvider{holder: h, artifactType: t}
}

// Provider is a deferred single-producer view. Nothing is computed until Get.
type Provider struct {
	holder       *Holder
	artifactType types.ArtifactType
}

// ArtifactType returns the artifact type the provider reads.
func (p *Provider) ArtifactType() types.ArtifactType { return p.artifactType }

// Get resolves the ledger and returns the path of its single producer.
// Fails with ErrNoProducer or ErrMultipleProducers; the latter names
// every producing task.
func (p *Provider) Get() (string, error) {
	h := p.holder
	h.mu.Lock()
	defer h.mu.Unlock()

	ledger, ok := h.ledgers[p.artifactType.Name]
	if !ok || ledger.Len() == 0 {
		return "", newProducerError(ErrNoProducer, p.artifactType)
	}
	if ledger.Len() > 1 {
		h.metrics.IncProducerConfigError()
		return "", newProducerError(ErrMultipleProducers, p.artifactType, ledger.taskNames()...)
	}
	if _, err := ledger.resolveAll(); err != nil {
		return "", err
	}
	h.metrics.IncFinalProductLookup()
	return ledger.chain[0].Location.Get()
}

// ListProvider is a deferred view of all producers of an artifact type.
type ListProvider struct {
	holder       *Holder
	artifactType types.ArtifactType
}

// ArtifactType returns the artifact type the provider reads.
func (p *ListProvider) ArtifactType() types.ArtifactType { return p.artifactType }

// Get resolves the ledger and returns every producer path in registration
// order. An artifact type without producers yields an empty list.
func (p *ListProvider) Get() ([]string, error) {
	h := p.holder
	h.mu.Lock()
	defer h.mu.Unlock()

	ledger, ok := h.ledgers[p.artifactType.Name]
	if !ok {
		return []string{}, nil
	}
	if _, err := ledger.resolveAll(); err != nil {
		return nil, err
	}
	h.metrics.IncFinalProductLookup()
	paths := make([]string, 0, ledger.Len())
	for _, prod := range ledger.chain {
		path, err := prod.Location.Get()
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Tasks returns the producing task names in registration order.
func (p *ListProvider) Tasks() []string {
	return p.holder.ProducerTasks(p.artifactType)
}
