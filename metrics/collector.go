// Package metrics provides per-invocation counters for the producer graph,
// the manifest layer, the transform scheduler and the manifest store.
//
// The Collector is a leaf package with no internal dependencies. All
// increment methods are nil-receiver safe so components can carry an
// optional collector without nil checks.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Producer graph
	ProducersRegistered  int64 `json:"producers_registered"`
	ProducerRelocations  int64 `json:"producer_relocations"`
	FinalProductLookups  int64 `json:"final_product_lookups"`
	ProducerConfigErrors int64 `json:"producer_config_errors"`

	// Manifest
	ManifestsSaved   int64 `json:"manifests_saved"`
	ManifestsLoaded  int64 `json:"manifests_loaded"`
	ManifestsMissing int64 `json:"manifests_missing"`

	// Transform scheduler
	TransformsStarted int64 `json:"transforms_started"`
	TransformsFailed  int64 `json:"transforms_failed"`
	UnitsSubmitted    int64 `json:"units_submitted"`
	UnitsSucceeded    int64 `json:"units_succeeded"`
	UnitsFailed       int64 `json:"units_failed"`
	WorkerLaunchFail  int64 `json:"worker_launch_failures"`

	// Manifest store
	StorePublishSuccess int64 `json:"store_publish_success"`
	StorePublishFailure int64 `json:"store_publish_failure"`
	StoreFetchSuccess   int64 `json:"store_fetch_success"`
	StoreFetchFailure   int64 `json:"store_fetch_failure"`

	// Dimensions (informational, set at construction)
	Scope          string `json:"scope"`
	WorkerMode     string `json:"worker_mode"`
	StorageBackend string `json:"storage_backend"`
	InvocationID   string `json:"invocation_id"`
}

// Collector accumulates counters during a single build invocation.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(scope, workerMode, storageBackend, invocationID string) *Collector {
	return &Collector{s: Snapshot{
		Scope:          scope,
		WorkerMode:     workerMode,
		StorageBackend: storageBackend,
		InvocationID:   invocationID,
	}}
}

func (c *Collector) add(field *int64, n int64) {
	c.mu.Lock()
	*field += n
	c.mu.Unlock()
}

// --- Producer graph ---

// IncProducerRegistered records a successful producer registration.
func (c *Collector) IncProducerRegistered() {
	if c == nil {
		return
	}
	c.add(&c.s.ProducersRegistered, 1)
}

// AddProducerRelocations records slots moved by a later registration.
func (c *Collector) AddProducerRelocations(n int) {
	if c == nil || n == 0 {
		return
	}
	c.add(&c.s.ProducerRelocations, int64(n))
}

// IncFinalProductLookup records a dereferenced final product.
func (c *Collector) IncFinalProductLookup() {
	if c == nil {
		return
	}
	c.add(&c.s.FinalProductLookups, 1)
}

// IncProducerConfigError records a configuration error (duplicate initial
// producer, multiple producers for a single view, late registration).
func (c *Collector) IncProducerConfigError() {
	if c == nil {
		return
	}
	c.add(&c.s.ProducerConfigErrors, 1)
}

// --- Manifest ---

// IncManifestSaved records a manifest written to disk.
func (c *Collector) IncManifestSaved() {
	if c == nil {
		return
	}
	c.add(&c.s.ManifestsSaved, 1)
}

// IncManifestLoaded records a manifest read from disk.
func (c *Collector) IncManifestLoaded() {
	if c == nil {
		return
	}
	c.add(&c.s.ManifestsLoaded, 1)
}

// IncManifestMissing records a load that found no manifest.
func (c *Collector) IncManifestMissing() {
	if c == nil {
		return
	}
	c.add(&c.s.ManifestsMissing, 1)
}

// --- Transform scheduler ---

// IncTransformStarted records a transform fan-out.
func (c *Collector) IncTransformStarted() {
	if c == nil {
		return
	}
	c.add(&c.s.TransformsStarted, 1)
}

// IncTransformFailed records a transform that failed at join.
func (c *Collector) IncTransformFailed() {
	if c == nil {
		return
	}
	c.add(&c.s.TransformsFailed, 1)
}

// IncUnitSubmitted records a unit of work handed to a pool.
func (c *Collector) IncUnitSubmitted() {
	if c == nil {
		return
	}
	c.add(&c.s.UnitsSubmitted, 1)
}

// IncUnitSucceeded records a unit of work that completed.
func (c *Collector) IncUnitSucceeded() {
	if c == nil {
		return
	}
	c.add(&c.s.UnitsSucceeded, 1)
}

// IncUnitFailed records a unit of work that returned an error.
func (c *Collector) IncUnitFailed() {
	if c == nil {
		return
	}
	c.add(&c.s.UnitsFailed, 1)
}

// IncWorkerLaunchFailure records a worker process that failed to start.
func (c *Collector) IncWorkerLaunchFailure() {
	if c == nil {
		return
	}
	c.add(&c.s.WorkerLaunchFail, 1)
}

// --- Manifest store ---
// Store counters are per-call: one Publish uploading N files counts once.

// IncStorePublishSuccess records a successful manifest publish.
func (c *Collector) IncStorePublishSuccess() {
	if c == nil {
		return
	}
	c.add(&c.s.StorePublishSuccess, 1)
}

// IncStorePublishFailure records a failed manifest publish.
func (c *Collector) IncStorePublishFailure() {
	if c == nil {
		return
	}
	c.add(&c.s.StorePublishFailure, 1)
}

// IncStoreFetchSuccess records a successful manifest fetch.
func (c *Collector) IncStoreFetchSuccess() {
	if c == nil {
		return
	}
	c.add(&c.s.StoreFetchSuccess, 1)
}

// IncStoreFetchFailure records a failed manifest fetch.
func (c *Collector) IncStoreFetchFailure() {
	if c == nil {
		return
	}
	c.add(&c.s.StoreFetchFailure, 1)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
