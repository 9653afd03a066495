// Package orchestrator implements the Service Facade (spec §4.7): the
// single entry point clients call, composing the Directory Scanner,
// Catalog Operations, and Import Batch Engine, and tracking in-flight
// batches so a concurrent read sees live progress rather than a stale
// store snapshot.
package orchestrator

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jetsonsystems/mediamanager/pkg/apiv1"
	"github.com/jetsonsystems/mediamanager/pkg/batch"
	"github.com/jetsonsystems/mediamanager/pkg/catalog"
	"github.com/jetsonsystems/mediamanager/pkg/common"
	clog "github.com/jetsonsystems/mediamanager/pkg/log"
)

// inflight tracks one batch currently being imported: its live
// snapshot, the cancel func that requests an abort, and whether an
// abort has already been requested (so a second Abort call is a
// no-op rather than a double-cancel).
type inflight struct {
	mu            sync.RWMutex
	snapshot      *apiv1.Batch
	cancel        context.CancelFunc
	abortRequested bool
}

func (f *inflight) view() *apiv1.Batch {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshot.Snapshot()
}

func (f *inflight) update(b *apiv1.Batch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = b
}

// Orchestrator is the Service Facade.
type Orchestrator struct {
	engine  *batch.Engine
	catalog *catalog.Catalog
	logger  clog.PluggableLoggerInterface

	mu       sync.RWMutex
	registry map[string]*inflight
}

// New builds an Orchestrator over an already-wired Engine and Catalog.
func New(engine *batch.Engine, cat *catalog.Catalog, logger clog.PluggableLoggerInterface) *Orchestrator {
	return &Orchestrator{
		engine:   engine,
		catalog:  cat,
		logger:   logger,
		registry: make(map[string]*inflight),
	}
}

// StartImport begins a create_from_fs import and registers it as
// in-flight, returning immediately with the freshly created batch.
// Callers observe progress via Events or by polling Status.
func (o *Orchestrator) StartImport(ctx context.Context, root string, opts common.ImportOptions) (*apiv1.Batch, error) {
	runCtx, cancel := context.WithCancel(ctx)

	b, events, err := o.engine.CreateFromFS(runCtx, root, opts)
	if err != nil {
		cancel()
		return nil, err
	}

	entry := &inflight{snapshot: b, cancel: cancel}
	o.mu.Lock()
	o.registry[b.ID] = entry
	o.mu.Unlock()

	go o.drain(b.ID, entry, events)

	return b, nil
}

func (o *Orchestrator) drain(batchID string, entry *inflight, events <-chan apiv1.Event) {
	for ev := range events {
		if ev.Batch != nil {
			entry.update(ev.Batch)
		}
	}
	// A batch lives in the registry from INIT until it reaches a
	// terminal state (spec §4.7); the final persisted write already
	// happened inside the engine before COMPLETED was emitted, so
	// Status's store fallback sees the same state this entry held.
	o.mu.Lock()
	delete(o.registry, batchID)
	o.mu.Unlock()
	o.logger.Debug("batch %s: event stream drained, evicted from registry", batchID)
}

// Status returns the current view of a batch: the live in-flight
// snapshot if one is registered, otherwise whatever is persisted in
// the store (spec §9's "living snapshot wins" read-through).
func (o *Orchestrator) Status(ctx context.Context, batchID string) (*apiv1.Batch, error) {
	o.mu.RLock()
	entry, ok := o.registry[batchID]
	o.mu.RUnlock()
	if ok {
		return entry.view(), nil
	}

	raw, _, err := o.catalog.StoreAdapter().Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	var b apiv1.Batch
	if err := decodeBatch(raw, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Abort requests cancellation of a running batch. Asking again for a
// batch that has already been asked to abort returns without error; a
// batch that is not in flight yields IMPORT_NOT_FOUND.
func (o *Orchestrator) Abort(batchID string) error {
	o.mu.RLock()
	entry, ok := o.registry[batchID]
	o.mu.RUnlock()
	if !ok {
		return common.New(common.KindImportNotFound, "batch %s is not in flight", batchID)
	}

	entry.mu.Lock()
	already := entry.abortRequested
	entry.abortRequested = true
	if !already && entry.snapshot.Status == apiv1.StatusStarted {
		entry.snapshot.Status = apiv1.StatusAbortRequested
	}
	entry.mu.Unlock()
	if already {
		return nil
	}

	entry.cancel()
	return nil
}

// Catalog exposes the composed Catalog Operations facade for read
// paths that don't go through the import pipeline.
func (o *Orchestrator) Catalog() *catalog.Catalog { return o.catalog }

func decodeBatch(raw json.RawMessage, b *apiv1.Batch) error {
	if err := json.Unmarshal(raw, b); err != nil {
		return common.Wrap(common.KindUnknown, err, "decode batch")
	}
	return nil
}
