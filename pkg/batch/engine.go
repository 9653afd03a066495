// Package batch implements the Import Batch Engine (spec §4.6): a
// two-pass, bounded-concurrency, cancellable directory import that
// emits an ordered event stream as it persists images.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/otiai10/copy"

	"github.com/jetsonsystems/mediamanager/pkg/apiv1"
	"github.com/jetsonsystems/mediamanager/pkg/common"
	clog "github.com/jetsonsystems/mediamanager/pkg/log"
	"github.com/jetsonsystems/mediamanager/pkg/probe"
	"github.com/jetsonsystems/mediamanager/pkg/store"
)

// DirScanner is the subset of *scanner.Scanner the engine needs.
type DirScanner interface {
	Scan(root string, opts common.ScanOptions) ([]apiv1.ImageToImport, error)
}

// ProbeAdapter is the subset of *probe.Adapter the engine needs.
type ProbeAdapter interface {
	Probe(ctx context.Context, path string, verbose bool) (probe.Metadata, error)
	Resize(ctx context.Context, sourcePath string, opts probe.ResizeOptions, destPath string) (string, error)
	OpenStream(path string) (*probe.BufferedStream, error)
}

// Engine runs create_from_fs imports.
type Engine struct {
	scanner DirScanner
	probe   ProbeAdapter
	adapter store.Adapter
	logger  clog.PluggableLoggerInterface
	workDir string
	logsDir string
}

// New builds an Engine. workDir holds Pass-1/Pass-2 resize output;
// logsDir holds per-batch error logs.
func New(scanner DirScanner, probeAdapter ProbeAdapter, adapter store.Adapter, logger clog.PluggableLoggerInterface, workDir, logsDir string) *Engine {
	return &Engine{scanner: scanner, probe: probeAdapter, adapter: adapter, logger: logger, workDir: workDir, logsDir: logsDir}
}

// planned is one image mid-import: its scanned source plus whatever
// the engine has derived about it so far. original is nil until
// Pass-1 step (a) succeeds; pass1Variant is nil when no variants are
// configured at all.
type planned struct {
	src    apiv1.ImageToImport
	failed bool

	original   *apiv1.Image
	stagedPath string
	checksum   string

	pass1Variant     *apiv1.Image
	pass1VariantPath string

	pass2Variants []*apiv1.Image
}

// stage copies src into a per-batch working directory so the rest of
// the import (checksum, resize, variant generation) operates on a
// copy the engine owns rather than racing a source that could be on
// removable or network media.
func (e *Engine) stage(batchID, oid, src string) (string, error) {
	dir := fmt.Sprintf("%s/%s", e.workDir, batchID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dest := fmt.Sprintf("%s/%s-%s", dir, oid, baseName(src))
	if err := copy.Copy(src, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// CreateFromFS scans root, persists a new Batch document, and imports
// every admissible file under it in two passes, streaming progress on
// the returned channel. The channel is closed once the batch reaches
// a terminal state. Cancelling ctx requests an abort: the batch
// transitions ABORTING -> ABORTED once the engine notices, instead of
// COMPLETED/ERROR.
func (e *Engine) CreateFromFS(ctx context.Context, root string, opts common.ImportOptions) (*apiv1.Batch, <-chan apiv1.Event, error) {
	opts.ApplyDefaults()

	images, err := e.scanner.Scan(root, common.ScanOptions{RecursionDepth: opts.RecursionDepth, IgnoreDotfiles: opts.IgnoreDotfiles})
	if err != nil {
		return nil, nil, err
	}
	if len(images) == 0 {
		return nil, nil, common.New(common.KindNoFilesFound, "no admissible images found under %s", root)
	}

	now := time.Now()
	b := apiv1.NewBatch(uuid.NewString(), root, now)
	b.NumToImport = len(images)
	b.ImagesToImport = images

	if _, err := e.adapter.Put(ctx, b.ID, b, ""); err != nil {
		return nil, nil, common.Wrap(common.KindDBConnectionError, err, "persist new batch %s", b.ID)
	}

	events := make(chan apiv1.Event, 32)
	go e.run(ctx, b, opts, events)
	return b, events, nil
}

func (e *Engine) run(ctx context.Context, b *apiv1.Batch, opts common.ImportOptions, events chan<- apiv1.Event) {
	defer close(events)

	e.transition(ctx, b, apiv1.StatusStarted)
	started := time.Now()
	b.StartedAt = &started
	events <- apiv1.Event{Type: apiv1.EventStarted, Batch: b.Snapshot()}

	errs := map[string]error{}
	var errsMu sync.Mutex
	recordError := func(path string, err error) {
		errsMu.Lock()
		errs[path] = err
		errsMu.Unlock()
		events <- apiv1.Event{Type: apiv1.EventImageError, Path: path, Err: err}
	}

	plans := make([]*planned, len(b.ImagesToImport))
	for i, img := range b.ImagesToImport {
		plans[i] = &planned{src: img}
	}

	aborted := e.runPass1(ctx, b, opts, plans, events, recordError)
	if !aborted {
		aborted = e.runPass2(ctx, b, opts, plans, events, recordError)
	}

	b.NumAttempted = len(plans)
	for _, p := range plans {
		if p.original != nil {
			b.NumSuccess++
		}
	}
	b.NumError = len(errs)

	logName, logErr := saveErrors(e.logger, e.logsDir, b.ID, errs)
	if logErr != nil {
		e.logger.Error("batch %s: failed to write error log: %s", b.ID, logErr.Error())
	} else if logName != "" {
		e.logger.Info("batch %s: wrote %d error(s) to %s", b.ID, len(errs), logName)
	}
	if err := e.persistImportErrors(ctx, b.ID, errs); err != nil {
		e.logger.Error("batch %s: failed to persist import errors: %s", b.ID, err.Error())
	}
	if combined := aggregateErrors(errs); combined != nil {
		e.logger.Debug("batch %s: %s", b.ID, combined.Error())
	}

	completed := time.Now()
	b.CompletedAt = &completed
	switch {
	case aborted:
		e.transition(ctx, b, apiv1.StatusAbortRequested)
		e.transition(ctx, b, apiv1.StatusAborting)
		e.transition(ctx, b, apiv1.StatusAborted)
	case len(errs) == len(plans) && len(plans) > 0:
		e.transition(ctx, b, apiv1.StatusError)
	default:
		e.transition(ctx, b, apiv1.StatusCompleted)
	}
	// The terminal transition and the completed_at timestamp mark the
	// same instant.
	b.UpdatedAt = completed

	if _, err := e.adapter.Put(ctx, b.ID, b, b.StorageRevision); err != nil {
		e.logger.Error("batch %s: failed to persist final state: %s", b.ID, err.Error())
	}
	events <- apiv1.Event{Type: apiv1.EventCompleted, Batch: b.Snapshot()}
}

// persistImportErrors bulk-persists one apiv1.ImportError per failed
// image alongside batch finalization (spec §3's Persistent Error
// Record), so operators can audit failures after the batch leaves the
// in-flight registry instead of only having the local text log.
func (e *Engine) persistImportErrors(ctx context.Context, batchID string, errs map[string]error) error {
	if len(errs) == 0 {
		return nil
	}
	now := time.Now()
	docs := make([]store.BulkDoc, 0, len(errs))
	for path, err := range errs {
		ie := &apiv1.ImportError{
			ID:        uuid.NewString(),
			ClassName: apiv1.ClassImportError,
			BatchID:   batchID,
			Path:      path,
			Kind:      string(common.KindOf(err)),
			Message:   err.Error(),
			At:        now,
		}
		docs = append(docs, store.BulkDoc{ID: ie.ID, Doc: ie})
	}
	results, err := e.adapter.BulkPut(ctx, docs)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Error != nil {
			return r.Error
		}
	}
	return nil
}

// runPass1 derives, for every image, the smallest configured variant
// (or nothing, when no variants are configured), chunked by
// opts.ToProcessBatchSize with a worker pool of opts.NumJobs per
// chunk. It returns true if the batch was aborted before every image
// was attempted.
func (e *Engine) runPass1(ctx context.Context, b *apiv1.Batch, opts common.ImportOptions, plans []*planned, events chan<- apiv1.Event, recordError func(string, error)) bool {
	smallest, hasVariants := smallestVariant(opts.DesiredVariants)

	for start := 0; start < len(plans); start += opts.ToProcessBatchSize {
		if ctx.Err() != nil {
			break
		}
		end := start + opts.ToProcessBatchSize
		if end > len(plans) {
			end = len(plans)
		}
		e.pass1Chunk(ctx, b, opts, plans[start:end], smallest, hasVariants, events, recordError)
	}

	return ctx.Err() != nil
}

// pass1Chunk implements spec §4.6 Pass-1 steps (a)-(d) for one chunk:
// probe+stage every image, bulk_put the originals, derive the
// smallest variant for each, bulk_put the variants, then attach bytes
// and emit IMG_VARIANT_CREATED per image.
func (e *Engine) pass1Chunk(ctx context.Context, b *apiv1.Batch, opts common.ImportOptions, chunk []*planned, smallest common.VariantSpec, hasVariants bool, events chan<- apiv1.Event, recordError func(string, error)) {
	e.forEachConcurrent(ctx, opts.NumJobs, chunk, func(p *planned) {
		if err := e.probeAndStage(ctx, b.ID, opts, p); err != nil {
			recordError(p.src.Path, err)
			p.failed = true
		}
	})

	originals := make([]store.BulkDoc, 0, len(chunk))
	for _, p := range chunk {
		if p.failed || p.original == nil {
			continue
		}
		originals = append(originals, store.BulkDoc{ID: p.original.ID, Doc: p.original})
	}
	e.bulkPutAndAssignRevisions(ctx, originals, recordError, "bulk_put pass 1 originals")

	if hasVariants {
		e.forEachConcurrent(ctx, opts.NumJobs, chunk, func(p *planned) {
			if p.failed || p.original == nil {
				return
			}
			variant, err := e.deriveVariant(ctx, p, smallest)
			if err != nil {
				recordError(p.src.Path, NewSafeError("resize failed: %s", err.Error()))
				return
			}
			p.pass1Variant = variant
			p.pass1VariantPath = variant.Path
		})

		variants := make([]store.BulkDoc, 0, len(chunk))
		for _, p := range chunk {
			if p.failed || p.pass1Variant == nil {
				continue
			}
			variants = append(variants, store.BulkDoc{ID: p.pass1Variant.ID, Doc: p.pass1Variant})
		}
		e.bulkPutAndAssignRevisions(ctx, variants, recordError, "bulk_put pass 1 variants")
	}

	e.forEachConcurrent(ctx, opts.NumJobs, chunk, func(p *planned) {
		if p.failed || p.original == nil {
			return
		}
		e.attachOriginal(ctx, p, opts, recordError)
		if p.pass1Variant != nil {
			e.attachVariant(ctx, p, p.pass1Variant, recordError)
		}
		if !hasVariants {
			removeBestEffort(e.logger, p.stagedPath)
		}

		eventImg := *p.original
		if p.pass1Variant != nil {
			eventImg.Variants = []*apiv1.Image{p.pass1Variant}
			events <- apiv1.Event{Type: apiv1.EventImageVariantCreated, Image: &eventImg}
		}
	})
}

// runPass2 generates every remaining configured variant for each
// successfully-imported original, chunked the same way as Pass 1, and
// emits exactly one IMG_SAVED per image once its variants are done.
func (e *Engine) runPass2(ctx context.Context, b *apiv1.Batch, opts common.ImportOptions, plans []*planned, events chan<- apiv1.Event, recordError func(string, error)) bool {
	for start := 0; start < len(plans); start += opts.ToProcessBatchSize {
		if ctx.Err() != nil {
			break
		}
		end := start + opts.ToProcessBatchSize
		if end > len(plans) {
			end = len(plans)
		}
		e.pass2Chunk(ctx, b, opts, plans[start:end], events, recordError)
	}
	return ctx.Err() != nil
}

func (e *Engine) pass2Chunk(ctx context.Context, b *apiv1.Batch, opts common.ImportOptions, chunk []*planned, events chan<- apiv1.Event, recordError func(string, error)) {
	remaining := remainingVariants(opts.DesiredVariants, opts)

	if len(remaining) > 0 {
		e.forEachConcurrent(ctx, opts.NumJobs, chunk, func(p *planned) {
			if p.failed || p.original == nil {
				return
			}
			for _, v := range remaining {
				variant, err := e.deriveVariant(ctx, p, v.spec)
				if err != nil {
					recordError(p.src.Path, NewSafeError("resize variant %s failed: %s", v.spec.Name, err.Error()))
					continue
				}
				p.pass2Variants = append(p.pass2Variants, variant)
			}
		})

		var docs []store.BulkDoc
		for _, p := range chunk {
			for _, v := range p.pass2Variants {
				docs = append(docs, store.BulkDoc{ID: v.ID, Doc: v})
			}
		}
		e.bulkPutAndAssignRevisions(ctx, docs, recordError, "bulk_put pass 2 variants")

		e.forEachConcurrent(ctx, opts.NumJobs, chunk, func(p *planned) {
			for _, v := range p.pass2Variants {
				e.attachVariant(ctx, p, v, recordError)
			}
		})
	}

	e.forEachConcurrent(ctx, opts.NumJobs, chunk, func(p *planned) {
		if p.failed || p.original == nil {
			return
		}
		final, err := e.reloadWithVariants(ctx, p)
		if err != nil {
			recordError(p.src.Path, common.Wrap(common.KindDBConnectionError, err, "reload %s", p.original.ID))
			return
		}
		removeBestEffort(e.logger, p.stagedPath)
		events <- apiv1.Event{Type: apiv1.EventImageSaved, Image: final}
	})
}

// reloadWithVariants re-fetches an image's current document (to pick
// up its post-attach revision) and attaches every variant derived for
// it during this import, the in-process equivalent of show() (spec
// §4.6 Pass-2 step 2) without taking a dependency on pkg/catalog.
func (e *Engine) reloadWithVariants(ctx context.Context, p *planned) (*apiv1.Image, error) {
	raw, rev, err := e.adapter.Get(ctx, p.original.ID)
	if err != nil {
		return nil, err
	}
	img := *p.original
	img.StorageRevision = rev
	_ = raw // fresh revision is all pass2 needs; body is unchanged since bulk_put

	var variants []*apiv1.Image
	if p.pass1Variant != nil {
		variants = append(variants, p.pass1Variant)
	}
	variants = append(variants, p.pass2Variants...)
	img.Variants = variants
	return &img, nil
}

// probeAndStage implements Pass-1 step (a) for one image: probe its
// metadata, stage a working copy, and build its original document
// (not yet persisted).
func (e *Engine) probeAndStage(ctx context.Context, batchID string, opts common.ImportOptions, p *planned) error {
	meta, err := e.probe.Probe(ctx, p.src.Path, false)
	if err != nil {
		return NewSafeError("probe failed: %s", err.Error())
	}

	oid := uuid.NewString()
	stagedPath, err := e.stage(batchID, oid, p.src.Path)
	if err != nil {
		return NewSafeError("stage failed: %s", err.Error())
	}

	img := &apiv1.Image{
		ID:        oid,
		ClassName: apiv1.ClassImage,
		Kind:      apiv1.KindOriginal,
		BatchID:   batchID,
		Path:      stagedPath,
		Name:      baseName(p.src.Path),
		Format:    meta.Format,
		Size:      apiv1.Size{Width: meta.Width, Height: meta.Height},
		Filesize:  fmt.Sprintf("%d", meta.Filesize),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if opts.GenerateChecksums {
		stream, err := e.probe.OpenStream(stagedPath)
		if err != nil {
			return NewSafeError("open stream failed: %s", err.Error())
		}
		img.Checksum = probe.Checksum(stream.Bytes())
	}

	p.original = img
	p.stagedPath = stagedPath
	p.checksum = img.Checksum
	return nil
}

// deriveVariant resizes the staged original per variant and builds
// the resulting (not yet persisted) variant document; img.Path names
// wherever applyResize actually wrote the resized bytes.
func (e *Engine) deriveVariant(ctx context.Context, p *planned, variant common.VariantSpec) (*apiv1.Image, error) {
	img := &apiv1.Image{
		ID:         uuid.NewString(),
		ClassName:  apiv1.ClassImage,
		Kind:       apiv1.KindVariant,
		OriginalID: p.original.ID,
		BatchID:    p.original.BatchID,
		Name:       variant.Name,
		CreatedAt:  p.original.CreatedAt,
		UpdatedAt:  time.Now(),
	}
	if err := e.applyResize(ctx, p.stagedPath, variant, img); err != nil {
		return nil, err
	}
	return img, nil
}

func (e *Engine) applyResize(ctx context.Context, srcPath string, variant common.VariantSpec, img *apiv1.Image) error {
	destPath := fmt.Sprintf("%s/%s-%s", e.workDir, img.ID, variant.Name)
	if _, err := e.probe.Resize(ctx, srcPath, probe.ResizeOptions{Width: variant.Width, Height: variant.Height}, destPath); err != nil {
		return err
	}
	meta, err := e.probe.Probe(ctx, destPath, false)
	if err != nil {
		return err
	}
	img.Path = destPath
	img.Size = apiv1.Size{Width: meta.Width, Height: meta.Height}
	img.Geometry = fmt.Sprintf("%dx%d", meta.Width, meta.Height)
	img.Filesize = fmt.Sprintf("%d", meta.Filesize)
	img.Format = meta.Format
	return nil
}

// attachOriginal uploads the original's bytes when opts.SaveOriginal
// is set; save_original never gates whether the original document or
// its variants are created, only whether the original's attachment is
// uploaded (spec §4.6's options list).
func (e *Engine) attachOriginal(ctx context.Context, p *planned, opts common.ImportOptions, recordError func(string, error)) {
	if !opts.SaveOriginal {
		return
	}
	data, err := os.ReadFile(p.stagedPath)
	if err != nil {
		recordError(p.src.Path, NewSafeError("read staged file failed: %s", err.Error()))
		return
	}
	rev, err := e.adapter.Attach(ctx, p.original.ID, p.original.Name, data, contentTypeFor(p.original.Format), p.original.StorageRevision)
	if err != nil {
		recordError(p.src.Path, common.Wrap(common.KindDBConnectionError, err, "attach original %s", p.original.ID))
		return
	}
	p.original.StorageRevision = rev
}

func (e *Engine) attachVariant(ctx context.Context, p *planned, variant *apiv1.Image, recordError func(string, error)) {
	data, err := os.ReadFile(variant.Path)
	if err != nil {
		recordError(p.src.Path, NewSafeError("read variant file failed: %s", err.Error()))
		return
	}
	name := variant.Name + filepath.Ext(p.src.Path)
	rev, err := e.adapter.Attach(ctx, variant.ID, name, data, contentTypeFor(variant.Format), variant.StorageRevision)
	if err != nil {
		recordError(p.src.Path, common.Wrap(common.KindDBConnectionError, err, "attach variant %s", variant.ID))
		return
	}
	variant.StorageRevision = rev
	removeBestEffort(e.logger, variant.Path)
}

func contentTypeFor(format string) string {
	return "image/" + strings.ToLower(format)
}

// removeBestEffort deletes path, logging but not failing on error:
// spec §5 treats a missed working-directory delete as non-fatal.
func removeBestEffort(logger clog.PluggableLoggerInterface, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove temp file %s: %s", path, err.Error())
	}
}

// bulkPutAndAssignRevisions bulk-persists docs, recording a per-image
// error for any document bulk_put rejects and assigning the fresh
// revision to every document that succeeded.
func (e *Engine) bulkPutAndAssignRevisions(ctx context.Context, docs []store.BulkDoc, recordError func(string, error), step string) {
	if len(docs) == 0 {
		return
	}
	results, err := e.adapter.BulkPut(ctx, docs)
	if err != nil {
		for _, d := range docs {
			recordError(d.ID, common.Wrap(common.KindDBConnectionError, err, step))
		}
		return
	}
	for i, r := range results {
		if r.Error != nil {
			recordError(docs[i].ID, r.Error)
			continue
		}
		if img, ok := docs[i].Doc.(*apiv1.Image); ok {
			img.StorageRevision = r.Rev
		}
	}
}

// forEachConcurrent runs fn over items with up to numJobs concurrent
// workers, honoring ctx cancellation between dispatches.
func (e *Engine) forEachConcurrent(ctx context.Context, numJobs int, items []*planned, fn func(*planned)) {
	sem := make(chan struct{}, numJobs)
	var wg sync.WaitGroup
	for _, p := range items {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(p *planned) {
			defer wg.Done()
			defer func() { <-sem }()
			if ctx.Err() != nil {
				return
			}
			fn(p)
		}(p)
	}
	wg.Wait()
}

func (e *Engine) transition(ctx context.Context, b *apiv1.Batch, to apiv1.BatchStatus) {
	if b.Status != apiv1.StatusInit && !apiv1.CanTransition(b.Status, to) {
		e.logger.Warn("batch %s: illegal transition %s -> %s ignored", b.ID, b.Status, to)
		return
	}
	b.Status = to
	b.UpdatedAt = time.Now()
}

// namedVariant wraps one VariantSpec that Pass 2 still has to derive.
// remainingVariants finds the spec Pass 1 already derived by struct
// equality with smallestVariant's result.
type namedVariant struct {
	spec common.VariantSpec
}

// remainingVariants returns every configured variant other than the
// smallest one (which Pass 1 already derived). Ties are broken the
// same way smallestVariant breaks them, so exactly one entry is
// dropped whenever variants is non-empty.
func remainingVariants(variants []common.VariantSpec, opts common.ImportOptions) []namedVariant {
	smallest, ok := smallestVariant(variants)
	out := make([]namedVariant, 0, len(variants))
	skipped := false
	for _, v := range variants {
		if ok && !skipped && v == smallest {
			skipped = true
			continue
		}
		out = append(out, namedVariant{spec: v})
	}
	return out
}

func smallestVariant(variants []common.VariantSpec) (common.VariantSpec, bool) {
	if len(variants) == 0 {
		return common.VariantSpec{}, false
	}
	best := variants[0]
	for _, v := range variants[1:] {
		if v.Area() < best.Area() {
			best = v
		}
	}
	return best, true
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// aggregateErrors collapses per-image failures into one error for
// callers that need a single return value (e.g. a synchronous CLI
// invocation waiting on the event channel to drain).
func aggregateErrors(errs map[string]error) error {
	if len(errs) == 0 {
		return nil
	}
	var result *multierror.Error
	for path, err := range errs {
		result = multierror.Append(result, fmt.Errorf("%s: %w", path, err))
	}
	return result.ErrorOrNil()
}
