// Package catalog implements the Catalog Operations (spec §4.5):
// read/query operations over images already persisted by the Import
// Batch Engine, plus the tag and trash mutations that don't require
// the import pipeline.
package catalog

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/containers/common/pkg/retry"

	"github.com/jetsonsystems/mediamanager/pkg/apiv1"
	"github.com/jetsonsystems/mediamanager/pkg/common"
	"github.com/jetsonsystems/mediamanager/pkg/store"
	"github.com/jetsonsystems/mediamanager/pkg/view"
)

// Catalog is the Catalog Operations facade.
type Catalog struct {
	adapter  store.Adapter
	casRetry *retry.Options
}

// New builds a Catalog over the given Store Adapter.
func New(adapter store.Adapter) *Catalog {
	return &Catalog{
		adapter:  adapter,
		casRetry: &retry.Options{
			MaxRetry:         1,
			Delay:            0,
			IsErrorRetryable: func(err error) bool { return common.Is(err, common.KindConflict) },
		},
	}
}

// StoreAdapter exposes the underlying Store Adapter for callers (the
// orchestrator's batch-status read-through) that need document
// classes Catalog Operations doesn't itself model.
func (c *Catalog) StoreAdapter() store.Adapter { return c.adapter }

// Show reads oid's original plus every variant derived from it, in
// ascending width, via by_oid_with_variant's start=[id,0,0],
// end=[id,1,MAX] range (spec §4.5).
func (c *Catalog) Show(ctx context.Context, oid string) (apiv1.Image, error) {
	family, err := c.resolveFamily(ctx, oid)
	if err != nil {
		return apiv1.Image{}, err
	}
	return hydrateOriginal(oid, family)
}

// resolveFamily returns oid's original document plus every variant
// derived from it.
func (c *Catalog) resolveFamily(ctx context.Context, oid string) ([]apiv1.Image, error) {
	rows, err := c.adapter.View(ctx, view.DesignDoc, view.ViewByOIDWithVariant, store.ViewQuery{
		StartKey:    view.ByOIDWithVariantKey(oid, false, 0),
		EndKey:      view.ByOIDWithVariantKey(oid, true, view.MaxWidth),
		IncludeDocs: true,
	})
	if err != nil {
		return nil, err
	}
	images, err := decodeRows(rows)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, common.New(common.KindImportNotFound, "image %s not found", oid)
	}
	return images, nil
}

// hydrateOriginal splits family into its original and variants,
// attaching the variants to the original (spec §4.5: "all queries
// return originals with their variants attached").
func hydrateOriginal(oid string, family []apiv1.Image) (apiv1.Image, error) {
	var original *apiv1.Image
	var variants []*apiv1.Image
	for i := range family {
		if family[i].Kind == apiv1.KindVariant {
			v := family[i]
			variants = append(variants, &v)
			continue
		}
		o := family[i]
		original = &o
	}
	if original == nil {
		return apiv1.Image{}, common.New(common.KindImportNotFound, "image %s not found", oid)
	}
	original.Variants = variants
	return *original, nil
}

// getDoc fetches oid's own document as persisted, with no variant
// hydration; used by tag/trash mutations that need the exact document
// (which may itself be a variant) to compare-and-swap.
func (c *Catalog) getDoc(ctx context.Context, oid string) (apiv1.Image, error) {
	raw, rev, err := c.adapter.Get(ctx, oid)
	if err != nil {
		return apiv1.Image{}, err
	}
	var img apiv1.Image
	if err := json.Unmarshal(raw, &img); err != nil {
		return apiv1.Image{}, common.Wrap(common.KindUnknown, err, "decode image %s", oid)
	}
	img.StorageRevision = rev
	return img, nil
}

// FindByIDs fetches many images in one or more bulk_fetch calls of at
// most common.DefaultBulkFetchBatchSize ids each, per spec §4.5.
func (c *Catalog) FindByIDs(ctx context.Context, oids []string) ([]apiv1.Image, []string, error) {
	var images []apiv1.Image
	var missing []string

	for start := 0; start < len(oids); start += common.DefaultBulkFetchBatchSize {
		end := start + common.DefaultBulkFetchBatchSize
		if end > len(oids) {
			end = len(oids)
		}
		results, err := c.adapter.BulkFetch(ctx, oids[start:end])
		if err != nil {
			return nil, nil, err
		}
		for _, r := range results {
			if r.Missing {
				missing = append(missing, r.ID)
				continue
			}
			var img apiv1.Image
			if err := json.Unmarshal(r.Doc, &img); err != nil {
				return nil, nil, common.Wrap(common.KindUnknown, err, "decode image %s", r.ID)
			}
			images = append(images, img)
		}
	}
	return images, missing, nil
}

// FindByCreationTime returns every image (tagged or untagged per
// taggedOnly/untaggedOnly, mutually exclusive; both false means all)
// created within r, ordered by creation time.
func (c *Catalog) FindByCreationTime(ctx context.Context, r common.CreationTimeRange, taggedOnly, untaggedOnly bool) ([]apiv1.Image, error) {
	viewName := view.ViewByCreationTime
	switch {
	case taggedOnly:
		viewName = view.ViewByCreationTimeTagged
	case untaggedOnly:
		viewName = view.ViewByCreationTimeUntagged
	}

	start, end := view.StartEndForCreationRange(r)
	rows, err := c.adapter.View(ctx, view.DesignDoc, viewName, store.ViewQuery{
		StartKey:    start,
		EndKey:      end,
		IncludeDocs: true,
	})
	if err != nil {
		return nil, err
	}
	return decodeRows(rows)
}

// PagedFindByCreationTime is the cursor-paginated form of
// FindByCreationTime (spec §4.5's "paged_find_by_creation_time"): a
// reduce=true pass first establishes total_size, then the page is
// fetched with a post-filter dropping every row but originals, and
// finally each returned original's requested variants are fanned out
// via explicit batch_by_oid_w_image keys.
func (c *Catalog) PagedFindByCreationTime(ctx context.Context, taggedOnly, untaggedOnly bool, after *view.Cursor, opts common.PageOptions) (view.Page, error) {
	viewName := view.ViewByCreationTime
	switch {
	case taggedOnly:
		viewName = view.ViewByCreationTimeTagged
	case untaggedOnly:
		viewName = view.ViewByCreationTimeUntagged
	}

	pager := view.New(c.adapter, viewName)

	total, err := pager.Reduce(ctx, nil, nil)
	if err != nil {
		return view.Page{}, err
	}

	originalsOnly := func(r store.Row) bool {
		var img apiv1.Image
		if err := json.Unmarshal(r.Doc, &img); err != nil {
			return false
		}
		return img.Kind != apiv1.KindVariant
	}

	page, err := pager.Page(ctx, after, opts, originalsOnly)
	if err != nil {
		return view.Page{}, err
	}
	page.TotalSize = total

	if len(opts.Variants) == 0 {
		return page, nil
	}

	for i, r := range page.Rows {
		var original apiv1.Image
		if err := json.Unmarshal(r.Doc, &original); err != nil {
			return view.Page{}, common.Wrap(common.KindUnknown, err, "decode image %s", r.ID)
		}
		variants, err := c.fetchVariantsByName(ctx, original.BatchID, original.ID, opts.Variants)
		if err != nil {
			return view.Page{}, err
		}
		original.Variants = variants
		raw, err := json.Marshal(original)
		if err != nil {
			return view.Page{}, common.Wrap(common.KindUnknown, err, "marshal image %s", original.ID)
		}
		page.Rows[i].Doc = raw
	}
	return page, nil
}

// fetchVariantsByName fans out one batch_by_oid_w_image query per
// requested variant name, constructing the exact key spec §4.5
// names: [batch_id, original_id, 2, variant_name].
func (c *Catalog) fetchVariantsByName(ctx context.Context, batchID, originalID string, names []string) ([]*apiv1.Image, error) {
	var variants []*apiv1.Image
	for _, name := range names {
		key := view.BatchByOIDWImageKey(batchID, originalID, view.RowKindVariant, name)
		rows, err := c.adapter.View(ctx, view.DesignDoc, view.ViewBatchByOIDWImage, store.ViewQuery{
			StartKey:    key,
			EndKey:      key,
			IncludeDocs: true,
		})
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			var img apiv1.Image
			if err := json.Unmarshal(r.Doc, &img); err != nil {
				return nil, common.Wrap(common.KindUnknown, err, "decode image %s", r.ID)
			}
			variants = append(variants, &img)
		}
	}
	return variants, nil
}

// FindByTags implements spec §4.5's AND/OR tag query: fetch each
// tag's candidate oid set from by_tag, then combine sets according to
// filter.GroupOp, hydrate via show(), and sort newest-first.
func (c *Catalog) FindByTags(ctx context.Context, filter common.TagFilter) ([]apiv1.Image, error) {
	if len(filter.Tags) == 0 {
		return nil, nil
	}

	sets := make([]map[string]struct{}, 0, len(filter.Tags))
	for _, tag := range filter.Tags {
		rows, err := c.adapter.View(ctx, view.DesignDoc, view.ViewByTag, store.ViewQuery{
			StartKey: []any{tag},
			EndKey:   []any{tag, map[string]any{}},
		})
		if err != nil {
			return nil, err
		}
		set := make(map[string]struct{}, len(rows))
		for _, r := range rows {
			set[r.ID] = struct{}{}
		}
		sets = append(sets, set)
	}

	var combined map[string]struct{}
	switch filter.GroupOp {
	case common.GroupOr, "":
		combined = make(map[string]struct{})
		for _, s := range sets {
			for id := range s {
				combined[id] = struct{}{}
			}
		}
	case common.GroupAnd:
		combined = sets[0]
		for _, s := range sets[1:] {
			next := make(map[string]struct{})
			for id := range combined {
				if _, ok := s[id]; ok {
					next[id] = struct{}{}
				}
			}
			combined = next
		}
	default:
		return nil, common.New(common.KindInvalidMethodArgument, "unknown group op %q", filter.GroupOp)
	}

	ids := make([]string, 0, len(combined))
	for id := range combined {
		ids = append(ids, id)
	}

	images := make([]apiv1.Image, 0, len(ids))
	for _, id := range ids {
		img, err := c.Show(ctx, id)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	sort.Slice(images, func(i, j int) bool { return images[i].CreatedAt.After(images[j].CreatedAt) })
	return images, nil
}

// FindByTrashState scans by_oid_without_variant including docs and
// filters in memory by in_trash, per spec §4.5.
func (c *Catalog) FindByTrashState(ctx context.Context, state common.TrashState) ([]apiv1.Image, error) {
	rows, err := c.adapter.View(ctx, view.DesignDoc, view.ViewByOIDWithoutVariant, store.ViewQuery{IncludeDocs: true})
	if err != nil {
		return nil, err
	}
	images, err := decodeRows(rows)
	if err != nil {
		return nil, err
	}

	switch state {
	case common.TrashIn:
		return filterImages(images, func(img apiv1.Image) bool { return img.InTrash() }), nil
	case common.TrashOut:
		return filterImages(images, func(img apiv1.Image) bool { return !img.InTrash() }), nil
	case common.TrashAny, "":
		return images, nil
	default:
		return nil, common.New(common.KindInvalidMethodArgument, "unknown trash state %q", state)
	}
}

// ViewTrash iterates by_trash (which carries only images currently in
// trash) and hydrates each original via show(); variants are never
// returned as their own rows here, they surface nested under their
// original (spec §4.5).
func (c *Catalog) ViewTrash(ctx context.Context) ([]apiv1.Image, error) {
	rows, err := c.adapter.View(ctx, view.DesignDoc, view.ViewByTrash, store.ViewQuery{IncludeDocs: true})
	if err != nil {
		return nil, err
	}

	var out []apiv1.Image
	for _, r := range rows {
		if r.Doc == nil {
			continue
		}
		var img apiv1.Image
		if err := json.Unmarshal(r.Doc, &img); err != nil {
			return nil, common.Wrap(common.KindUnknown, err, "decode image %s", r.ID)
		}
		if img.Kind == apiv1.KindVariant {
			continue
		}
		hydrated, err := c.Show(ctx, img.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, hydrated)
	}
	return out, nil
}

func filterImages(images []apiv1.Image, keep func(apiv1.Image) bool) []apiv1.Image {
	out := make([]apiv1.Image, 0, len(images))
	for _, img := range images {
		if keep(img) {
			out = append(out, img)
		}
	}
	return out
}

// TagsAdd unions newTags into the image's tag set (spec §3's
// tag-normalization invariants apply) and persists it with a
// one-shot CAS retry.
func (c *Catalog) TagsAdd(ctx context.Context, oid string, newTags []string) (apiv1.Image, error) {
	return c.mutateTags(ctx, oid, func(img *apiv1.Image) {
		img.Tags = apiv1.UnionTagSets(img.Tags, newTags)
	})
}

// TagsRemove removes the given tags from the image's tag set.
func (c *Catalog) TagsRemove(ctx context.Context, oid string, remove []string) (apiv1.Image, error) {
	removeSet := make(map[string]struct{}, len(remove))
	for _, t := range apiv1.NormalizeTagSet(remove) {
		removeSet[t] = struct{}{}
	}
	return c.mutateTags(ctx, oid, func(img *apiv1.Image) {
		kept := img.Tags[:0]
		for _, t := range img.Tags {
			if _, drop := removeSet[t]; !drop {
				kept = append(kept, t)
			}
		}
		img.Tags = kept
	})
}

// TagsReplace overwrites the image's tag set wholesale.
func (c *Catalog) TagsReplace(ctx context.Context, oid string, tags []string) (apiv1.Image, error) {
	return c.mutateTags(ctx, oid, func(img *apiv1.Image) {
		img.Tags = apiv1.NormalizeTagSet(tags)
	})
}

// TagsGetAll returns the deduplicated union of every tag in the
// catalog, via by_tag's key-only rows.
func (c *Catalog) TagsGetAll(ctx context.Context) ([]string, error) {
	rows, err := c.adapter.View(ctx, view.DesignDoc, view.ViewByTag, store.ViewQuery{})
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for _, r := range rows {
		if len(r.Key) > 0 {
			if tag, ok := r.Key[0].(string); ok {
				set[tag] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

// TagsGetImagesTags returns the tag set of each requested oid, keyed
// by oid; oids that are not found have no entry in the map.
func (c *Catalog) TagsGetImagesTags(ctx context.Context, oids []string) (map[string][]string, error) {
	images, _, err := c.FindByIDs(ctx, oids)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(images))
	for _, img := range images {
		out[img.ID] = img.Tags
	}
	return out, nil
}

// SendToTrash resolves each id to its original + variants and stamps
// trashed_at on every member, with a one-shot CAS retry per document
// (spec §4.5).
func (c *Catalog) SendToTrash(ctx context.Context, oids []string, now time.Time) ([]apiv1.Image, error) {
	return c.mutateTrashBatch(ctx, oids, func(img *apiv1.Image) {
		t := now
		img.TrashedAt = &t
	})
}

// RestoreFromTrash clears trashed_at on each id's original + variants.
func (c *Catalog) RestoreFromTrash(ctx context.Context, oids []string) ([]apiv1.Image, error) {
	return c.mutateTrashBatch(ctx, oids, func(img *apiv1.Image) {
		img.TrashedAt = nil
	})
}

// DeleteImages resolves each id to its original + variants and marks
// every member with a delete tombstone in a single bulk_put (spec
// §4.5; irreversible, unlike SendToTrash).
func (c *Catalog) DeleteImages(ctx context.Context, oids []string) error {
	var docs []store.BulkDoc
	for _, oid := range oids {
		family, err := c.resolveFamily(ctx, oid)
		if err != nil {
			return err
		}
		for _, img := range family {
			docs = append(docs, store.BulkDoc{ID: img.ID, Rev: img.StorageRevision})
		}
	}
	return c.adapter.Destroy(ctx, docs)
}

// EmptyTrash permanently destroys every image currently in trash.
func (c *Catalog) EmptyTrash(ctx context.Context) (int, error) {
	trashed, err := c.ViewTrash(ctx)
	if err != nil {
		return 0, err
	}
	oids := make([]string, len(trashed))
	for i, img := range trashed {
		oids[i] = img.ID
	}
	if err := c.DeleteImages(ctx, oids); err != nil {
		return 0, err
	}
	return len(oids), nil
}

func (c *Catalog) mutateTags(ctx context.Context, oid string, mutate func(*apiv1.Image)) (apiv1.Image, error) {
	var result apiv1.Image
	err := c.withCAS(ctx, func() error {
		img, err := c.getDoc(ctx, oid)
		if err != nil {
			return err
		}
		mutate(&img)
		img.Tags = apiv1.NormalizeTagSet(img.Tags)
		rev, err := c.adapter.Put(ctx, img.ID, img, img.StorageRevision)
		if err != nil {
			return err
		}
		img.StorageRevision = rev
		result = img
		return nil
	})
	return result, err
}

// mutateTrashBatch resolves each oid to its family (original +
// variants) and applies mutate to every member, returning the
// updated original per requested oid.
func (c *Catalog) mutateTrashBatch(ctx context.Context, oids []string, mutate func(*apiv1.Image)) ([]apiv1.Image, error) {
	out := make([]apiv1.Image, 0, len(oids))
	for _, oid := range oids {
		family, err := c.resolveFamily(ctx, oid)
		if err != nil {
			return out, err
		}

		var updatedOriginal apiv1.Image
		var variants []*apiv1.Image
		for _, member := range family {
			member := member
			err := c.withCAS(ctx, func() error {
				doc, err := c.getDoc(ctx, member.ID)
				if err != nil {
					return err
				}
				mutate(&doc)
				rev, err := c.adapter.Put(ctx, doc.ID, doc, doc.StorageRevision)
				if err != nil {
					return err
				}
				doc.StorageRevision = rev
				member = doc
				return nil
			})
			if err != nil {
				return out, err
			}
			if member.Kind == apiv1.KindVariant {
				variants = append(variants, &member)
				continue
			}
			updatedOriginal = member
		}
		updatedOriginal.Variants = variants
		out = append(out, updatedOriginal)
	}
	return out, nil
}

// withCAS runs fn and, if it fails with a store CONFLICT, runs it
// exactly once more (MaxRetry: 1); any other error, or a second
// CONFLICT, is returned unchanged. fn re-fetches the current revision
// on each attempt, so the retry resolves a race with another writer.
func (c *Catalog) withCAS(ctx context.Context, fn func() error) error {
	return retry.IfNecessary(ctx, fn, c.casRetry)
}

func decodeRows(rows []store.Row) ([]apiv1.Image, error) {
	out := make([]apiv1.Image, 0, len(rows))
	for _, r := range rows {
		if r.Doc == nil {
			continue
		}
		var img apiv1.Image
		if err := json.Unmarshal(r.Doc, &img); err != nil {
			return nil, common.Wrap(common.KindUnknown, err, "decode image %s", r.ID)
		}
		out = append(out, img)
	}
	return out, nil
}
