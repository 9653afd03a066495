// Package view implements the View & Pager (spec §4.4): typed key
// builders for every predefined view and a cursor-based pager that
// reads one lookahead row past PageSize to detect a next page, and up
// to a fetch ceiling of rows per page to support post-filtering.
package view

import (
	"time"

	"github.com/jetsonsystems/mediamanager/pkg/common"
)

// Design doc/view names, per spec §6.
const (
	DesignDoc = "catalog"

	ViewByOIDWithVariant    = "by_oid_with_variant"
	ViewByOIDWithoutVariant = "by_oid_without_variant"

	ViewByCreationTime         = "by_creation_time"
	ViewByCreationTimeTagged   = "by_creation_time_tagged"
	ViewByCreationTimeUntagged = "by_creation_time_untagged"

	ViewByCreationTimeName         = "by_creation_time_name"
	ViewByCreationTimeNameTagged   = "by_creation_time_name_tagged"
	ViewByCreationTimeNameUntagged = "by_creation_time_name_untagged"

	ViewBatchByCTime            = "batch_by_ctime"
	ViewBatchByOIDWImage        = "batch_by_oid_w_image"
	ViewBatchByOIDWImageByCTime = "batch_by_oid_w_image_by_ctime"

	ViewByTag   = "by_tag"
	ViewByTrash = "by_trash"
)

// RowKind is the {0,1,2} discriminator batch_by_oid_w_image and
// batch_by_oid_w_image_by_ctime key on: the batch document itself, an
// original image, or a variant.
const (
	RowKindImport   = 0
	RowKindOriginal = 1
	RowKindVariant  = 2
)

// MaxWidth is the sentinel upper bound for by_oid_with_variant's width
// component, large enough no real variant width reaches it.
const MaxWidth = 1<<31 - 1

func timeKey(t time.Time) []any {
	u := t.UTC()
	return []any{u.Year(), int(u.Month()), u.Day(), u.Hour(), u.Minute(), u.Second(), u.Nanosecond() / 1e6}
}

// ByOIDWithVariantKey emits [image_id, is_variant(0/1), width]. image_id
// is the *original's* id for both the original's own row (is_variant
// false, width 0) and every one of its variants' rows, so a single
// range query start=[id,0,0], end=[id,1,MAX] returns the whole family
// in ascending-width order.
func ByOIDWithVariantKey(imageID string, isVariant bool, width int) []any {
	flag := 0
	if isVariant {
		flag = 1
	}
	return []any{imageID, flag, width}
}

// ByOIDWithoutVariantKey is emitted once per original image: [oid].
func ByOIDWithoutVariantKey(oid string) []any {
	return []any{oid}
}

// ByCreationTimeKey emits [year, month, day, hour, minute, second, ms, oid].
func ByCreationTimeKey(t time.Time, oid string) []any {
	return append(timeKey(t), oid)
}

// ByCreationTimeNameKey emits [year, month, day, hour, minute, second, ms, name, oid].
func ByCreationTimeNameKey(t time.Time, name, oid string) []any {
	k := timeKey(t)
	k = append(k, name, oid)
	return k
}

// BatchByCTimeKey emits [date…, batch_id, 0], per spec §4.4.
func BatchByCTimeKey(t time.Time, batchID string) []any {
	k := timeKey(t)
	k = append(k, batchID, 0)
	return k
}

// BatchByOIDWImageKey emits [batch_id, original_id, kind, name], kind
// being one of RowKindImport/RowKindOriginal/RowKindVariant. name is
// "" for the batch's own row (kind RowKindImport).
func BatchByOIDWImageKey(batchID, originalID string, kind int, name string) []any {
	return []any{batchID, originalID, kind, name}
}

// BatchByOIDWImageByCTimeKey emits [batch_id, kind, in_trash, date…, name, orig_id].
func BatchByOIDWImageByCTimeKey(batchID string, kind int, inTrash bool, t time.Time, name, origID string) []any {
	trashFlag := 0
	if inTrash {
		trashFlag = 1
	}
	k := []any{batchID, kind, trashFlag}
	k = append(k, timeKey(t)...)
	k = append(k, name, origID)
	return k
}

// ByTagKey emits [tag, oid].
func ByTagKey(tag, oid string) []any {
	return []any{tag, oid}
}

// ByTrashKey emits [image_id]. The view itself only ever carries rows
// for images currently in trash (spec §4.4); this key shape has
// nothing left to discriminate once that's true.
func ByTrashKey(oid string) []any {
	return []any{oid}
}

// StartEndForCreationRange converts a CreationTimeRange into view
// start/end key bounds for by_creation_time*, nil on an unbounded
// side so the store omits that query parameter. The end bound gets
// an empty-object sentinel appended so every oid suffix at that
// timestamp still collates inside the range (CouchDB's {} sorts
// after any string).
func StartEndForCreationRange(r common.CreationTimeRange) (start, end []any) {
	if !r.Start.IsZero() {
		start = timeKey(r.Start)
	}
	if !r.End.IsZero() {
		end = append(timeKey(r.End), map[string]any{})
	}
	return start, end
}
