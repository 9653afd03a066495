package view

import (
	"context"
	"encoding/json"

	"github.com/jetsonsystems/mediamanager/pkg/common"
	"github.com/jetsonsystems/mediamanager/pkg/store"
)

// Cursor opaquely identifies a page boundary: the last row's key and
// id from the previous page, used as the exclusive start of the next.
type Cursor struct {
	Key []any
	ID  string
}

// Page is one page of rows plus the cursors needed to fetch its
// neighbors. TotalSize is populated only by callers that first ran
// the view reduced (spec §4.5's paged_find_by_creation_time); it is 0
// for pages fetched without a reduce step.
type Page struct {
	Rows      []store.Row
	Next      *Cursor
	Prev      *Cursor
	HasMore   bool
	TotalSize int
}

// PostFilter decides whether a raw row survives into the page; used
// by callers (e.g. paged_find_by_creation_time's originals-only
// filter) that need filtering the store can't
// express as a view reduce.
type PostFilter func(store.Row) bool

// Pager fetches pages from a single view, applying an optional
// PostFilter while respecting PageOptions.FetchCeil as a hard cap on
// extra rows read per page (spec §4.4): a filter that rejects every
// row never turns one page() call into an unbounded scan.
type Pager struct {
	adapter store.Adapter
	view    string
}

// New builds a Pager over the named predefined view.
func New(adapter store.Adapter, viewName string) *Pager {
	return &Pager{adapter: adapter, view: viewName}
}

// Reduce runs the pager's view with reduce=true and returns the
// summed count, used for paged_find_by_creation_time's total_size
// (spec §4.5). A view with no rows reduces to 0.
func (p *Pager) Reduce(ctx context.Context, startKey, endKey []any) (int, error) {
	rows, err := p.adapter.View(ctx, DesignDoc, p.view, store.ViewQuery{
		StartKey: startKey,
		EndKey:   endKey,
		Reduce:   true,
	})
	if err != nil {
		return 0, err
	}
	total := 0
	for _, r := range rows {
		var n int
		if err := json.Unmarshal(r.Value, &n); err != nil {
			return 0, common.Wrap(common.KindViewReduceFailure, err, "decode reduce value for %s", p.view)
		}
		total += n
	}
	return total, nil
}

// Page fetches up to opts.PageSize rows forward from after (nil for
// the first page), reading at most opts.FetchCeil (or
// PageSize*DefaultFetchCeilMultiplier, if unset) underlying rows to
// satisfy filter.
func (p *Pager) Page(ctx context.Context, after *Cursor, opts common.PageOptions, filter PostFilter) (Page, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	ceil := opts.FetchCeil
	if ceil <= 0 {
		ceil = pageSize * common.DefaultFetchCeilMultiplier
	}

	var out []store.Row
	var lastSeen *store.Row
	fetched := 0
	batchSize := pageSize + 1 // +1 lookahead row to detect HasMore

	for fetched < ceil && len(out) < pageSize+1 {
		q := store.ViewQuery{
			IncludeDocs: opts.ShowMetadata,
			Descending:  opts.Descending,
			Limit:       batchSize,
		}
		if after != nil {
			q.StartKey = after.Key
		}

		rows, err := p.adapter.View(ctx, DesignDoc, p.view, q)
		if err != nil {
			return Page{}, err
		}
		if len(rows) == 0 {
			break
		}

		start := 0
		if after != nil && len(rows) > 0 && sameKey(rows[0].Key, after.Key) && rows[0].ID == after.ID {
			start = 1
		}

		for _, r := range rows[start:] {
			fetched++
			if filter == nil || filter(r) {
				out = append(out, r)
				if len(out) >= pageSize+1 {
					break
				}
			}
			lastSeen = &r
			if fetched >= ceil {
				break
			}
		}

		if len(rows) < batchSize {
			break // store exhausted
		}
		if lastSeen != nil {
			after = &Cursor{Key: decodeKey(lastSeen.Key), ID: lastSeen.ID}
		} else {
			break
		}
	}

	hasMore := len(out) > pageSize
	if hasMore {
		out = out[:pageSize]
	}

	page := Page{Rows: out, HasMore: hasMore}
	if len(out) > 0 {
		last := out[len(out)-1]
		page.Next = &Cursor{Key: decodeKey(last.Key), ID: last.ID}
		first := out[0]
		page.Prev = &Cursor{Key: decodeKey(first.Key), ID: first.ID}
	}
	return page, nil
}

func sameKey(a, b []any) bool {
	ab, _ := json.Marshal(a)
	bb, _ := json.Marshal(b)
	return string(ab) == string(bb)
}

// decodeKey is a no-op placeholder for key round-tripping; rows come
// back from the store already as []any so there is nothing to
// convert today, but it's the single seam if the store ever returns
// keys in a different shape.
func decodeKey(k []any) []any { return k }
