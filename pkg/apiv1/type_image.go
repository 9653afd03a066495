package apiv1

import (
	"encoding/json"
	"slices"
	"time"
)

// Size is an image's pixel dimensions.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Attachment is a binary payload keyed by name; bytes are populated
// only when explicitly requested (it is never part of the default
// projection any more than metadata_raw is).
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Length      int64  `json:"length"`
	Digest      string `json:"digest,omitempty"`
}

// Image is both an original and a variant document; see spec §3.
type Image struct {
	ID         string    `json:"id"`
	ClassName  ClassName `json:"class_name"`
	Kind       ImageKind `json:"kind"`
	OriginalID string    `json:"original_id"`
	BatchID    string    `json:"batch_id"`

	Path     string `json:"path"`
	Name     string `json:"name"`
	Format   string `json:"format"`
	Geometry string `json:"geometry"`
	Size     Size   `json:"size"`
	Filesize string `json:"filesize"`
	Checksum string `json:"checksum,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Tags      []string   `json:"tags"`
	TrashedAt *time.Time `json:"trashed_at,omitempty"`

	MetadataRaw json.RawMessage `json:"metadata_raw,omitempty"`

	Attachments []Attachment `json:"attachments,omitempty"`

	StorageRevision string `json:"-"`

	// Variants is populated by Catalog Operations when hydrating an
	// original; it is never itself persisted (a variant document has
	// no Variants of its own).
	Variants []*Image `json:"variants,omitempty"`
}

// IsVariant reports whether this image is a derived rendition.
func (img *Image) IsVariant() bool { return img.OriginalID != "" }

// InTrash reports whether the image currently carries a trashed_at
// timestamp.
func (img *Image) InTrash() bool { return img.TrashedAt != nil }

// NormalizeTags sorts img.Tags ascending and removes duplicates
// in-place, the invariant spec §3/§8 requires at rest.
func (img *Image) NormalizeTags() {
	img.Tags = NormalizeTagSet(img.Tags)
}

// NormalizeTagSet returns tags sorted ascending with duplicates
// removed; it does not mutate its argument.
func NormalizeTagSet(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := slices.Clone(tags)
	slices.Sort(out)
	return slices.Compact(out)
}

// UnionTagSets merges any number of tag sets into one normalized set.
func UnionTagSets(sets ...[]string) []string {
	var all []string
	for _, s := range sets {
		all = append(all, s...)
	}
	return NormalizeTagSet(all)
}

// HasAllTags reports whether img carries every tag in want (AND).
func (img *Image) HasAllTags(want []string) bool {
	for _, t := range want {
		if !slices.Contains(img.Tags, t) {
			return false
		}
	}
	return true
}

// HasAnyTag reports whether img carries at least one tag in want (OR).
func (img *Image) HasAnyTag(want []string) bool {
	for _, t := range want {
		if slices.Contains(img.Tags, t) {
			return true
		}
	}
	return false
}

// ImportError is the optional Persistent Error Record (spec §3): a
// per-image failure, back-referencing its batch.
type ImportError struct {
	ID        string    `json:"id"`
	ClassName ClassName `json:"class_name"`
	BatchID   string    `json:"batch_id"`
	Path      string    `json:"path"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}
