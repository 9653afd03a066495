// Package apiv1 defines the wire/storage types persisted to the
// document store: Image, Batch, and their supporting enums.
package apiv1

// ClassName is the storage-boundary discriminator every persisted
// document carries (spec §6), the tagged-variant pattern spec.md §9
// calls for ("Doc ∈ {Image, ImportBatch}, discriminated by
// class_name").
type ClassName string

const (
	ClassImage       ClassName = "image"
	ClassImportBatch ClassName = "import_batch"
	ClassImportError ClassName = "import_error"
)

// apiVersion is embedded in every document for forward compatibility,
// matching the teacher's GroupVersion discriminator idiom.
const apiVersion = "catalog.mediamanager/v1"

// ImageKind distinguishes an original from a derived variant.
type ImageKind string

const (
	KindOriginal ImageKind = "original"
	KindVariant  ImageKind = "variant"
)
