// Package mime implements the MIME Classifier (spec §4.3): content
// sniffing (never extension-based) plus an allow-set admissibility
// check.
package mime

import (
	"os"

	"github.com/h2non/filetype"

	"github.com/jetsonsystems/mediamanager/pkg/common"
)

// Classifier classifies files by content and decides admissibility
// against a configured allow-set.
type Classifier struct {
	allow map[common.MimeTag]struct{}
}

// New builds a Classifier that admits exactly the given tags. A nil
// or empty allow defaults to spec's documented image/{jpeg,png,tiff}.
func New(allow []common.MimeTag) *Classifier {
	if len(allow) == 0 {
		allow = common.DefaultAllowedMimeTags()
	}
	set := make(map[common.MimeTag]struct{}, len(allow))
	for _, t := range allow {
		set[t] = struct{}{}
	}
	return &Classifier{allow: set}
}

// Classify sniffs the first 261 bytes of the file at path (filetype's
// matching window) and returns its two-part MIME tag.
func (c *Classifier) Classify(path string) (common.MimeTag, error) {
	f, err := os.Open(path)
	if err != nil {
		return common.MimeTag{}, common.Wrap(common.KindUnknown, err, "open %s", path)
	}
	defer f.Close()

	head := make([]byte, 261)
	n, err := f.Read(head)
	if err != nil && n == 0 {
		return common.MimeTag{}, common.Wrap(common.KindUnknown, err, "read %s", path)
	}
	head = head[:n]

	kind, err := filetype.Match(head)
	if err != nil {
		return common.MimeTag{}, common.Wrap(common.KindUnknown, err, "classify %s", path)
	}
	if kind == filetype.Unknown {
		return common.MimeTag{}, nil
	}
	return common.MimeTag{Top: kind.MIME.Type, Sub: kind.MIME.Subtype}, nil
}

// Admits reports whether tag is in the configured allow-set.
func (c *Classifier) Admits(tag common.MimeTag) bool {
	_, ok := c.allow[tag]
	return ok
}

// ClassifyAndAdmit is the common call site: classify then check
// admissibility in one step, returning the format name (upper-cased
// subtype, e.g. "JPEG") on success.
func (c *Classifier) ClassifyAndAdmit(path string) (format string, admitted bool, err error) {
	tag, err := c.Classify(path)
	if err != nil {
		return "", false, err
	}
	if tag.Top == "" || !c.Admits(tag) {
		return "", false, nil
	}
	return formatName(tag.Sub), true, nil
}

func formatName(sub string) string {
	switch sub {
	case "jpeg":
		return "JPEG"
	case "png":
		return "PNG"
	case "tiff":
		return "TIFF"
	default:
		return sub
	}
}
