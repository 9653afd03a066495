// Package probe implements the Image Probe Adapter (spec §4.2): a
// thin wrapper over an external image tool (default "gm",
// GraphicsMagick's CLI) invoked via os/exec. The tool's own internals
// are out of scope; this package only shapes its stdin/stdout/exit
// code into the probe/resize/stream contract spec §4.2 names.
package probe

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	digest "github.com/opencontainers/go-digest"

	"github.com/jetsonsystems/mediamanager/pkg/common"
)

// Metadata is probe's result shape (spec §4.2).
type Metadata struct {
	Format   string
	Width    int
	Height   int
	Filesize int64
	Raw      []byte
}

// ResizeOptions is resize's argument; exactly one of Width/Height may
// be zero for aspect-preserving fit, or both set for an exact
// (possibly distorting) resize.
type ResizeOptions struct {
	Width  int
	Height int
}

// Adapter wraps the external image tool binary.
type Adapter struct {
	binary string
}

// New builds an Adapter invoking the given binary (e.g. "gm").
func New(binary string) *Adapter {
	if binary == "" {
		binary = "gm"
	}
	return &Adapter{binary: binary}
}

// Probe invokes "<binary> identify -format ..." against path and
// parses format/geometry/filesize out of its stdout.
func (a *Adapter) Probe(ctx context.Context, path string, verbose bool) (Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Metadata{}, common.Wrap(common.KindProbeFailure, err, "stat %s", path)
	}

	args := []string{"identify", "-format", "%m %w %h", path}
	out, err := a.run(ctx, args...)
	if err != nil {
		return Metadata{}, common.Wrap(common.KindProbeFailure, err, "probe %s", path)
	}

	format, width, height, err := parseIdentifyOutput(out)
	if err != nil {
		return Metadata{}, common.Wrap(common.KindProbeFailure, err, "parse probe output for %s", path)
	}

	return Metadata{
		Format:   format,
		Width:    width,
		Height:   height,
		Filesize: info.Size(),
		Raw:      out,
	}, nil
}

// Resize invokes "<binary> convert" to produce destPath from
// sourcePath at the requested dimensions: aspect-preserving fit when
// only one of opts.Width/opts.Height is set, exact (possibly
// distorting) resize when both are set.
func (a *Adapter) Resize(ctx context.Context, sourcePath string, opts ResizeOptions, destPath string) (string, error) {
	geometry, err := resizeGeometry(opts)
	if err != nil {
		return "", common.Wrap(common.KindProbeFailure, err, "build resize geometry")
	}

	args := []string{"convert", sourcePath, "-resize", geometry, destPath}
	if _, err := a.run(ctx, args...); err != nil {
		return "", common.Wrap(common.KindProbeFailure, err, "resize %s -> %s", sourcePath, destPath)
	}
	return destPath, nil
}

// OpenStream buffers path's bytes into memory once, so the caller may
// consume the returned reader more than once (checksum, then upload)
// without re-touching disk.
func (a *Adapter) OpenStream(path string) (*BufferedStream, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, common.Wrap(common.KindUnknown, err, "open stream %s", path)
	}
	return &BufferedStream{data: data}, nil
}

// Checksum returns the sha256 content digest of data, used when
// generate_checksums is enabled.
func Checksum(data []byte) string {
	return digest.FromBytes(data).String()
}

func (a *Adapter) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, a.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s %s: %w: %s", a.binary, strings.Join(args, " "), err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func parseIdentifyOutput(out []byte) (format string, width, height int, err error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	if !scanner.Scan() {
		return "", 0, 0, fmt.Errorf("empty identify output")
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 3 {
		return "", 0, 0, fmt.Errorf("unexpected identify output %q", string(out))
	}
	format = strings.ToUpper(fields[0])
	width, err = strconv.Atoi(fields[1])
	if err != nil {
		return "", 0, 0, fmt.Errorf("parse width: %w", err)
	}
	height, err = strconv.Atoi(fields[2])
	if err != nil {
		return "", 0, 0, fmt.Errorf("parse height: %w", err)
	}
	return format, width, height, nil
}

func resizeGeometry(opts ResizeOptions) (string, error) {
	switch {
	case opts.Width > 0 && opts.Height > 0:
		return fmt.Sprintf("%dx%d!", opts.Width, opts.Height), nil
	case opts.Width > 0:
		return fmt.Sprintf("%dx", opts.Width), nil
	case opts.Height > 0:
		return fmt.Sprintf("x%d", opts.Height), nil
	default:
		return "", fmt.Errorf("resize requires width and/or height")
	}
}

// BufferedStream is an in-memory, repeatedly-readable byte stream.
type BufferedStream struct {
	data []byte
}

func (b *BufferedStream) Bytes() []byte { return b.data }
func (b *BufferedStream) Len() int      { return len(b.data) }
