// Package progress renders an Import Batch Engine event stream as a
// terminal progress bar, the way the teacher renders long-running
// operations: an mpb bar that silently drops to a no-op sink when
// stdout isn't a terminal.
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/jetsonsystems/mediamanager/pkg/apiv1"
	"github.com/jetsonsystems/mediamanager/pkg/spinners"
)

// Renderer drives one mpb.Progress container for the lifetime of a
// single batch import.
type Renderer struct {
	out        io.Writer
	isTerminal bool
}

// NewRenderer builds a Renderer writing to out. When out is *os.File
// and not attached to a terminal, bar output is discarded (matching
// the teacher's IsTerminal-gated spinner idiom) so piping to a file
// or CI log doesn't fill it with carriage-return noise.
func NewRenderer(out *os.File) *Renderer {
	return &Renderer{out: out, isTerminal: term.IsTerminal(int(out.Fd()))}
}

// Track consumes events until the channel closes, rendering a
// determinate bar sized to the batch's known image count. It returns
// the final batch snapshot carried by the COMPLETED event, or nil if
// the channel closed without one (should not happen in practice).
func (r *Renderer) Track(total int, events <-chan apiv1.Event) *apiv1.Batch {
	p := mpb.New(mpb.WithOutput(r.out), mpb.ContainerOptional(mpb.WithOutput(io.Discard), !r.isTerminal))

	scanning := p.AddSpinner(1,
		mpb.BarFillerMiddleware(spinners.PositionSpinnerLeft),
		mpb.BarWidth(3),
		mpb.PrependDecorators(
			decor.OnComplete(spinners.EmptyDecorator(), "✓"),
			decor.OnAbort(spinners.EmptyDecorator(), "✗"),
		),
		mpb.AppendDecorators(decor.Name("batch created")),
		mpb.BarFillerClearOnComplete(),
		spinners.BarFillerClearOnAbort(),
	)
	scanning.Increment()
	scanning.Wait()

	bar := p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name("importing "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.Name(" "),
			decor.Elapsed(decor.ET_STYLE_GO),
		),
	)

	done := make(map[string]struct{}, total)
	var final *apiv1.Batch

	for ev := range events {
		switch ev.Type {
		case apiv1.EventImageSaved:
			if ev.Image != nil && !ev.Image.IsVariant() {
				markDone(done, bar, ev.Image.Path)
			}
		case apiv1.EventImageError:
			markDone(done, bar, ev.Path)
		case apiv1.EventCompleted:
			final = ev.Batch
		}
	}

	remaining := total - len(done)
	if remaining > 0 {
		bar.IncrBy(remaining)
	}
	p.Wait()
	return final
}

func markDone(done map[string]struct{}, bar *mpb.Bar, path string) {
	if _, ok := done[path]; ok {
		return
	}
	done[path] = struct{}{}
	bar.Increment()
}

// Summarize prints a one-line human-readable result after the bar
// completes, mirroring the teacher's final-status log line.
func Summarize(out io.Writer, b *apiv1.Batch) {
	if b == nil {
		return
	}
	fmt.Fprintf(out, "batch %s: %s — %d succeeded, %d failed, %d total\n",
		b.ID, b.Status, b.NumSuccess, b.NumError, b.NumToImport)
}
