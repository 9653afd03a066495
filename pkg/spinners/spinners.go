// Package spinners holds small mpb bar-filler/decorator helpers used
// by pkg/progress's pre-import spinner.
package spinners

import (
	"fmt"
	"io"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// PositionSpinnerLeft builds a braille-dot spinner filler positioned
// before its decorators, for use as a mpb.BarFillerMiddleware.
//
// nolint: ireturn
func PositionSpinnerLeft(original mpb.BarFiller) mpb.BarFiller {
	return mpb.SpinnerStyle("⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏", " ").PositionLeft().Build()
}

// EmptyDecorator renders nothing; useful as the "normal" half of an
// OnComplete/OnAbort decorator pair.
//
// nolint: ireturn
func EmptyDecorator() decor.Decorator {
	return decor.Any(func(s decor.Statistics) string {
		return ""
	})
}

// BarFillerClearOnAbort blanks a bar's filler once it's marked
// aborted, instead of leaving a stale partial fill on screen.
func BarFillerClearOnAbort() mpb.BarOption {
	return mpb.BarFillerMiddleware(func(base mpb.BarFiller) mpb.BarFiller {
		return mpb.BarFillerFunc(func(w io.Writer, st decor.Statistics) error {
			if st.Aborted {
				_, err := io.WriteString(w, "")
				return fmt.Errorf("%w", err)
			}
			return base.Fill(w, st)
		})
	})
}
