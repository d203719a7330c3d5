package progress

import (
	"fmt"
	"io"
)

// LineRenderer redraws a single status line on w.
type LineRenderer struct {
	w io.Writer
}

func NewLineRenderer(w io.Writer) *LineRenderer {
	return &LineRenderer{w: w}
}

//nolint:errcheck
func (l *LineRenderer) Render(s Snapshot) {
	switch {
	case s.Failed:
		fmt.Fprintf(l.w, "\r%s failed at %s/%s: %v\n", s.Title, s.TransferredText(), s.TotalText(), s.Err)
	case s.Completed && !s.Visible:
		fmt.Fprintf(l.w, "\r%s done (%s)\n", s.Title, s.TotalText())
	case s.Visible:
		fmt.Fprintf(l.w, "\r%s %4s  %s/%s  %s  remaining: %s   ",
			s.Title, s.PercentText(), s.TransferredText(), s.TotalText(), s.SpeedText(), s.RemainingText())
	}
}
