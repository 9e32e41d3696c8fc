// Package progress renders operator-facing progress bars for long batch steps.
package progress

import (
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Bar tracks completion of a fixed or open-ended amount of work.
type Bar interface {
	Add(n int)
	Finish()
}

// New returns a bar that renders on w. A nil writer disables rendering.
// A total below zero renders a spinner for work of unknown size.
func New(w io.Writer, total int, desc string) Bar {
	if w == nil {
		return nop{}
	}
	pb := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { _, _ = io.WriteString(w, "\n") }),
	)
	return &bar{pb: pb}
}

type bar struct {
	pb *progressbar.ProgressBar
}

func (b *bar) Add(n int) { _ = b.pb.Add(n) }

func (b *bar) Finish() { _ = b.pb.Finish() }

type nop struct{}

func (nop) Add(int) {}
func (nop) Finish() {}
