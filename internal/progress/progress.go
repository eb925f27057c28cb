// Package progress renders per-file download progress bars with mpb,
// falling back to plain log lines on a non-terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// UI manages the progress bars for one download batch.
type UI struct {
	progress   *mpb.Progress
	isTerminal bool
	total      int
}

// New builds a UI sized for total concurrent items.
func New(total int) *UI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))

	var p *mpb.Progress
	if isTerminal {
		p = mpb.New(
			mpb.WithOutput(os.Stderr),
			mpb.WithRefreshRate(300*time.Millisecond),
			mpb.WithWidth(80),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &UI{progress: p, isTerminal: isTerminal, total: total}
}

// Bar is a single file's progress bar.
type Bar struct {
	ui     *UI
	bar    *mpb.Bar
	name   string
	size   int64
	start  time.Time
	last   int64
}

// AddBar starts tracking one file of the given declared size.
func (u *UI) AddBar(name string, size int64) *Bar {
	b := &Bar{ui: u, name: name, size: size, start: time.Now()}

	if u.isTerminal {
		b.bar = u.progress.New(size,
			mpb.BarStyle().Lbound("[").Filler("=").Tip(">").Padding("-").Rbound("]"),
			mpb.PrependDecorators(decor.Name(name, decor.WCSyncSpaceR)),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f"),
				decor.Name("  "),
				decor.EwmaETA(decor.ET_STYLE_GO, 60),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		fmt.Fprintf(os.Stderr, "downloading %s (%.1f MiB)\n", name, float64(size)/(1024*1024))
	}

	return b
}

// Advance reports n additional bytes transferred.
func (b *Bar) Advance(n int64) {
	if b.bar == nil {
		return
	}
	b.last += n
	b.bar.SetCurrent(b.last)
}

// Done marks the bar complete or aborted.
func (b *Bar) Done(err error) {
	if b.bar == nil {
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed %s: %v\n", b.name, err)
		}
		return
	}
	if err != nil {
		b.bar.Abort(false)
		return
	}
	b.bar.SetCurrent(b.size)
}

// Wait blocks until every bar created on this UI has completed or aborted.
func (u *UI) Wait() {
	u.progress.Wait()
}
