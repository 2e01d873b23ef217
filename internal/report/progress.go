package report

import (
	"io"
	"sync"

	"github.com/pterm/pterm"
)

// Progress shows the collector's fan-out stages as a terminal progress bar.
// It satisfies the collector's progress interface and is safe for the
// concurrent Advance calls the fan-out produces.
type Progress struct {
	mu  sync.Mutex
	out io.Writer
	bar *pterm.ProgressbarPrinter
}

// NewProgress returns a Progress rendering to out, or to stdout when out is
// nil.
func NewProgress(out io.Writer) *Progress {
	return &Progress{out: out}
}

// Begin starts a bar for the next stage, replacing the previous one.
func (p *Progress) Begin(stage string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	if total <= 0 {
		return
	}
	builder := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle(stage).
		WithRemoveWhenDone(true)
	if p.out != nil {
		builder = builder.WithWriter(p.out)
	}
	bar, err := builder.Start()
	if err != nil {
		return
	}
	p.bar = bar
}

// Advance marks one unit of the current stage done.
func (p *Progress) Advance(unit string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		return
	}
	p.bar.Increment()
}

// Stop tears down the active bar, if any.
func (p *Progress) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Progress) stopLocked() {
	if p.bar != nil {
		p.bar.Stop()
		p.bar = nil
	}
}
