package cli

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Progress tracks transactions through a categorisation run.
type Progress struct {
	bar  *progressbar.ProgressBar
	done int
}

var emberTheme = progressbar.Theme{
	Saucer:        "[yellow]█[reset]",
	SaucerHead:    "[yellow]▌[reset]",
	SaucerPadding: "░",
	BarStart:      "│",
	BarEnd:        "│",
}

// NewProgress draws a bar for total transactions on w.
func NewProgress(w io.Writer, total int, label string) *Progress {
	return &Progress{bar: progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetDescription(FireIcon+" "+label),
		progressbar.OptionSetTheme(emberTheme),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("txn"),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() { _, _ = fmt.Fprintln(w) }),
	)}
}

// Add moves the bar forward by n transactions.
func (p *Progress) Add(n int) {
	p.done += n
	if err := p.bar.Add(n); err != nil {
		slog.Debug("progress bar update failed", "error", err)
	}
}

// Done is the number of transactions reported so far.
func (p *Progress) Done() int { return p.done }

// Finish fills the bar and prints the elapsed time.
func (p *Progress) Finish() {
	if err := p.bar.Finish(); err != nil {
		slog.Debug("progress bar finish failed", "error", err)
	}
}
