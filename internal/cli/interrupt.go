package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// InterruptHandler turns the first SIGINT/SIGTERM during a categorisation run into a
// context cancellation and tells the user what will be kept.
type InterruptHandler struct {
	out      io.Writer
	cancel   context.CancelFunc
	once     sync.Once
	hit      atomic.Bool
	done     atomic.Int64
	applying bool
}

// NewInterruptHandler writes its notice to out, or stderr when out is nil.
func NewInterruptHandler(out io.Writer) *InterruptHandler {
	if out == nil {
		out = os.Stderr
	}
	return &InterruptHandler{out: out, cancel: func() {}}
}

// HandleInterrupts derives a context from ctx that ends on the first signal.
// applying selects the notice: with it the user is told finished results will still be stored.
func (h *InterruptHandler) HandleInterrupts(ctx context.Context, applying bool) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.applying = applying

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			h.interrupt()
		case <-ctx.Done():
		}
	}()
	return ctx
}

// Track records how many transactions have been categorised so far.
func (h *InterruptHandler) Track(n int) { h.done.Store(int64(n)) }

func (h *InterruptHandler) interrupt() {
	h.hit.Store(true)
	h.once.Do(h.showInterruptMessage)
	h.cancel()
}

func (h *InterruptHandler) showInterruptMessage() {
	notice := "\n\n" + FormatWarning("Categorisation interrupted!") + "\n"
	if h.applying {
		notice += FormatInfo(fmt.Sprintf(
			"The %d transactions categorised so far will still be saved. Run firetrack categorise again to finish.",
			h.done.Load())) + "\n"
	}
	if _, err := io.WriteString(h.out, notice); err != nil {
		fmt.Fprintf(os.Stderr, "write interrupt notice: %v\n", err)
	}
}

// Stop releases the signal watcher without counting as an interruption.
func (h *InterruptHandler) Stop() { h.cancel() }

// WasInterrupted reports whether a signal arrived.
func (h *InterruptHandler) WasInterrupted() bool { return h.hit.Load() }
