package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInterruptHandler_DefaultsToStderr(t *testing.T) {
	h := NewInterruptHandler(nil)
	assert.NotNil(t, h.out)
	assert.False(t, h.WasInterrupted())

	h.Stop() // safe before HandleInterrupts
}

func TestInterruptHandler_Signal(t *testing.T) {
	var notice bytes.Buffer
	h := NewInterruptHandler(&notice)
	ctx := h.HandleInterrupts(context.Background(), true)
	require.NoError(t, ctx.Err())

	h.Track(40)
	h.interrupt()
	h.interrupt()
	<-ctx.Done()

	assert.True(t, h.WasInterrupted())
	assert.Equal(t, 1, strings.Count(notice.String(), "Categorisation interrupted!"))
	assert.Contains(t, notice.String(), "The 40 transactions categorised so far will still be saved")
}

func TestInterruptHandler_QuietCancellation(t *testing.T) {
	tests := []struct {
		name   string
		cancel func(h *InterruptHandler, parent context.CancelFunc)
	}{
		{"parent cancelled", func(_ *InterruptHandler, parent context.CancelFunc) { parent() }},
		{"stopped", func(h *InterruptHandler, _ context.CancelFunc) { h.Stop() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var notice bytes.Buffer
			h := NewInterruptHandler(&notice)
			parent, cancel := context.WithCancel(context.Background())
			defer cancel()

			ctx := h.HandleInterrupts(parent, true)
			tt.cancel(h, cancel)
			<-ctx.Done()

			assert.False(t, h.WasInterrupted())
			assert.Empty(t, notice.String())
		})
	}
}

func TestInterruptHandler_DryRunNotice(t *testing.T) {
	var notice bytes.Buffer
	h := NewInterruptHandler(&notice)
	_ = h.HandleInterrupts(context.Background(), false)

	h.interrupt()

	assert.Contains(t, notice.String(), "Categorisation interrupted!")
	assert.NotContains(t, notice.String(), "will still be saved")
}
