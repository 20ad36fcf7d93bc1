package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgress(t *testing.T) {
	var out bytes.Buffer
	p := NewProgress(&out, 5, "Categorising")

	p.Add(2)
	p.Add(3)
	assert.Equal(t, 5, p.Done())

	p.Finish()
	assert.Contains(t, out.String(), "Categorising")
	assert.Contains(t, out.String(), "5/5")
}
