package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClosestMatch(t *testing.T) {
	candidates := []string{"Groceries", "Eating Out", "Takeaway", "Public Transport"}

	tests := []struct {
		name  string
		input string
		want  string
		found bool
	}{
		{name: "missing letter", input: "Eatin Out", want: "Eating Out", found: true},
		{name: "case differs", input: "takeaway", want: "Takeaway", found: true},
		{name: "misspelt", input: "Grocerys", want: "Groceries", found: true},
		{name: "nothing close", input: "Mortgage", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ClosestMatch(tt.input, candidates)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, got)
			}
		})
	}

	_, ok := ClosestMatch("anything", nil)
	assert.False(t, ok)
}
