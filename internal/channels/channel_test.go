package channels

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAffirmative(t *testing.T) {
	for _, yes := range []string{"y", "Y", "yes", "Yes.", "  approve ", "OK", "sure!"} {
		assert.True(t, IsAffirmative(yes), yes)
	}
	for _, no := range []string{"", "n", "no", "never", "yesterday", "reject"} {
		assert.False(t, IsAffirmative(no), no)
	}
}
