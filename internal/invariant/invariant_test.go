package invariant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheck_PassingCondition(t *testing.T) {
	assert.True(t, Check(true, "never shown"))
}

func TestCheck_FailingCondition(t *testing.T) {
	if Enabled() {
		assert.Panics(t, func() { Check(false, "file %s", "a.cc") })
		return
	}
	assert.False(t, Check(false, "file %s", "a.cc"))
}
