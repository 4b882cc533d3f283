package assert_test

import (
	"testing"

	"github.com/funnisimo/goblinwerks/pkg/assert"
	testifyassert "github.com/stretchr/testify/assert"
)

func TestThat(t *testing.T) {
	t.Parallel()

	testifyassert.NotPanics(t, func() { assert.That(true, "never") })
	testifyassert.PanicsWithValue(t, "slot 3 is not occupied", func() {
		assert.That(false, "slot %d is not occupied", 3)
	})
}
