package opguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "sigil/pkg/domain-errors"
)

func TestGuard_RejectsNestedAcquire(t *testing.T) {
	g := New()
	require.NoError(t, g.Acquire())

	err := g.Acquire()
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	g.Release()
	require.NoError(t, g.Acquire())
	g.Release()
}
