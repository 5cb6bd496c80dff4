//go:build !darwin

package governor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScaleCeilingIsIdentity(t *testing.T) {
	assert.Equal(t, uint64(16)<<30, scaleCeiling(16<<30))
	assert.Zero(t, scaleCeiling(0))
}
