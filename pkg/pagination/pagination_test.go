package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-5))
	assert.Equal(t, 25, NormalizeLimit(25))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+1))
}
