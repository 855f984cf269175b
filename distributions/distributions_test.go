package distributions

import (
	"testing"

	"github.com/dsim-project/dsim/rng"
	"github.com/stretchr/testify/assert"
)

func TestUniformStaysInBounds(t *testing.T) {
	src := rng.New(1)
	u := NewUniform(-0.5, 0.5, src)
	for i := 0; i < 200; i++ {
		v := u.Sample()
		assert.GreaterOrEqual(t, v, -0.5)
		assert.Less(t, v, 0.5)
	}
}

func TestWeibullProducesNonNegativeSamples(t *testing.T) {
	src := rng.New(1)
	w := NewWeibull(1.0, 1.5, src)
	for i := 0; i < 200; i++ {
		assert.GreaterOrEqual(t, w.Sample(), 0.0)
	}
}

func TestLogNormalProducesPositiveSamples(t *testing.T) {
	src := rng.New(1)
	l := NewLogNormal(0.0, 0.5, src)
	for i := 0; i < 200; i++ {
		assert.Greater(t, l.Sample(), 0.0)
	}
}
