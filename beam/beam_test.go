package beam

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/autoalignment/model"
)

func TestRayBundleIsImmutable(t *testing.T) {
	rays := []Ray{{X: 1, Intensity: 1}, {X: 2, Intensity: 1, Lost: true}}
	b := NewRayBundle(rays, 8000)

	rays[0].X = 99
	assert.Equal(t, 1.0, b.Ray(0).X, "constructor must copy input")

	out := b.Rays()
	out[1].X = 42
	assert.Equal(t, 2.0, b.Ray(1).X, "Rays must return a copy")

	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 1, b.GoodRays())
	assert.Equal(t, model.Shadow, b.Implementor())
}

func TestNewWavefrontValidatesShape(t *testing.T) {
	_, err := NewWavefront([]float64{0, 1}, []float64{0, 1}, [][]float64{{1, 2}}, 0)
	assert.True(t, errors.Is(err, ErrInvalidBeam))

	_, err = NewWavefront([]float64{0, 1}, []float64{0, 1}, [][]float64{{1, 2}, {3}}, 0)
	assert.True(t, errors.Is(err, ErrInvalidBeam))

	_, err = NewWavefront([]float64{0}, []float64{0, 1}, [][]float64{{1}, {2}}, 0)
	assert.True(t, errors.Is(err, ErrInvalidBeam))
}

func TestWavefrontAccessorsCopy(t *testing.T) {
	grid := [][]float64{{1, 2, 3}, {4, 5, 6}}
	w, err := NewWavefront([]float64{-1, 0, 1}, []float64{-1, 1}, grid, 12000)
	require.NoError(t, err)

	grid[0][0] = 100
	assert.Equal(t, 1.0, w.At(0, 0))
	assert.Equal(t, 6.0, w.At(2, 1))

	got := w.Intensity()
	got[1][2] = -1
	assert.Equal(t, 6.0, w.At(2, 1))

	assert.Equal(t, 3, w.Nx())
	assert.Equal(t, 2, w.Ny())
	assert.Equal(t, model.SRW, w.Implementor())
}
