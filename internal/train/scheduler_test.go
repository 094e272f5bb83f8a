package train

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeOptimizer struct {
	lr float32
}

func (f *fakeOptimizer) GetLR() float32   { return f.lr }
func (f *fakeOptimizer) SetLR(lr float32) { f.lr = lr }

func TestReduceLROnPlateau_ReducesAfterPatience(t *testing.T) {
	opt := &fakeOptimizer{lr: 1.0}
	s := NewReduceLROnPlateau(opt, 0.5, 2, 0)

	s.Step(10) // sets best
	s.Step(10) // no improvement, counter 1
	s.Step(10) // counter 2
	assert.Equal(t, float32(1.0), opt.lr)

	s.Step(10) // counter 3 > patience, reduce
	assert.Equal(t, float32(0.5), opt.lr)
}

func TestReduceLROnPlateau_ImprovementResetsCounter(t *testing.T) {
	opt := &fakeOptimizer{lr: 1.0}
	s := NewReduceLROnPlateau(opt, 0.5, 1, 0)

	s.Step(10)
	s.Step(10) // counter 1
	s.Step(9)  // improvement, reset
	s.Step(9)  // counter 1
	assert.Equal(t, float32(1.0), opt.lr)

	s.Step(9) // counter 2 > patience, reduce
	assert.Equal(t, float32(0.5), opt.lr)
}

func TestReduceLROnPlateau_RespectsFloor(t *testing.T) {
	opt := &fakeOptimizer{lr: 0.01}
	s := NewReduceLROnPlateau(opt, 0.1, 0, 0.005)

	s.Step(10)
	s.Step(10) // counter 1 > patience 0, reduce to max(0.001, floor)
	assert.Equal(t, float32(0.005), opt.lr)
}

func TestNewReduceLROnPlateau_Validation(t *testing.T) {
	opt := &fakeOptimizer{lr: 1.0}

	assert.Panics(t, func() { NewReduceLROnPlateau(opt, 0, 1, 0) })
	assert.Panics(t, func() { NewReduceLROnPlateau(opt, 1, 1, 0) })
	assert.Panics(t, func() { NewReduceLROnPlateau(opt, 0.5, -1, 0) })
}
