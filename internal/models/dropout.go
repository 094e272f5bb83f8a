package models

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Dropout randomly zeroes elements of its input during training.
//
// Uses inverted dropout: surviving elements are scaled by 1/(1-p) so that
// the expected activation is unchanged and evaluation needs no rescaling.
// In evaluation mode (training == false) the input passes through untouched.
//
// The dropout mask is a constant with respect to the autodiff tape: the
// element-wise multiply is recorded, so gradients flow to the input scaled
// by the same mask.
type Dropout[B tensor.Backend] struct {
	p        float32
	training bool
	backend  B
	//nolint:gosec // math/rand is appropriate for dropout masks
	rng *rand.Rand
}

// NewDropout creates a Dropout module with drop probability p in [0, 1).
func NewDropout[B tensor.Backend](p float32, backend B) *Dropout[B] {
	if p < 0 || p >= 1 {
		panic(fmt.Sprintf("Dropout: probability must be in [0, 1), got %v", p))
	}
	return &Dropout[B]{
		p:        p,
		training: true,
		backend:  backend,
		rng:      rand.New(rand.NewSource(rand.Int63())), //nolint:gosec
	}
}

// SetTraining toggles between training mode (mask applied) and evaluation
// mode (identity).
func (d *Dropout[B]) SetTraining(training bool) {
	d.training = training
}

// Seed reseeds the mask generator, for reproducible runs.
func (d *Dropout[B]) Seed(seed int64) {
	d.rng = rand.New(rand.NewSource(seed)) //nolint:gosec
}

// Forward applies dropout to the input.
func (d *Dropout[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !d.training || d.p == 0 {
		return input
	}

	scale := 1 / (1 - d.p)
	maskData := make([]float32, input.NumElements())
	for i := range maskData {
		if d.rng.Float32() >= d.p {
			maskData[i] = scale
		}
	}

	mask, err := tensor.FromSlice(maskData, input.Shape(), d.backend)
	if err != nil {
		panic(fmt.Sprintf("Dropout: failed to create mask: %v", err))
	}

	return input.Mul(mask)
}

// Parameters returns an empty slice (dropout has no trainable parameters).
func (d *Dropout[B]) Parameters() []*nn.Parameter[B] {
	return nil
}
