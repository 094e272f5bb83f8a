// Package models implements the text-classification model variants built on
// top of the Born ML framework.
//
// Three interchangeable variants are provided:
//   - RNN: embedding + multi-layer LSTM + linear head
//   - CNN: embedding + parallel convolutions + max-over-time pooling + linear head
//   - TransformerClassifier: embedding + transformer encoder + linear head
//
// All variants produce raw per-class logits with shape [batch, num_classes];
// no softmax is applied. The loss function is responsible for interpreting
// the scores as probabilities.
package models

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Variant identifies one of the supported model architectures.
//
// The set of variants is closed: dispatch in the training loop switches
// exhaustively over the concrete model types, and configuration code goes
// through ParseVariant, so an unsupported variant is rejected before any
// forward pass runs.
type Variant int

const (
	// VariantRNN is the recurrent (LSTM) classifier.
	VariantRNN Variant = iota
	// VariantCNN is the convolutional classifier.
	VariantCNN
	// VariantTransformer is the transformer-encoder classifier.
	VariantTransformer
)

// ErrUnknownVariant is returned for model type identifiers outside the
// supported set. It is a configuration error: callers must not fall back to
// a default variant.
var ErrUnknownVariant = fmt.Errorf("unknown model variant")

// ParseVariant maps a variant name ("rnn", "cnn", "transformer") to its
// Variant value.
//
// Returns an error wrapping ErrUnknownVariant for any other name.
func ParseVariant(name string) (Variant, error) {
	switch name {
	case "rnn":
		return VariantRNN, nil
	case "cnn":
		return VariantCNN, nil
	case "transformer":
		return VariantTransformer, nil
	default:
		return 0, fmt.Errorf("%w: %q (supported: rnn, cnn, transformer)", ErrUnknownVariant, name)
	}
}

// String returns the variant name as accepted by ParseVariant.
func (v Variant) String() string {
	switch v {
	case VariantRNN:
		return "rnn"
	case VariantCNN:
		return "cnn"
	case VariantTransformer:
		return "transformer"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// Model is the capability shared by all classifier variants.
//
// Forward signatures differ per variant (the recurrent variant threads
// hidden state, the transformer variant takes a mask and returns attention
// weights), so forward dispatch happens on the concrete types; Model covers
// everything the training loop and the early-stopping monitor need besides
// the forward call.
type Model[B tensor.Backend] interface {
	// Variant reports which architecture this model implements.
	Variant() Variant

	// Parameters returns all trainable parameters, for the optimizer.
	Parameters() []*nn.Parameter[B]

	// SetTraining toggles training-only behaviors (dropout). The training
	// loop switches the model to evaluation mode for the validation phase
	// and back before the next epoch.
	SetTraining(training bool)

	// StateDict exports all parameters, keyed by qualified name.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict restores parameters exported by StateDict.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// stateDictKey builds a collision-free state-dict key from the parameter's
// position and name. Layers reuse plain names ("weight", "bias"), so the
// positional prefix keeps multi-layer models unambiguous, like the
// framework's Sequential does with module indices.
func stateDictKey[B tensor.Backend](i int, p *nn.Parameter[B]) string {
	return fmt.Sprintf("%d.%s", i, p.Name())
}

// stateDictFromParameters builds a state dictionary from a parameter list.
func stateDictFromParameters[B tensor.Backend](params []*nn.Parameter[B]) map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor, len(params))
	for i, p := range params {
		stateDict[stateDictKey(i, p)] = p.Tensor().Raw()
	}
	return stateDict
}

// loadStateDictIntoParameters copies tensors from a state dictionary into a
// parameter list, validating shapes and dtypes.
func loadStateDictIntoParameters[B tensor.Backend](params []*nn.Parameter[B], stateDict map[string]*tensor.RawTensor) error {
	for i, p := range params {
		raw, ok := stateDict[stateDictKey(i, p)]
		if !ok {
			return fmt.Errorf("missing parameter %q in state dict", stateDictKey(i, p))
		}
		dst := p.Tensor()
		if !raw.Shape().Equal(dst.Shape()) {
			return fmt.Errorf("parameter %q shape mismatch: expected %v, got %v",
				p.Name(), dst.Shape(), raw.Shape())
		}
		if raw.DType() != tensor.Float32 {
			return fmt.Errorf("parameter %q dtype mismatch: expected float32, got %v",
				p.Name(), raw.DType())
		}
		copy(dst.Data(), raw.AsFloat32())
	}
	return nil
}
