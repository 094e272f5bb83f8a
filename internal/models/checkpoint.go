package models

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// paramModule adapts a flat parameter list to nn.Module so checkpoints can
// go through nn.Save and nn.Load. Serialization only touches StateDict and
// LoadStateDict; Forward is never called.
type paramModule[B tensor.Backend] struct {
	params []*nn.Parameter[B]
}

func (p *paramModule[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return input
}

func (p *paramModule[B]) Parameters() []*nn.Parameter[B] {
	return p.params
}

func (p *paramModule[B]) StateDict() map[string]*tensor.RawTensor {
	return stateDictFromParameters(p.params)
}

func (p *paramModule[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadStateDictIntoParameters(p.params, stateDict)
}

// SaveWeights writes all of a model's parameters to a .born checkpoint.
func SaveWeights[B tensor.Backend](model Model[B], path string) error {
	group := &paramModule[B]{params: model.Parameters()}
	if err := nn.Save[B](group, path, model.Variant().String(), nil); err != nil {
		return fmt.Errorf("failed to save %s weights: %w", model.Variant(), err)
	}
	return nil
}

// LoadWeights restores a model's parameters from a checkpoint written by
// SaveWeights. The model must have the same configuration.
func LoadWeights[B tensor.Backend](model Model[B], path string, backend B) error {
	group := &paramModule[B]{params: model.Parameters()}
	if _, err := nn.Load(path, backend, group); err != nil {
		return fmt.Errorf("failed to load %s weights: %w", model.Variant(), err)
	}
	return nil
}
