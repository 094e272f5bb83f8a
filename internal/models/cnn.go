package models

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// CNNConfig configures the convolutional classifier.
//
// NumFilters and FilterSizes are parallel: branch i applies NumFilters[i]
// filters of height FilterSizes[i] over the embedded sequence.
type CNNConfig struct {
	VocabSize   int     // Vocabulary size for the embedding table
	NumClasses  int     // Output classes
	EmbedDim    int     // Embedding dimension
	NumFilters  []int   // Filters per convolution branch
	FilterSizes []int   // Filter heights (in tokens) per branch
	DropProb    float32 // Dropout probability before the head
}

// CNN is the convolutional text classifier: embedding, parallel full-width
// convolutions over the token dimension, ReLU, max-over-time pooling,
// concatenation, dropout, and a linear head.
//
// Each convolution kernel spans the full embedding dimension, so a branch
// with filter size K produces one activation sequence of length
// seq_len-K+1 per filter.
type CNN[B tensor.Backend] struct {
	config    CNNConfig
	embedding *nn.Embedding[B]
	convs     []*nn.Conv2D[B]
	relu      *nn.ReLU[B]
	dropout   *Dropout[B]
	fc        *nn.Linear[B]
}

// NewCNN creates a convolutional classifier.
func NewCNN[B tensor.Backend](config CNNConfig, backend B) *CNN[B] {
	if len(config.NumFilters) == 0 || len(config.NumFilters) != len(config.FilterSizes) {
		panic(fmt.Sprintf("CNN: NumFilters and FilterSizes must be non-empty and parallel, got %d and %d",
			len(config.NumFilters), len(config.FilterSizes)))
	}

	convs := make([]*nn.Conv2D[B], len(config.NumFilters))
	total := 0
	for i, n := range config.NumFilters {
		convs[i] = nn.NewConv2D(1, n, config.FilterSizes[i], config.EmbedDim, 1, 0, true, backend)
		total += n
	}

	return &CNN[B]{
		config:    config,
		embedding: nn.NewEmbedding(config.VocabSize, config.EmbedDim, backend),
		convs:     convs,
		relu:      nn.NewReLU[B](),
		dropout:   NewDropout(config.DropProb, backend),
		fc:        nn.NewLinear(total, config.NumClasses, backend),
	}
}

// Variant reports VariantCNN.
func (m *CNN[B]) Variant() Variant {
	return VariantCNN
}

// Forward classifies a batch of token sequences.
//
// Parameters:
//   - seq: token ids [batch, seq_len]; seq_len must be at least the largest
//     filter size
//
// Returns raw class scores [batch, num_classes].
func (m *CNN[B]) Forward(seq *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B] {
	shape := seq.Shape()
	batch, seqLen := shape[0], shape[1]

	embedded := m.embedding.Forward(seq)                        // [batch, seq_len, embed_dim]
	x := embedded.Reshape(batch, 1, seqLen, m.config.EmbedDim)  // channel dim for Conv2D

	pooled := make([]*tensor.Tensor[float32, B], len(m.convs))
	for i, conv := range m.convs {
		n := m.config.NumFilters[i]
		length := seqLen - m.config.FilterSizes[i] + 1

		c := conv.Forward(x)            // [batch, n, length, 1]
		c = m.relu.Forward(c)
		c = c.Reshape(batch, n, length)
		pooled[i] = maxOverTime(c)      // [batch, n]
	}

	out := tensor.Cat(pooled, 1) // [batch, sum(num_filters)]
	out = m.dropout.Forward(out)
	return m.fc.Forward(out) // [batch, num_classes]
}

// maxOverTime reduces [batch, filters, length] to [batch, filters] by taking
// the maximum over the time dimension.
//
// Built from recorded primitives via max(a, b) = a + relu(b - a), since the
// framework's MaxPool2D only supports square kernels. The gradient matches
// max pooling: it flows to the maximal element only.
func maxOverTime[B tensor.Backend](x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	batch, filters, length := shape[0], shape[1], shape[2]

	steps := x.Chunk(length, 2)
	maxVal := steps[0]
	for t := 1; t < length; t++ {
		maxVal = maxVal.Add(nn.ReLUFunc(steps[t].Sub(maxVal)))
	}
	return maxVal.Reshape(batch, filters)
}

// SetTraining toggles dropout before the head.
func (m *CNN[B]) SetTraining(training bool) {
	m.dropout.SetTraining(training)
}

// Parameters returns all trainable parameters.
func (m *CNN[B]) Parameters() []*nn.Parameter[B] {
	params := make([]*nn.Parameter[B], 0, 1+2*len(m.convs)+2)
	params = append(params, m.embedding.Parameters()...)
	for _, conv := range m.convs {
		params = append(params, conv.Parameters()...)
	}
	params = append(params, m.fc.Parameters()...)
	return params
}

// StateDict exports all parameters keyed by name.
func (m *CNN[B]) StateDict() map[string]*tensor.RawTensor {
	return stateDictFromParameters(m.Parameters())
}

// LoadStateDict restores parameters exported by StateDict.
func (m *CNN[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadStateDictIntoParameters(m.Parameters(), stateDict)
}

// String returns a short architecture description.
func (m *CNN[B]) String() string {
	return fmt.Sprintf("CNN(vocab=%d, embed=%d, filters=%v, sizes=%v, classes=%d)",
		m.config.VocabSize, m.config.EmbedDim, m.config.NumFilters, m.config.FilterSizes, m.config.NumClasses)
}
