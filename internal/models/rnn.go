package models

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// RNNConfig configures the recurrent classifier.
type RNNConfig struct {
	VocabSize  int     // Vocabulary size for the embedding table
	NumClasses int     // Output classes
	EmbedDim   int     // Embedding dimension
	HiddenDim  int     // LSTM hidden dimension
	NumLayers  int     // Stacked LSTM layers
	DropProb   float32 // Dropout probability (between LSTM layers and before the head)
}

// RNN is the recurrent text classifier: embedding, stacked LSTM, dropout,
// and a linear head over the final timestep's top-layer representation.
//
// The recurrent carry state is owned by the caller: initialize it with
// InitHidden once per epoch and detach it between iterations.
type RNN[B tensor.Backend] struct {
	config    RNNConfig
	embedding *nn.Embedding[B]
	lstm      *LSTM[B]
	dropout   *Dropout[B]
	fc        *nn.Linear[B]
}

// NewRNN creates a recurrent classifier.
func NewRNN[B tensor.Backend](config RNNConfig, backend B) *RNN[B] {
	return &RNN[B]{
		config:    config,
		embedding: nn.NewEmbedding(config.VocabSize, config.EmbedDim, backend),
		lstm:      NewLSTM(config.EmbedDim, config.HiddenDim, config.NumLayers, config.DropProb, backend),
		dropout:   NewDropout(config.DropProb, backend),
		fc:        nn.NewLinear(config.HiddenDim, config.NumClasses, backend),
	}
}

// Variant reports VariantRNN.
func (m *RNN[B]) Variant() Variant {
	return VariantRNN
}

// InitHidden returns a zero carry state sized for the given batch.
func (m *RNN[B]) InitHidden(batchSize int) *Hidden[B] {
	return m.lstm.InitHidden(batchSize)
}

// Forward classifies a batch of token sequences.
//
// Parameters:
//   - seq: token ids [batch, seq_len]
//   - hidden: carry state from InitHidden or the previous iteration
//
// Returns raw class scores [batch, num_classes] and the updated carry state.
func (m *RNN[B]) Forward(seq *tensor.Tensor[int32, B], hidden *Hidden[B]) (*tensor.Tensor[float32, B], *Hidden[B]) {
	batch := seq.Shape()[0]

	embedded := m.embedding.Forward(seq) // [batch, seq_len, embed_dim]
	_, hidden = m.lstm.Forward(embedded, hidden)

	// The top layer's final hidden state is the last-timestep representation.
	last := hidden.H.Chunk(m.config.NumLayers, 0)[m.config.NumLayers-1].Reshape(batch, m.config.HiddenDim)

	out := m.dropout.Forward(last)
	scores := m.fc.Forward(out) // [batch, num_classes]

	return scores, hidden
}

// SetTraining toggles dropout in the LSTM stack and before the head.
func (m *RNN[B]) SetTraining(training bool) {
	m.lstm.SetTraining(training)
	m.dropout.SetTraining(training)
}

// Parameters returns all trainable parameters.
func (m *RNN[B]) Parameters() []*nn.Parameter[B] {
	params := make([]*nn.Parameter[B], 0, 1+4*m.config.NumLayers+2)
	params = append(params, m.embedding.Parameters()...)
	params = append(params, m.lstm.Parameters()...)
	params = append(params, m.fc.Parameters()...)
	return params
}

// StateDict exports all parameters keyed by name.
func (m *RNN[B]) StateDict() map[string]*tensor.RawTensor {
	return stateDictFromParameters(m.Parameters())
}

// LoadStateDict restores parameters exported by StateDict.
func (m *RNN[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadStateDictIntoParameters(m.Parameters(), stateDict)
}

// String returns a short architecture description.
func (m *RNN[B]) String() string {
	return fmt.Sprintf("RNN(vocab=%d, embed=%d, hidden=%d, layers=%d, classes=%d)",
		m.config.VocabSize, m.config.EmbedDim, m.config.HiddenDim, m.config.NumLayers, m.config.NumClasses)
}
