package models

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// TransformerConfig configures the transformer-encoder classifier.
type TransformerConfig struct {
	VocabSize  int     // Vocabulary size for the embedding table
	NumClasses int     // Output classes
	EmbedDim   int     // Model width (must be divisible by NumHeads)
	NumHeads   int     // Attention heads per block
	NumBlocks  int     // Encoder blocks
	FFNDim     int     // Feed-forward hidden dimension (typically 4*EmbedDim)
	MaxLen     int     // Maximum sequence length (positional encoding table)
	DropProb   float32 // Dropout probability (residual branches and before the head)
	NormEps    float32 // LayerNorm epsilon
}

// encoderBlock is one post-norm transformer encoder block.
//
// x -> MHA -> dropout -> +x -> LayerNorm -> FFN -> dropout -> + -> LayerNorm
type encoderBlock[B tensor.Backend] struct {
	attention *nn.MultiHeadAttention[B]
	attnNorm  *nn.LayerNorm[B]
	ffn       *nn.FFN[B]
	ffnNorm   *nn.LayerNorm[B]
	dropout   *Dropout[B]
}

func newEncoderBlock[B tensor.Backend](config TransformerConfig, backend B) *encoderBlock[B] {
	return &encoderBlock[B]{
		attention: nn.NewMultiHeadAttention[B](config.EmbedDim, config.NumHeads, backend),
		attnNorm:  nn.NewLayerNorm(config.EmbedDim, config.NormEps, backend),
		ffn:       nn.NewFFN(config.EmbedDim, config.FFNDim, backend),
		ffnNorm:   nn.NewLayerNorm(config.EmbedDim, config.NormEps, backend),
		dropout:   NewDropout(config.DropProb, backend),
	}
}

// forward runs the block and returns its attention weights
// [batch, num_heads, seq, seq] alongside the output.
func (b *encoderBlock[B]) forward(x, mask *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], *tensor.Tensor[float32, B]) {
	attnOut, weights := b.attention.ForwardWithWeights(x, x, x, mask)
	x = b.attnNorm.Forward(x.Add(b.dropout.Forward(attnOut)))

	ffnOut := b.ffn.Forward(x)
	x = b.ffnNorm.Forward(x.Add(b.dropout.Forward(ffnOut)))

	return x, weights
}

func (b *encoderBlock[B]) parameters() []*nn.Parameter[B] {
	params := make([]*nn.Parameter[B], 0, 12)
	params = append(params, b.attention.Parameters()...)
	params = append(params, b.attnNorm.Parameters()...)
	params = append(params, b.ffn.Parameters()...)
	params = append(params, b.ffnNorm.Parameters()...)
	return params
}

// TransformerClassifier is the transformer-encoder text classifier:
// embedding plus sinusoidal positional encoding, a stack of post-norm
// encoder blocks, and a linear head over the first position's
// representation.
//
// Unlike the other two variants it consumes the batch's attention mask and
// returns the final block's attention weights for inspection.
type TransformerClassifier[B tensor.Backend] struct {
	config    TransformerConfig
	embedding *nn.Embedding[B]
	positions *nn.SinusoidalPositionalEncoding[B]
	blocks    []*encoderBlock[B]
	dropout   *Dropout[B]
	clsHead   *nn.Linear[B]
	backend   B
}

// NewTransformerClassifier creates a transformer-encoder classifier.
func NewTransformerClassifier[B tensor.Backend](config TransformerConfig, backend B) *TransformerClassifier[B] {
	if config.EmbedDim%config.NumHeads != 0 {
		panic(fmt.Sprintf("TransformerClassifier: EmbedDim %d not divisible by NumHeads %d",
			config.EmbedDim, config.NumHeads))
	}

	blocks := make([]*encoderBlock[B], config.NumBlocks)
	for i := range blocks {
		blocks[i] = newEncoderBlock(config, backend)
	}

	return &TransformerClassifier[B]{
		config:    config,
		embedding: nn.NewEmbedding(config.VocabSize, config.EmbedDim, backend),
		positions: nn.NewSinusoidalPositionalEncoding(config.MaxLen, config.EmbedDim, backend),
		blocks:    blocks,
		dropout:   NewDropout(config.DropProb, backend),
		clsHead:   nn.NewLinear(config.EmbedDim, config.NumClasses, backend),
		backend:   backend,
	}
}

// Variant reports VariantTransformer.
func (m *TransformerClassifier[B]) Variant() Variant {
	return VariantTransformer
}

// Forward classifies a batch of token sequences.
//
// Parameters:
//   - seq: token ids [batch, seq_len]
//   - mask: padding mask [batch, seq_len], 1 for real tokens and 0 for
//     padding
//
// Returns raw class scores [batch, num_classes] and the last block's
// attention weights [batch, num_heads, seq_len, seq_len].
func (m *TransformerClassifier[B]) Forward(seq *tensor.Tensor[int32, B], mask *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], *tensor.Tensor[float32, B]) {
	shape := seq.Shape()
	batch, seqLen := shape[0], shape[1]

	x := m.embedding.Forward(seq)        // [batch, seq_len, embed_dim]
	x = x.Add(m.positions.Forward(seqLen)) // broadcast over batch

	additive := m.additiveMask(mask, batch, seqLen)

	var attentions *tensor.Tensor[float32, B]
	for _, block := range m.blocks {
		x, attentions = block.forward(x, additive)
	}

	// First position acts as the classification representation.
	cls := x.Chunk(seqLen, 1)[0].Reshape(batch, m.config.EmbedDim)
	out := m.dropout.Forward(cls)
	scores := m.clsHead.Forward(out) // [batch, num_classes]

	return scores, attentions
}

// additiveMask converts a 1/0 padding mask [batch, seq] into the additive
// attention mask [batch, 1, 1, seq] expected by scaled dot-product
// attention: 0 for kept positions, a large negative value for padding.
//
// The mask is a constant; gradients never flow through it.
func (m *TransformerClassifier[B]) additiveMask(mask *tensor.Tensor[float32, B], batch, seqLen int) *tensor.Tensor[float32, B] {
	src := mask.Data()
	data := make([]float32, len(src))
	for i, v := range src {
		if v == 0 {
			data[i] = -1e9
		}
	}

	additive, err := tensor.FromSlice(data, tensor.Shape{batch, 1, 1, seqLen}, m.backend)
	if err != nil {
		panic(fmt.Sprintf("TransformerClassifier: failed to build attention mask: %v", err))
	}
	return additive
}

// SetTraining toggles dropout in all blocks and before the head.
func (m *TransformerClassifier[B]) SetTraining(training bool) {
	for _, block := range m.blocks {
		block.dropout.SetTraining(training)
	}
	m.dropout.SetTraining(training)
}

// encoderParameters returns the parameters shared with a pretrained
// encoder: embedding and blocks, but not the classification head.
func (m *TransformerClassifier[B]) encoderParameters() []*nn.Parameter[B] {
	params := make([]*nn.Parameter[B], 0, 1+12*len(m.blocks))
	params = append(params, m.embedding.Parameters()...)
	for _, block := range m.blocks {
		params = append(params, block.parameters()...)
	}
	return params
}

// LoadPretrainedEncoder loads encoder weights (embedding and blocks) from a
// .born checkpoint, leaving the freshly initialized classification head in
// place. The checkpoint must come from a model with the same configuration.
func (m *TransformerClassifier[B]) LoadPretrainedEncoder(path string) error {
	group := &paramModule[B]{params: m.encoderParameters()}
	if _, err := nn.Load(path, m.backend, group); err != nil {
		return fmt.Errorf("failed to load pretrained encoder from %s: %w", path, err)
	}
	return nil
}

// SaveEncoder writes the encoder weights (embedding and blocks) to a .born
// checkpoint usable with LoadPretrainedEncoder.
func (m *TransformerClassifier[B]) SaveEncoder(path string) error {
	group := &paramModule[B]{params: m.encoderParameters()}
	return nn.Save[B](group, path, "transformer-encoder", nil)
}

// Parameters returns all trainable parameters.
func (m *TransformerClassifier[B]) Parameters() []*nn.Parameter[B] {
	params := m.encoderParameters()
	params = append(params, m.clsHead.Parameters()...)
	return params
}

// StateDict exports all parameters keyed by name.
func (m *TransformerClassifier[B]) StateDict() map[string]*tensor.RawTensor {
	return stateDictFromParameters(m.Parameters())
}

// LoadStateDict restores parameters exported by StateDict.
func (m *TransformerClassifier[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadStateDictIntoParameters(m.Parameters(), stateDict)
}

// String returns a short architecture description.
func (m *TransformerClassifier[B]) String() string {
	return fmt.Sprintf("TransformerClassifier(vocab=%d, embed=%d, heads=%d, blocks=%d, classes=%d)",
		m.config.VocabSize, m.config.EmbedDim, m.config.NumHeads, m.config.NumBlocks, m.config.NumClasses)
}
