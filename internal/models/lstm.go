package models

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Hidden is the recurrent carry state of an LSTM: the hidden and cell
// tensors, each shaped [num_layers, batch, hidden_dim].
//
// Hidden state is owned by the caller between forward calls. Callers must
// detach it once per iteration so the autodiff graph does not grow across
// batches.
type Hidden[B tensor.Backend] struct {
	H *tensor.Tensor[float32, B] // Hidden state [num_layers, batch, hidden_dim]
	C *tensor.Tensor[float32, B] // Cell state [num_layers, batch, hidden_dim]
}

// Detach returns the same state values with gradient tracking cut, so the
// next forward call starts a fresh computation graph.
func (h *Hidden[B]) Detach() *Hidden[B] {
	return &Hidden[B]{
		H: h.H.Detach(),
		C: h.C.Detach(),
	}
}

// lstmLayer holds the parameters of one LSTM layer.
//
// Gate layout follows the usual convention: the 4*hidden_dim rows are the
// input, forget, cell, and output gates, in that order.
type lstmLayer[B tensor.Backend] struct {
	weightIH *nn.Parameter[B] // [4*hidden_dim, input_dim]
	weightHH *nn.Parameter[B] // [4*hidden_dim, hidden_dim]
	biasIH   *nn.Parameter[B] // [4*hidden_dim]
	biasHH   *nn.Parameter[B] // [4*hidden_dim]
}

// LSTM is a multi-layer long short-term memory recurrence built from the
// framework's differentiable primitives (MatMul, Add, Mul, Sigmoid, Tanh,
// Chunk, Cat), since the framework ships no recurrent layer of its own.
//
// Input is a [batch, seq, input_dim] sequence; output is the full
// [batch, seq, hidden_dim] top-layer sequence plus the updated carry state.
// Dropout with probability dropProb is applied between layers (not after
// the last), matching the stacked-LSTM convention.
type LSTM[B tensor.Backend] struct {
	inputDim  int
	hiddenDim int
	numLayers int

	layers  []*lstmLayer[B]
	dropout *Dropout[B]
	sigmoid *nn.Sigmoid[B]
	tanh    *nn.Tanh[B]
	backend B
}

// NewLSTM creates a stacked LSTM.
//
// Weights use Xavier initialization, biases start at zero.
func NewLSTM[B tensor.Backend](inputDim, hiddenDim, numLayers int, dropProb float32, backend B) *LSTM[B] {
	if numLayers < 1 {
		panic(fmt.Sprintf("LSTM: numLayers must be >= 1, got %d", numLayers))
	}

	layers := make([]*lstmLayer[B], numLayers)
	for l := range layers {
		in := inputDim
		if l > 0 {
			in = hiddenDim
		}
		layers[l] = &lstmLayer[B]{
			weightIH: nn.NewParameter(fmt.Sprintf("lstm.l%d.weight_ih", l),
				nn.Xavier(in, 4*hiddenDim, tensor.Shape{4 * hiddenDim, in}, backend)),
			weightHH: nn.NewParameter(fmt.Sprintf("lstm.l%d.weight_hh", l),
				nn.Xavier(hiddenDim, 4*hiddenDim, tensor.Shape{4 * hiddenDim, hiddenDim}, backend)),
			biasIH: nn.NewParameter(fmt.Sprintf("lstm.l%d.bias_ih", l),
				nn.Zeros(tensor.Shape{4 * hiddenDim}, backend)),
			biasHH: nn.NewParameter(fmt.Sprintf("lstm.l%d.bias_hh", l),
				nn.Zeros(tensor.Shape{4 * hiddenDim}, backend)),
		}
	}

	return &LSTM[B]{
		inputDim:  inputDim,
		hiddenDim: hiddenDim,
		numLayers: numLayers,
		layers:    layers,
		dropout:   NewDropout(dropProb, backend),
		sigmoid:   nn.NewSigmoid[B](),
		tanh:      nn.NewTanh[B](),
		backend:   backend,
	}
}

// InitHidden returns a zero carry state for the given batch size.
//
// Call this once per epoch (not once per run): the training and validation
// loaders may use different batch sizes.
func (m *LSTM[B]) InitHidden(batchSize int) *Hidden[B] {
	shape := tensor.Shape{m.numLayers, batchSize, m.hiddenDim}
	return &Hidden[B]{
		H: tensor.Zeros[float32](shape, m.backend),
		C: tensor.Zeros[float32](shape, m.backend),
	}
}

// Forward runs the recurrence over a full sequence.
//
// Parameters:
//   - input: [batch, seq, input_dim]
//   - hidden: carry state from InitHidden or a previous call
//
// Returns the top-layer output sequence [batch, seq, hidden_dim] and the
// updated carry state.
func (m *LSTM[B]) Forward(input *tensor.Tensor[float32, B], hidden *Hidden[B]) (*tensor.Tensor[float32, B], *Hidden[B]) {
	shape := input.Shape()
	batch, seq := shape[0], shape[1]

	// Split carry state into per-layer [batch, hidden_dim] tensors.
	hPerLayer := hidden.H.Chunk(m.numLayers, 0)
	cPerLayer := hidden.C.Chunk(m.numLayers, 0)
	hs := make([]*tensor.Tensor[float32, B], m.numLayers)
	cs := make([]*tensor.Tensor[float32, B], m.numLayers)
	for l := 0; l < m.numLayers; l++ {
		hs[l] = hPerLayer[l].Reshape(batch, m.hiddenDim)
		cs[l] = cPerLayer[l].Reshape(batch, m.hiddenDim)
	}

	layerIn := input
	inDim := m.inputDim
	for l, layer := range m.layers {
		steps := layerIn.Chunk(seq, 1)
		outs := make([]*tensor.Tensor[float32, B], seq)

		wihT := layer.weightIH.Tensor().Transpose() // [in, 4*hidden]
		whhT := layer.weightHH.Tensor().Transpose() // [hidden, 4*hidden]
		bih := layer.biasIH.Tensor().Reshape(1, 4*m.hiddenDim)
		bhh := layer.biasHH.Tensor().Reshape(1, 4*m.hiddenDim)

		h, c := hs[l], cs[l]
		for t := 0; t < seq; t++ {
			xt := steps[t].Reshape(batch, inDim)

			// gates = x_t W_ih^T + h_{t-1} W_hh^T + b_ih + b_hh
			gates := xt.MatMul(wihT).Add(h.MatMul(whhT)).Add(bih).Add(bhh)
			g := gates.Chunk(4, 1)

			inGate := m.sigmoid.Forward(g[0])
			forgetGate := m.sigmoid.Forward(g[1])
			cellGate := m.tanh.Forward(g[2])
			outGate := m.sigmoid.Forward(g[3])

			c = forgetGate.Mul(c).Add(inGate.Mul(cellGate))
			h = outGate.Mul(m.tanh.Forward(c))

			outs[t] = h.Reshape(batch, 1, m.hiddenDim)
		}
		hs[l], cs[l] = h, c

		layerOut := tensor.Cat(outs, 1) // [batch, seq, hidden_dim]
		if l < m.numLayers-1 {
			layerOut = m.dropout.Forward(layerOut)
		}
		layerIn = layerOut
		inDim = m.hiddenDim
	}

	// Stack per-layer state back into [num_layers, batch, hidden_dim].
	stackedH := make([]*tensor.Tensor[float32, B], m.numLayers)
	stackedC := make([]*tensor.Tensor[float32, B], m.numLayers)
	for l := 0; l < m.numLayers; l++ {
		stackedH[l] = hs[l].Reshape(1, batch, m.hiddenDim)
		stackedC[l] = cs[l].Reshape(1, batch, m.hiddenDim)
	}

	return layerIn, &Hidden[B]{
		H: tensor.Cat(stackedH, 0),
		C: tensor.Cat(stackedC, 0),
	}
}

// SetTraining toggles the inter-layer dropout.
func (m *LSTM[B]) SetTraining(training bool) {
	m.dropout.SetTraining(training)
}

// HiddenDim returns the hidden dimension.
func (m *LSTM[B]) HiddenDim() int {
	return m.hiddenDim
}

// NumLayers returns the layer count.
func (m *LSTM[B]) NumLayers() int {
	return m.numLayers
}

// Parameters returns the trainable parameters of all layers.
func (m *LSTM[B]) Parameters() []*nn.Parameter[B] {
	params := make([]*nn.Parameter[B], 0, 4*m.numLayers)
	for _, layer := range m.layers {
		params = append(params, layer.weightIH, layer.weightHH, layer.biasIH, layer.biasHH)
	}
	return params
}
