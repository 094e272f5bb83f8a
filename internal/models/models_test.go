package models

import (
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testBackend = *autodiff.Backend[*cpu.Backend]

func newTestBackend() testBackend {
	return autodiff.New(cpu.New())
}

// tokenBatch builds a [batch, seqLen] tensor of token ids inside the vocab.
func tokenBatch(t *testing.T, backend testBackend, batch, seqLen, vocab int) *tensor.Tensor[int32, testBackend] {
	t.Helper()
	data := make([]int32, batch*seqLen)
	for i := range data {
		data[i] = int32(i % vocab)
	}
	seq, err := tensor.FromSlice(data, tensor.Shape{batch, seqLen}, backend)
	require.NoError(t, err)
	return seq
}

func TestRNN_ForwardShapes(t *testing.T) {
	backend := newTestBackend()
	model := NewRNN(RNNConfig{
		VocabSize:  50,
		NumClasses: 2,
		EmbedDim:   8,
		HiddenDim:  12,
		NumLayers:  2,
		DropProb:   0.3,
	}, backend)
	model.SetTraining(false)

	seq := tokenBatch(t, backend, 3, 5, 50)
	hidden := model.InitHidden(3)
	require.Equal(t, tensor.Shape{2, 3, 12}, hidden.H.Shape())
	require.Equal(t, tensor.Shape{2, 3, 12}, hidden.C.Shape())

	scores, next := model.Forward(seq, hidden)
	assert.Equal(t, tensor.Shape{3, 2}, scores.Shape())
	assert.Equal(t, tensor.Shape{2, 3, 12}, next.H.Shape())
	assert.Equal(t, tensor.Shape{2, 3, 12}, next.C.Shape())
}

func TestRNN_HiddenCarriesAcrossBatches(t *testing.T) {
	backend := newTestBackend()
	model := NewRNN(RNNConfig{
		VocabSize:  20,
		NumClasses: 2,
		EmbedDim:   4,
		HiddenDim:  6,
		NumLayers:  1,
		DropProb:   0,
	}, backend)
	model.SetTraining(false)

	seq := tokenBatch(t, backend, 2, 3, 20)
	hidden := model.InitHidden(2)

	_, hidden = model.Forward(seq, hidden)
	detached := hidden.Detach()
	require.Equal(t, hidden.H.Shape(), detached.H.Shape())

	// Carry state from the previous batch feeds the next forward.
	scores, _ := model.Forward(seq, detached)
	assert.Equal(t, tensor.Shape{2, 2}, scores.Shape())
}

func TestRNN_SmallerFinalBatch(t *testing.T) {
	backend := newTestBackend()
	model := NewRNN(RNNConfig{
		VocabSize:  20,
		NumClasses: 3,
		EmbedDim:   4,
		HiddenDim:  6,
		NumLayers:  2,
		DropProb:   0,
	}, backend)
	model.SetTraining(false)

	seq := tokenBatch(t, backend, 1, 4, 20)
	hidden := model.InitHidden(1)

	scores, next := model.Forward(seq, hidden)
	assert.Equal(t, tensor.Shape{1, 3}, scores.Shape())
	assert.Equal(t, tensor.Shape{2, 1, 6}, next.H.Shape())
}

func TestCNN_ForwardShapes(t *testing.T) {
	backend := newTestBackend()
	model := NewCNN(CNNConfig{
		VocabSize:   50,
		NumClasses:  2,
		EmbedDim:    8,
		NumFilters:  []int{4, 4, 4},
		FilterSizes: []int{2, 3, 4},
		DropProb:    0.3,
	}, backend)
	model.SetTraining(false)

	seq := tokenBatch(t, backend, 3, 6, 50)
	scores := model.Forward(seq)
	assert.Equal(t, tensor.Shape{3, 2}, scores.Shape())
}

func TestCNN_RejectsMismatchedFilterConfig(t *testing.T) {
	backend := newTestBackend()
	assert.Panics(t, func() {
		NewCNN(CNNConfig{
			VocabSize:   10,
			NumClasses:  2,
			EmbedDim:    4,
			NumFilters:  []int{4, 4},
			FilterSizes: []int{2},
			DropProb:    0,
		}, backend)
	})
}

func TestMaxOverTime(t *testing.T) {
	backend := newTestBackend()

	// [1 batch, 2 filters, 3 timesteps]
	x, err := tensor.FromSlice(
		[]float32{1, 5, 3, -2, -7, -1},
		tensor.Shape{1, 2, 3}, backend)
	require.NoError(t, err)

	pooled := maxOverTime(x)
	require.Equal(t, tensor.Shape{1, 2}, pooled.Shape())
	assert.InDelta(t, 5.0, pooled.Data()[0], 1e-6)
	assert.InDelta(t, -1.0, pooled.Data()[1], 1e-6)
}

func TestTransformerClassifier_ForwardShapes(t *testing.T) {
	backend := newTestBackend()
	model := NewTransformerClassifier(TransformerConfig{
		VocabSize:  50,
		NumClasses: 3,
		EmbedDim:   16,
		NumHeads:   4,
		NumBlocks:  2,
		FFNDim:     32,
		MaxLen:     10,
		DropProb:   0.1,
		NormEps:    1e-5,
	}, backend)
	model.SetTraining(false)

	seq := tokenBatch(t, backend, 2, 6, 50)

	// Second sequence has two padded positions.
	maskData := []float32{
		1, 1, 1, 1, 1, 1,
		1, 1, 1, 1, 0, 0,
	}
	mask, err := tensor.FromSlice(maskData, tensor.Shape{2, 6}, backend)
	require.NoError(t, err)

	scores, attentions := model.Forward(seq, mask)
	assert.Equal(t, tensor.Shape{2, 3}, scores.Shape())
	assert.Equal(t, tensor.Shape{2, 4, 6, 6}, attentions.Shape())
}

func TestTransformerClassifier_MaskedPositionsGetNoAttention(t *testing.T) {
	backend := newTestBackend()
	model := NewTransformerClassifier(TransformerConfig{
		VocabSize:  20,
		NumClasses: 2,
		EmbedDim:   8,
		NumHeads:   2,
		NumBlocks:  1,
		FFNDim:     16,
		MaxLen:     8,
		DropProb:   0,
		NormEps:    1e-5,
	}, backend)
	model.SetTraining(false)

	seq := tokenBatch(t, backend, 1, 4, 20)
	mask, err := tensor.FromSlice([]float32{1, 1, 0, 0}, tensor.Shape{1, 4}, backend)
	require.NoError(t, err)

	_, attentions := model.Forward(seq, mask)

	// attentions: [1, 2, 4, 4]; weight for key positions 2 and 3 must be ~0
	// in every row of every head.
	data := attentions.Data()
	seqLen := 4
	for head := 0; head < 2; head++ {
		for q := 0; q < seqLen; q++ {
			rowStart := head*seqLen*seqLen + q*seqLen
			assert.InDelta(t, 0.0, data[rowStart+2], 1e-5)
			assert.InDelta(t, 0.0, data[rowStart+3], 1e-5)
		}
	}
}

func TestTransformerClassifier_RejectsIndivisibleHeads(t *testing.T) {
	backend := newTestBackend()
	assert.Panics(t, func() {
		NewTransformerClassifier(TransformerConfig{
			VocabSize:  10,
			NumClasses: 2,
			EmbedDim:   10,
			NumHeads:   4,
			NumBlocks:  1,
			FFNDim:     16,
			MaxLen:     8,
			NormEps:    1e-5,
		}, backend)
	})
}

func TestDropout_EvalIsIdentity(t *testing.T) {
	backend := newTestBackend()
	dropout := NewDropout[testBackend](0.5, backend)
	dropout.SetTraining(false)

	x, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2}, backend)
	require.NoError(t, err)

	out := dropout.Forward(x)
	assert.Equal(t, x.Data(), out.Data())
}

func TestDropout_TrainingScalesSurvivors(t *testing.T) {
	backend := newTestBackend()
	dropout := NewDropout[testBackend](0.5, backend)
	dropout.Seed(7)

	input := make([]float32, 64)
	for i := range input {
		input[i] = 2
	}
	x, err := tensor.FromSlice(input, tensor.Shape{64}, backend)
	require.NoError(t, err)

	out := dropout.Forward(x).Data()
	zeros := 0
	for _, v := range out {
		switch v {
		case 0:
			zeros++
		case 4: // 2 / (1 - 0.5)
		default:
			t.Fatalf("unexpected dropout output %v", v)
		}
	}
	assert.Greater(t, zeros, 0, "expected some elements dropped")
	assert.Less(t, zeros, len(out), "expected some elements kept")
}

func TestStateDict_RoundTrip(t *testing.T) {
	backend := newTestBackend()
	config := RNNConfig{
		VocabSize:  20,
		NumClasses: 2,
		EmbedDim:   4,
		HiddenDim:  6,
		NumLayers:  1,
		DropProb:   0,
	}
	src := NewRNN(config, backend)
	dst := NewRNN(config, backend)

	require.NoError(t, dst.LoadStateDict(src.StateDict()))

	srcParams := src.Parameters()
	dstParams := dst.Parameters()
	require.Equal(t, len(srcParams), len(dstParams))
	for i := range srcParams {
		assert.Equal(t, srcParams[i].Tensor().Data(), dstParams[i].Tensor().Data(),
			"parameter %d (%s) differs after load", i, srcParams[i].Name())
	}
}

func TestLoadStateDict_MissingParameter(t *testing.T) {
	backend := newTestBackend()
	model := NewCNN(CNNConfig{
		VocabSize:   20,
		NumClasses:  2,
		EmbedDim:    4,
		NumFilters:  []int{2},
		FilterSizes: []int{2},
		DropProb:    0,
	}, backend)

	state := model.StateDict()
	for key := range state {
		delete(state, key)
		break
	}

	assert.Error(t, model.LoadStateDict(state))
}
