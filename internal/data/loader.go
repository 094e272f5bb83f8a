package data

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/born/tensor"
)

// Batch is one padded minibatch ready for a model's Forward.
type Batch[B tensor.Backend] struct {
	Seq    *tensor.Tensor[int32, B]   // token ids [size, max_len], right-padded with 0
	Mask   *tensor.Tensor[float32, B] // padding mask [size, max_len], 1 real / 0 pad
	Labels *tensor.Tensor[int32, B]   // class labels [size]
	Size   int                        // actual number of samples (last batch may be smaller)
}

// Loader groups samples into fixed-shape batches. All batches share the
// same sequence length so model shapes stay constant across iterations.
type Loader[B tensor.Backend] struct {
	batchSize int
	maxLen    int
	batches   []Batch[B]
}

// NewLoader builds batches from samples. Sequences longer than maxLen are
// truncated, shorter ones right-padded with token 0 and mask 0. The final
// batch keeps whatever samples remain.
func NewLoader[B tensor.Backend](samples []Sample, batchSize, maxLen int, backend B) (*Loader[B], error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples to batch")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if maxLen <= 0 {
		return nil, fmt.Errorf("max length must be positive, got %d", maxLen)
	}

	loader := &Loader[B]{
		batchSize: batchSize,
		maxLen:    maxLen,
	}

	for start := 0; start < len(samples); start += batchSize {
		end := start + batchSize
		if end > len(samples) {
			end = len(samples)
		}

		batch, err := makeBatch(samples[start:end], maxLen, backend)
		if err != nil {
			return nil, fmt.Errorf("failed to build batch at sample %d: %w", start, err)
		}
		loader.batches = append(loader.batches, batch)
	}

	return loader, nil
}

func makeBatch[B tensor.Backend](samples []Sample, maxLen int, backend B) (Batch[B], error) {
	size := len(samples)
	seq := make([]int32, size*maxLen)
	mask := make([]float32, size*maxLen)
	labels := make([]int32, size)

	for i, sample := range samples {
		tokens := sample.Tokens
		if len(tokens) > maxLen {
			tokens = tokens[:maxLen]
		}
		copy(seq[i*maxLen:], tokens)
		for j := range tokens {
			mask[i*maxLen+j] = 1
		}
		labels[i] = sample.Label
	}

	seqT, err := tensor.FromSlice(seq, tensor.Shape{size, maxLen}, backend)
	if err != nil {
		return Batch[B]{}, err
	}
	maskT, err := tensor.FromSlice(mask, tensor.Shape{size, maxLen}, backend)
	if err != nil {
		return Batch[B]{}, err
	}
	labelsT, err := tensor.FromSlice(labels, tensor.Shape{size}, backend)
	if err != nil {
		return Batch[B]{}, err
	}

	return Batch[B]{
		Seq:    seqT,
		Mask:   maskT,
		Labels: labelsT,
		Size:   size,
	}, nil
}

// Batches returns the batches in order. The slice is shared; callers must
// not mutate it.
func (l *Loader[B]) Batches() []Batch[B] {
	return l.batches
}

// NumBatches returns the number of batches.
func (l *Loader[B]) NumBatches() int {
	return len(l.batches)
}

// BatchSize returns the nominal batch size. The last batch may hold fewer
// samples; check Batch.Size.
func (l *Loader[B]) BatchSize() int {
	return l.batchSize
}

// MaxLen returns the shared sequence length.
func (l *Loader[B]) MaxLen() int {
	return l.maxLen
}

// ShuffleSamples permutes samples in place with the given source. Call
// before NewLoader when the corpus is ordered.
func ShuffleSamples(samples []Sample, rng *rand.Rand) {
	rng.Shuffle(len(samples), func(i, j int) {
		samples[i], samples[j] = samples[j], samples[i]
	})
}
