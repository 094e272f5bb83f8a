package train

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/born/backend/cpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/textclass/internal/models"
)

func newTestModel(backend *cpu.Backend) *models.CNN[*cpu.Backend] {
	return models.NewCNN(models.CNNConfig{
		VocabSize:   10,
		NumClasses:  2,
		EmbedDim:    4,
		NumFilters:  []int{2},
		FilterSizes: []int{2},
		DropProb:    0,
	}, backend)
}

func TestEarlyStopping_StopsAfterPatience(t *testing.T) {
	backend := cpu.New()
	model := newTestModel(backend)
	stopper := NewEarlyStopping[*cpu.Backend](2, 0)

	stop, err := stopper.Observe(1.0, model)
	require.NoError(t, err)
	assert.False(t, stop)

	stop, err = stopper.Observe(1.1, model)
	require.NoError(t, err)
	assert.False(t, stop)

	stop, err = stopper.Observe(1.2, model)
	require.NoError(t, err)
	assert.True(t, stop)

	best, ok := stopper.BestLoss()
	assert.True(t, ok)
	assert.Equal(t, float32(1.0), best)
}

func TestEarlyStopping_ImprovementResetsCounter(t *testing.T) {
	backend := cpu.New()
	model := newTestModel(backend)
	stopper := NewEarlyStopping[*cpu.Backend](2, 0)

	losses := []float32{1.0, 1.1, 0.9, 1.0}
	for _, loss := range losses {
		stop, err := stopper.Observe(loss, model)
		require.NoError(t, err)
		assert.False(t, stop, "loss %v", loss)
	}
}

func TestEarlyStopping_MinDelta(t *testing.T) {
	backend := cpu.New()
	model := newTestModel(backend)
	stopper := NewEarlyStopping[*cpu.Backend](1, 0.1)

	stop, err := stopper.Observe(1.0, model)
	require.NoError(t, err)
	assert.False(t, stop)

	// Improvement below minDelta does not count.
	stop, err = stopper.Observe(0.95, model)
	require.NoError(t, err)
	assert.True(t, stop)
}

func TestEarlyStopping_RestoreBest(t *testing.T) {
	backend := cpu.New()
	model := newTestModel(backend)
	stopper := NewEarlyStopping[*cpu.Backend](3, 0)

	_, err := stopper.Observe(1.0, model)
	require.NoError(t, err)

	// Mutate weights after the snapshot; RestoreBest must undo it.
	param := model.Parameters()[0]
	original := param.Tensor().Data()[0]
	param.Tensor().Data()[0] = original + 42

	require.NoError(t, stopper.RestoreBest(model))
	assert.Equal(t, original, model.Parameters()[0].Tensor().Data()[0])
}

func TestEarlyStopping_RestoreBestWithoutObservation(t *testing.T) {
	backend := cpu.New()
	model := newTestModel(backend)
	stopper := NewEarlyStopping[*cpu.Backend](1, 0)

	assert.Error(t, stopper.RestoreBest(model))
}

func TestEarlyStopping_Checkpoint(t *testing.T) {
	backend := cpu.New()
	model := newTestModel(backend)
	path := filepath.Join(t.TempDir(), "best.born")
	stopper := NewEarlyStopping[*cpu.Backend](2, 0).WithCheckpoint(path)

	_, err := stopper.Observe(1.0, model)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	// Checkpoint loads back into a fresh model of the same configuration.
	restored := newTestModel(backend)
	require.NoError(t, models.LoadWeights(restored, path, backend))

	want := model.Parameters()[0].Tensor().Data()
	got := restored.Parameters()[0].Tensor().Data()
	assert.Equal(t, want, got)
}
