package train

import (
	"fmt"

	"github.com/born-ml/born/tensor"

	"github.com/born-ml/textclass/internal/models"
)

// EarlyStopping tracks validation loss across epochs and signals the
// trainer to stop once it has gone Patience epochs without improvement.
// Each improvement snapshots the model's weights; RestoreBest puts them
// back after training.
type EarlyStopping[B tensor.Backend] struct {
	patience int
	minDelta float32

	checkpointPath string

	bestLoss float32
	hasBest  bool
	counter  int
	best     map[string]*tensor.RawTensor
}

// NewEarlyStopping creates an early stopper. Training stops after patience
// consecutive epochs where validation loss improved by less than minDelta.
func NewEarlyStopping[B tensor.Backend](patience int, minDelta float32) *EarlyStopping[B] {
	if patience <= 0 {
		panic(fmt.Sprintf("EarlyStopping: patience must be positive, got %d", patience))
	}

	return &EarlyStopping[B]{
		patience: patience,
		minDelta: minDelta,
	}
}

// WithCheckpoint also writes the best weights to a .born file on every
// improvement.
func (e *EarlyStopping[B]) WithCheckpoint(path string) *EarlyStopping[B] {
	e.checkpointPath = path
	return e
}

// Observe records one epoch's validation loss. It returns true once the
// loss has stopped improving for the configured patience.
func (e *EarlyStopping[B]) Observe(validationLoss float32, model models.Model[B]) (bool, error) {
	if !e.hasBest || validationLoss < e.bestLoss-e.minDelta {
		e.bestLoss = validationLoss
		e.hasBest = true
		e.counter = 0

		e.snapshot(model)
		if e.checkpointPath != "" {
			if err := models.SaveWeights(model, e.checkpointPath); err != nil {
				return false, fmt.Errorf("failed to checkpoint best model: %w", err)
			}
		}
		return false, nil
	}

	e.counter++
	return e.counter >= e.patience, nil
}

// snapshot deep-copies the model's weights so later epochs cannot mutate
// the saved best.
func (e *EarlyStopping[B]) snapshot(model models.Model[B]) {
	state := model.StateDict()
	e.best = make(map[string]*tensor.RawTensor, len(state))
	for name, raw := range state {
		e.best[name] = raw.Clone()
	}
}

// RestoreBest loads the best observed weights back into the model. It is a
// no-op error if no epoch was ever observed.
func (e *EarlyStopping[B]) RestoreBest(model models.Model[B]) error {
	if e.best == nil {
		return fmt.Errorf("no best weights recorded")
	}
	return model.LoadStateDict(e.best)
}

// BestLoss returns the best validation loss seen so far.
func (e *EarlyStopping[B]) BestLoss() (float32, bool) {
	return e.bestLoss, e.hasBest
}
