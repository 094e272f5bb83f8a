package train

import (
	"fmt"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/textclass/internal/data"
	"github.com/born-ml/textclass/internal/models"
)

// Criterion computes a scalar loss from raw class scores and labels.
// *nn.CrossEntropyLoss satisfies it.
type Criterion[B tensor.Backend] interface {
	Forward(
		logits *tensor.Tensor[float32, *autodiff.Backend[B]],
		targets *tensor.Tensor[int32, *autodiff.Backend[B]],
	) *tensor.Tensor[float32, *autodiff.Backend[B]]
}

// Config controls the training loop.
type Config[B tensor.Backend] struct {
	Epochs     int
	PrintEvery int // batches between progress lines within an epoch; 0 disables

	Scheduler Scheduler // optional; fed the epoch's running training loss
	Stopper   *EarlyStopping[*autodiff.Backend[B]]

	// RestoreBest loads the early stopper's best weights back into the
	// model once training finishes.
	RestoreBest bool
}

// forwardPass adapts one model variant to the shared loop. run produces
// class scores for a batch; reset clears any state carried between batches
// and is called at the start of each training and validation phase.
type forwardPass[B tensor.Backend] struct {
	run   func(batch data.Batch[*autodiff.Backend[B]]) *tensor.Tensor[float32, *autodiff.Backend[B]]
	reset func()
}

// forwardPassFor binds the per-variant forward before any batch runs, so
// an unsupported model fails up front instead of mid-epoch.
func forwardPassFor[B tensor.Backend](model models.Model[*autodiff.Backend[B]]) (*forwardPass[B], error) {
	switch m := model.(type) {
	case *models.RNN[*autodiff.Backend[B]]:
		// Hidden state flows across batches within a phase, detached each
		// iteration so gradients stay within one batch. A batch of a
		// different size (the last one) gets a fresh state.
		var hidden *models.Hidden[*autodiff.Backend[B]]
		return &forwardPass[B]{
			run: func(batch data.Batch[*autodiff.Backend[B]]) *tensor.Tensor[float32, *autodiff.Backend[B]] {
				if hidden == nil || hidden.H.Shape()[1] != batch.Size {
					hidden = m.InitHidden(batch.Size)
				} else {
					hidden = hidden.Detach()
				}
				var scores *tensor.Tensor[float32, *autodiff.Backend[B]]
				scores, hidden = m.Forward(batch.Seq, hidden)
				return scores
			},
			reset: func() { hidden = nil },
		}, nil

	case *models.CNN[*autodiff.Backend[B]]:
		return &forwardPass[B]{
			run: func(batch data.Batch[*autodiff.Backend[B]]) *tensor.Tensor[float32, *autodiff.Backend[B]] {
				return m.Forward(batch.Seq)
			},
			reset: func() {},
		}, nil

	case *models.TransformerClassifier[*autodiff.Backend[B]]:
		return &forwardPass[B]{
			run: func(batch data.Batch[*autodiff.Backend[B]]) *tensor.Tensor[float32, *autodiff.Backend[B]] {
				scores, _ := m.Forward(batch.Seq, batch.Mask)
				return scores
			},
			reset: func() {},
		}, nil

	default:
		return nil, fmt.Errorf("cannot train %T: %w", model, models.ErrUnknownVariant)
	}
}

// Train runs the full loop: for each epoch an optimization pass over the
// training batches, a scheduler step on the running loss, a validation
// pass, and an early-stopping check. It returns the per-epoch history.
func Train[B tensor.Backend](
	model models.Model[*autodiff.Backend[B]],
	trainLoader *data.Loader[*autodiff.Backend[B]],
	validationLoader *data.Loader[*autodiff.Backend[B]],
	criterion Criterion[B],
	optimizer optim.Optimizer,
	config Config[B],
	backend *autodiff.Backend[B],
) (*History, error) {
	if config.Epochs <= 0 {
		return nil, fmt.Errorf("epochs must be positive, got %d", config.Epochs)
	}

	pass, err := forwardPassFor(model)
	if err != nil {
		return nil, err
	}

	backend.Tape().StartRecording()
	defer func() {
		backend.Tape().Clear()
		backend.Tape().StopRecording()
	}()

	history := &History{}

	for epoch := 0; epoch < config.Epochs; epoch++ {
		model.SetTraining(true)
		pass.reset()

		batches := trainLoader.Batches()
		runningLoss := float32(0)
		accSum := float32(0)

		for it, batch := range batches {
			optimizer.ZeroGrad()

			scores := pass.run(batch)
			loss := criterion.Forward(scores, batch.Labels)
			lossValue := loss.Raw().AsFloat32()[0]

			// Seed gradient of ones for the scalar loss.
			outputGrad, err := tensor.NewRaw(loss.Shape(), loss.DType(), backend.Device())
			if err != nil {
				return history, fmt.Errorf("failed to allocate output gradient: %w", err)
			}
			outputGrad.AsFloat32()[0] = 1.0

			grads := backend.Tape().Backward(outputGrad, backend)
			optimizer.Step(grads)

			runningLoss += lossValue
			accSum += nn.Accuracy(scores, batch.Labels)

			backend.Tape().Clear()

			if config.PrintEvery > 0 && (it+1)%config.PrintEvery == 0 {
				fmt.Printf("Epoch %d/%d - batch %d/%d - loss: %.4f\n",
					epoch+1, config.Epochs, it+1, len(batches), lossValue)
			}
		}

		// Epoch means divide by the last batch index, not the batch count.
		divisor := float32(len(batches) - 1)
		trainLoss := runningLoss / divisor
		trainAcc := accSum / divisor

		if config.Scheduler != nil {
			// The scheduler sees the running loss, summed over batches.
			config.Scheduler.Step(runningLoss)
		}

		valLoss, valAcc := validate(model, pass, validationLoader, criterion, backend)

		history.append(trainLoss, trainAcc, valLoss, valAcc)

		fmt.Printf("Epoch %d/%d - loss: %.4f - acc: %.4f - val_loss: %.4f - val_acc: %.4f - lr: %g\n",
			epoch+1, config.Epochs, trainLoss, trainAcc, valLoss, valAcc, optimizer.GetLR())

		if config.Stopper != nil {
			stop, err := config.Stopper.Observe(valLoss, model)
			if err != nil {
				return history, err
			}
			if stop {
				fmt.Printf("Early stopping after epoch %d\n", epoch+1)
				break
			}
		}
	}

	if config.Stopper != nil && config.RestoreBest {
		if err := config.Stopper.RestoreBest(model); err != nil {
			return history, fmt.Errorf("failed to restore best weights: %w", err)
		}
	}

	return history, nil
}

// validate runs a forward-only pass with gradient recording off.
func validate[B tensor.Backend](
	model models.Model[*autodiff.Backend[B]],
	pass *forwardPass[B],
	loader *data.Loader[*autodiff.Backend[B]],
	criterion Criterion[B],
	backend *autodiff.Backend[B],
) (avgLoss, avgAccuracy float32) {
	model.SetTraining(false)
	pass.reset()

	wasRecording := backend.Tape().IsRecording()
	backend.Tape().StopRecording()
	defer func() {
		model.SetTraining(true)
		if wasRecording {
			backend.Tape().StartRecording()
		}
	}()

	batches := loader.Batches()
	totalLoss := float32(0)
	accSum := float32(0)

	for _, batch := range batches {
		scores := pass.run(batch)
		loss := criterion.Forward(scores, batch.Labels)

		totalLoss += loss.Raw().AsFloat32()[0]
		accSum += nn.Accuracy(scores, batch.Labels)
	}

	n := float32(len(batches))
	return totalLoss / n, accSum / n
}
