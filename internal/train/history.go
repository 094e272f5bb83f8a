// Package train runs the shared training loop over the classifier
// variants: per-epoch optimization, validation, learning-rate scheduling
// and early stopping.
package train

// History records per-epoch metrics for completed epochs. All slices have
// the same length; training stopped early when it is below the configured
// epoch count.
type History struct {
	TrainLoss          []float32
	TrainAccuracy      []float32
	ValidationLoss     []float32
	ValidationAccuracy []float32
}

func (h *History) append(trainLoss, trainAcc, valLoss, valAcc float32) {
	h.TrainLoss = append(h.TrainLoss, trainLoss)
	h.TrainAccuracy = append(h.TrainAccuracy, trainAcc)
	h.ValidationLoss = append(h.ValidationLoss, valLoss)
	h.ValidationAccuracy = append(h.ValidationAccuracy, valAcc)
}

// Epochs returns the number of completed epochs.
func (h *History) Epochs() int {
	return len(h.TrainLoss)
}
