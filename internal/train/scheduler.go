package train

import "fmt"

// LROptimizer is an optimizer whose learning rate can be adjusted between
// epochs. Both optim.Adam and optim.SGD satisfy it.
type LROptimizer interface {
	GetLR() float32
	SetLR(lr float32)
}

// Scheduler adjusts the learning rate from a per-epoch metric. The trainer
// feeds it the running (unnormalized) training loss once per epoch.
type Scheduler interface {
	Step(metric float32)
}

// ReduceLROnPlateau multiplies the learning rate by Factor after the
// metric has failed to improve for Patience consecutive epochs.
type ReduceLROnPlateau struct {
	optimizer LROptimizer
	factor    float32
	patience  int
	minLR     float32

	best    float32
	hasBest bool
	counter int
}

// NewReduceLROnPlateau creates a plateau scheduler. factor must be in
// (0, 1); minLR is the floor below which the rate is never reduced.
func NewReduceLROnPlateau(optimizer LROptimizer, factor float32, patience int, minLR float32) *ReduceLROnPlateau {
	if factor <= 0 || factor >= 1 {
		panic(fmt.Sprintf("ReduceLROnPlateau: factor out of range (0, 1): %g", factor))
	}
	if patience < 0 {
		panic(fmt.Sprintf("ReduceLROnPlateau: negative patience: %d", patience))
	}

	return &ReduceLROnPlateau{
		optimizer: optimizer,
		factor:    factor,
		patience:  patience,
		minLR:     minLR,
	}
}

// Step observes one epoch's metric and reduces the learning rate when the
// metric has plateaued.
func (s *ReduceLROnPlateau) Step(metric float32) {
	if !s.hasBest || metric < s.best {
		s.best = metric
		s.hasBest = true
		s.counter = 0
		return
	}

	s.counter++
	if s.counter <= s.patience {
		return
	}

	lr := s.optimizer.GetLR() * s.factor
	if lr < s.minLR {
		lr = s.minLR
	}
	s.optimizer.SetLR(lr)
	s.counter = 0
}
