package trainconfig

import (
	"fmt"

	pkgerrors "github.com/absmach/fltrain/pkg/errors"
	"github.com/absmach/fltrain/pkg/model"
)

// NoBatchLimit disables the per-pass batch cap.
const NoBatchLimit = -1

type Hyperparams struct {
	BatchSize    int     `json:"batch_size" toml:"batch_size"`
	LearningRate float64 `json:"lr" toml:"lr"`
	Epochs       int     `json:"epochs" toml:"epochs"`
	MaxNrBatches int     `json:"max_nr_batches" toml:"max_nr_batches"`
	Shuffle      bool    `json:"shuffle" toml:"shuffle"`
	Momentum     float64 `json:"momentum,omitempty" toml:"momentum"`
}

// DefaultHyperparams matches a single full pass of plain SGD.
func DefaultHyperparams() Hyperparams {
	return Hyperparams{
		BatchSize:    32,
		LearningRate: 0.1,
		Epochs:       1,
		MaxNrBatches: NoBatchLimit,
		Shuffle:      true,
	}
}

func (h Hyperparams) Validate() error {
	if h.BatchSize <= 0 {
		return fmt.Errorf("hyperparams: batch_size must be positive, got %d: %w", h.BatchSize, pkgerrors.ErrInvalidConfig)
	}
	if h.LearningRate <= 0 {
		return fmt.Errorf("hyperparams: lr must be positive, got %g: %w", h.LearningRate, pkgerrors.ErrInvalidConfig)
	}
	if h.Epochs < 0 {
		return fmt.Errorf("hyperparams: epochs must not be negative, got %d: %w", h.Epochs, pkgerrors.ErrInvalidConfig)
	}
	if h.MaxNrBatches != NoBatchLimit && h.MaxNrBatches <= 0 {
		return fmt.Errorf("hyperparams: max_nr_batches must be positive or %d, got %d: %w", NoBatchLimit, h.MaxNrBatches, pkgerrors.ErrInvalidConfig)
	}
	if h.Momentum < 0 || h.Momentum >= 1 {
		return fmt.Errorf("hyperparams: momentum must be in [0, 1), got %g: %w", h.Momentum, pkgerrors.ErrInvalidConfig)
	}

	return nil
}

// TrainConfig bundles everything a worker needs to train a model. Model is
// the encoded form produced by model.Encode, Loss and Optimizer are registry
// names understood by the worker.
type TrainConfig struct {
	Model       []byte      `json:"model"`
	Loss        string      `json:"loss"`
	Optimizer   string      `json:"optimizer"`
	Hyperparams Hyperparams `json:"hyperparams"`
}

func New(encodedModel []byte, loss, optimizer string, hp Hyperparams) (TrainConfig, error) {
	cfg := TrainConfig{
		Model:       append([]byte(nil), encodedModel...),
		Loss:        loss,
		Optimizer:   optimizer,
		Hyperparams: hp,
	}
	if err := cfg.Validate(); err != nil {
		return TrainConfig{}, err
	}

	return cfg, nil
}

// Validate checks that required fields are present. The model bytes are
// only decoded by the worker.
func (c TrainConfig) Validate() error {
	if len(c.Model) == 0 {
		return fmt.Errorf("train config: model is required but missing: %w", pkgerrors.ErrInvalidConfig)
	}
	if c.Loss == "" {
		return fmt.Errorf("train config: loss is required but missing: %w", pkgerrors.ErrInvalidConfig)
	}
	if c.Optimizer == "" {
		return fmt.Errorf("train config: optimizer is required but missing: %w", pkgerrors.ErrInvalidConfig)
	}
	if !model.ValidOptimizer(c.Optimizer) {
		return fmt.Errorf("train config: unknown optimizer '%s': %w", c.Optimizer, pkgerrors.ErrInvalidConfig)
	}

	return c.Hyperparams.Validate()
}
