package trainconfig

import (
	"errors"
	"testing"

	pkgerrors "github.com/absmach/fltrain/pkg/errors"
	"github.com/absmach/fltrain/pkg/model"
)

func TestNew(t *testing.T) {
	encoded := []byte{0xa1}

	tests := []struct {
		name      string
		model     []byte
		loss      string
		optimizer string
		hp        func(h *Hyperparams)
		wantErr   bool
	}{
		{
			name:      "defaults",
			model:     encoded,
			loss:      model.LossMSE,
			optimizer: model.OptimizerSGD,
		},
		{
			name:      "zero epochs evaluates only",
			model:     encoded,
			loss:      model.LossBCE,
			optimizer: model.OptimizerAdam,
			hp:        func(h *Hyperparams) { h.Epochs = 0 },
		},
		{
			name:      "batch cap",
			model:     encoded,
			loss:      model.LossMSE,
			optimizer: model.OptimizerSGD,
			hp:        func(h *Hyperparams) { h.MaxNrBatches = 5 },
		},
		{
			name:      "missing model",
			loss:      model.LossMSE,
			optimizer: model.OptimizerSGD,
			wantErr:   true,
		},
		{
			name:      "missing loss",
			model:     encoded,
			optimizer: model.OptimizerSGD,
			wantErr:   true,
		},
		{
			name:    "missing optimizer",
			model:   encoded,
			loss:    model.LossMSE,
			wantErr: true,
		},
		{
			name:      "unknown optimizer",
			model:     encoded,
			loss:      model.LossMSE,
			optimizer: "LBFGS",
			wantErr:   true,
		},
		{
			name:      "zero batch size",
			model:     encoded,
			loss:      model.LossMSE,
			optimizer: model.OptimizerSGD,
			hp:        func(h *Hyperparams) { h.BatchSize = 0 },
			wantErr:   true,
		},
		{
			name:      "negative learning rate",
			model:     encoded,
			loss:      model.LossMSE,
			optimizer: model.OptimizerSGD,
			hp:        func(h *Hyperparams) { h.LearningRate = -0.1 },
			wantErr:   true,
		},
		{
			name:      "negative epochs",
			model:     encoded,
			loss:      model.LossMSE,
			optimizer: model.OptimizerSGD,
			hp:        func(h *Hyperparams) { h.Epochs = -1 },
			wantErr:   true,
		},
		{
			name:      "zero batch cap",
			model:     encoded,
			loss:      model.LossMSE,
			optimizer: model.OptimizerSGD,
			hp:        func(h *Hyperparams) { h.MaxNrBatches = 0 },
			wantErr:   true,
		},
		{
			name:      "momentum out of range",
			model:     encoded,
			loss:      model.LossMSE,
			optimizer: model.OptimizerSGD,
			hp:        func(h *Hyperparams) { h.Momentum = 1 },
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hp := DefaultHyperparams()
			if tt.hp != nil {
				tt.hp(&hp)
			}

			cfg, err := New(tt.model, tt.loss, tt.optimizer, hp)
			if tt.wantErr {
				if !errors.Is(err, pkgerrors.ErrInvalidConfig) {
					t.Fatalf("Expected ErrInvalidConfig, got %v", err)
				}

				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if cfg.Hyperparams != hp {
				t.Errorf("Expected hyperparams %+v, got %+v", hp, cfg.Hyperparams)
			}
		})
	}
}

func TestNewCopiesModel(t *testing.T) {
	encoded := []byte{1, 2, 3}
	cfg, err := New(encoded, model.LossMSE, model.OptimizerSGD, DefaultHyperparams())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	encoded[0] = 9
	if cfg.Model[0] != 1 {
		t.Error("TrainConfig shares the caller's model buffer")
	}
}
