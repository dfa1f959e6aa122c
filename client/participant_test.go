package client

import (
	"context"
	"testing"

	"github.com/absmach/fltrain/pkg/dataset"
	"github.com/absmach/fltrain/pkg/fl"
	"github.com/absmach/fltrain/pkg/model"
	"github.com/absmach/fltrain/trainconfig"
)

func TestFederatedRound(t *testing.T) {
	ctx := context.Background()
	initial, _ := linearConfig(t)

	hp := trainconfig.DefaultHyperparams()
	hp.BatchSize = 16
	hp.LearningRate = 0.05

	var participants []fl.Participant
	for range 2 {
		_, cfg := startWorker(t, "")
		participants = append(participants, &Participant{
			Client:      connect(t, cfg),
			DatasetKey:  dataset.Linear,
			Loss:        model.LossMSE,
			Optimizer:   model.OptimizerSGD,
			Hyperparams: hp,
			Iterations:  3,
		})
	}

	c := fl.NewCoordinator(nil, 0, testLogger())

	global := initial
	var losses []float64
	for n := range 5 {
		next, round, err := c.RunRound(ctx, n+1, global, participants)
		if err != nil {
			t.Fatalf("Unexpected round error: %v", err)
		}
		if len(round.Updates) != 2 {
			t.Fatalf("Expected 2 updates, got %d", len(round.Updates))
		}
		for _, u := range round.Updates {
			if u.NumSamples != 3*64 {
				t.Errorf("Expected %d samples from %s, got %d", 3*64, u.WorkerID, u.NumSamples)
			}
		}
		losses = append(losses, round.Loss)
		global = next
	}

	if losses[len(losses)-1] >= losses[0] {
		t.Errorf("Expected round loss to decrease, got first %f last %f", losses[0], losses[len(losses)-1])
	}
	if global.Equal(initial) {
		t.Error("Expected the aggregated model to differ from the initial one")
	}
}
