package fl

import (
	"fmt"

	"github.com/absmach/fltrain/pkg/model"
)

type fedAvg struct{}

var _ Aggregator = (*fedAvg)(nil)

// NewFedAvgAggregator averages parameters weighted by NumSamples. Updates
// reporting no samples count once so evaluation-only rounds still average.
func NewFedAvgAggregator() Aggregator {
	return &fedAvg{}
}

func (fedAvg) Aggregate(updates []Update) (*model.Model, error) {
	if len(updates) == 0 {
		return nil, ErrNoUpdates
	}

	base := updates[0].Model
	if base == nil {
		return nil, fmt.Errorf("%w: update from '%s' has no model", ErrIncompatibleUpdate, updates[0].WorkerID)
	}
	for _, u := range updates[1:] {
		if !sameShape(base, u.Model) {
			return nil, fmt.Errorf("%w: update from '%s'", ErrIncompatibleUpdate, u.WorkerID)
		}
	}

	out := base.Clone()
	for _, l := range out.Layers {
		for o := range l.Weights {
			clear(l.Weights[o])
		}
		clear(l.Bias)
	}

	var total float64
	for _, u := range updates {
		w := float64(max(u.NumSamples, 1))
		total += w
		for i, l := range u.Model.Layers {
			ol := out.Layers[i]
			for o, row := range l.Weights {
				for j, v := range row {
					ol.Weights[o][j] += w * v
				}
				ol.Bias[o] += w * l.Bias[o]
			}
		}
	}

	for _, l := range out.Layers {
		for o, row := range l.Weights {
			for j := range row {
				row[j] /= total
			}
			l.Bias[o] /= total
		}
	}

	return out, nil
}

func sameShape(a, b *model.Model) bool {
	if b == nil || len(a.Layers) != len(b.Layers) {
		return false
	}
	for i, l := range a.Layers {
		ol := b.Layers[i]
		if l.Activation != ol.Activation || len(l.Weights) != len(ol.Weights) || len(l.Bias) != len(ol.Bias) {
			return false
		}
		for o := range l.Weights {
			if len(l.Weights[o]) != len(ol.Weights[o]) {
				return false
			}
		}
	}

	return true
}
