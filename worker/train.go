package worker

import (
	"context"
	"fmt"
	"math"

	"github.com/absmach/fltrain/pkg/dataset"
	pkgerrors "github.com/absmach/fltrain/pkg/errors"
	"github.com/absmach/fltrain/trainconfig"
)

// fit runs hp.Epochs passes over d, each optionally shuffled and capped at
// hp.MaxNrBatches mini-batches. The reported loss is the mean batch loss of
// the last pass. With zero epochs the dataset is only evaluated.
// A non-finite batch loss stops the fit before the optimizer applies it.
// Callers must hold e.mu.
func fit(ctx context.Context, e *entry, d *dataset.Dataset) (FitResult, error) {
	info := d.Info()
	if info.Features != e.model.InputSize() || info.Targets != e.model.OutputSize() {
		return FitResult{}, fmt.Errorf("dataset '%s' is %dx%d, model is %dx%d: %w",
			d.Key, info.Features, info.Targets, e.model.InputSize(), e.model.OutputSize(), pkgerrors.ErrShapeMismatch)
	}

	if e.hp.Epochs == 0 {
		loss, err := e.model.Evaluate(d.Features, d.Targets, e.loss)
		if err != nil {
			return FitResult{}, err
		}
		if !finite(loss) {
			return FitResult{}, fmt.Errorf("evaluating '%s': loss is %v: %w", d.Key, loss, pkgerrors.ErrDiverged)
		}

		return FitResult{Loss: loss}, nil
	}

	order := make([]int, d.Len())
	for i := range order {
		order[i] = i
	}

	var res FitResult
	for range e.hp.Epochs {
		if err := ctx.Err(); err != nil {
			return FitResult{}, err
		}

		if e.hp.Shuffle {
			e.rng.Shuffle(len(order), func(i, j int) {
				order[i], order[j] = order[j], order[i]
			})
		}

		var sum float64
		batches := 0
		for start := 0; start < len(order); start += e.hp.BatchSize {
			if e.hp.MaxNrBatches != trainconfig.NoBatchLimit && batches >= e.hp.MaxNrBatches {
				break
			}

			end := min(start+e.hp.BatchSize, len(order))
			xs := make([][]float64, 0, end-start)
			ys := make([][]float64, 0, end-start)
			for _, i := range order[start:end] {
				xs = append(xs, d.Features[i])
				ys = append(ys, d.Targets[i])
			}

			grads, loss, err := e.model.Gradients(xs, ys, e.loss)
			if err != nil {
				return FitResult{}, err
			}
			if !finite(loss) {
				return FitResult{}, fmt.Errorf("training on '%s', batch %d: loss is %v: %w", d.Key, batches, loss, pkgerrors.ErrDiverged)
			}
			e.optimizer.Step(e.model, grads)

			sum += loss
			batches++
			res.Samples += end - start
		}

		res.Batches += batches
		res.Loss = sum / float64(batches)
		if !finite(res.Loss) {
			return FitResult{}, fmt.Errorf("training on '%s': mean loss is %v: %w", d.Key, res.Loss, pkgerrors.ErrDiverged)
		}
	}

	return res, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
