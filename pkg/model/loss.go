package model

import (
	"errors"
	"fmt"
	"math"
)

const (
	LossMSE = "mse"
	LossBCE = "bce"
)

const bceEpsilon = 1e-12

var ErrUnknownLoss = errors.New("unknown loss function")

// Loss is a pure function of (target, prediction) for a single sample.
type Loss interface {
	Name() string
	Value(target, pred []float64) float64
	// Grad returns dLoss/dPred.
	Grad(target, pred []float64) []float64
}

func LossByName(name string) (Loss, error) {
	switch name {
	case LossMSE:
		return mse{}, nil
	case LossBCE:
		return bce{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownLoss, name)
	}
}

type mse struct{}

func (mse) Name() string { return LossMSE }

func (mse) Value(target, pred []float64) float64 {
	var sum float64
	for i := range pred {
		d := pred[i] - target[i]
		sum += d * d
	}

	return sum / float64(len(pred))
}

func (mse) Grad(target, pred []float64) []float64 {
	g := make([]float64, len(pred))
	n := float64(len(pred))
	for i := range pred {
		g[i] = 2 * (pred[i] - target[i]) / n
	}

	return g
}

// bce expects predictions in (0, 1), typically from a sigmoid output layer.
type bce struct{}

func (bce) Name() string { return LossBCE }

func (bce) Value(target, pred []float64) float64 {
	var sum float64
	for i := range pred {
		p := clamp(pred[i])
		sum -= target[i]*math.Log(p) + (1-target[i])*math.Log(1-p)
	}

	return sum / float64(len(pred))
}

func (bce) Grad(target, pred []float64) []float64 {
	g := make([]float64, len(pred))
	n := float64(len(pred))
	for i := range pred {
		p := clamp(pred[i])
		g[i] = (p - target[i]) / (p * (1 - p)) / n
	}

	return g
}

func clamp(p float64) float64 {
	return math.Min(math.Max(p, bceEpsilon), 1-bceEpsilon)
}
