package model

import (
	"errors"
	"fmt"
	"math"
)

const (
	OptimizerSGD  = "SGD"
	OptimizerAdam = "Adam"
)

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

var ErrUnknownOptimizer = errors.New("unknown optimizer")

// Optimizer applies gradients to a model in place. Implementations keep
// per-parameter state and must be used with a single model.
type Optimizer interface {
	Name() string
	Step(m *Model, g Grads)
}

func NewOptimizer(kind string, lr, momentum float64) (Optimizer, error) {
	switch kind {
	case OptimizerSGD:
		return &sgd{lr: lr, momentum: momentum}, nil
	case OptimizerAdam:
		return &adam{lr: lr}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOptimizer, kind)
	}
}

// ValidOptimizer reports whether kind names a known optimizer.
func ValidOptimizer(kind string) bool {
	return kind == OptimizerSGD || kind == OptimizerAdam
}

type sgd struct {
	lr       float64
	momentum float64
	velocity *Grads
}

func (o *sgd) Name() string { return OptimizerSGD }

func (o *sgd) Step(m *Model, g Grads) {
	if o.momentum == 0 {
		for i := range m.Layers {
			l := &m.Layers[i]
			for r := range l.Weights {
				for j := range l.Weights[r] {
					l.Weights[r][j] -= o.lr * g.Weights[i][r][j]
				}
				l.Bias[r] -= o.lr * g.Bias[i][r]
			}
		}

		return
	}

	if o.velocity == nil {
		v := zeroGrads(m)
		o.velocity = &v
	}

	for i := range m.Layers {
		l := &m.Layers[i]
		for r := range l.Weights {
			for j := range l.Weights[r] {
				v := &o.velocity.Weights[i][r][j]
				*v = o.momentum*(*v) + g.Weights[i][r][j]
				l.Weights[r][j] -= o.lr * (*v)
			}
			v := &o.velocity.Bias[i][r]
			*v = o.momentum*(*v) + g.Bias[i][r]
			l.Bias[r] -= o.lr * (*v)
		}
	}
}

type adam struct {
	lr   float64
	step int
	m    *Grads
	v    *Grads
}

func (o *adam) Name() string { return OptimizerAdam }

func (o *adam) Step(m *Model, g Grads) {
	if o.m == nil {
		mg, vg := zeroGrads(m), zeroGrads(m)
		o.m, o.v = &mg, &vg
	}
	o.step++

	c1 := 1 - math.Pow(adamBeta1, float64(o.step))
	c2 := 1 - math.Pow(adamBeta2, float64(o.step))
	apply := func(param, mom, vel *float64, grad float64) {
		*mom = adamBeta1*(*mom) + (1-adamBeta1)*grad
		*vel = adamBeta2*(*vel) + (1-adamBeta2)*grad*grad
		*param -= o.lr * (*mom / c1) / (math.Sqrt(*vel/c2) + adamEpsilon)
	}

	for i := range m.Layers {
		l := &m.Layers[i]
		for r := range l.Weights {
			for j := range l.Weights[r] {
				apply(&l.Weights[r][j], &o.m.Weights[i][r][j], &o.v.Weights[i][r][j], g.Weights[i][r][j])
			}
			apply(&l.Bias[r], &o.m.Bias[i][r], &o.v.Bias[i][r], g.Bias[i][r])
		}
	}
}
