// Package model implements the small dense feed-forward networks that workers
// train on behalf of a coordinator, together with their losses, optimizers
// and the versioned wire encoding.
package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// Version1 is the only model encoding version understood by this package.
const Version1 = "model.v1"

var (
	ErrInvalidModel       = errors.New("invalid model")
	ErrUnsupportedVersion = errors.New("unsupported model version")
	ErrInputSize          = errors.New("input size mismatch")
)

type Activation string

const (
	Identity Activation = "identity"
	ReLU     Activation = "relu"
	Sigmoid  Activation = "sigmoid"
	Tanh     Activation = "tanh"
)

func (a Activation) valid() bool {
	switch a {
	case Identity, ReLU, Sigmoid, Tanh:
		return true
	default:
		return false
	}
}

func (a Activation) apply(z float64) float64 {
	switch a {
	case ReLU:
		return math.Max(0, z)
	case Sigmoid:
		return 1 / (1 + math.Exp(-z))
	case Tanh:
		return math.Tanh(z)
	default:
		return z
	}
}

// derivative is expressed in terms of the activation output y.
func (a Activation) derivative(y float64) float64 {
	switch a {
	case ReLU:
		if y > 0 {
			return 1
		}

		return 0
	case Sigmoid:
		return y * (1 - y)
	case Tanh:
		return 1 - y*y
	default:
		return 1
	}
}

// Layer is a fully connected layer. Weights has one row per output unit.
type Layer struct {
	Weights    [][]float64 `cbor:"w" json:"weights"`
	Bias       []float64   `cbor:"b" json:"bias"`
	Activation Activation  `cbor:"act" json:"activation"`
}

func (l Layer) inputs() int {
	if len(l.Weights) == 0 {
		return 0
	}

	return len(l.Weights[0])
}

func (l Layer) outputs() int {
	return len(l.Weights)
}

type Model struct {
	Version string  `cbor:"version" json:"version"`
	Layers  []Layer `cbor:"layers" json:"layers"`
}

// New builds a randomly initialised network. sizes lists the width of every
// layer including the input, so len(activations) must be len(sizes)-1.
func New(sizes []int, activations []Activation, rng *rand.Rand) (*Model, error) {
	if len(sizes) < 2 {
		return nil, fmt.Errorf("%w: need at least input and output sizes, got %d", ErrInvalidModel, len(sizes))
	}
	if len(activations) != len(sizes)-1 {
		return nil, fmt.Errorf("%w: %d layers need %d activations, got %d", ErrInvalidModel, len(sizes)-1, len(sizes)-1, len(activations))
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	m := &Model{Version: Version1, Layers: make([]Layer, 0, len(sizes)-1)}
	for i := 1; i < len(sizes); i++ {
		in, out := sizes[i-1], sizes[i]
		if in <= 0 || out <= 0 {
			return nil, fmt.Errorf("%w: layer sizes must be positive, got %d -> %d", ErrInvalidModel, in, out)
		}

		// Glorot uniform.
		limit := math.Sqrt(6 / float64(in+out))
		l := Layer{
			Weights:    make([][]float64, out),
			Bias:       make([]float64, out),
			Activation: activations[i-1],
		}
		for o := range out {
			l.Weights[o] = make([]float64, in)
			for j := range in {
				l.Weights[o][j] = (rng.Float64()*2 - 1) * limit
			}
		}
		m.Layers = append(m.Layers, l)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return m, nil
}

// Validate checks that every layer is internally consistent and chains onto
// the previous one.
func (m *Model) Validate() error {
	if m == nil || len(m.Layers) == 0 {
		return fmt.Errorf("%w: no layers", ErrInvalidModel)
	}
	if m.Version != Version1 {
		return fmt.Errorf("%w: %q", ErrUnsupportedVersion, m.Version)
	}

	for i, l := range m.Layers {
		if !l.Activation.valid() {
			return fmt.Errorf("%w: layer %d has unknown activation %q", ErrInvalidModel, i, l.Activation)
		}
		if l.outputs() == 0 || l.inputs() == 0 {
			return fmt.Errorf("%w: layer %d is empty", ErrInvalidModel, i)
		}
		if len(l.Bias) != l.outputs() {
			return fmt.Errorf("%w: layer %d has %d biases for %d outputs", ErrInvalidModel, i, len(l.Bias), l.outputs())
		}
		for o, row := range l.Weights {
			if len(row) != l.inputs() {
				return fmt.Errorf("%w: layer %d row %d has %d weights, expected %d", ErrInvalidModel, i, o, len(row), l.inputs())
			}
		}
		if i > 0 && l.inputs() != m.Layers[i-1].outputs() {
			return fmt.Errorf("%w: layer %d expects %d inputs but layer %d yields %d", ErrInvalidModel, i, l.inputs(), i-1, m.Layers[i-1].outputs())
		}
	}

	return nil
}

func (m *Model) InputSize() int {
	return m.Layers[0].inputs()
}

func (m *Model) OutputSize() int {
	return m.Layers[len(m.Layers)-1].outputs()
}

// Forward evaluates the network on a single sample.
func (m *Model) Forward(x []float64) ([]float64, error) {
	if len(x) != m.InputSize() {
		return nil, fmt.Errorf("%w: model takes %d features, got %d", ErrInputSize, m.InputSize(), len(x))
	}

	outs := m.activations(x)

	return outs[len(outs)-1], nil
}

// activations returns the input followed by the output of every layer.
func (m *Model) activations(x []float64) [][]float64 {
	outs := make([][]float64, 0, len(m.Layers)+1)
	outs = append(outs, x)

	cur := x
	for _, l := range m.Layers {
		next := make([]float64, l.outputs())
		for o, row := range l.Weights {
			z := l.Bias[o]
			for j, w := range row {
				z += w * cur[j]
			}
			next[o] = l.Activation.apply(z)
		}
		outs = append(outs, next)
		cur = next
	}

	return outs
}

func (m *Model) Clone() *Model {
	c := &Model{Version: m.Version, Layers: make([]Layer, len(m.Layers))}
	for i, l := range m.Layers {
		nl := Layer{
			Weights:    make([][]float64, len(l.Weights)),
			Bias:       append([]float64(nil), l.Bias...),
			Activation: l.Activation,
		}
		for o, row := range l.Weights {
			nl.Weights[o] = append([]float64(nil), row...)
		}
		c.Layers[i] = nl
	}

	return c
}

// Equal reports whether both models share architecture and parameters.
func (m *Model) Equal(other *Model) bool {
	if other == nil || m.Version != other.Version || len(m.Layers) != len(other.Layers) {
		return false
	}

	for i, l := range m.Layers {
		ol := other.Layers[i]
		if l.Activation != ol.Activation || len(l.Weights) != len(ol.Weights) || !equalFloats(l.Bias, ol.Bias) {
			return false
		}
		for o := range l.Weights {
			if !equalFloats(l.Weights[o], ol.Weights[o]) {
				return false
			}
		}
	}

	return true
}

func equalFloats(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
