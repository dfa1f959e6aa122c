package model

import "fmt"

// Grads mirrors the parameter layout of a Model.
type Grads struct {
	Weights [][][]float64
	Bias    [][]float64
}

func zeroGrads(m *Model) Grads {
	g := Grads{
		Weights: make([][][]float64, len(m.Layers)),
		Bias:    make([][]float64, len(m.Layers)),
	}
	for i, l := range m.Layers {
		g.Weights[i] = make([][]float64, len(l.Weights))
		for o, row := range l.Weights {
			g.Weights[i][o] = make([]float64, len(row))
		}
		g.Bias[i] = make([]float64, len(l.Bias))
	}

	return g
}

// Gradients averages the loss gradient over a batch and returns it together
// with the mean batch loss.
func (m *Model) Gradients(inputs, targets [][]float64, loss Loss) (Grads, float64, error) {
	if len(inputs) == 0 || len(inputs) != len(targets) {
		return Grads{}, 0, fmt.Errorf("%w: batch has %d inputs and %d targets", ErrInputSize, len(inputs), len(targets))
	}

	g := zeroGrads(m)
	var total float64

	for s := range inputs {
		if len(inputs[s]) != m.InputSize() {
			return Grads{}, 0, fmt.Errorf("%w: sample %d has %d features, model takes %d", ErrInputSize, s, len(inputs[s]), m.InputSize())
		}
		if len(targets[s]) != m.OutputSize() {
			return Grads{}, 0, fmt.Errorf("%w: sample %d has %d targets, model yields %d", ErrInputSize, s, len(targets[s]), m.OutputSize())
		}

		outs := m.activations(inputs[s])
		pred := outs[len(outs)-1]
		total += loss.Value(targets[s], pred)

		delta := loss.Grad(targets[s], pred)
		for i := len(m.Layers) - 1; i >= 0; i-- {
			l := m.Layers[i]
			out, in := outs[i+1], outs[i]
			for o := range delta {
				delta[o] *= l.Activation.derivative(out[o])
			}

			prev := make([]float64, len(in))
			for o, row := range l.Weights {
				g.Bias[i][o] += delta[o]
				for j, w := range row {
					g.Weights[i][o][j] += delta[o] * in[j]
					prev[j] += w * delta[o]
				}
			}
			delta = prev
		}
	}

	n := float64(len(inputs))
	for i := range g.Weights {
		for o := range g.Weights[i] {
			g.Bias[i][o] /= n
			for j := range g.Weights[i][o] {
				g.Weights[i][o][j] /= n
			}
		}
	}

	return g, total / n, nil
}

// Evaluate returns the mean loss over the given samples without touching the
// parameters.
func (m *Model) Evaluate(inputs, targets [][]float64, loss Loss) (float64, error) {
	if len(inputs) == 0 || len(inputs) != len(targets) {
		return 0, fmt.Errorf("%w: %d inputs and %d targets", ErrInputSize, len(inputs), len(targets))
	}

	var total float64
	for s := range inputs {
		pred, err := m.Forward(inputs[s])
		if err != nil {
			return 0, err
		}
		if len(targets[s]) != len(pred) {
			return 0, fmt.Errorf("%w: sample %d has %d targets, model yields %d", ErrInputSize, s, len(targets[s]), len(pred))
		}
		total += loss.Value(targets[s], pred)
	}

	return total / float64(len(inputs)), nil
}
