package dataset

// Sample dataset keys seeded by workers started with sample data enabled.
const (
	XOR    = "xor"
	Linear = "linear"
)

const linearRows = 64

// Samples returns the built-in datasets.
func Samples() []*Dataset {
	return []*Dataset{xorDataset(), linearDataset()}
}

func xorDataset() *Dataset {
	return &Dataset{
		Key:      XOR,
		Features: [][]float64{{0, 0}, {0, 1}, {1, 0}, {1, 1}},
		Targets:  [][]float64{{0}, {1}, {1}, {0}},
	}
}

// linearDataset samples y = 2a - b + 0.5 on a deterministic grid.
func linearDataset() *Dataset {
	d := &Dataset{
		Key:      Linear,
		Features: make([][]float64, linearRows),
		Targets:  make([][]float64, linearRows),
	}
	for i := range linearRows {
		a := float64(i%10) / 10.0
		b := float64((i*3)%7) / 7.0
		d.Features[i] = []float64{a, b}
		d.Targets[i] = []float64{2*a - b + 0.5}
	}

	return d
}
