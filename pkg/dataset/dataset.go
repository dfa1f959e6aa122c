package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	pkgerrors "github.com/absmach/fltrain/pkg/errors"
)

const fileExt = ".json"

// Dataset is a named table of samples held privately by a worker.
type Dataset struct {
	Key      string      `json:"key"`
	Features [][]float64 `json:"features"`
	Targets  [][]float64 `json:"targets"`
}

type Info struct {
	Key      string `json:"key"`
	Size     int    `json:"size"`
	Features int    `json:"features"`
	Targets  int    `json:"targets"`
}

func (d *Dataset) Len() int {
	return len(d.Features)
}

func (d *Dataset) Info() Info {
	info := Info{Key: d.Key, Size: d.Len()}
	if d.Len() > 0 {
		info.Features = len(d.Features[0])
		info.Targets = len(d.Targets[0])
	}

	return info
}

// Validate checks that every row has the same feature and target widths.
func (d *Dataset) Validate() error {
	if d.Key == "" {
		return fmt.Errorf("dataset validation: key is required but missing: %w", pkgerrors.ErrInvalidData)
	}
	if d.Len() == 0 {
		return fmt.Errorf("dataset validation: '%s' is empty: %w", d.Key, pkgerrors.ErrInvalidData)
	}
	if len(d.Targets) != len(d.Features) {
		return fmt.Errorf("dataset validation: '%s' has %d feature rows and %d target rows: %w", d.Key, len(d.Features), len(d.Targets), pkgerrors.ErrInvalidData)
	}

	nf, nt := len(d.Features[0]), len(d.Targets[0])
	for i := range d.Features {
		if len(d.Features[i]) != nf || len(d.Targets[i]) != nt {
			return fmt.Errorf("dataset validation: '%s' row %d has inconsistent width: %w", d.Key, i, pkgerrors.ErrInvalidData)
		}
	}

	return nil
}

// Store keeps datasets in memory keyed by their unique name.
type Store struct {
	mu       sync.RWMutex
	datasets map[string]*Dataset
}

func NewStore() *Store {
	return &Store{datasets: make(map[string]*Dataset)}
}

func (s *Store) Add(d *Dataset) error {
	if err := d.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.datasets[d.Key] = d

	return nil
}

func (s *Store) Get(key string) (*Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.datasets[key]
	if !ok {
		return nil, fmt.Errorf("dataset '%s': %w", key, pkgerrors.ErrDatasetNotFound)
	}

	return d, nil
}

// List returns dataset descriptions sorted by key.
func (s *Store) List() []Info {
	s.mu.RLock()
	infos := make([]Info, 0, len(s.datasets))
	for _, d := range s.datasets {
		infos = append(infos, d.Info())
	}
	s.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })

	return infos
}

// LoadDir adds every <key>.json file found in dir. The file name wins over
// any key stored inside the file.
func (s *Store) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read data directory: %w", err)
	}

	loaded := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != fileExt {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return loaded, fmt.Errorf("failed to read dataset file '%s': %w", e.Name(), err)
		}

		var d Dataset
		if err := json.Unmarshal(data, &d); err != nil {
			return loaded, fmt.Errorf("invalid dataset file '%s': %w", e.Name(), err)
		}
		d.Key = strings.TrimSuffix(e.Name(), fileExt)

		if err := s.Add(&d); err != nil {
			return loaded, err
		}
		loaded++
	}

	return loaded, nil
}
