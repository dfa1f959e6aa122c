package model

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Encode serializes m into its CBOR wire form.
func Encode(m *Model) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	data, err := cbor.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode model: %w", err)
	}

	return data, nil
}

// Decode parses a serialized model and validates its architecture.
func Decode(data []byte) (*Model, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidModel)
	}

	var m Model
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}
