package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/absmach/fltrain/pkg/dataset"
	pkgerrors "github.com/absmach/fltrain/pkg/errors"
)

type Response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
}

func NewResult(id uint64, result any) (Response, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return Response{}, fmt.Errorf("failed to encode result: %w", err)
	}

	return Response{ID: id, Result: data}, nil
}

func NewError(id uint64, err error) Response {
	return Response{ID: id, Error: err.Error(), Code: pkgerrors.Code(err)}
}

// Err rebuilds the remote error so that errors.Is matches the sentinel the
// worker reported.
func (r Response) Err() error {
	if r.Error == "" && r.Code == "" {
		return nil
	}

	return fmt.Errorf("%w: %s", pkgerrors.FromCode(r.Code), r.Error)
}

func (r Response) DecodeResult(v any) error {
	if err := r.Err(); err != nil {
		return err
	}
	if err := json.Unmarshal(r.Result, v); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}

	return nil
}

type RegisterResult struct {
	Handle string `json:"handle"`
}

type FitResult struct {
	Loss    float64 `json:"loss"`
	Batches int     `json:"batches"`
	Samples int     `json:"samples"`
}

type ModelResult struct {
	Model []byte `json:"model"`
}

type ReleaseResult struct {
	Released bool `json:"released"`
}

type DatasetsResult struct {
	WorkerID string         `json:"worker_id"`
	Datasets []dataset.Info `json:"datasets"`
}
