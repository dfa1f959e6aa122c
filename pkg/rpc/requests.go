// Package rpc defines the JSON frames exchanged over a coordinator/worker
// websocket session.
package rpc

import (
	"encoding/json"
	"fmt"

	pkgerrors "github.com/absmach/fltrain/pkg/errors"
	"github.com/absmach/fltrain/trainconfig"
)

const (
	MethodRegister = "register"
	MethodFit      = "fit"
	MethodModel    = "model"
	MethodRelease  = "release"
	MethodDatasets = "datasets"
)

type Request struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

func NewRequest(id uint64, method string, params any) (Request, error) {
	req := Request{ID: id, Method: method}
	if params == nil {
		return req, nil
	}

	data, err := json.Marshal(params)
	if err != nil {
		return Request{}, fmt.Errorf("failed to encode %s params: %w", method, err)
	}
	req.Params = data

	return req, nil
}

func (r Request) Validate() error {
	switch r.Method {
	case MethodRegister, MethodFit, MethodModel, MethodRelease, MethodDatasets:
		return nil
	case "":
		return fmt.Errorf("rpc request: method is required but missing: %w", pkgerrors.ErrUnknownMethod)
	default:
		return fmt.Errorf("rpc request: unknown method '%s': %w", r.Method, pkgerrors.ErrUnknownMethod)
	}
}

// DecodeParams unmarshals the params into v and runs its validation when v
// implements it.
func (r Request) DecodeParams(v any) error {
	if len(r.Params) == 0 {
		return fmt.Errorf("%s: params are required but missing: %w", r.Method, pkgerrors.ErrInvalidParams)
	}
	if err := json.Unmarshal(r.Params, v); err != nil {
		return fmt.Errorf("%s: %w: %w", r.Method, pkgerrors.ErrInvalidParams, err)
	}

	if val, ok := v.(interface{ Validate() error }); ok {
		return val.Validate()
	}

	return nil
}

type RegisterParams struct {
	Config trainconfig.TrainConfig `json:"config"`
}

func (p RegisterParams) Validate() error {
	return p.Config.Validate()
}

type FitParams struct {
	Handle     string `json:"handle"`
	DatasetKey string `json:"dataset_key"`
}

func (p FitParams) Validate() error {
	if p.Handle == "" {
		return fmt.Errorf("fit: handle is required but missing: %w", pkgerrors.ErrInvalidParams)
	}
	if p.DatasetKey == "" {
		return fmt.Errorf("fit: dataset_key is required but missing: %w", pkgerrors.ErrInvalidParams)
	}

	return nil
}

type HandleParams struct {
	Handle string `json:"handle"`
}

func (p HandleParams) Validate() error {
	if p.Handle == "" {
		return fmt.Errorf("handle is required but missing: %w", pkgerrors.ErrInvalidParams)
	}

	return nil
}
