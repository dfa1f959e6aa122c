package client

import (
	"context"
	"fmt"

	"github.com/absmach/fltrain/pkg/model"
	"github.com/absmach/fltrain/pkg/rpc"
)

// Proxy stands in for a train config living on a worker. Only the handle is
// held locally; the model must be pulled with Model.
type Proxy struct {
	Handle string
	client *Client
}

// Fit runs one training call against the worker dataset and returns its loss.
func (p *Proxy) Fit(ctx context.Context, datasetKey string) (float64, error) {
	res, err := p.FitResult(ctx, datasetKey)
	if err != nil {
		return 0, err
	}

	return res.Loss, nil
}

func (p *Proxy) FitResult(ctx context.Context, datasetKey string) (rpc.FitResult, error) {
	var res rpc.FitResult
	if err := p.client.call(ctx, rpc.MethodFit, rpc.FitParams{Handle: p.Handle, DatasetKey: datasetKey}, &res); err != nil {
		return rpc.FitResult{}, err
	}

	return res, nil
}

// Model pulls and decodes the current remote model.
func (p *Proxy) Model(ctx context.Context) (*model.Model, error) {
	var res rpc.ModelResult
	if err := p.client.call(ctx, rpc.MethodModel, rpc.HandleParams{Handle: p.Handle}, &res); err != nil {
		return nil, err
	}

	data, err := p.client.sealer.Open(res.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to open model: %w", err)
	}

	return model.Decode(data)
}

func (p *Proxy) Release(ctx context.Context) error {
	var res rpc.ReleaseResult

	return p.client.call(ctx, rpc.MethodRelease, rpc.HandleParams{Handle: p.Handle}, &res)
}
