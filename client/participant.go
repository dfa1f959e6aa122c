package client

import (
	"context"
	"fmt"

	"github.com/absmach/fltrain/pkg/fl"
	"github.com/absmach/fltrain/pkg/model"
	"github.com/absmach/fltrain/pkg/rpc"
	"github.com/absmach/fltrain/trainconfig"
)

// Participant adapts a Client to a federated round: every Train call sends
// the global model as a fresh train config, runs Iterations fits on
// DatasetKey and pulls the result back.
type Participant struct {
	Client      *Client
	DatasetKey  string
	Loss        string
	Optimizer   string
	Hyperparams trainconfig.Hyperparams
	Iterations  int
}

var _ fl.Participant = (*Participant)(nil)

func (p *Participant) WorkerID() string {
	return p.Client.WorkerID()
}

func (p *Participant) Train(ctx context.Context, global *model.Model) (fl.Update, error) {
	data, err := model.Encode(global)
	if err != nil {
		return fl.Update{}, err
	}

	cfg, err := trainconfig.New(data, p.Loss, p.Optimizer, p.Hyperparams)
	if err != nil {
		return fl.Update{}, err
	}

	proxy, err := p.Client.Send(ctx, cfg)
	if err != nil {
		return fl.Update{}, err
	}
	defer func() { _ = proxy.Release(context.WithoutCancel(ctx)) }()

	iterations := max(p.Iterations, 1)
	var res rpc.FitResult
	samples := 0
	for range iterations {
		res, err = proxy.FitResult(ctx, p.DatasetKey)
		if err != nil {
			return fl.Update{}, fmt.Errorf("fit on '%s': %w", p.DatasetKey, err)
		}
		samples += res.Samples
	}

	trained, err := proxy.Model(ctx)
	if err != nil {
		return fl.Update{}, err
	}

	return fl.Update{
		WorkerID:   p.WorkerID(),
		NumSamples: samples,
		Loss:       res.Loss,
		Model:      trained,
	}, nil
}
