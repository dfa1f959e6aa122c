package api

import (
	"context"

	"github.com/absmach/fltrain/pkg/rpc"
	"github.com/absmach/fltrain/worker"
	"github.com/go-kit/kit/endpoint"
)

func MakeHealthEndpoint(svc worker.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		return healthRes{Status: statusOK, WorkerID: svc.ID()}, nil
	}
}

func MakeStatsEndpoint(svc worker.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		return statsRes{Stats: svc.Stats(ctx)}, nil
	}
}

func MakeDatasetsEndpoint(svc worker.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		return datasetsRes{DatasetsResult: rpc.DatasetsResult{
			WorkerID: svc.ID(),
			Datasets: svc.Datasets(ctx),
		}}, nil
	}
}
